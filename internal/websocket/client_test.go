package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// newEchoServer echoes every text frame. A frame reading "bye" makes the
// server close the connection.
func newEchoServer(t *testing.T, headers chan<- http.Header) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if headers != nil {
			headers <- r.Header.Clone()
		}
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = wsutil.WriteServerText(conn, []byte(`{"type":"session.created"}`))
		for {
			data, op, err := wsutil.ReadClientData(conn)
			if err != nil {
				return
			}
			if string(data) == "bye" {
				_ = wsutil.WriteServerMessage(conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, "bye"))
				return
			}
			if err := wsutil.WriteServerMessage(conn, op, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_ReadWrite(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := newEchoServer(t, headers)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, ClientConfig{
		URL:         wsURL(srv),
		DialTimeout: time.Second,
		Headers:     http.Header{"Authorization": []string{"Bearer secret"}},
	})
	require.NoError(t, err)
	defer client.Close()

	require.Equal(t, "Bearer secret", (<-headers).Get("Authorization"))

	first, err := client.Read(ctx)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"session.created"}`, string(first))

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, client.Write(ctx, []byte(msg)))
	}
	for _, want := range []string{"one", "two", "three"} {
		got, err := client.Read(ctx)
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}
	require.NoError(t, client.Err())
}

func TestClient_ServerClose(t *testing.T) {
	srv := newEchoServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, ClientConfig{URL: wsURL(srv)})
	require.NoError(t, err)

	_, err = client.Read(ctx)
	require.NoError(t, err)

	require.NoError(t, client.Write(ctx, []byte("bye")))

	select {
	case <-client.Done():
	case <-ctx.Done():
		t.Fatal("client not done after server close")
	}

	_, err = client.Read(ctx)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, client.Write(ctx, []byte("late")), ErrClosed)
}

func TestClient_CloseIdempotent(t *testing.T) {
	srv := newEchoServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, ClientConfig{URL: wsURL(srv)})
	require.NoError(t, err)

	_ = client.Close()
	_ = client.Close()

	<-client.Done()
	require.ErrorIs(t, client.Err(), ErrClosed)
}

func TestConnect_Refused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Connect(context.Background(), ClientConfig{URL: wsURL(srv), DialTimeout: time.Second})
	require.Error(t, err)
}
