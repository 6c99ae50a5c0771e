package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/rtrelay/relay"
)

func TestRouter(t *testing.T) {
	gw := relay.NewGateway(relay.NewJWTValidator([]byte("secret")), relay.UpstreamFunc(nil))
	srv := httptest.NewServer(newRouter(gw, relay.NewMetrics("test")))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(body), "test_"), "metrics body: %s", body)

	// plain GET without credential is rejected before any upgrade
	resp, err = http.Get(srv.URL + "/v1/realtime")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_AUDIENCE", "")

	var out strings.Builder
	cmd := tokenCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--sub", "alice"})
	require.NoError(t, cmd.Execute())

	id, err := relay.NewJWTValidator([]byte("secret")).Validate(t.Context(), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Equal(t, "alice", id.Subject)
}

func TestChatCmd_RejectsLatency(t *testing.T) {
	for _, latency := range []string{"0", "-5"} {
		cmd := chatCmd()
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"--latency=" + latency})
		require.ErrorContains(t, cmd.Execute(), "--latency must be positive")
	}
}
