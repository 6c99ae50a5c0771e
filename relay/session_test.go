package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codewandler/rtrelay/events"
	"github.com/stretchr/testify/require"
)

const sessionCreated = `{"type":"session.created","event_id":"evt_1","session":{"id":"sess_1"}}`

type runningSession struct {
	sess     *Session
	client   *pipeConn
	upstream *pipeConn
	done     chan error
}

func startSession(t *testing.T) *runningSession {
	t.Helper()
	client, upstream := newPipeConn(), newPipeConn()
	sess := NewSession(client, upstream, events.DefaultSessionUpdate())
	require.Equal(t, StateConnecting, sess.State())

	rs := &runningSession{sess: sess, client: client, upstream: upstream, done: make(chan error, 1)}
	go func() { rs.done <- sess.Run(context.Background()) }()
	require.Eventually(t, func() bool { return sess.State() == StateRelaying }, time.Second, time.Millisecond)

	t.Cleanup(func() {
		client.Close()
		upstream.Close()
	})
	return rs
}

func (rs *runningSession) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-rs.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

func requireType(t *testing.T, frame []byte, want string) {
	t.Helper()
	got, err := events.PeekType(frame)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSession_InjectsConfigOnce(t *testing.T) {
	rs := startSession(t)

	rs.upstream.in <- []byte(sessionCreated)

	// the update goes upstream before session.created reaches the client
	update := rs.upstream.next(t)
	requireType(t, update, events.TypeSessionUpdate)
	require.JSONEq(t, sessionCreated, string(rs.client.next(t)))
	require.True(t, rs.sess.ConfigSent())

	ev, err := events.Decode(update)
	require.NoError(t, err)
	require.Equal(t, events.DefaultSessionUpdate(), ev.(*events.SessionUpdateEvent).Session)

	// client traffic generated after session.created follows the update
	appendFrame := events.MustEncode(events.NewInputAudioAppend([]byte{0, 1, 2, 3}))
	rs.client.in <- appendFrame
	require.Equal(t, appendFrame, rs.upstream.next(t))

	for i := 0; i < 3; i++ {
		rs.upstream.in <- []byte(sessionCreated)
		rs.client.next(t)
	}
	rs.upstream.requireNothing(t)
}

func TestSession_RelaysVerbatimInOrder(t *testing.T) {
	rs := startSession(t)

	clientFrames := [][]byte{
		[]byte(`{"type":"input_audio_buffer.append","audio":"AAA="}`),
		[]byte(`{"type":"conversation.item.create","item":{"type":"message"}}`),
		[]byte(`{"type":"response.create"}`),
		[]byte(`{"type":"some.future.event","x":1}`),
	}
	upstreamFrames := [][]byte{
		[]byte(`{"type":"response.audio.delta","delta":"AAE="}`),
		[]byte(`{"type":"response.audio_transcript.delta","delta":"Hi"}`),
		[]byte(`{"type":"rate_limits.updated"}`),
	}

	for _, f := range clientFrames {
		rs.client.in <- f
	}
	for _, f := range upstreamFrames {
		rs.upstream.in <- f
	}

	for _, want := range clientFrames {
		require.Equal(t, want, rs.upstream.next(t))
	}
	for _, want := range upstreamFrames {
		require.Equal(t, want, rs.client.next(t))
	}
	require.False(t, rs.sess.ConfigSent())
}

func TestSession_DropsMalformedFrames(t *testing.T) {
	rs := startSession(t)

	rs.client.in <- []byte(`garbage`)
	rs.client.in <- []byte(`{"type":"response.create"}`)
	rs.upstream.in <- []byte(`{"no_type":true}`)
	rs.upstream.in <- []byte(`{"type":"response.done"}`)

	requireType(t, rs.upstream.next(t), events.TypeResponseCreate)
	requireType(t, rs.client.next(t), events.TypeResponseDone)
	require.Equal(t, StateRelaying, rs.sess.State())
}

func TestSession_ClientCloseClosesUpstream(t *testing.T) {
	rs := startSession(t)

	rs.client.Close()

	requireClosed(t, rs.upstream)
	err := rs.wait(t)
	require.ErrorIs(t, err, ErrClientClosed)
	require.Equal(t, StateClosed, rs.sess.State())
}

func TestSession_UpstreamCloseClosesClient(t *testing.T) {
	rs := startSession(t)

	rs.upstream.Close()

	// the client is told why before it is closed
	errFrame := rs.client.next(t)
	ev, err := events.Decode(errFrame)
	require.NoError(t, err)
	require.Equal(t, "upstream connection lost", ev.(*events.ErrorEvent).Error())

	requireClosed(t, rs.client)
	require.ErrorIs(t, rs.wait(t), ErrUpstreamUnavailable)
}

func TestSession_ContextCancelClosesBoth(t *testing.T) {
	client, upstream := newPipeConn(), newPipeConn()
	sess := NewSession(client, upstream, events.DefaultSessionUpdate())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	cancel()
	requireClosed(t, client)
	requireClosed(t, upstream)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
}

func TestSession_UpstreamWriteFailure(t *testing.T) {
	client := newPipeConn()
	upstream := &failingWriteConn{pipeConn: newPipeConn()}
	sess := NewSession(client, upstream, events.DefaultSessionUpdate())

	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background()) }()

	client.in <- []byte(`{"type":"response.create"}`)

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrUpstreamUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
	requireClosed(t, client)
	require.True(t, upstream.isClosed())
}

type failingWriteConn struct {
	*pipeConn
}

func (f *failingWriteConn) Write(context.Context, []byte) error {
	return errors.New("broken pipe")
}

func TestStateString(t *testing.T) {
	require.Equal(t, "awaiting_upgrade", StateAwaitingUpgrade.String())
	require.Equal(t, "relaying", StateRelaying.String())
	require.Equal(t, "closed", StateClosed.String())
}
