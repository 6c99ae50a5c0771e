package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pipeConn is an in-memory Conn. Tests push frames into in and observe
// what the session wrote on out.
type pipeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (p *pipeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-p.in:
		return data, nil
	case <-p.closed:
		return nil, errConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeConn) Write(ctx context.Context, data []byte) error {
	select {
	case <-p.closed:
		return errConnClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.closed:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeConn) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *pipeConn) next(t *testing.T) []byte {
	t.Helper()
	select {
	case data := <-p.out:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func (p *pipeConn) requireNothing(t *testing.T) {
	t.Helper()
	select {
	case data := <-p.out:
		t.Fatalf("unexpected frame %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func requireClosed(t *testing.T, p *pipeConn) {
	t.Helper()
	require.Eventually(t, p.isClosed, 2*time.Second, 5*time.Millisecond)
}
