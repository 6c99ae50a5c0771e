package audio

import (
	"context"
	"log/slog"
	"sync"

	"github.com/faiface/beep"
)

// Player plays one streamer to completion or until ctx is cancelled.
type Player interface {
	Play(ctx context.Context, s beep.Streamer) error
}

type PlayerFunc func(ctx context.Context, s beep.Streamer) error

func (f PlayerFunc) Play(ctx context.Context, s beep.Streamer) error {
	return f(ctx, s)
}

// Discard consumes streamers without producing sound.
var Discard Player = PlayerFunc(func(ctx context.Context, s beep.Streamer) error {
	samples := make([][2]float64, 512)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := s.Stream(samples); !ok {
			return s.Err()
		}
	}
})

// Decoder turns a raw chunk into something playable.
type Decoder func(chunk []byte) (beep.Streamer, error)

type QueueOption func(*Queue)

func WithDecoder(decode Decoder) QueueOption {
	return func(q *Queue) {
		q.decode = decode
	}
}

// WithOnDone registers a callback fired after each chunk has finished,
// failed to decode or been interrupted. It runs on the playback goroutine
// and must not call Close.
func WithOnDone(f func(seq uint64, err error)) QueueOption {
	return func(q *Queue) {
		q.onDone = f
	}
}

func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		q.logger = logger
	}
}

type chunk struct {
	seq  uint64
	data []byte
}

// Queue plays chunks strictly in enqueue order, one at a time. A worker
// goroutine runs only while there is something to play.
type Queue struct {
	player Player
	decode Decoder
	onDone func(seq uint64, err error)
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	pending     []chunk
	playing     bool
	closed      bool
	seq         uint64
	stopCurrent context.CancelFunc
	wg          sync.WaitGroup
}

func NewQueue(player Player, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		player: player,
		decode: DecodeStreamer,
		onDone: func(uint64, error) {},
		logger: slog.New(slog.DiscardHandler),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue takes ownership of data and returns its sequence number, or 0
// once the queue is closed.
func (q *Queue) Enqueue(data []byte) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0
	}
	q.seq++
	q.pending = append(q.pending, chunk{seq: q.seq, data: data})

	if !q.playing {
		q.playing = true
		q.wg.Add(1)
		go q.run()
	}
	return q.seq
}

// Len counts pending chunks plus the one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.pending)
	if q.stopCurrent != nil {
		n++
	}
	return n
}

// Clear drops everything pending and interrupts the chunk in flight.
func (q *Queue) Clear() {
	q.mu.Lock()
	dropped := len(q.pending)
	q.pending = nil
	stop := q.stopCurrent
	q.mu.Unlock()

	if stop != nil {
		stop()
	}
	if dropped > 0 {
		q.logger.Debug("playback cleared", slog.Int("dropped", dropped))
	}
}

// Close stops playback and waits for the worker to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.pending = nil
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if len(q.pending) == 0 || q.closed {
			q.playing = false
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending[0] = chunk{}
		q.pending = q.pending[1:]
		ctx, cancel := context.WithCancel(q.ctx)
		q.stopCurrent = cancel
		q.mu.Unlock()

		err := q.play(ctx, next)
		cancel()

		q.mu.Lock()
		q.stopCurrent = nil
		q.mu.Unlock()

		q.onDone(next.seq, err)
	}
}

func (q *Queue) play(ctx context.Context, c chunk) error {
	streamer, err := q.decode(c.data)
	if err != nil {
		q.logger.Warn("dropping undecodable chunk", slog.Uint64("seq", c.seq), slog.Any("err", err))
		return err
	}
	if err := q.player.Play(ctx, streamer); err != nil {
		q.logger.Debug("chunk interrupted", slog.Uint64("seq", c.seq), slog.Any("err", err))
		return err
	}
	return nil
}
