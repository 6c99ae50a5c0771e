//go:build cgo

package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codewandler/rtrelay/audio"
	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// Speaker plays streamers through the default output device. The device is
// initialized on first use.
type Speaker struct {
	rate    beep.SampleRate
	latency time.Duration

	initOnce sync.Once
	initErr  error
}

func NewSpeaker(outputRate int, latency time.Duration) *Speaker {
	return &Speaker{
		rate:    beep.SampleRate(outputRate),
		latency: latency,
	}
}

func (s *Speaker) Play(ctx context.Context, st beep.Streamer) error {
	s.initOnce.Do(func() {
		if err := speaker.Init(s.rate, s.rate.N(s.latency)); err != nil {
			s.initErr = fmt.Errorf("init speaker: %w", err)
		}
	})
	if s.initErr != nil {
		return s.initErr
	}

	if s.rate != audio.SampleRate {
		st = beep.Resample(3, audio.SampleRate, s.rate, st)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(st, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}
