package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codewandler/rtrelay/events"
	"github.com/smallnest/ringbuffer"
)

const DefaultWindow = 100 * time.Millisecond

type EncoderOption func(*Encoder)

func WithDeviceRate(rate int) EncoderOption {
	return func(e *Encoder) {
		e.deviceRate = rate
	}
}

// WithWindow sets the duration of audio carried by each emitted frame.
// Windows shorter than one sample keep the default.
func WithWindow(window time.Duration) EncoderOption {
	return func(e *Encoder) {
		if size := ChunkSize(SampleRate, window, BytesPerSample, Channels); size > 0 {
			e.window = size
		}
	}
}

func WithEncoderLogger(logger *slog.Logger) EncoderOption {
	return func(e *Encoder) {
		e.logger = logger
	}
}

// Encoder turns device samples into input_audio_buffer.append frames of a
// fixed window size. Frames are produced on the device's delivery thread;
// nothing is buffered beyond one partial window.
type Encoder struct {
	device     CaptureDevice
	deviceRate int
	window     int
	logger     *slog.Logger

	// lifecycle serializes Start and Stop; mu guards the callback state
	lifecycle sync.Mutex
	mu        sync.Mutex
	running   bool
	acc       *ringbuffer.RingBuffer
	onFrame   func(frame []byte)
}

func NewEncoder(device CaptureDevice, opts ...EncoderOption) *Encoder {
	e := &Encoder{
		device:     device,
		deviceRate: SampleRate,
		window:     ChunkSize(SampleRate, DefaultWindow, BytesPerSample, Channels),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.acc = ringbuffer.New(e.window * 4)
	return e
}

// Start acquires the device. onFrame receives encoded wire frames. Starting
// an already running encoder is a no-op.
func (e *Encoder) Start(onFrame func(frame []byte)) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.device == nil {
		return fmt.Errorf("%w: no capture device configured", ErrDeviceUnavailable)
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.onFrame = onFrame
	e.acc.Reset()
	e.mu.Unlock()

	if err := e.device.Open(e.deviceRate, e.onSamples); err != nil {
		e.mu.Lock()
		e.running = false
		e.onFrame = nil
		e.mu.Unlock()
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return err
	}

	e.logger.Debug("capture started", slog.Int("device_rate", e.deviceRate), slog.Int("window_bytes", e.window))
	return nil
}

// Stop releases the device before returning. Stopping a stopped encoder is
// a no-op.
func (e *Encoder) Stop() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.onFrame = nil
	e.mu.Unlock()

	// must not hold mu here: Close waits for in-flight callbacks
	err := e.device.Close()

	e.mu.Lock()
	e.acc.Reset()
	e.mu.Unlock()

	e.logger.Debug("capture stopped")
	return err
}

func (e *Encoder) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Encoder) onSamples(samples []float32) {
	pcm := EncodePCM16(samples)
	if e.deviceRate != SampleRate {
		resampled, err := ResamplePCM(pcm, e.deviceRate, SampleRate)
		if err != nil {
			e.logger.Warn("resample failed", slog.Any("err", err))
			return
		}
		pcm = resampled
	}

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	onFrame := e.onFrame
	var frames [][]byte
	for len(pcm) > 0 {
		n, err := e.acc.Write(pcm)
		pcm = pcm[n:]
		if err != nil && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) && !errors.Is(err, ringbuffer.ErrIsFull) {
			e.logger.Error("capture buffer write failed", slog.Any("err", err))
			break
		}
		for e.acc.Length() >= e.window {
			window := make([]byte, e.window)
			if _, err := e.acc.Read(window); err != nil {
				break
			}
			frames = append(frames, events.MustEncode(events.NewInputAudioAppend(window)))
		}
	}
	e.mu.Unlock()

	for _, frame := range frames {
		onFrame(frame)
	}
}
