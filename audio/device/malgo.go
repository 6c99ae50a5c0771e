//go:build cgo

package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/codewandler/rtrelay/audio"
	"github.com/gen2brain/malgo"
)

// Microphone captures from the default input device.
type Microphone struct {
	PeriodMS int

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

func NewMicrophone() *Microphone {
	return &Microphone{PeriodMS: 20}
}

func (m *Microphone) Open(sampleRate int, onSamples func(samples []float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return fmt.Errorf("%w: already open", audio.ErrDeviceUnavailable)
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return fmt.Errorf("%w: init context: %v", audio.ErrDeviceUnavailable, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = audio.Channels
	cfg.SampleRate = uint32(sampleRate)
	cfg.PeriodSizeInMilliseconds = uint32(m.PeriodMS)

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			onSamples(float32Samples(input, int(frameCount)))
		},
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: init device: %v", audio.ErrDeviceUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: start device: %v", audio.ErrDeviceUnavailable, err)
	}

	m.ctx = ctx
	m.device = device
	return nil
}

func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return nil
	}
	// Uninit stops the device and waits for the callback thread
	m.device.Uninit()
	m.device = nil

	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	return err
}

func float32Samples(b []byte, frames int) []float32 {
	if n := len(b) / 4; frames > n {
		frames = n
	}
	out := make([]float32, frames)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
