package audio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codewandler/rtrelay/events"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	mu        sync.Mutex
	openErr   error
	onSamples func([]float32)
	rate      int
	opens     int
	closes    int
}

func (d *fakeDevice) Open(sampleRate int, onSamples func([]float32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return d.openErr
	}
	d.opens++
	d.rate = sampleRate
	d.onSamples = onSamples
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	d.onSamples = nil
	return nil
}

func (d *fakeDevice) deliver(samples []float32) {
	d.mu.Lock()
	f := d.onSamples
	d.mu.Unlock()
	if f != nil {
		f(samples)
	}
}

func decodeAppend(t *testing.T, frame []byte) []byte {
	t.Helper()
	ev, err := events.Decode(frame)
	require.NoError(t, err)
	app, ok := ev.(*events.InputAudioBufferAppendEvent)
	require.True(t, ok)
	pcm, err := base64.StdEncoding.DecodeString(app.Audio)
	require.NoError(t, err)
	return pcm
}

func TestEncoder_EmitsFixedWindows(t *testing.T) {
	dev := &fakeDevice{}
	enc := NewEncoder(dev, WithWindow(10*time.Millisecond)) // 480 bytes

	var frames [][]byte
	require.NoError(t, enc.Start(func(frame []byte) {
		frames = append(frames, frame)
	}))
	require.Equal(t, SampleRate, dev.rate)

	// 300 samples = 600 bytes: one frame, 120 bytes carried over
	first := make([]float32, 300)
	for i := range first {
		first[i] = 0.25
	}
	dev.deliver(first)
	require.Len(t, frames, 1)
	require.Len(t, decodeAppend(t, frames[0]), 480)

	dev.deliver(make([]float32, 180))
	require.Len(t, frames, 2)

	second := decodeAppend(t, frames[1])
	require.Len(t, second, 480)
	require.Equal(t, EncodePCM16(first[240:]), second[:120])
	require.True(t, bytes.Equal(make([]byte, 360), second[120:]))
}

func TestEncoder_LargeDelivery(t *testing.T) {
	dev := &fakeDevice{}
	enc := NewEncoder(dev, WithWindow(10*time.Millisecond))

	var count int
	require.NoError(t, enc.Start(func([]byte) { count++ }))

	// larger than the accumulator capacity
	dev.deliver(make([]float32, 240*10))
	require.Equal(t, 10, count)
}

func TestEncoder_StartDeviceUnavailable(t *testing.T) {
	dev := &fakeDevice{openErr: errors.New("permission denied")}
	enc := NewEncoder(dev)

	err := enc.Start(func([]byte) {})
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	require.False(t, enc.Running())

	dev.openErr = nil
	require.NoError(t, enc.Start(func([]byte) {}))
	require.True(t, enc.Running())
}

func TestEncoder_NoDevice(t *testing.T) {
	enc := NewEncoder(nil)
	require.ErrorIs(t, enc.Start(func([]byte) {}), ErrDeviceUnavailable)
	require.False(t, enc.Running())
	require.NoError(t, enc.Stop())
}

func TestEncoder_ZeroWindowKeepsDefault(t *testing.T) {
	for _, window := range []time.Duration{0, -time.Second, time.Microsecond} {
		dev := &fakeDevice{}
		enc := NewEncoder(dev, WithWindow(window))

		var frames [][]byte
		require.NoError(t, enc.Start(func(f []byte) { frames = append(frames, f) }))

		done := make(chan struct{})
		go func() {
			defer close(done)
			dev.deliver(make([]float32, 480)) // 20 ms
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery with window %v did not return", window)
		}
		require.Empty(t, frames, "window %v", window)

		// the default window is 100 ms
		dev.deliver(make([]float32, 2400))
		require.Len(t, frames, 1)
		require.Len(t, decodeAppend(t, frames[0]), ChunkSize(SampleRate, DefaultWindow, BytesPerSample, Channels))
		require.NoError(t, enc.Stop())
	}
}

func TestEncoder_StartStopIdempotent(t *testing.T) {
	dev := &fakeDevice{}
	enc := NewEncoder(dev)

	require.NoError(t, enc.Stop())
	require.Zero(t, dev.closes)

	require.NoError(t, enc.Start(func([]byte) {}))
	require.NoError(t, enc.Start(func([]byte) {}))
	require.Equal(t, 1, dev.opens)

	require.NoError(t, enc.Stop())
	require.NoError(t, enc.Stop())
	require.Equal(t, 1, dev.closes)
	require.False(t, enc.Running())
}

func TestEncoder_NoFramesAfterStop(t *testing.T) {
	dev := &fakeDevice{}
	enc := NewEncoder(dev, WithWindow(10*time.Millisecond))

	var count int
	require.NoError(t, enc.Start(func([]byte) { count++ }))
	onSamples := dev.onSamples
	require.NoError(t, enc.Stop())

	// late callback from the driver
	onSamples(make([]float32, 480))
	require.Zero(t, count)
}

func TestFileDevice(t *testing.T) {
	pcm := EncodePCM16(make([]float32, 240*3))
	dev := NewReaderDevice(bytes.NewReader(pcm), SampleRate, 10*time.Millisecond)
	enc := NewEncoder(dev, WithWindow(10*time.Millisecond))

	frames := make(chan []byte, 10)
	require.NoError(t, enc.Start(func(frame []byte) { frames <- frame }))

	for i := 0; i < 3; i++ {
		select {
		case frame := <-frames:
			require.Len(t, decodeAppend(t, frame), 480)
		case <-time.After(2 * time.Second):
			t.Fatal("no frame from file device")
		}
	}
	require.NoError(t, enc.Stop())
}

func TestFileDevice_ZeroWindow(t *testing.T) {
	pcm := EncodePCM16(make([]float32, 2400))
	dev := NewReaderDevice(bytes.NewReader(pcm), SampleRate, 0)
	enc := NewEncoder(dev, WithWindow(0))

	frames := make(chan []byte, 1)
	require.NoError(t, enc.Start(func(frame []byte) { frames <- frame }))
	defer enc.Stop()

	select {
	case frame := <-frames:
		require.Len(t, decodeAppend(t, frame), 4800)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from file device")
	}
}
