package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// CaptureDevice delivers mono float samples from the device's own thread.
// Close must not return before the last onSamples call has returned.
type CaptureDevice interface {
	Open(sampleRate int, onSamples func(samples []float32)) error
	Close() error
}

// FileDevice replays a raw pcm16 mono stream as if it were a microphone,
// one window at a time in real time. After the stream ends the device stays
// open and silent.
type FileDevice struct {
	open       func() (io.ReadCloser, error)
	sourceRate int
	window     time.Duration
	logger     *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewFileDevice(path string, sourceRate int, window time.Duration) *FileDevice {
	return newFileDevice(func() (io.ReadCloser, error) { return os.Open(path) }, sourceRate, window)
}

func NewReaderDevice(r io.Reader, sourceRate int, window time.Duration) *FileDevice {
	return newFileDevice(func() (io.ReadCloser, error) { return io.NopCloser(r), nil }, sourceRate, window)
}

func newFileDevice(open func() (io.ReadCloser, error), sourceRate int, window time.Duration) *FileDevice {
	if ChunkSize(sourceRate, window, BytesPerSample, Channels) <= 0 {
		window = DefaultWindow
	}
	return &FileDevice{
		open:       open,
		sourceRate: sourceRate,
		window:     window,
		logger:     slog.New(slog.DiscardHandler),
	}
}

func (d *FileDevice) WithLogger(logger *slog.Logger) *FileDevice {
	d.logger = logger
	return d
}

func (d *FileDevice) Open(sampleRate int, onSamples func(samples []float32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != nil {
		return fmt.Errorf("%w: already open", ErrDeviceUnavailable)
	}

	rc, err := d.open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	stop := make(chan struct{})
	d.stop = stop
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		defer rc.Close()

		reader := NewWindowReader(rc, d.sourceRate, d.window)
		chunk := make([]byte, reader.Size())
		ticker := time.NewTicker(d.window)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}

			n, err := reader.Read(chunk)
			if errors.Is(err, io.EOF) {
				d.logger.Debug("capture file drained")
				<-stop
				return
			}
			if err != nil {
				d.logger.Error("capture file read failed", slog.Any("err", err))
				<-stop
				return
			}

			pcm, err := ResamplePCM(chunk[:n&^1], d.sourceRate, sampleRate)
			if err != nil {
				d.logger.Warn("skipping capture chunk", slog.Any("err", err))
				continue
			}
			samples, err := DecodePCM16(pcm)
			if err != nil {
				continue
			}
			onSamples(int16ToFloat32(samples))
		}
	}()

	return nil
}

func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop == nil {
		return nil
	}
	close(d.stop)
	d.wg.Wait()
	d.stop = nil
	return nil
}
