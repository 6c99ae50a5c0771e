package audio

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ChunkSize returns the byte length of duration worth of audio.
func ChunkSize(sampleRate int, duration time.Duration, bytesPerSample int, channels int) int {
	frames := int(float64(sampleRate) * duration.Seconds())
	return frames * bytesPerSample * channels
}

// ChunkReader reads a pcm16 mono stream one window at a time. Every chunk
// is exactly Size bytes except the last one before EOF.
type ChunkReader struct {
	r    io.Reader
	size int
}

func NewChunkReader(r io.Reader, size int) *ChunkReader {
	return &ChunkReader{r: r, size: size}
}

// NewWindowReader sizes chunks to window at sampleRate.
func NewWindowReader(r io.Reader, sampleRate int, window time.Duration) *ChunkReader {
	return NewChunkReader(r, ChunkSize(sampleRate, window, BytesPerSample, Channels))
}

func (c *ChunkReader) Size() int { return c.size }

func (c *ChunkReader) Read(p []byte) (int, error) {
	if len(p) < c.size {
		return 0, fmt.Errorf("chunk buffer holds %d bytes, need %d", len(p), c.size)
	}
	n, err := io.ReadFull(c.r, p[:c.size])
	if errors.Is(err, io.ErrUnexpectedEOF) {
		// short tail, EOF follows on the next call
		return n, nil
	}
	return n, err
}
