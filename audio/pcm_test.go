package audio

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodePCM16(t *testing.T) {
	pcm := EncodePCM16([]float32{0, 1, -1, 0.5, 2, -3})
	samples, err := DecodePCM16(pcm)
	require.NoError(t, err)
	require.Equal(t, []int16{0, 32767, -32768, 16383, 32767, -32768}, samples)
}

func TestDecodePCM16_Invalid(t *testing.T) {
	_, err := DecodePCM16(nil)
	require.ErrorIs(t, err, ErrDecode)

	_, err = DecodePCM16([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrDecode)
}

func TestPCMStreamer(t *testing.T) {
	s := NewPCMStreamer([]int16{16384, -16384, 0})
	buf := make([][2]float64, 2)

	n, ok := s.Stream(buf)
	require.True(t, ok)
	require.Equal(t, 2, n)
	require.Equal(t, [2]float64{0.5, 0.5}, buf[0])
	require.Equal(t, [2]float64{-0.5, -0.5}, buf[1])

	n, ok = s.Stream(buf)
	require.True(t, ok)
	require.Equal(t, 1, n)

	n, ok = s.Stream(buf)
	require.False(t, ok)
	require.Zero(t, n)
}

func TestResamplePCM(t *testing.T) {
	in := EncodePCM16(make([]float32, 4800))

	same, err := ResamplePCM(in, SampleRate, SampleRate)
	require.NoError(t, err)
	require.Equal(t, in, same)

	down, err := ResamplePCM(in, 48_000, SampleRate)
	require.NoError(t, err)
	require.InDelta(t, len(in)/2, len(down), 16)
}

func TestChunkReader(t *testing.T) {
	require.Equal(t, 4800, ChunkSize(SampleRate, 100*time.Millisecond, BytesPerSample, Channels))
	require.Equal(t, 480, NewWindowReader(bytes.NewReader(nil), SampleRate, 10*time.Millisecond).Size())

	r := NewChunkReader(iotest.OneByteReader(bytes.NewReader(make([]byte, 25))), 10)
	buf := make([]byte, 10)

	var sizes []int
	for {
		n, err := r.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, n)
	}
	require.Equal(t, []int{10, 10, 5}, sizes)

	_, err := r.Read(make([]byte, 3))
	require.Error(t, err)
}
