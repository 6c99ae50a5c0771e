package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire audio format: 16-bit little endian linear PCM, mono, 24 kHz.
const (
	SampleRate     = 24_000
	Channels       = 1
	BytesPerSample = 2
)

var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrDecode            = errors.New("audio decode failed")
)

// EncodePCM16 quantizes float samples in [-1, 1] to little endian int16.
// Out of range samples are clamped.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(v))
	}
	return out
}

// DecodePCM16 splits a pcm16 chunk into samples.
func DecodePCM16(b []byte) ([]int16, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty chunk", ErrDecode)
	}
	if len(b)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: odd chunk length %d", ErrDecode, len(b))
	}
	samples := make([]int16, len(b)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*BytesPerSample:]))
	}
	return samples, nil
}

func int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
