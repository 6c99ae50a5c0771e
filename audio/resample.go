package audio

import (
	"bytes"
	"encoding/binary"

	"github.com/faiface/beep"
)

// PCMStreamer streams mono int16 samples as a beep.Streamer, duplicating
// them onto both channels.
type PCMStreamer struct {
	data []int16
	pos  int
}

func NewPCMStreamer(samples []int16) *PCMStreamer {
	return &PCMStreamer{data: samples}
}

func (s *PCMStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= len(s.data) {
		return 0, false
	}
	for i := range samples {
		if s.pos >= len(s.data) {
			return i, true
		}
		val := float64(s.data[s.pos]) / 32768.0
		samples[i][0] = val
		samples[i][1] = val
		s.pos++
	}
	return len(samples), true
}

func (s *PCMStreamer) Err() error { return nil }

func (s *PCMStreamer) Len() int { return len(s.data) }

// DecodeStreamer turns a raw pcm16 chunk into a playable streamer.
func DecodeStreamer(chunk []byte) (beep.Streamer, error) {
	samples, err := DecodePCM16(chunk)
	if err != nil {
		return nil, err
	}
	return NewPCMStreamer(samples), nil
}

// ResamplePCM converts mono pcm16 between sample rates.
func ResamplePCM(pcmData []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate == toRate {
		return pcmData, nil
	}
	samples, err := DecodePCM16(pcmData)
	if err != nil {
		return nil, err
	}

	resampler := beep.Resample(3, beep.SampleRate(fromRate), beep.SampleRate(toRate), NewPCMStreamer(samples))

	buf := new(bytes.Buffer)
	buf.Grow(len(pcmData) * toRate / fromRate)
	sample := make([][2]float64, 1024)

	for {
		n, ok := resampler.Stream(sample)
		for i := 0; i < n; i++ {
			mono := (sample[i][0] + sample[i][1]) / 2.0
			if err := binary.Write(buf, binary.LittleEndian, int16(mono*32767)); err != nil {
				return nil, err
			}
		}
		if !ok {
			break
		}
	}

	return buf.Bytes(), nil
}
