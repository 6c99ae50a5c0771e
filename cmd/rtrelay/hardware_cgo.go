//go:build cgo

package main

import (
	"time"

	"github.com/codewandler/rtrelay"
	"github.com/codewandler/rtrelay/audio"
	"github.com/codewandler/rtrelay/audio/device"
)

func hardwareOptions(latency time.Duration) []rtrelay.ClientOption {
	return []rtrelay.ClientOption{
		rtrelay.WithCaptureDevice(device.NewMicrophone()),
		rtrelay.WithPlayer(device.NewSpeaker(audio.SampleRate, latency)),
	}
}
