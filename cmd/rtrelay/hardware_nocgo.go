//go:build !cgo

package main

import (
	"time"

	"github.com/codewandler/rtrelay"
)

// built without cgo: no microphone or speaker, use --pcm-file to stream audio
func hardwareOptions(time.Duration) []rtrelay.ClientOption {
	return nil
}
