//go:build cgo

// Package device binds the capture and playback interfaces of package audio
// to the system microphone and speaker. It needs cgo.
package device
