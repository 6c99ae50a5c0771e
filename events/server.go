package events

import (
	"encoding/base64"
	"fmt"
)

type AudioFormat string

const (
	AudioFormatPCM16 AudioFormat = "pcm16"
)

// ErrorEvent is reported by the provider ({"error":{...}}) or by the relay
// itself ({"message":"..."}).
type ErrorEvent struct {
	BaseEvent
	ErrorDetail *ErrorDetail `json:"error,omitempty"`
	Message     string       `json:"message,omitempty"`
}

func NewError(message string) *ErrorEvent {
	return &ErrorEvent{
		BaseEvent: NewBaseEvent(TypeError),
		Message:   message,
	}
}

func (e *ErrorEvent) Error() string {
	if e.ErrorDetail != nil {
		return e.ErrorDetail.Error()
	}
	return e.Message
}

// ErrorDetail holds the details of the error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

func (e *ErrorDetail) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type SessionCreatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type SessionUpdatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type SpeechStartedEvent struct {
	BaseEvent
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

type SpeechStoppedEvent struct {
	BaseEvent
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

type InputAudioTranscriptionCompletedEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

type ResponseAudioDeltaEvent struct {
	BaseEvent
	ResponseId   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

// Audio returns the decoded pcm16 payload of the delta.
func (e *ResponseAudioDeltaEvent) Audio() ([]byte, error) {
	return base64.StdEncoding.DecodeString(e.Delta)
}

type ResponseAudioDoneEvent struct {
	BaseEvent
	ResponseId   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
}

type ResponseAudioTranscriptDeltaEvent struct {
	BaseEvent
	ResponseId   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type ResponseAudioTranscriptDoneEvent struct {
	BaseEvent
	ResponseId   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

type ResponseDoneEvent struct {
	BaseEvent
	Response Response `json:"response"`
}

type Response struct {
	ID     string           `json:"id"`
	Status string           `json:"status"`
	Output []ResponseOutput `json:"output"`
}

type ResponseOutput struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}
