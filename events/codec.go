package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedFrame = errors.New("malformed frame")

// Unknown carries a frame whose type is not modelled here. It is kept
// verbatim so it can be forwarded untouched.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (u *Unknown) EventType() string { return u.Type }

// PeekType returns the type tag of a frame without decoding its payload.
func PeekType(data []byte) (string, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if envelope.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return envelope.Type, nil
}

func newEvent(eventType string) Event {
	switch eventType {
	case TypeSessionCreated:
		return &SessionCreatedEvent{}
	case TypeSessionUpdate:
		return &SessionUpdateEvent{}
	case TypeSessionUpdated:
		return &SessionUpdatedEvent{}
	case TypeInputAudioBufferAppend:
		return &InputAudioBufferAppendEvent{}
	case TypeSpeechStarted:
		return &SpeechStartedEvent{}
	case TypeSpeechStopped:
		return &SpeechStoppedEvent{}
	case TypeInputAudioTranscriptionCompleted:
		return &InputAudioTranscriptionCompletedEvent{}
	case TypeConversationItemCreate:
		return &ConversationItemCreateEvent{}
	case TypeResponseCreate:
		return &ResponseCreateEvent{}
	case TypeResponseAudioDelta:
		return &ResponseAudioDeltaEvent{}
	case TypeResponseAudioDone:
		return &ResponseAudioDoneEvent{}
	case TypeResponseAudioTranscriptDelta:
		return &ResponseAudioTranscriptDeltaEvent{}
	case TypeResponseAudioTranscriptDone:
		return &ResponseAudioTranscriptDoneEvent{}
	case TypeResponseDone:
		return &ResponseDoneEvent{}
	case TypeError:
		return &ErrorEvent{}
	}
	return nil
}

// Decode parses one wire frame. Unrecognized types decode to *Unknown;
// anything that is not a JSON object with a type tag, or whose payload does
// not fit the tagged variant, fails with ErrMalformedFrame.
func Decode(data []byte) (Event, error) {
	eventType, err := PeekType(data)
	if err != nil {
		return nil, err
	}

	ev := newEvent(eventType)
	if ev == nil {
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return &Unknown{Type: eventType, Raw: raw}, nil
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, eventType, err)
	}
	return ev, nil
}

// Encode serializes an event into a single newline-free JSON text frame.
func Encode(ev Event) ([]byte, error) {
	if u, ok := ev.(*Unknown); ok {
		return u.Raw, nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	return data, nil
}

// MustEncode is Encode for events built in-process, which always marshal.
func MustEncode(ev Event) []byte {
	data, err := Encode(ev)
	if err != nil {
		panic(err)
	}
	return data
}
