package events

import nanoid "github.com/matoous/go-nanoid/v2"

const (
	TypeSessionCreated                   = "session.created"
	TypeSessionUpdate                    = "session.update"
	TypeSessionUpdated                   = "session.updated"
	TypeInputAudioBufferAppend           = "input_audio_buffer.append"
	TypeSpeechStarted                    = "input_audio_buffer.speech_started"
	TypeSpeechStopped                    = "input_audio_buffer.speech_stopped"
	TypeInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeConversationItemCreate           = "conversation.item.create"
	TypeResponseCreate                   = "response.create"
	TypeResponseAudioDelta               = "response.audio.delta"
	TypeResponseAudioDone                = "response.audio.done"
	TypeResponseAudioTranscriptDelta     = "response.audio_transcript.delta"
	TypeResponseAudioTranscriptDone      = "response.audio_transcript.done"
	TypeResponseDone                     = "response.done"
	TypeError                            = "error"
)

// Event is any frame that travels over the wire.
type Event interface {
	EventType() string
}

type BaseEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

func (b BaseEvent) EventType() string { return b.Type }

func NewBaseEvent(eventType string) BaseEvent {
	id, err := nanoid.New()
	if err != nil {
		panic(err)
	}
	return BaseEvent{
		EventID: id,
		Type:    eventType,
	}
}
