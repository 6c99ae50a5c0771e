package events

import "encoding/base64"

// Events sent by the client (or injected by the relay) towards the provider.

type SessionUpdateEvent struct {
	BaseEvent
	Session SessionUpdate `json:"session"`
}

func NewSessionUpdate(session SessionUpdate) *SessionUpdateEvent {
	return &SessionUpdateEvent{
		BaseEvent: NewBaseEvent(TypeSessionUpdate),
		Session:   session,
	}
}

type InputAudioBufferAppendEvent struct {
	BaseEvent
	Audio string `json:"audio"`
}

// NewInputAudioAppend wraps raw pcm16 bytes into an append event.
func NewInputAudioAppend(pcm []byte) *InputAudioBufferAppendEvent {
	return &InputAudioBufferAppendEvent{
		BaseEvent: NewBaseEvent(TypeInputAudioBufferAppend),
		Audio:     base64.StdEncoding.EncodeToString(pcm),
	}
}

type ConversationItemCreateEvent struct {
	BaseEvent
	Item ConversationItem `json:"item"`
}

// ConversationItem is the inner “item” object.
type ConversationItem struct {
	ID      string                    `json:"id,omitempty"`
	Type    string                    `json:"type"`
	Role    string                    `json:"role,omitempty"`
	Content []ConversationItemContent `json:"content,omitempty"`
	CallID  string                    `json:"call_id,omitempty"`
	Output  string                    `json:"output,omitempty"`
}

type ConversationItemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewUserText builds the conversation item for a typed user message.
func NewUserText(id, text string) *ConversationItemCreateEvent {
	return &ConversationItemCreateEvent{
		BaseEvent: NewBaseEvent(TypeConversationItemCreate),
		Item: ConversationItem{
			ID:   id,
			Type: "message",
			Role: "user",
			Content: []ConversationItemContent{
				{Type: "input_text", Text: text},
			},
		},
	}
}

type ResponseCreateEvent struct {
	BaseEvent
	Response ResponseCreatePayload `json:"response"`
}

type ResponseCreatePayload struct {
	Modalities        []string    `json:"modalities,omitempty"`
	Instructions      string      `json:"instructions,omitempty"`
	Voice             string      `json:"voice,omitempty"`
	OutputAudioFormat AudioFormat `json:"output_audio_format,omitempty"`
	Temperature       float64     `json:"temperature,omitempty"`
	MaxOutputTokens   int         `json:"max_output_tokens,omitempty"`
}

func NewResponseCreate() *ResponseCreateEvent {
	return &ResponseCreateEvent{
		BaseEvent: NewBaseEvent(TypeResponseCreate),
	}
}
