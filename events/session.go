package events

// Session is the provider's view of the session as reported by
// session.created / session.updated.
type Session struct {
	ID                      string                   `json:"id,omitempty"`
	Object                  string                   `json:"object,omitempty"`
	ExpiresAt               int64                    `json:"expires_at,omitempty"`
	Model                   string                   `json:"model,omitempty"`
	Modalities              []string                 `json:"modalities,omitempty"`
	Instructions            string                   `json:"instructions,omitempty"`
	Voice                   string                   `json:"voice,omitempty"`
	InputAudioFormat        string                   `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string                   `json:"output_audio_format,omitempty"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection           `json:"turn_detection,omitempty"`
	Temperature             float64                  `json:"temperature,omitempty"`
}

// SessionUpdate is the session configuration sent once per relay session.
// Its content is opaque to the relay; only the shape is fixed here.
type SessionUpdate struct {
	Modalities              []string                 `json:"modalities,omitempty" yaml:"modalities,omitempty"`
	Instructions            string                   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Voice                   string                   `json:"voice,omitempty" yaml:"voice,omitempty"`
	InputAudioFormat        AudioFormat              `json:"input_audio_format,omitempty" yaml:"input_audio_format,omitempty"`
	OutputAudioFormat       AudioFormat              `json:"output_audio_format,omitempty" yaml:"output_audio_format,omitempty"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty" yaml:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection           `json:"turn_detection,omitempty" yaml:"turn_detection,omitempty"`
	Temperature             float64                  `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxResponseOutputTokens string                   `json:"max_response_output_tokens,omitempty" yaml:"max_response_output_tokens,omitempty"`
	Tools                   []Tool                   `json:"tools,omitempty" yaml:"tools,omitempty"`
	ToolChoice              ToolChoice               `json:"tool_choice,omitempty" yaml:"tool_choice,omitempty"`
}

type InputAudioTranscription struct {
	Model string `json:"model" yaml:"model"`
}

// TurnDetection holds the VAD configuration.
type TurnDetection struct {
	Type              string  `json:"type,omitempty" yaml:"type,omitempty"`
	Threshold         float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty" yaml:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty" yaml:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response,omitempty" yaml:"create_response,omitempty"`
	InterruptResponse bool    `json:"interrupt_response,omitempty" yaml:"interrupt_response,omitempty"`
}

type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

type Tool struct {
	Type        string         `json:"type" yaml:"type"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  ToolParameters `json:"parameters" yaml:"parameters"`
}

type ToolParameters struct {
	Type       string                  `json:"type" yaml:"type"`
	Properties map[string]ToolProperty `json:"properties" yaml:"properties"`
	Required   []string                `json:"required" yaml:"required"`
}

type ToolProperty struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty" yaml:"enum,omitempty"`
}

const DefaultInstructions = "You are a helpful AI assistant. Your responses should be clear and concise."

// DefaultSessionUpdate is the configuration injected when nothing else is
// configured: text+audio, pcm16 both ways, whisper transcription, server VAD.
func DefaultSessionUpdate() SessionUpdate {
	return SessionUpdate{
		Modalities:        []string{"text", "audio"},
		Instructions:      DefaultInstructions,
		Voice:             "alloy",
		InputAudioFormat:  AudioFormatPCM16,
		OutputAudioFormat: AudioFormatPCM16,
		InputAudioTranscription: &InputAudioTranscription{
			Model: "whisper-1",
		},
		TurnDetection: &TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 1000,
		},
	}
}
