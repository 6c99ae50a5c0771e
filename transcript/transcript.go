package transcript

import (
	"sync"
	"time"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

type Kind string

const (
	KindText            Kind = "text"
	KindAudioTranscript Kind = "audio_transcript"
)

type Message struct {
	ID        int64     `json:"id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
}

type Option func(*Aggregator)

// WithOnChange is called with a copy of the message that was created or
// extended. It runs synchronously on the caller of the mutating method.
func WithOnChange(f func(Message)) Option {
	return func(a *Aggregator) {
		a.onChange = f
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// Aggregator folds text deltas into messages. At most one message is open
// at any time; deltas only ever extend the open message.
type Aggregator struct {
	mu       sync.Mutex
	messages []Message
	open     int // index of the open message, -1 if none
	nextID   int64
	now      func() time.Time
	onChange func(Message)
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		open:     -1,
		now:      time.Now,
		onChange: func(Message) {},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ApplyDelta appends fragment to the open message if it belongs to sender,
// otherwise it opens a new audio transcript message.
func (a *Aggregator) ApplyDelta(sender Sender, fragment string) Message {
	a.mu.Lock()
	var msg Message
	if a.open >= 0 && a.messages[a.open].Sender == sender {
		a.messages[a.open].Content += fragment
		msg = a.messages[a.open]
	} else {
		msg = a.add(sender, KindAudioTranscript, fragment)
		a.open = len(a.messages) - 1
	}
	a.mu.Unlock()

	a.onChange(msg)
	return msg
}

// Append adds a complete message. Any open message is closed first.
func (a *Aggregator) Append(sender Sender, kind Kind, content string) Message {
	a.mu.Lock()
	a.open = -1
	msg := a.add(sender, kind, content)
	a.mu.Unlock()

	a.onChange(msg)
	return msg
}

// CloseOpen ends the open message so the next delta starts a new one.
func (a *Aggregator) CloseOpen() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = -1
}

// Open returns the open message, if any.
func (a *Aggregator) Open() (Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open < 0 {
		return Message{}, false
	}
	return a.messages[a.open], true
}

func (a *Aggregator) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.messages))
	copy(out, a.messages)
	return out
}

func (a *Aggregator) add(sender Sender, kind Kind, content string) Message {
	a.nextID++
	msg := Message{
		ID:        a.nextID,
		Sender:    sender,
		Content:   content,
		Timestamp: a.now(),
		Kind:      kind,
	}
	a.messages = append(a.messages, msg)
	return msg
}
