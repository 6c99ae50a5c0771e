package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func contents(msgs []Message) [][2]string {
	out := make([][2]string, len(msgs))
	for i, m := range msgs {
		out[i] = [2]string{string(m.Sender), m.Content}
	}
	return out
}

func TestApplyDelta_MergesBySender(t *testing.T) {
	a := New()
	a.ApplyDelta(SenderAssistant, "Hol")
	a.ApplyDelta(SenderAssistant, "a")
	a.ApplyDelta(SenderUser, "Hi")

	require.Equal(t, [][2]string{
		{"assistant", "Hola"},
		{"user", "Hi"},
	}, contents(a.Messages()))
}

func TestApplyDelta_NewMessageAfterClose(t *testing.T) {
	a := New()
	a.ApplyDelta(SenderAssistant, "first")
	a.CloseOpen()
	a.ApplyDelta(SenderAssistant, "second")

	msgs := a.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "first", msgs[0].Content)
	require.Equal(t, "second", msgs[1].Content)
	require.Less(t, msgs[0].ID, msgs[1].ID)
}

func TestApplyDelta_KeepsTimestampAndKind(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := New(WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))

	first := a.ApplyDelta(SenderAssistant, "a")
	second := a.ApplyDelta(SenderAssistant, "b")

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Timestamp, second.Timestamp)
	require.Equal(t, KindAudioTranscript, second.Kind)
	require.Equal(t, "ab", second.Content)
}

func TestAppend_ClosesOpenMessage(t *testing.T) {
	a := New()
	a.ApplyDelta(SenderAssistant, "partial")
	a.Append(SenderUser, KindText, "typed")
	a.ApplyDelta(SenderAssistant, "next")

	msgs := a.Messages()
	require.Equal(t, [][2]string{
		{"assistant", "partial"},
		{"user", "typed"},
		{"assistant", "next"},
	}, contents(msgs))
	require.Equal(t, KindText, msgs[1].Kind)

	open, ok := a.Open()
	require.True(t, ok)
	require.Equal(t, msgs[2].ID, open.ID)
}

func TestIDsAreUniqueAndIncreasing(t *testing.T) {
	a := New()
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			a.ApplyDelta(SenderAssistant, "x")
		} else {
			a.ApplyDelta(SenderUser, "y")
		}
	}

	msgs := a.Messages()
	require.Len(t, msgs, 10)
	for i := 1; i < len(msgs); i++ {
		require.Greater(t, msgs[i].ID, msgs[i-1].ID)
	}
}

func TestOnChange(t *testing.T) {
	var seen []Message
	a := New(WithOnChange(func(m Message) { seen = append(seen, m) }))

	a.ApplyDelta(SenderAssistant, "He")
	a.ApplyDelta(SenderAssistant, "llo")

	require.Len(t, seen, 2)
	require.Equal(t, seen[0].ID, seen[1].ID)
	require.Equal(t, "Hello", seen[1].Content)
}

func TestMessagesReturnsCopy(t *testing.T) {
	a := New()
	a.ApplyDelta(SenderAssistant, "x")

	msgs := a.Messages()
	msgs[0].Content = "mutated"
	require.Equal(t, "x", a.Messages()[0].Content)
}
