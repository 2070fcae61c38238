package speech

import "strings"

// Synthesis speaks one utterance at a time. A new Speak cancels every
// earlier utterance, and events from those utterances are ignored.
// All methods must run on the event loop.
type Synthesis struct {
	speaker Speaker
	notify  Notifier
	post    Dispatcher

	current  *Utterance
	speaking bool
}

func NewSynthesis(sp Speaker, n Notifier, post Dispatcher) *Synthesis {
	return &Synthesis{speaker: sp, notify: n, post: post}
}

func (s *Synthesis) Speaking() bool { return s.speaking }

func (s *Synthesis) Speak(text string) error {
	if strings.TrimSpace(text) == "" {
		s.notify.Notify(Notification{
			Title:       "Nothing to speak",
			Description: "Type some text first.",
		})
		return ErrEmptyText
	}

	s.speaker.Cancel()

	u := NewUtterance(text)
	u.OnStart = func() { s.post(func() { s.handleStart(u) }) }
	u.OnEnd = func() { s.post(func() { s.handleEnd(u) }) }
	u.OnError = func(code string) { s.post(func() { s.handleError(u, code) }) }
	s.current = u
	s.speaker.Speak(u)

	s.notify.Notify(Notification{
		Title:       "Speaking",
		Description: preview(text),
	})
	return nil
}

// Stop cancels the in-flight utterance and clears speaking right away;
// the engine may never confirm a cancellation.
func (s *Synthesis) Stop() {
	if s.current == nil && !s.speaking {
		return
	}
	s.current = nil
	s.speaker.Cancel()
	s.speaking = false
	s.notify.Notify(Notification{
		Title:       "Stopped speaking",
		Description: "Playback cancelled.",
	})
}

func (s *Synthesis) Close() {
	if s.current != nil || s.speaking {
		s.speaker.Cancel()
	}
	s.current = nil
	s.speaking = false
}

func (s *Synthesis) handleStart(u *Utterance) {
	if u != s.current {
		return
	}
	s.speaking = true
}

func (s *Synthesis) handleEnd(u *Utterance) {
	if u != s.current {
		return
	}
	s.current = nil
	s.speaking = false
	s.notify.Notify(Notification{
		Title:       "Finished speaking",
		Description: preview(u.Text),
	})
}

func (s *Synthesis) handleError(u *Utterance, code string) {
	if u != s.current {
		return
	}
	s.current = nil
	s.speaking = false
	s.notify.Notify(failure("Speech synthesis error", &SynthesisError{Code: code}))
}

func preview(text string) string {
	const maxRunes = 48
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= maxRunes {
		return text
	}
	return string(r[:maxRunes-1]) + "…"
}
