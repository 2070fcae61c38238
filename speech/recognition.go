package speech

import (
	"fmt"
	"strings"
)

// Recognition controls the single recognition session of a console. Its
// state only changes from engine events, never from the caller assuming
// that Start or Stop succeeded. All methods must run on the event loop.
type Recognition struct {
	engine     RecognitionEngine
	transcript *Transcript
	notify     Notifier

	active   bool
	starting bool // engine accepted Start but has not reported start or end
	stopping bool // Stop was called for the current session
	failed   bool // an error was already reported for the current session
	closed   bool
}

func NewRecognition(factory RecognizerFactory, tr *Transcript, n Notifier, post Dispatcher) (*Recognition, error) {
	r := &Recognition{transcript: tr, notify: n}
	h := RecognitionHandlers{
		OnStart: func() { post(r.handleStart) },
		OnEnd:   func() { post(r.handleEnd) },
		OnResult: func(resultIndex int, results []Result) {
			batch := append([]Result(nil), results...)
			post(func() { r.handleResult(resultIndex, batch) })
		},
		OnError: func(code, message string) {
			post(func() { r.handleError(code, message) })
		},
	}
	engine, err := factory(RecognitionConfig{
		Continuous:     true,
		InterimResults: true,
		Language:       Language,
	}, h)
	if err != nil {
		return nil, fmt.Errorf("create recognition engine: %w", err)
	}
	r.engine = engine
	return r, nil
}

func (r *Recognition) Active() bool { return r.active }

// Start asks the engine to begin a session. The session is active only
// once the engine reports it started. Start while a previous call is
// still connecting is a no-op.
func (r *Recognition) Start() error {
	if r.active || r.starting || r.closed {
		return nil
	}
	r.stopping = false
	r.failed = false
	if err := r.engine.Start(); err != nil {
		serr := &StartError{Err: err}
		r.notify.Notify(failure("Could not start listening", serr))
		return serr
	}
	r.starting = true
	r.notify.Notify(Notification{
		Title:       "Listening",
		Description: "Speak now, the transcript updates as you talk.",
	})
	return nil
}

// Stop ends the active session. A session that is still connecting is
// aborted quietly; otherwise Stop is a no-op unless a session is active.
func (r *Recognition) Stop() {
	if r.starting && !r.active {
		r.stopping = true
		r.engine.Abort()
		return
	}
	if !r.active {
		return
	}
	r.stopping = true
	r.engine.Stop()
	r.notify.Notify(Notification{
		Title:       "Stopped listening",
		Description: "Microphone released.",
	})
}

// Close stops the engine unconditionally and drops any results still
// being finalized. Later events are still applied to state but no longer
// produce notifications.
func (r *Recognition) Close() {
	if r.closed {
		return
	}
	r.closed = true
	if r.engine != nil {
		r.engine.Stop()
		r.engine.Abort()
	}
}

func (r *Recognition) handleStart() {
	r.active = true
	r.starting = false
}

func (r *Recognition) handleResult(resultIndex int, results []Result) {
	var interim strings.Builder
	for i := max(resultIndex, 0); i < len(results); i++ {
		if results[i].IsFinal {
			r.transcript.AppendFinal(results[i].Transcript)
		} else {
			interim.WriteString(results[i].Transcript)
		}
	}
	r.transcript.SetInterim(interim.String())
}

func (r *Recognition) handleEnd() {
	natural := r.active && !r.stopping && !r.failed
	r.active = false
	r.starting = false
	r.stopping = false
	r.transcript.SetInterim("")
	if natural && !r.closed {
		r.notify.Notify(Notification{
			Title:       "Listening ended",
			Description: "The recognition service closed the session.",
		})
	}
}

func (r *Recognition) handleError(code, message string) {
	r.active = false
	r.starting = false
	r.failed = true
	r.transcript.SetInterim("")
	if r.closed {
		return
	}
	r.notify.Notify(failure("Speech recognition error", &RecognitionError{Code: code, Message: message}))
}
