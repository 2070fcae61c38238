package speech

import (
	"errors"
	"sync"
)

// queue collects posted closures so tests control delivery order.
type queue struct {
	mu  sync.Mutex
	fns []func()
}

func (q *queue) post(fn func()) {
	q.mu.Lock()
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
}

func (q *queue) drain() {
	for {
		q.mu.Lock()
		if len(q.fns) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.fns[0]
		q.fns = q.fns[1:]
		q.mu.Unlock()
		fn()
	}
}

type recorder struct {
	got []Notification
}

func (r *recorder) Notify(n Notification) { r.got = append(r.got, n) }

func (r *recorder) titles() []string {
	out := make([]string, len(r.got))
	for i, n := range r.got {
		out[i] = n.Title
	}
	return out
}

func (r *recorder) last() Notification {
	if len(r.got) == 0 {
		return Notification{}
	}
	return r.got[len(r.got)-1]
}

type fakeEngine struct {
	h        RecognitionHandlers
	cfg      RecognitionConfig
	startErr error
	starts   int
	stops    int
	aborts   int
}

func (e *fakeEngine) Start() error {
	e.starts++
	return e.startErr
}

func (e *fakeEngine) Stop()  { e.stops++ }
func (e *fakeEngine) Abort() { e.aborts++ }

func (e *fakeEngine) factory() RecognizerFactory {
	return func(cfg RecognitionConfig, h RecognitionHandlers) (RecognitionEngine, error) {
		e.cfg = cfg
		e.h = h
		return e, nil
	}
}

func failingFactory(cfg RecognitionConfig, h RecognitionHandlers) (RecognitionEngine, error) {
	return nil, errors.New("no microphone")
}

type fakeSpeaker struct {
	spoken  []*Utterance
	cancels int
}

func (s *fakeSpeaker) Speak(u *Utterance) { s.spoken = append(s.spoken, u) }
func (s *fakeSpeaker) Cancel()            { s.cancels++ }

type fakeClipboard struct {
	mu   sync.Mutex
	text string
	err  error
	done chan struct{}
}

func newFakeClipboard(err error) *fakeClipboard {
	return &fakeClipboard{err: err, done: make(chan struct{}, 1)}
}

func (c *fakeClipboard) Copy(text string) error {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
	c.done <- struct{}{}
	return c.err
}
