package hotkey

import "time"

type Action int

const (
	// ActionToggle fires on every press.
	ActionToggle Action = iota
	// ActionRelease fires when a press held past the threshold is released,
	// which turns the press into push-to-talk.
	ActionRelease
)

func (a Action) String() string {
	if a == ActionRelease {
		return "release"
	}
	return "toggle"
}

// Hybrid turns raw key events into tap-to-toggle and hold-to-talk actions
// on the same key combination.
type Hybrid struct {
	actions chan Action
	stop    chan struct{}
}

func NewHybrid(hk Hotkey, longPress time.Duration) *Hybrid {
	h := &Hybrid{
		actions: make(chan Action, 4),
		stop:    make(chan struct{}),
	}
	go h.run(hk, longPress)
	return h
}

func (h *Hybrid) Actions() <-chan Action { return h.actions }

// Close stops the event loop. The underlying hotkey is left registered.
func (h *Hybrid) Close() { close(h.stop) }

func (h *Hybrid) emit(a Action) {
	select {
	case h.actions <- a:
	case <-h.stop:
	}
}

func (h *Hybrid) run(hk Hotkey, longPress time.Duration) {
	for {
		select {
		case <-hk.Keydown():
		case <-h.stop:
			return
		}
		pressed := time.Now()
		h.emit(ActionToggle)

		select {
		case <-hk.Keyup():
		case <-h.stop:
			return
		}
		if time.Since(pressed) >= longPress {
			h.emit(ActionRelease)
		}
	}
}
