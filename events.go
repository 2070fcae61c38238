package main

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"voicepad/hotkey"
	"voicepad/log"
	"voicepad/speech"
)

// runMsg carries a closure posted by an engine goroutine. Update runs it.
type runMsg struct{ fn func() }

type notifyMsg struct{ n speech.Notification }

type hotkeyMsg struct{ action hotkey.Action }

// loop queues messages for the Bubble Tea program and delivers them in
// order from a single goroutine. Queueing never blocks, so it is safe to
// call from inside Update as well as from engine goroutines.
type loop struct {
	mu      sync.Mutex
	queue   []tea.Msg
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

func newLoop() *loop {
	return &loop{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (l *loop) send(msg tea.Msg) {
	l.mu.Lock()
	l.queue = append(l.queue, msg)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Post is the console's speech.Dispatcher.
func (l *loop) Post(fn func()) { l.send(runMsg{fn: fn}) }

// Notify is the console's speech.Notifier. Every notification is logged
// and shown as a toast.
func (l *loop) Notify(n speech.Notification) {
	log.Notification(n.Title, n.Severity.String())
	if n.Err != nil {
		log.Warnf("%s: %v", n.Title, n.Err)
	}
	l.send(notifyMsg{n: n})
}

// Run delivers queued messages to deliver until Stop is called.
func (l *loop) Run(deliver func(tea.Msg)) {
	defer close(l.stopped)
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, msg := range batch {
			select {
			case <-l.done:
				return
			default:
			}
			deliver(msg)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-l.wake:
		case <-l.done:
			return
		}
	}
}

// Stop ends Run and waits for it to return. Undelivered messages are dropped.
func (l *loop) Stop() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	<-l.stopped
}

// forwardHotkey turns hybrid hotkey actions into messages until actions closes
// or the loop stops.
func (l *loop) forwardHotkey(actions <-chan hotkey.Action) {
	for {
		select {
		case a, ok := <-actions:
			if !ok {
				return
			}
			log.Info("hotkey_" + a.String())
			l.send(hotkeyMsg{action: a})
		case <-l.done:
			return
		}
	}
}
