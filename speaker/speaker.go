// Package speaker plays utterances through a synthesis backend, one at a
// time, in the order they were queued.
package speaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"voicepad/audio"
	"voicepad/log"
	"voicepad/speech"
)

// Web Speech error codes reported through Utterance.OnError.
const (
	CodeCanceled        = "canceled"
	CodeInterrupted     = "interrupted"
	CodeSynthesisFailed = "synthesis-failed"
	CodeAudioHardware   = "audio-hardware"
	CodeNetwork         = "network"
	CodeTextTooLong     = "text-too-long"
)

type Request struct {
	Text string
	Lang string
	Rate float64
}

type PCM struct {
	Data   []byte
	Format audio.Format
}

type Backend interface {
	Name() string
	Synthesize(ctx context.Context, req Request) (PCM, error)
}

// Output plays PCM; audio.Context satisfies it.
type Output interface {
	Play(ctx context.Context, pcm []byte, format audio.Format) error
}

// BackendError carries the error code a backend wants reported.
type BackendError struct {
	Code string
	Err  error
}

func (e *BackendError) Error() string { return e.Code + ": " + e.Err.Error() }
func (e *BackendError) Unwrap() error { return e.Err }

// Speaker implements speech.Speaker. Handlers are invoked from the worker
// goroutine only, so each utterance sees start before end or error, and
// exactly one of end or error.
type Speaker struct {
	backend Backend
	out     Output

	mu      sync.Mutex
	queue   []*speech.Utterance
	dropped []*speech.Utterance
	cancel  context.CancelFunc
	closed  bool
	count   int

	wake chan struct{}
	done chan struct{}
}

func New(b Backend, out Output) *Speaker {
	s := &Speaker{
		backend: b,
		out:     out,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Speaker) Name() string { return s.backend.Name() }

func (s *Speaker) Speak(u *speech.Utterance) {
	s.mu.Lock()
	if s.closed {
		s.dropped = append(s.dropped, u)
	} else {
		s.queue = append(s.queue, u)
	}
	s.mu.Unlock()
	s.signal()
}

// Cancel drops every queued utterance and interrupts the one playing.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	s.dropped = append(s.dropped, s.queue...)
	s.queue = nil
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.signal()
}

// Close cancels everything and waits for the worker to exit.
func (s *Speaker) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.Cancel()
	<-s.done
}

// Spoken returns how many utterances played to the end.
func (s *Speaker) Spoken() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Speaker) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Speaker) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		dropped := s.dropped
		s.dropped = nil
		var next *speech.Utterance
		if len(s.queue) > 0 {
			next = s.queue[0]
			s.queue = s.queue[1:]
		}
		closed := s.closed
		var ctx context.Context
		if next != nil {
			ctx, s.cancel = context.WithCancel(context.Background())
		}
		s.mu.Unlock()

		for _, u := range dropped {
			emitError(u, CodeCanceled)
		}

		if next != nil {
			ended := s.play(ctx, next)
			s.mu.Lock()
			s.cancel()
			s.cancel = nil
			if ended {
				s.count++
			}
			s.mu.Unlock()
			continue
		}
		if closed {
			s.mu.Lock()
			pending := len(s.dropped)
			s.mu.Unlock()
			if pending == 0 {
				return
			}
			continue
		}
		<-s.wake
	}
}

func (s *Speaker) play(ctx context.Context, u *speech.Utterance) bool {
	m := log.UtteranceMetrics{Backend: s.backend.Name(), Chars: len([]rune(u.Text))}
	defer func() { log.UtteranceEvent(m) }()

	synthStart := time.Now()
	pcm, err := s.backend.Synthesize(ctx, Request{Text: u.Text, Lang: u.Lang, Rate: u.Rate})
	m.SynthMs = float64(time.Since(synthStart).Milliseconds())
	if err != nil {
		if ctx.Err() != nil {
			m.Outcome = CodeCanceled
		} else {
			m.Outcome = backendCode(err)
			log.Errorf("synthesis (%s): %v", s.backend.Name(), err)
		}
		emitError(u, m.Outcome)
		return false
	}
	if ctx.Err() != nil {
		m.Outcome = CodeCanceled
		emitError(u, m.Outcome)
		return false
	}

	data := applyVolume(pcm.Data, u.Volume)
	m.AudioBytes = len(data)
	if u.OnStart != nil {
		u.OnStart()
	}

	playStart := time.Now()
	err = s.out.Play(ctx, data, pcm.Format)
	m.PlayMs = float64(time.Since(playStart).Milliseconds())
	switch {
	case ctx.Err() != nil:
		m.Outcome = CodeInterrupted
	case err != nil:
		m.Outcome = CodeAudioHardware
		log.Errorf("playback: %v", err)
	default:
		m.Outcome = "end"
		if u.OnEnd != nil {
			u.OnEnd()
		}
		return true
	}
	emitError(u, m.Outcome)
	return false
}

func emitError(u *speech.Utterance, code string) {
	if u.OnError != nil {
		u.OnError(code)
	}
}

func backendCode(err error) string {
	var be *BackendError
	if errors.As(err, &be) && be.Code != "" {
		return be.Code
	}
	return CodeSynthesisFailed
}

// applyVolume scales 16-bit samples by v in [0, 1].
func applyVolume(pcm []byte, v float64) []byte {
	if v >= 1 || v < 0 {
		return pcm
	}
	out := make([]byte, len(pcm))
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		scaled := int16(float64(s) * v)
		out[i] = byte(scaled)
		out[i+1] = byte(uint16(scaled) >> 8)
	}
	return out
}
