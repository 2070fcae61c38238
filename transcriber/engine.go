package transcriber

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"voicepad/audio"
	"voicepad/speech"
)

const (
	streamChunkMs      = 200
	streamChunkBytes   = audio.SampleRate * audio.Channels * (audio.BitsPerSample / 8) * streamChunkMs / 1000
	streamFinalizeIdle = 200 * time.Millisecond
	streamFinalizeMax  = 1000 * time.Millisecond
	streamDrainTimeout = 2 * time.Second
)

// Web Speech error codes reported through OnError.
const (
	CodeNetwork      = "network"
	CodeNotAllowed   = "not-allowed"
	CodeAudioCapture = "audio-capture"
)

var ErrAlreadyStarted = errors.New("recognition already started")

type Config struct {
	APIKey   string
	Model    string
	Endpoint string
	Device   *audio.DeviceInfo
}

type dialFunc func(ctx context.Context, cfg streamConfig) (rawStream, error)

// Engine streams microphone audio to Deepgram and reports results through
// speech.RecognitionHandlers. Handlers run on the engine's goroutines.
type Engine struct {
	cfg   Config
	rcfg  speech.RecognitionConfig
	h     speech.RecognitionHandlers
	audio audio.Context
	dial  dialFunc

	mu      sync.Mutex
	current *session
	emitted atomic.Bool // a final segment was delivered by some session
}

// NewFactory returns a recognizer factory bound to one audio context.
func NewFactory(actx audio.Context, cfg Config) speech.RecognizerFactory {
	return func(rcfg speech.RecognitionConfig, h speech.RecognitionHandlers) (speech.RecognitionEngine, error) {
		return NewEngine(actx, cfg, rcfg, h)
	}
}

func NewEngine(actx audio.Context, cfg Config, rcfg speech.RecognitionConfig, h speech.RecognitionHandlers) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("deepgram: API key not set")
	}
	if actx == nil {
		return nil, fmt.Errorf("deepgram: no audio context")
	}
	return &Engine{
		cfg:   cfg,
		rcfg:  rcfg,
		h:     fillHandlers(h),
		audio: actx,
		dial:  dialDeepgram,
	}, nil
}

func fillHandlers(h speech.RecognitionHandlers) speech.RecognitionHandlers {
	if h.OnStart == nil {
		h.OnStart = func() {}
	}
	if h.OnEnd == nil {
		h.OnEnd = func() {}
	}
	if h.OnResult == nil {
		h.OnResult = func(int, []speech.Result) {}
	}
	if h.OnError == nil {
		h.OnError = func(string, string) {}
	}
	return h
}

// Start begins a session in the background. OnStart fires once the
// connection is up and the microphone is capturing.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		return ErrAlreadyStarted
	}
	s := newSession(e)
	e.current = s
	go s.run()
	return nil
}

// Stop ends capture and waits for the server to finalize pending audio.
func (e *Engine) Stop() {
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()
	if s != nil {
		s.requestStop(false)
	}
}

// Abort ends the session without waiting for final results.
func (e *Engine) Abort() {
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()
	if s != nil {
		s.requestStop(true)
	}
}

func (e *Engine) finish(s *session) {
	e.mu.Lock()
	if e.current == s {
		e.current = nil
	}
	e.mu.Unlock()
}

// ErrorCode maps an engine error to the Web Speech error code it is
// reported as.
func ErrorCode(err error) string {
	var de *dialError
	if errors.As(err, &de) && (de.StatusCode == 401 || de.StatusCode == 403) {
		return CodeNotAllowed
	}
	var ce *captureError
	if errors.As(err, &ce) {
		return CodeAudioCapture
	}
	return CodeNetwork
}

type captureError struct {
	Err error
}

func (e *captureError) Error() string { return fmt.Sprintf("audio capture: %v", e.Err) }
func (e *captureError) Unwrap() error { return e.Err }
