package transcriber

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"voicepad/audio"
	"voicepad/log"
	"voicepad/speech"
)

type streamStats struct {
	ConnectDur   time.Duration
	SentChunks   int
	SentBytes    uint64
	RecvMessages int
	RecvFinal    int
	RecvInterim  int
	Results      int
	FinalizeWait time.Duration
	SessionDur   time.Duration
}

func (s streamStats) audioDuration() float64 {
	return float64(s.SentBytes) / float64(audio.SampleRate*audio.Channels*(audio.BitsPerSample/8))
}

// session is one Start..OnEnd cycle of an Engine.
type session struct {
	id        string
	e         *Engine
	ws        rawStream
	results   resultList // receiver goroutine only
	audioCh   chan []byte
	startedAt time.Time

	stopCh    chan struct{}
	stopOnce  sync.Once
	abortCh   chan struct{}
	abortOnce sync.Once
	aborted  atomic.Bool
	ended    atomic.Bool // stopped by the engine itself
	quiet    atomic.Bool // no more result events

	dead          chan struct{}
	sendDone      chan struct{}
	recvDone      chan struct{}
	finalized     chan struct{}
	finalizedOnce sync.Once

	feedBuf []byte
	feedMu  sync.Mutex

	mu      sync.Mutex
	err     error
	errOnce sync.Once
	closing bool
	stats   streamStats
}

func newSession(e *Engine) *session {
	return &session{
		id:        xid.New().String(),
		e:         e,
		results:   resultList{lead: e.emitted.Load()},
		audioCh:   make(chan []byte, 128),
		startedAt: time.Now(),
		stopCh:    make(chan struct{}),
		abortCh:   make(chan struct{}),
		dead:      make(chan struct{}),
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
		finalized: make(chan struct{}),
	}
}

func (s *session) requestStop(abort bool) {
	if abort {
		s.aborted.Store(true)
		s.quiet.Store(true)
		s.abortOnce.Do(func() { close(s.abortCh) })
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *session) stopRequested() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *session) run() {
	outcome := "stopped"
	defer func() {
		s.quiet.Store(true)
		s.logMetrics(outcome)
		s.e.finish(s)
		s.e.h.OnEnd()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.abortCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	connectStart := time.Now()
	ws, err := s.e.dial(ctx, streamConfig{
		Endpoint:       s.e.cfg.Endpoint,
		APIKey:         s.e.cfg.APIKey,
		Model:          s.e.cfg.Model,
		Language:       s.e.rcfg.Language,
		SampleRate:     audio.SampleRate,
		Channels:       audio.Channels,
		InterimResults: s.e.rcfg.InterimResults,
	})
	s.mu.Lock()
	s.stats.ConnectDur = time.Since(connectStart)
	s.mu.Unlock()
	if err != nil {
		if s.aborted.Load() {
			outcome = "aborted"
			return
		}
		outcome = s.fail(err)
		return
	}
	s.ws = ws
	if s.stopRequested() {
		ws.Close()
		if s.aborted.Load() {
			outcome = "aborted"
		}
		return
	}

	capture, err := s.e.audio.NewCapture(s.e.cfg.Device, audio.CaptureConfig{
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	})
	if err != nil {
		ws.Close()
		outcome = s.fail(&captureError{Err: err})
		return
	}
	defer capture.Close()
	capture.SetCallback(func(data []byte, _ uint32) { s.feed(data) })
	if err := capture.Start(); err != nil {
		ws.Close()
		outcome = s.fail(&captureError{Err: err})
		return
	}
	log.Infof("recognition %s: capturing from %s", s.id, capture.DeviceName())

	s.e.h.OnStart()
	go s.runSender()
	go s.runReceiver()

	select {
	case <-s.stopCh:
	case <-s.dead:
	}
	capture.ClearCallback()
	capture.Stop()

	switch {
	case s.getErr() != nil:
		s.shutdown()
		outcome = s.fail(s.getErr())
	case s.aborted.Load():
		s.shutdown()
		outcome = "aborted"
	default:
		s.finalize()
		if err := s.getErr(); err != nil {
			outcome = s.fail(err)
		} else if s.ended.Load() {
			outcome = "ended"
		}
	}
}

// fail reports err once and returns its code.
func (s *session) fail(err error) string {
	code := ErrorCode(err)
	log.Errorf("recognition %s: %s: %v", s.id, code, err)
	s.quiet.Store(true)
	s.e.h.OnError(code, err.Error())
	return code
}

// finalize flushes buffered audio, asks the server to finalize and waits
// briefly for the last results before closing the connection.
func (s *session) finalize() {
	s.feedMu.Lock()
	if len(s.feedBuf) > 0 {
		tail := make([]byte, len(s.feedBuf))
		copy(tail, s.feedBuf)
		s.feedBuf = nil
		select {
		case s.audioCh <- tail:
		case <-s.dead:
		}
	}
	s.feedMu.Unlock()
	close(s.audioCh)
	finalizeStart := time.Now()

	<-s.sendDone

	select {
	case <-s.finalized:
		time.Sleep(streamFinalizeIdle)
	case <-s.dead:
	case <-s.abortCh:
	case <-time.After(streamFinalizeMax):
	}

	s.mu.Lock()
	s.closing = true
	s.stats.FinalizeWait = time.Since(finalizeStart)
	s.mu.Unlock()
	s.ws.Close()
	s.waitReceiver()
}

// shutdown closes the connection without waiting for results.
func (s *session) shutdown() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	close(s.audioCh)
	s.ws.Close()
	<-s.sendDone
	s.waitReceiver()
}

func (s *session) waitReceiver() {
	select {
	case <-s.recvDone:
	case <-time.After(streamDrainTimeout):
		log.Warn("stream receiver drain timeout")
	}
}

func (s *session) feed(pcm []byte) {
	select {
	case <-s.dead:
		return
	default:
	}

	s.feedMu.Lock()
	s.feedBuf = append(s.feedBuf, pcm...)
	var chunks [][]byte
	for len(s.feedBuf) >= streamChunkBytes {
		chunk := make([]byte, streamChunkBytes)
		copy(chunk, s.feedBuf[:streamChunkBytes])
		s.feedBuf = s.feedBuf[streamChunkBytes:]
		chunks = append(chunks, chunk)
	}
	s.feedMu.Unlock()

	for _, chunk := range chunks {
		select {
		case s.audioCh <- chunk:
		case <-s.dead:
			return
		}
	}
}

func (s *session) runSender() {
	defer close(s.sendDone)
	for chunk := range s.audioCh {
		if s.getErr() != nil {
			continue
		}
		if err := s.ws.Send(chunk); err != nil {
			s.setErr(err)
			continue
		}
		s.mu.Lock()
		s.stats.SentChunks++
		s.stats.SentBytes += uint64(len(chunk))
		s.mu.Unlock()
	}
	if s.getErr() != nil || s.aborted.Load() {
		return
	}
	if err := s.ws.CloseSend(); err != nil {
		s.setErr(err)
	}
}

func (s *session) runReceiver() {
	defer close(s.recvDone)
	for {
		update, err := s.ws.Recv()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if !closing {
				s.setErr(err)
			}
			return
		}

		if update.FromFinalize {
			s.finalizedOnce.Do(func() { close(s.finalized) })
		}

		isFinal := update.IsFinal || update.SpeechFinal || update.FromFinalize

		s.mu.Lock()
		s.stats.RecvMessages++
		if isFinal {
			s.stats.RecvFinal++
		} else {
			s.stats.RecvInterim++
		}
		s.mu.Unlock()

		var (
			idx     int
			results []speech.Result
			ok      bool
		)
		if isFinal {
			idx, results, ok = s.results.final(update.Transcript)
		} else if s.e.rcfg.InterimResults {
			idx, results, ok = s.results.partial(update.Transcript)
		}
		if ok && !s.quiet.Load() {
			s.mu.Lock()
			s.stats.Results++
			s.mu.Unlock()
			s.e.h.OnResult(idx, results)
			if isFinal && update.Transcript != "" {
				s.e.emitted.Store(true)
			}
		}

		if update.SpeechFinal && !s.e.rcfg.Continuous {
			s.ended.Store(true)
			s.requestStop(false)
		}
	}
}

func (s *session) setErr(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.dead)
	})
}

func (s *session) getErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *session) logMetrics(outcome string) {
	s.mu.Lock()
	stats := s.stats
	s.mu.Unlock()
	stats.SessionDur = time.Since(s.startedAt)

	log.RecognitionEvent(log.RecognitionMetrics{
		ID:           s.id,
		Outcome:      outcome,
		ConnectMs:    float64(stats.ConnectDur.Milliseconds()),
		FinalizeMs:   float64(stats.FinalizeWait.Milliseconds()),
		TotalMs:      float64(stats.SessionDur.Milliseconds()),
		AudioS:       stats.audioDuration(),
		SentChunks:   stats.SentChunks,
		SentKB:       float64(stats.SentBytes) / 1024,
		RecvMessages: stats.RecvMessages,
		RecvFinal:    stats.RecvFinal,
		RecvInterim:  stats.RecvInterim,
		Results:      stats.Results,
	})
}
