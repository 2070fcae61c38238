package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"voicepad/audio"
	"voicepad/speech"
)

type event struct {
	kind    string
	index   int
	results []speech.Result
	code    string
}

type collector struct {
	ch chan event
}

func newCollector() *collector { return &collector{ch: make(chan event, 64)} }

func (c *collector) handlers() speech.RecognitionHandlers {
	return speech.RecognitionHandlers{
		OnStart: func() { c.ch <- event{kind: "start"} },
		OnEnd:   func() { c.ch <- event{kind: "end"} },
		OnResult: func(i int, r []speech.Result) {
			c.ch <- event{kind: "result", index: i, results: r}
		},
		OnError: func(code, _ string) { c.ch <- event{kind: "error", code: code} },
	}
}

func (c *collector) next(t *testing.T) event {
	t.Helper()
	select {
	case ev := <-c.ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for recognition event")
		return event{}
	}
}

func (c *collector) expect(t *testing.T, kind string) event {
	t.Helper()
	ev := c.next(t)
	if ev.kind != kind {
		t.Fatalf("got %q event (%+v), want %q", ev.kind, ev, kind)
	}
	return ev
}

func resultMsg(text string, isFinal, speechFinal, fromFinalize bool) []byte {
	return fmt.Appendf(nil,
		`{"type":"Results","is_final":%t,"speech_final":%t,"from_finalize":%t,"channel":{"alternatives":[{"transcript":%q}]}}`,
		isFinal, speechFinal, fromFinalize, text)
}

// script is called with each received message; it returns the messages to
// send back, or closeConn to drop the connection.
type script func(typ websocket.MessageType, data []byte, first bool) (reply [][]byte, closeConn bool)

func newDeepgramServer(t *testing.T, sc script) (*httptest.Server, chan *http.Request) {
	t.Helper()
	reqs := make(chan *http.Request, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs <- r
		if r.Header.Get("Authorization") != "Token test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()
		first := true
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			isFirstAudio := first && typ == websocket.MessageBinary
			if isFirstAudio {
				first = false
			}
			replies, closeConn := sc(typ, data, isFirstAudio)
			for _, msg := range replies {
				if err := c.Write(ctx, websocket.MessageText, msg); err != nil {
					return
				}
			}
			if closeConn {
				c.Close(websocket.StatusInternalError, "boom")
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func wsURL(srv *httptest.Server) string {
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func oneSecondPCM() []byte {
	return make([]byte, audio.SampleRate*2)
}

func newTestEngine(t *testing.T, srv *httptest.Server, key string, rcfg speech.RecognitionConfig, c *collector) *Engine {
	t.Helper()
	e, err := NewEngine(audio.NewFakeContext(oneSecondPCM()), Config{APIKey: key, Endpoint: wsURL(srv)}, rcfg, c.handlers())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

var continuous = speech.RecognitionConfig{Continuous: true, InterimResults: true, Language: "en-US"}

func TestEngineStreamAndStop(t *testing.T) {
	srv, reqs := newDeepgramServer(t, func(typ websocket.MessageType, data []byte, first bool) ([][]byte, bool) {
		if first {
			return [][]byte{
				resultMsg("hello", false, false, false),
				resultMsg("hello world", true, true, false),
			}, false
		}
		if typ == websocket.MessageText && strings.Contains(string(data), "Finalize") {
			return [][]byte{resultMsg("again", true, false, true)}, false
		}
		return nil, false
	})
	c := newCollector()
	e := newTestEngine(t, srv, "test-key", continuous, c)

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	c.expect(t, "start")

	r := <-reqs
	q := r.URL.Query()
	for k, want := range map[string]string{
		"model":           "nova-3",
		"encoding":        "linear16",
		"sample_rate":     "16000",
		"channels":        "1",
		"language":        "en-US",
		"interim_results": "true",
	} {
		if got := q.Get(k); got != want {
			t.Errorf("query %s = %q, want %q", k, got, want)
		}
	}

	ev := c.expect(t, "result")
	if want := []speech.Result{{Transcript: "hello"}}; ev.index != 0 || !reflect.DeepEqual(ev.results, want) {
		t.Errorf("interim event = %+v", ev)
	}
	ev = c.expect(t, "result")
	if want := []speech.Result{{Transcript: "hello world", IsFinal: true}}; ev.index != 0 || !reflect.DeepEqual(ev.results, want) {
		t.Errorf("final event = %+v", ev)
	}

	e.Stop()
	ev = c.expect(t, "result")
	want := []speech.Result{
		{Transcript: "hello world", IsFinal: true},
		{Transcript: " again", IsFinal: true},
	}
	if ev.index != 1 || !reflect.DeepEqual(ev.results, want) {
		t.Errorf("finalize event = %+v", ev)
	}
	c.expect(t, "end")

	if err := e.Start(); err != nil {
		t.Errorf("restart after end: %v", err)
	}
	e.Abort()
	for ev := c.next(t); ev.kind != "end"; ev = c.next(t) {
		if ev.kind == "error" {
			t.Fatalf("unexpected error %q", ev.code)
		}
	}
}

func TestEngineNotAllowed(t *testing.T) {
	srv, _ := newDeepgramServer(t, func(websocket.MessageType, []byte, bool) ([][]byte, bool) { return nil, false })
	c := newCollector()
	e := newTestEngine(t, srv, "wrong-key", continuous, c)

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	ev := c.expect(t, "error")
	if ev.code != CodeNotAllowed {
		t.Errorf("code = %q, want %q", ev.code, CodeNotAllowed)
	}
	c.expect(t, "end")
}

func TestEngineConnectionDropped(t *testing.T) {
	srv, _ := newDeepgramServer(t, func(_ websocket.MessageType, _ []byte, first bool) ([][]byte, bool) {
		return nil, first
	})
	c := newCollector()
	e := newTestEngine(t, srv, "test-key", continuous, c)

	e.Start()
	c.expect(t, "start")
	ev := c.expect(t, "error")
	if ev.code != CodeNetwork {
		t.Errorf("code = %q, want %q", ev.code, CodeNetwork)
	}
	c.expect(t, "end")
}

func TestEngineSingleUtterance(t *testing.T) {
	srv, _ := newDeepgramServer(t, func(typ websocket.MessageType, data []byte, first bool) ([][]byte, bool) {
		if first {
			return [][]byte{resultMsg("done", true, true, false)}, false
		}
		if typ == websocket.MessageText {
			return [][]byte{resultMsg("", true, false, true)}, false
		}
		return nil, false
	})
	c := newCollector()
	rcfg := speech.RecognitionConfig{Continuous: false, InterimResults: true, Language: "en-US"}
	e := newTestEngine(t, srv, "test-key", rcfg, c)

	e.Start()
	c.expect(t, "start")
	ev := c.expect(t, "result")
	if len(ev.results) != 1 || ev.results[0].Transcript != "done" {
		t.Errorf("result = %+v", ev)
	}
	c.expect(t, "end")
}

func TestEngineAlreadyStarted(t *testing.T) {
	srv, _ := newDeepgramServer(t, func(websocket.MessageType, []byte, bool) ([][]byte, bool) { return nil, false })
	c := newCollector()
	e := newTestEngine(t, srv, "test-key", continuous, c)

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	e.Abort()
	for ev := c.next(t); ev.kind != "end"; ev = c.next(t) {
		if ev.kind == "result" {
			t.Errorf("result after abort: %+v", ev)
		}
	}
}

func TestNewEngineRequiresKey(t *testing.T) {
	_, err := NewEngine(audio.NewFakeContext(nil), Config{}, continuous, speech.RecognitionHandlers{})
	if err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&dialError{StatusCode: 401, Err: errors.New("x")}, CodeNotAllowed},
		{&dialError{StatusCode: 403, Err: errors.New("x")}, CodeNotAllowed},
		{&dialError{StatusCode: 500, Err: errors.New("x")}, CodeNetwork},
		{fmt.Errorf("wrapped: %w", &captureError{Err: errors.New("busy")}), CodeAudioCapture},
		{context.DeadlineExceeded, CodeNetwork},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestProbe(t *testing.T) {
	srv, _ := newDeepgramServer(t, func(websocket.MessageType, []byte, bool) ([][]byte, bool) { return nil, false })
	ctx := context.Background()

	if err := Probe(ctx, Config{APIKey: "test-key", Endpoint: wsURL(srv)}); err != nil {
		t.Errorf("Probe with valid key: %v", err)
	}
	err := Probe(ctx, Config{APIKey: "bad", Endpoint: wsURL(srv)})
	if ErrorCode(err) != CodeNotAllowed {
		t.Errorf("Probe with bad key: %v (code %q)", err, ErrorCode(err))
	}
}

func TestEngineSessionsSeparated(t *testing.T) {
	sentences := []string{"Hello world.", "How are you?"}
	var conns atomic.Int32
	srv, _ := newDeepgramServer(t, func(_ websocket.MessageType, _ []byte, first bool) ([][]byte, bool) {
		if !first {
			return nil, false
		}
		n := int(conns.Add(1)) - 1
		if n >= len(sentences) {
			return nil, false
		}
		return [][]byte{resultMsg(sentences[n], true, true, false)}, false
	})

	posted := make(chan func(), 64)
	factory := func(rcfg speech.RecognitionConfig, h speech.RecognitionHandlers) (speech.RecognitionEngine, error) {
		return NewEngine(audio.NewFakeContext(oneSecondPCM()), Config{APIKey: "test-key", Endpoint: wsURL(srv)}, rcfg, h)
	}
	var tr speech.Transcript
	r, err := speech.NewRecognition(factory, &tr, speech.NotifierFunc(func(speech.Notification) {}),
		func(fn func()) { posted <- fn })
	if err != nil {
		t.Fatal(err)
	}

	pumpUntil := func(what string, cond func() bool) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for !cond() {
			select {
			case fn := <-posted:
				fn()
			case <-deadline:
				t.Fatalf("timed out waiting for %s", what)
			}
		}
	}

	for _, sentence := range sentences {
		if err := r.Start(); err != nil {
			t.Fatal(err)
		}
		pumpUntil("start", r.Active)
		pumpUntil(sentence, func() bool { return strings.HasSuffix(tr.Finalized(), sentence) })
		r.Stop()
		pumpUntil("end", func() bool { return !r.Active() })
	}

	if got, want := tr.Finalized(), "Hello world. How are you?"; got != want {
		t.Errorf("finalized after two sessions = %q, want %q", got, want)
	}
}
