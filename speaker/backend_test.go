package speaker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, path string, samples []int, rate int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: 1, SampleRate: rate}, Data: samples, SourceBitDepth: 16}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

// fakePiper writes a script that copies a prepared wav to --output_file
// and records its arguments and stdin.
func fakePiper(t *testing.T) (command, argsFile, stdinFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "voice.wav")
	writeWAV(t, src, []int{100, -100, 200, -200}, 22050)
	argsFile = filepath.Join(dir, "args.txt")
	stdinFile = filepath.Join(dir, "stdin.txt")

	script := `#!/bin/sh
echo "$@" > "` + argsFile + `"
cat > "` + stdinFile + `"
while [ $# -gt 0 ]; do
  case "$1" in
    --output_file) out="$2"; shift;;
  esac
  shift
done
cp "` + src + `" "$out"
`
	path := filepath.Join(dir, "piper")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return "'" + path + "' --model en_US-lessac-medium.onnx", argsFile, stdinFile
}

func TestPiperSynthesize(t *testing.T) {
	command, argsFile, stdinFile := fakePiper(t)
	p, err := NewPiper(command)
	if err != nil {
		t.Fatal(err)
	}

	pcm, err := p.Synthesize(context.Background(), Request{Text: "hello there", Rate: 0.8})
	if err != nil {
		t.Fatal(err)
	}
	if pcm.Format.SampleRate != 22050 || pcm.Format.Channels != 1 {
		t.Errorf("format = %+v", pcm.Format)
	}
	want := []byte{100, 0, 0x9c, 0xff, 200, 0, 0x38, 0xff}
	if string(pcm.Data) != string(want) {
		t.Errorf("pcm = %x, want %x", pcm.Data, want)
	}

	args, _ := os.ReadFile(argsFile)
	for _, w := range []string{"--model en_US-lessac-medium.onnx", "--output_file", "--length_scale 1.250"} {
		if !strings.Contains(string(args), w) {
			t.Errorf("args %q missing %q", args, w)
		}
	}
	stdin, _ := os.ReadFile(stdinFile)
	if strings.TrimSpace(string(stdin)) != "hello there" {
		t.Errorf("stdin = %q", stdin)
	}
}

func TestPiperFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	p, err := NewPiper("sh -c 'echo broken model >&2; exit 3'")
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Synthesize(context.Background(), Request{Text: "x", Rate: 1})
	if backendCode(err) != CodeSynthesisFailed || !strings.Contains(err.Error(), "broken model") {
		t.Errorf("err = %v", err)
	}
}

func TestNewPiperEmpty(t *testing.T) {
	if _, err := NewPiper("  "); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestOpenAISynthesize(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
			return
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte{1, 2, 3, 4, 5})
	}))
	defer srv.Close()

	o, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Voice: "nova"})
	if err != nil {
		t.Fatal(err)
	}
	pcm, err := o.Synthesize(context.Background(), Request{Text: "hi", Rate: 0.8})
	if err != nil {
		t.Fatal(err)
	}
	if len(pcm.Data) != 4 || pcm.Format.SampleRate != 24000 || pcm.Format.Channels != 1 {
		t.Errorf("pcm = %+v", pcm)
	}
	if body["response_format"] != "pcm" || body["voice"] != "nova" || body["model"] != "tts-1" || body["speed"] != 0.8 {
		t.Errorf("request body = %v", body)
	}

	bad, _ := NewOpenAI(OpenAIConfig{APIKey: "sk-wrong", BaseURL: srv.URL + "/v1"})
	_, err = bad.Synthesize(context.Background(), Request{Text: "hi"})
	if backendCode(err) != CodeSynthesisFailed {
		t.Errorf("code = %q for %v", backendCode(err), err)
	}
}

func TestOpenAIServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	o, _ := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	_, err := o.Synthesize(context.Background(), Request{Text: "hi"})
	if backendCode(err) != CodeNetwork {
		t.Errorf("code = %q for %v", backendCode(err), err)
	}
}

func TestOpenAITextTooLong(t *testing.T) {
	o, _ := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1"})
	_, err := o.Synthesize(context.Background(), Request{Text: strings.Repeat("a", openAIMaxInput+1)})
	if backendCode(err) != CodeTextTooLong {
		t.Errorf("code = %q", backendCode(err))
	}
}
