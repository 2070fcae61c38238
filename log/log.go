package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const fileName = "diagnostics_log.txt"

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	dir      string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: VOICEPAD_LOG_PATH environment variable
	if envPath := os.Getenv("VOICEPAD_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

// Init opens the diagnostics file. Calling it again while open is a no-op.
func Init() error {
	logMu.Lock()
	defer logMu.Unlock()
	if logReady {
		return nil
	}

	if err := EnsureDir(); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, fileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	diagFile = f

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", os.Getpid()).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(version, engine, synth string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("version", version).
		Str("recognizer", engine).
		Str("synthesizer", synth).
		Msg("session_start")
}

func SessionEnd(utterances int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("utterances", utterances).
		Msg("session_end")
}

// Notification records a toast. Descriptions may quote user text, so only
// the title and severity are kept.
func Notification(title, severity string) {
	if !logReady {
		return
	}
	ev := diagLog.Info()
	if severity == "destructive" {
		ev = diagLog.Warn()
	}
	ev.Str("title", title).Str("severity", severity).Msg("notification")
}

type RecognitionMetrics struct {
	ID           string
	Outcome      string // "stopped", "aborted", "ended" or an error code
	ConnectMs    float64
	FinalizeMs   float64
	TotalMs      float64
	AudioS       float64
	SentChunks   int
	SentKB       float64
	RecvMessages int
	RecvFinal    int
	RecvInterim  int
	Results      int
}

func RecognitionEvent(m RecognitionMetrics) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("id", m.ID).
		Str("outcome", m.Outcome).
		Float64("connect_ms", m.ConnectMs).
		Float64("finalize_ms", m.FinalizeMs).
		Float64("total_ms", m.TotalMs).
		Float64("audio_s", m.AudioS).
		Int("sent_chunks", m.SentChunks).
		Float64("sent_kb", m.SentKB).
		Int("recv_messages", m.RecvMessages).
		Int("recv_final", m.RecvFinal).
		Int("recv_interim", m.RecvInterim).
		Int("results", m.Results).
		Msg("recognition_session")
}

type UtteranceMetrics struct {
	Backend    string
	Outcome    string // "end" or an error code
	Chars      int
	SynthMs    float64
	PlayMs     float64
	AudioBytes int
}

func UtteranceEvent(m UtteranceMetrics) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("backend", m.Backend).
		Str("outcome", m.Outcome).
		Int("chars", m.Chars).
		Float64("synth_ms", m.SynthMs).
		Float64("play_ms", m.PlayMs).
		Int("audio_bytes", m.AudioBytes).
		Msg("utterance")
}
