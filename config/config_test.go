package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{"DEEPGRAM_API_KEY", "OPENAI_API_KEY", "VOICEPAD_SYNTHESIS_BACKEND", "VOICEPAD_UI_CUES"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Synthesis.Backend != BackendPiper || cfg.Recognition.Model != "nova-3" || cfg.UI.ToastSeconds != 4 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
recognition:
  model: nova-2
  device: USB Mic
synthesis:
  backend: openai
  openai_voice: nova
ui:
  cues: true
  toast_seconds: 6
`)
	t.Setenv("VOICEPAD_SYNTHESIS_OPENAI_VOICE", "shimmer")
	t.Setenv("VOICEPAD_UI_HOTKEY", "true")
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")
	t.Setenv("OPENAI_API_KEY", "sk-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Recognition.Model != "nova-2" || cfg.Recognition.Device != "USB Mic" {
		t.Errorf("recognition = %+v", cfg.Recognition)
	}
	if cfg.Synthesis.Backend != BackendOpenAI || cfg.Synthesis.OpenAIVoice != "shimmer" {
		t.Errorf("synthesis = %+v", cfg.Synthesis)
	}
	if cfg.Synthesis.PiperCommand == "" {
		t.Error("unset file keys should keep defaults")
	}
	if !cfg.UI.Cues || !cfg.UI.Hotkey || cfg.UI.ToastSeconds != 6 {
		t.Errorf("ui = %+v", cfg.UI)
	}
	if cfg.Credentials.DeepgramAPIKey != "dg-key" || cfg.Credentials.OpenAIAPIKey != "sk-key" {
		t.Errorf("credentials = %+v", cfg.Credentials)
	}
}

func TestLoadDefaultPath(t *testing.T) {
	isolate(t)
	dir := os.Getenv("XDG_CONFIG_HOME")
	if err := os.MkdirAll(filepath.Join(dir, "voicepad"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "voicepad", "config.yaml"), []byte("ui:\n  cues: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.UI.Cues {
		t.Error("default config file not loaded")
	}
}

func TestLoadErrors(t *testing.T) {
	isolate(t)
	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing explicit file", filepath.Join(t.TempDir(), "nope.yaml"), "not found"},
		{"bad yaml", writeConfig(t, "ui: [\n"), "parse"},
		{"bad backend", writeConfig(t, "synthesis:\n  backend: espeak\n"), "espeak"},
		{"bad toast", writeConfig(t, "ui:\n  toast_seconds: 0\n"), "toast_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestEnvBadValue(t *testing.T) {
	isolate(t)
	t.Setenv("VOICEPAD_UI_TOAST_SECONDS", "soon")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric env value")
	}
}
