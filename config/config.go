// Package config resolves settings from defaults, an optional YAML file
// and environment variables. Flags are applied on top by main.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "VOICEPAD_"

const (
	BackendPiper  = "piper"
	BackendOpenAI = "openai"
)

type RecognitionConfig struct {
	Model    string `yaml:"model" env:"MODEL"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	Device   string `yaml:"device" env:"DEVICE"`
}

type SynthesisConfig struct {
	Backend       string `yaml:"backend" env:"BACKEND"`
	PiperCommand  string `yaml:"piper_command" env:"PIPER_COMMAND"`
	OpenAIModel   string `yaml:"openai_model" env:"OPENAI_MODEL"`
	OpenAIVoice   string `yaml:"openai_voice" env:"OPENAI_VOICE"`
	OpenAIBaseURL string `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
}

type UIConfig struct {
	Cues            bool `yaml:"cues" env:"CUES"`
	Hotkey          bool `yaml:"hotkey" env:"HOTKEY"`
	ToastSeconds    int  `yaml:"toast_seconds" env:"TOAST_SECONDS"`
	HoldThresholdMs int  `yaml:"hold_threshold_ms" env:"HOLD_THRESHOLD_MS"`
}

type LogConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// Credentials are read from the environment only.
type Credentials struct {
	DeepgramAPIKey string `env:"DEEPGRAM_API_KEY"`
	OpenAIAPIKey   string `env:"OPENAI_API_KEY"`
}

type Config struct {
	Recognition RecognitionConfig `yaml:"recognition"`
	Synthesis   SynthesisConfig   `yaml:"synthesis"`
	UI          UIConfig          `yaml:"ui"`
	Log         LogConfig         `yaml:"log"`
	Credentials Credentials       `yaml:"-"`
}

func Default() Config {
	return Config{
		Recognition: RecognitionConfig{
			Model: "nova-3",
		},
		Synthesis: SynthesisConfig{
			Backend:      BackendPiper,
			PiperCommand: "piper --model en_US-lessac-medium.onnx",
			OpenAIModel:  "tts-1",
			OpenAIVoice:  "alloy",
		},
		UI: UIConfig{
			ToastSeconds:    4,
			HoldThresholdMs: 400,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/voicepad/config.yaml, falling back
// to the OS user config directory.
func DefaultPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		var err error
		base, err = os.UserConfigDir()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(base, "voicepad", "config.yaml"), nil
}

// Load applies the YAML file at path over the defaults, then environment
// overrides. An empty path loads the default file if one exists; an
// explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		case errors.Is(err, os.ErrNotExist):
			return cfg, fmt.Errorf("config file not found: %w", err)
		default:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	sections := []struct {
		prefix string
		target any
	}{
		{"RECOGNITION_", &cfg.Recognition},
		{"SYNTHESIS_", &cfg.Synthesis},
		{"UI_", &cfg.UI},
		{"LOG_", &cfg.Log},
	}
	for _, s := range sections {
		if err := env.ParseWithOptions(s.target, env.Options{Prefix: EnvPrefix + s.prefix}); err != nil {
			return fmt.Errorf("environment: %w", err)
		}
	}
	if err := env.Parse(&cfg.Credentials); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Synthesis.Backend {
	case BackendPiper:
		if c.Synthesis.PiperCommand == "" {
			errs = append(errs, errors.New("synthesis.piper_command is empty"))
		}
	case BackendOpenAI:
	default:
		errs = append(errs, fmt.Errorf("synthesis.backend %q is not one of %s, %s", c.Synthesis.Backend, BackendPiper, BackendOpenAI))
	}
	if c.UI.ToastSeconds <= 0 {
		errs = append(errs, fmt.Errorf("ui.toast_seconds must be positive, got %d", c.UI.ToastSeconds))
	}
	if c.UI.HoldThresholdMs <= 0 {
		errs = append(errs, fmt.Errorf("ui.hold_threshold_ms must be positive, got %d", c.UI.HoldThresholdMs))
	}
	return errors.Join(errs...)
}
