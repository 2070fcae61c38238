package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"voicepad/audio"
	"voicepad/clipboard"
	"voicepad/config"
	"voicepad/cue"
	"voicepad/doctor"
	"voicepad/hotkey"
	"voicepad/log"
	"voicepad/speaker"
	"voicepad/speech"
	"voicepad/transcriber"
)

var version = "dev"

type flags struct {
	config  string
	logPath string
	device  string
	setup   bool
	doctor  bool
	hotkey  bool
	cues    bool
	version bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.config, "config", "", "Config file path (default: $XDG_CONFIG_HOME/voicepad/config.yaml)")
	flag.StringVar(&f.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	flag.StringVar(&f.device, "device", "", "Use named microphone device")
	flag.BoolVar(&f.setup, "setup", false, "Select microphone device (otherwise uses system default)")
	flag.BoolVar(&f.doctor, "doctor", false, "Run system diagnostics and exit")
	flag.BoolVar(&f.hotkey, "hotkey", false, "Toggle listening with the global "+hotkey.Combo+" shortcut")
	flag.BoolVar(&f.cues, "cues", false, "Play a tone when listening starts, stops or fails")
	flag.BoolVar(&f.version, "version", false, "Print version and exit")
	flag.Parse()
	return f
}

// applyFlags layers explicitly set flags over the loaded config.
func applyFlags(cfg *config.Config, f flags) {
	if f.device != "" {
		cfg.Recognition.Device = f.device
	}
	if f.logPath != "" {
		cfg.Log.Path = f.logPath
	}
	if f.hotkey {
		cfg.UI.Hotkey = true
	}
	if f.cues {
		cfg.UI.Cues = true
	}
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

// services holds everything built from the config that outlives the UI.
type services struct {
	audio   audio.Context
	device  *audio.DeviceInfo
	backend speaker.Backend
	speaker *speaker.Speaker
	host    speech.Host
}

func (s *services) Close() {
	if s.speaker != nil {
		s.speaker.Close()
	}
	if s.audio != nil {
		s.audio.Close()
	}
}

func newBackend(cfg config.Config) (speaker.Backend, error) {
	switch cfg.Synthesis.Backend {
	case config.BackendOpenAI:
		o, err := speaker.NewOpenAI(speaker.OpenAIConfig{
			APIKey:  cfg.Credentials.OpenAIAPIKey,
			BaseURL: cfg.Synthesis.OpenAIBaseURL,
			Model:   cfg.Synthesis.OpenAIModel,
			Voice:   cfg.Synthesis.OpenAIVoice,
		})
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		p, err := speaker.NewPiper(cfg.Synthesis.PiperCommand)
		if err != nil {
			return nil, err
		}
		if err := p.Available(); err != nil {
			return nil, err
		}
		return p, nil
	}
}

// buildServices probes the environment. A missing capability leaves the
// matching Host field nil, which the console reports as unsupported.
func buildServices(cfg config.Config, f flags) *services {
	s := &services{}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		return s
	}
	s.audio = actx

	if cfg.Recognition.Device != "" {
		s.device, err = audio.FindDevice(actx, cfg.Recognition.Device)
		if err != nil {
			log.Warnf("device %q: %v, using system default", cfg.Recognition.Device, err)
		}
	} else if f.setup {
		s.device, err = audio.SelectDevice(actx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
		}
	}
	if s.device != nil {
		log.Info("recording_device: " + s.device.Name)
	}

	s.host.NewRecognizer = transcriber.NewFactory(actx, transcriber.Config{
		APIKey:   cfg.Credentials.DeepgramAPIKey,
		Model:    cfg.Recognition.Model,
		Endpoint: cfg.Recognition.Endpoint,
		Device:   s.device,
	})

	s.backend, err = newBackend(cfg)
	if err != nil {
		log.Errorf("synthesis backend %s: %v", cfg.Synthesis.Backend, err)
		return s
	}
	s.speaker = speaker.New(s.backend, actx)
	s.host.Speaker = s.speaker
	return s
}

func runDoctor(cfg config.Config, f flags) int {
	actx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("Error initializing audio: %v\n", err)
		return 1
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	if cfg.Recognition.Device != "" {
		if device, err = audio.FindDevice(actx, cfg.Recognition.Device); err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
	}

	checks := []doctor.Check{
		doctor.MicrophoneCheck(actx, device, time.Second),
		doctor.RecognitionCheck(transcriber.Config{
			APIKey:   cfg.Credentials.DeepgramAPIKey,
			Model:    cfg.Recognition.Model,
			Endpoint: cfg.Recognition.Endpoint,
		}),
	}
	if b, err := newBackend(cfg); err != nil {
		checks = append(checks, doctor.Check{
			Name: "Speech synthesis (" + cfg.Synthesis.Backend + ")",
			Run:  func(context.Context) (string, error) { return "", err },
		})
	} else {
		checks = append(checks, doctor.SynthesisCheck(b, actx))
	}
	checks = append(checks, doctor.ClipboardCheck())
	if cfg.UI.Hotkey || f.hotkey {
		checks = append(checks, doctor.HotkeyCheck())
	}
	return doctor.Run(os.Stdout, checks)
}

func run() {
	f := parseFlags()

	if f.version {
		fmt.Printf("voicepad %s\n", version)
		return
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg, f)

	logPath, err := log.ResolveDir(cfg.Log.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	initCrashLog()

	if f.doctor {
		code := runDoctor(cfg, f)
		log.Close()
		os.Exit(code)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "Error: voicepad needs an interactive terminal (try -doctor for diagnostics)")
		os.Exit(1)
	}

	svc := buildServices(cfg, f)
	defer svc.Close()

	synthName := "none"
	if svc.backend != nil {
		synthName = svc.backend.Name()
	}
	log.SessionStart(version, "deepgram", synthName)

	var cues *cue.Player
	if cfg.UI.Cues && svc.audio != nil {
		cues = cue.New(svc.audio)
	}

	events := newLoop()
	console := speech.NewConsole(speech.Options{
		Host:       svc.host,
		Notifier:   events,
		Dispatcher: events.Post,
		Clipboard:  clipboard.System{},
	})
	defer console.Close()
	if !clipboard.Available() {
		log.Warn("clipboard: " + clipboard.ErrUnavailable.Error())
	}

	model := newTUIModel(console, cues, tuiOptions{
		ToastTTL: time.Duration(cfg.UI.ToastSeconds) * time.Second,
		ModeLine: modeLineText(cfg.Recognition.Model, synthName),
		Device:   svc.device,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	go events.Run(program.Send)

	if cfg.UI.Hotkey && console.Supported() {
		hk := hotkey.New()
		if err := hk.Register(); err != nil {
			log.Errorf("hotkey register error: %v", err)
			events.Notify(speech.Notification{
				Title:       "Hotkey unavailable",
				Description: err.Error(),
				Severity:    speech.SeverityDestructive,
				Err:         err,
			})
		} else {
			defer hk.Unregister()
			hy := hotkey.NewHybrid(hk, time.Duration(cfg.UI.HoldThresholdMs)*time.Millisecond)
			defer hy.Close()
			go events.forwardHotkey(hy.Actions())
		}
	}

	_, err = program.Run()
	events.Stop()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Errorf("TUI error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	spoken := 0
	if svc.speaker != nil {
		spoken = svc.speaker.Spoken()
	}
	log.SessionEnd(spoken)
}
