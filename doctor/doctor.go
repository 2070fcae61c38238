// Package doctor runs system diagnostics for the audio, recognition,
// synthesis, clipboard and hotkey paths.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"voicepad/audio"
	"voicepad/clipboard"
	"voicepad/hotkey"
	"voicepad/speaker"
	"voicepad/transcriber"
)

const checkTimeout = 15 * time.Second

// Check is a single diagnostic. Run returns a short detail line on success.
type Check struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// Run executes checks in order and returns an exit code (0=all pass, 1=any fail).
func Run(w io.Writer, checks []Check) int {
	resetTerminal()
	stop := setupInterruptHandler()
	defer stop()

	fmt.Fprintln(w, "voicepad doctor - system diagnostics")
	fmt.Fprintln(w, "====================================")

	failed := 0
	for i, c := range checks {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "[%d/%d] %s\n", i+1, len(checks), c.Name)

		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		detail, err := c.Run(ctx)
		cancel()
		if err != nil {
			failed++
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			continue
		}
		fmt.Fprintf(w, "  PASS: %s\n", detail)
	}

	fmt.Fprintln(w)
	if failed == 0 {
		fmt.Fprintln(w, "All checks passed!")
		return 0
	}
	fmt.Fprintf(w, "%d of %d checks failed. See details above.\n", failed, len(checks))
	return 1
}

// MicrophoneCheck records from device for d and reports the signal level.
func MicrophoneCheck(actx audio.Context, device *audio.DeviceInfo, d time.Duration) Check {
	return Check{
		Name: "Microphone",
		Run: func(ctx context.Context) (string, error) {
			pcm, name, err := record(ctx, actx, device, d)
			if err != nil {
				return "", err
			}
			if len(pcm) == 0 {
				return "", errors.New("no audio captured")
			}
			return fmt.Sprintf("%s from %s, RMS %.4f", humanize.Bytes(uint64(len(pcm))), name, rms(pcm)), nil
		},
	}
}

// RecognitionCheck opens and closes a streaming recognition connection.
func RecognitionCheck(cfg transcriber.Config) Check {
	return Check{
		Name: "Speech recognition service",
		Run: func(ctx context.Context) (string, error) {
			if err := transcriber.Probe(ctx, cfg); err != nil {
				return "", fmt.Errorf("%s: %w", transcriber.ErrorCode(err), err)
			}
			return "connected and authorized", nil
		},
	}
}

// SynthesisCheck synthesizes a short phrase and plays it.
func SynthesisCheck(b speaker.Backend, out speaker.Output) Check {
	return Check{
		Name: "Speech synthesis (" + b.Name() + ")",
		Run: func(ctx context.Context) (string, error) {
			start := time.Now()
			pcm, err := b.Synthesize(ctx, speaker.Request{Text: "voicepad speech check", Rate: 1})
			if err != nil {
				return "", err
			}
			synth := time.Since(start)
			if len(pcm.Data) == 0 {
				return "", errors.New("backend returned no audio")
			}
			if err := out.Play(ctx, pcm.Data, pcm.Format); err != nil {
				return "", fmt.Errorf("playback: %w", err)
			}
			return fmt.Sprintf("%s synthesized in %dms", humanize.Bytes(uint64(len(pcm.Data))), synth.Milliseconds()), nil
		},
	}
}

// ClipboardCheck copies a probe string and reads it back.
func ClipboardCheck() Check {
	return Check{
		Name: "Clipboard",
		Run: func(context.Context) (string, error) {
			if err := clipboard.Check("voicepad-doctor-test"); err != nil {
				return "", err
			}
			return "copy and read back verified", nil
		},
	}
}

// HotkeyCheck verifies the global shortcut can be registered.
func HotkeyCheck() Check {
	return Check{
		Name: "Global hotkey",
		Run: func(context.Context) (string, error) {
			return hotkey.Diagnose()
		},
	}
}

func record(ctx context.Context, actx audio.Context, device *audio.DeviceInfo, d time.Duration) ([]byte, string, error) {
	capture, err := actx.NewCapture(device, audio.CaptureConfig{
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	})
	if err != nil {
		return nil, "", err
	}
	defer capture.Close()

	var mu sync.Mutex
	var buf []byte
	capture.SetCallback(func(data []byte, _ uint32) {
		mu.Lock()
		buf = append(buf, data...)
		mu.Unlock()
	})
	if err := capture.Start(); err != nil {
		return nil, "", err
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
	capture.Stop()
	capture.ClearCallback()

	mu.Lock()
	defer mu.Unlock()
	return buf, capture.DeviceName(), ctx.Err()
}

// rms of 16-bit little-endian samples, normalized to [0, 1].
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(uint16(pcm[2*i])|uint16(pcm[2*i+1])<<8)) / 32768
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
