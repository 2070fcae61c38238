package speaker

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"

	"voicepad/audio"
)

// Piper runs a local piper binary once per utterance and decodes the wav
// file it writes.
type Piper struct {
	cmd []string
}

func NewPiper(command string) (*Piper, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse piper command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("piper command empty")
	}
	return &Piper{cmd: args}, nil
}

func (p *Piper) Name() string { return "piper" }

// Available reports whether the piper binary can be found.
func (p *Piper) Available() error {
	_, err := exec.LookPath(p.cmd[0])
	return err
}

func (p *Piper) Synthesize(ctx context.Context, req Request) (PCM, error) {
	file, err := os.CreateTemp("", "voicepad_tts_*.wav")
	if err != nil {
		return PCM{}, fmt.Errorf("temp file: %w", err)
	}
	name := file.Name()
	file.Close()
	defer os.Remove(name)

	args := append([]string{}, p.cmd[1:]...)
	args = append(args, "--output_file", name)
	if req.Rate > 0 && req.Rate != 1 {
		args = append(args, "--length_scale", strconv.FormatFloat(1/req.Rate, 'f', 3, 64))
	}

	command := exec.CommandContext(ctx, p.cmd[0], args...)
	command.Stdin = strings.NewReader(req.Text + "\n")
	var stderr bytes.Buffer
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return PCM{}, &BackendError{
			Code: CodeSynthesisFailed,
			Err:  fmt.Errorf("piper command failed: %w: %s", err, strings.TrimSpace(stderr.String())),
		}
	}

	f, err := os.Open(name)
	if err != nil {
		return PCM{}, fmt.Errorf("open piper output: %w", err)
	}
	defer f.Close()
	return decodeWAV(f)
}

func decodeWAV(f *os.File) (PCM, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return PCM{}, &BackendError{Code: CodeSynthesisFailed, Err: fmt.Errorf("invalid wav output")}
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, &BackendError{Code: CodeSynthesisFailed, Err: fmt.Errorf("decode wav: %w", err)}
	}
	return PCM{
		Data: int16LE(buf),
		Format: audio.Format{
			SampleRate: int(dec.SampleRate),
			Channels:   int(dec.NumChans),
		},
	}, nil
}

// int16LE converts decoded samples of any bit depth to 16-bit PCM.
func int16LE(buf *goaudio.IntBuffer) []byte {
	shift := buf.SourceBitDepth - 16
	out := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		switch {
		case shift > 0:
			s >>= shift
		case shift < 0:
			s <<= -shift
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}
