// Package cue plays short tones when listening starts, stops or fails.
package cue

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"voicepad/audio"
)

const (
	sampleRate = 44100

	// Start: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// Stop: medium pitch, slightly longer
	stopFreq   = 900
	stopVolume = 0.5
	stopDecay  = 40

	// Error: low pitch double beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30

	playTimeout = 2 * time.Second
)

var format = audio.Format{SampleRate: sampleRate, Channels: 1}

type Output interface {
	Play(ctx context.Context, pcm []byte, format audio.Format) error
}

type Player struct {
	out   Output
	start []byte
	stop  []byte
	fail  []byte
}

// New returns a player writing to out. A nil out gives a silent player.
func New(out Output) *Player {
	return &Player{
		out:   out,
		start: tick(startFreq, 0.03, startVolume, startDecay),
		stop:  tick(stopFreq, 0.05, stopVolume, stopDecay),
		fail:  doubleBeep(errorFreq, 0.08, 0.05, errorVolume, errorDecay),
	}
}

// A nil *Player is silent.
func (p *Player) Start() {
	if p != nil {
		p.play(p.start)
	}
}

func (p *Player) Stop() {
	if p != nil {
		p.play(p.stop)
	}
}

func (p *Player) Error() {
	if p != nil {
		p.play(p.fail)
	}
}

func (p *Player) play(pcm []byte) {
	if p.out == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
		defer cancel()
		p.out.Play(ctx, pcm, format)
	}()
}

func tick(freq, duration, volume, decay float64) []byte {
	n := int(sampleRate * duration)
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func doubleBeep(freq, beepDur, gapDur, volume, decay float64) []byte {
	beep := tick(freq, beepDur, volume, decay)
	gap := make([]byte, int(sampleRate*gapDur)*2)
	out := make([]byte, 0, len(beep)*2+len(gap))
	out = append(out, beep...)
	out = append(out, gap...)
	out = append(out, beep...)
	return out
}
