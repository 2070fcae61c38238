package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsBluetooth(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Jabra Evolve2", true},
		{"Headset (BT)", true},
		{"Built-in Microphone", false},
		{"USB Audio Device", false},
	}
	for _, tt := range tests {
		if got := IsBluetooth(tt.name); got != tt.want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPickerKey(t *testing.T) {
	tests := []struct {
		name       string
		cursor     int
		key        []byte
		wantCursor int
		wantAction pickerAction
	}{
		{"down arrow", 0, []byte{0x1b, '[', 'B'}, 1, pickerMove},
		{"j", 1, []byte{'j'}, 2, pickerMove},
		{"down at bottom", 2, []byte{'j'}, 2, pickerMove},
		{"up arrow", 2, []byte{0x1b, '[', 'A'}, 1, pickerMove},
		{"up at top", 0, []byte{'k'}, 0, pickerMove},
		{"enter", 1, []byte{13}, 1, pickerConfirm},
		{"ctrl+c", 1, []byte{3}, 1, pickerCancel},
		{"other", 1, []byte{'x'}, 1, pickerMove},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, a := pickerKey(tt.cursor, 3, tt.key)
			if c != tt.wantCursor || a != tt.wantAction {
				t.Errorf("pickerKey = (%d, %d), want (%d, %d)", c, a, tt.wantCursor, tt.wantAction)
			}
		})
	}
}

func TestFindDevice(t *testing.T) {
	ctx := NewFakeContext(nil)
	d, err := FindDevice(ctx, "fake")
	if err != nil || d.ID != "fake" {
		t.Fatalf("FindDevice = %v, %v", d, err)
	}
	if _, err := FindDevice(ctx, "missing"); err == nil {
		t.Error("expected error for missing device")
	}
}

func TestFakeCaptureDeliversAll(t *testing.T) {
	pcm := make([]byte, 5000)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	ctx := NewFakeContext(pcm)
	dev, err := ctx.NewCapture(nil, CaptureConfig{SampleRate: SampleRate, Channels: Channels})
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan []byte, 16)
	dev.SetCallback(func(data []byte, frames uint32) {
		if int(frames)*2 != len(data) {
			t.Errorf("frames = %d for %d bytes", frames, len(data))
		}
		got <- data
	})
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	<-dev.(*FakeCapture).AudioDone()
	dev.Stop()
	close(got)

	var all []byte
	for chunk := range got {
		all = append(all, chunk...)
	}
	if string(all) != string(pcm) {
		t.Errorf("delivered %d bytes, want %d", len(all), len(pcm))
	}
}

func TestFakePlay(t *testing.T) {
	ctx := NewFakeContext(nil)
	if err := ctx.Play(context.Background(), []byte{1, 2}, Format{SampleRate: 16000, Channels: 1}); err != nil {
		t.Fatal(err)
	}
	if len(ctx.Played()) != 1 {
		t.Fatalf("played = %d", len(ctx.Played()))
	}

	ctx.Realtime = true
	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	pcm := make([]byte, 16000*2*5)
	err := ctx.Play(cctx, pcm, Format{SampleRate: 16000, Channels: 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Play = %v, want deadline exceeded", err)
	}
	if len(ctx.Played()) != 1 {
		t.Error("canceled playback recorded")
	}
}
