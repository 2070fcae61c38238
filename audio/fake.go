package audio

import (
	"context"
	"sync"
	"time"
)

const fakeFrameSize = 1024

// FakeContext replays a fixed PCM buffer as capture input and records
// playback instead of sending it to a device.
type FakeContext struct {
	pcm []byte

	// PlayErr, when set, is returned by every Play call.
	PlayErr error
	// Realtime makes Play take as long as the audio would.
	Realtime bool

	mu     sync.Mutex
	played [][]byte
}

func NewFakeContext(pcm []byte) *FakeContext {
	return &FakeContext{pcm: pcm}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{pcm: f.pcm, audioDone: make(chan struct{})}, nil
}

func (f *FakeContext) Play(ctx context.Context, pcm []byte, format Format) error {
	if f.PlayErr != nil {
		return f.PlayErr
	}
	if f.Realtime && format.BytesPerSecond() > 0 {
		d := time.Duration(len(pcm)) * time.Second / time.Duration(format.BytesPerSecond())
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.played = append(f.played, pcm)
	f.mu.Unlock()
	return ctx.Err()
}

// Played returns the buffers that finished playing, in order.
func (f *FakeContext) Played() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.played...)
}

type FakeCapture struct {
	pcm       []byte
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone is closed once the whole buffer has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	chunkBytes := fakeFrameSize * BitsPerSample / 8

	go func() {
		defer close(f.feedDone)
		for pos := 0; pos < len(f.pcm); {
			select {
			case <-f.stopCh:
				return
			default:
			}
			end := min(pos+chunkBytes, len(f.pcm))
			chunk := make([]byte, end-pos)
			copy(chunk, f.pcm[pos:end])
			pos = end

			f.mu.Lock()
			cb := f.cb
			f.mu.Unlock()
			if cb != nil {
				cb(chunk, uint32(len(chunk)*8/BitsPerSample))
			}
		}
		close(f.audioDone)
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() {}
