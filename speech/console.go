package speech

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// State is the snapshot rendered by the presentation layer.
type State struct {
	IsListening       bool
	Transcript        string
	InterimTranscript string
	IsSpeaking        bool
	TextToSpeak       string
	IsSupported       bool
}

type Options struct {
	Host       Host
	Notifier   Notifier
	Dispatcher Dispatcher
	Clipboard  Clipboard
}

// Console composes the capability check, both controllers, the transcript
// and the clipboard into the intents offered to the presentation layer.
// Except for NewConsole, every method must run on the event loop.
type Console struct {
	support     Support
	supported   bool
	transcript  *Transcript
	recognition *Recognition
	synthesis   *Synthesis
	clipboard   Clipboard
	notify      Notifier
	post        Dispatcher
	textToSpeak string
	closed      bool
}

func NewConsole(opts Options) *Console {
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(Notification) {})
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = Immediate
	}
	c := &Console{
		support:    Detect(opts.Host),
		transcript: &Transcript{},
		clipboard:  opts.Clipboard,
		notify:     opts.Notifier,
		post:       opts.Dispatcher,
	}
	if !c.support.Supported() {
		c.reportUnsupported(nil)
		return c
	}

	rec, err := NewRecognition(opts.Host.NewRecognizer, c.transcript, c.notify, c.post)
	if err != nil {
		c.support.Recognition = false
		c.reportUnsupported(err)
		return c
	}
	c.recognition = rec
	c.synthesis = NewSynthesis(opts.Host.Speaker, c.notify, c.post)
	c.supported = true
	return c
}

func (c *Console) reportUnsupported(cause error) {
	err := ErrUnsupported
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrUnsupported, cause)
	}
	c.notify.Notify(failure("Speech not supported", err))
}

func (c *Console) Support() Support { return c.support }

func (c *Console) Supported() bool { return c.supported }

func (c *Console) State() State {
	s := State{
		Transcript:        c.transcript.Finalized(),
		InterimTranscript: c.transcript.Interim(),
		TextToSpeak:       c.textToSpeak,
		IsSupported:       c.supported,
	}
	if c.supported {
		s.IsListening = c.recognition.Active()
		s.IsSpeaking = c.synthesis.Speaking()
	}
	return s
}

// TranscriptText returns finalized text followed by the interim fragment.
func (c *Console) TranscriptText() string { return c.transcript.Text() }

func (c *Console) StartListening() error {
	if !c.supported {
		return ErrUnsupported
	}
	return c.recognition.Start()
}

func (c *Console) StopListening() error {
	if !c.supported {
		return ErrUnsupported
	}
	c.recognition.Stop()
	return nil
}

// ToggleListening starts a session when idle and stops the active one.
func (c *Console) ToggleListening() error {
	if !c.supported {
		return ErrUnsupported
	}
	if c.recognition.Active() {
		c.recognition.Stop()
		return nil
	}
	return c.recognition.Start()
}

func (c *Console) SpeakText(text string) error {
	if !c.supported {
		return ErrUnsupported
	}
	return c.synthesis.Speak(text)
}

func (c *Console) StopSpeaking() error {
	if !c.supported {
		return ErrUnsupported
	}
	c.synthesis.Stop()
	return nil
}

func (c *Console) SetTextToSpeak(text string) { c.textToSpeak = text }

func (c *Console) ClearTranscript() error {
	if !c.supported {
		return ErrUnsupported
	}
	c.transcript.Clear()
	c.notify.Notify(Notification{
		Title:       "Transcript cleared",
		Description: "Start listening to capture new text.",
	})
	return nil
}

// CopyToClipboard writes text off the event loop and notifies the
// outcome once the write has finished.
func (c *Console) CopyToClipboard(text string) error {
	if !c.supported {
		return ErrUnsupported
	}
	if strings.TrimSpace(text) == "" {
		c.notify.Notify(Notification{
			Title:       "Nothing to copy",
			Description: "The transcript is empty.",
		})
		return ErrEmptyText
	}
	cb := c.clipboard
	go func() {
		var err error
		if cb == nil {
			err = errors.New("no clipboard available")
		} else {
			err = cb.Copy(text)
		}
		c.post(func() { c.handleCopied(text, err) })
	}()
	return nil
}

func (c *Console) handleCopied(text string, err error) {
	if c.closed {
		return
	}
	if err != nil {
		c.notify.Notify(failure("Copy failed", &ClipboardError{Err: err}))
		return
	}
	n := int64(len([]rune(text)))
	noun := "characters"
	if n == 1 {
		noun = "character"
	}
	c.notify.Notify(Notification{
		Title:       "Copied",
		Description: fmt.Sprintf("%s %s copied to the clipboard.", humanize.Comma(n), noun),
	})
}

// Close releases the recognition session and cancels any speech. It is
// safe to call more than once.
func (c *Console) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if !c.supported {
		return
	}
	c.recognition.Close()
	c.synthesis.Close()
}
