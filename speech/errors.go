package speech

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported = errors.New("speech recognition and synthesis are not available in this environment")
	ErrEmptyText   = errors.New("text is empty")
)

type StartError struct {
	Err error
}

func (e *StartError) Error() string { return fmt.Sprintf("start recognition: %v", e.Err) }
func (e *StartError) Unwrap() error { return e.Err }

type RecognitionError struct {
	Code    string
	Message string
}

func (e *RecognitionError) Error() string {
	if e.Message == "" {
		return "recognition error: " + e.Code
	}
	return fmt.Sprintf("recognition error: %s: %s", e.Code, e.Message)
}

type SynthesisError struct {
	Code string
}

func (e *SynthesisError) Error() string { return "synthesis error: " + e.Code }

type ClipboardError struct {
	Err error
}

func (e *ClipboardError) Error() string { return fmt.Sprintf("clipboard: %v", e.Err) }
func (e *ClipboardError) Unwrap() error { return e.Err }
