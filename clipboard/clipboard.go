// Package clipboard copies text to the system clipboard.
package clipboard

import (
	"errors"

	cb "github.com/atotto/clipboard"
)

var ErrUnavailable = errors.New("no clipboard utility found (install xclip, xsel or wl-clipboard)")

// System writes to the OS clipboard.
type System struct{}

func (System) Copy(text string) error {
	if cb.Unsupported {
		return ErrUnavailable
	}
	return cb.WriteAll(text)
}

// Available reports whether a clipboard backend was found.
func Available() bool {
	return !cb.Unsupported
}

// Check copies text and reads it back. It leaves the clipboard holding text.
func Check(text string) error {
	if err := (System{}).Copy(text); err != nil {
		return err
	}
	got, err := cb.ReadAll()
	if err != nil {
		return err
	}
	if got != text {
		return errors.New("clipboard read back different text")
	}
	return nil
}
