// Package hotkey listens for the global Ctrl+Shift+Space shortcut.
package hotkey

const Combo = "Ctrl+Shift+Space"

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}
