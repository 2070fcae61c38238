package speech

import "strings"

// Transcript keeps finalized text separate from the current interim
// fragment. Growth is unbounded.
type Transcript struct {
	finalized strings.Builder
	interim   string
}

func (t *Transcript) AppendFinal(text string) { t.finalized.WriteString(text) }

func (t *Transcript) SetInterim(text string) { t.interim = text }

func (t *Transcript) Clear() {
	t.finalized.Reset()
	t.interim = ""
}

func (t *Transcript) Finalized() string { return t.finalized.String() }

func (t *Transcript) Interim() string { return t.interim }

// Text returns finalized text followed by the interim fragment.
func (t *Transcript) Text() string { return t.finalized.String() + t.interim }
