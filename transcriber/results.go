package transcriber

import "voicepad/speech"

// resultList turns stream updates into the cumulative result list handed
// to recognition handlers: finalized segments in order, optionally
// followed by one interim segment. lead marks that an earlier session
// already produced text, so the first segment needs a separator too.
type resultList struct {
	finals  []speech.Result
	interim string
	lead    bool
}

// final commits text. It reports false when there is nothing to emit.
func (l *resultList) final(text string) (int, []speech.Result, bool) {
	if text == "" {
		if l.interim == "" {
			return 0, nil, false
		}
		l.interim = ""
		return len(l.finals), l.snapshot(), true
	}
	l.interim = ""
	l.finals = append(l.finals, speech.Result{Transcript: l.join(text), IsFinal: true})
	return len(l.finals) - 1, l.snapshot(), true
}

func (l *resultList) partial(text string) (int, []speech.Result, bool) {
	if text != "" {
		text = l.join(text)
	}
	if text == l.interim {
		return 0, nil, false
	}
	l.interim = text
	return len(l.finals), l.snapshot(), true
}

func (l *resultList) join(text string) string {
	if len(l.finals) > 0 || l.lead {
		return " " + text
	}
	return text
}

func (l *resultList) snapshot() []speech.Result {
	out := make([]speech.Result, len(l.finals), len(l.finals)+1)
	copy(out, l.finals)
	if l.interim != "" {
		out = append(out, speech.Result{Transcript: l.interim})
	}
	return out
}
