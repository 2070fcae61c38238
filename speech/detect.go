package speech

type Support struct {
	Recognition bool
	Synthesis   bool
}

// Supported reports whether both capabilities are present.
func (s Support) Supported() bool { return s.Recognition && s.Synthesis }

// Detect probes the host once. It has no side effects.
func Detect(h Host) Support {
	return Support{
		Recognition: h.NewRecognizer != nil,
		Synthesis:   h.Speaker != nil,
	}
}
