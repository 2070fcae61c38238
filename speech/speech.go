// Package speech is the console view-model: it owns one recognition session
// and a synthesis controller, reflects engine callbacks into state, and
// reports every action through a Notifier.
package speech

// Language is the fixed locale passed to both engines.
const Language = "en-US"

// Fixed utterance parameters.
const (
	SpeechRate   = 0.8
	SpeechPitch  = 1.0
	SpeechVolume = 1.0
)

// Result is one entry of a recognition result list.
type Result struct {
	Transcript string
	IsFinal    bool
}

type RecognitionConfig struct {
	Continuous     bool
	InterimResults bool
	Language       string
}

// RecognitionHandlers are invoked by the engine on its own goroutines.
// results is the full result list of the session; entries below
// resultIndex are unchanged since the previous call.
type RecognitionHandlers struct {
	OnStart  func()
	OnEnd    func()
	OnResult func(resultIndex int, results []Result)
	OnError  func(code, message string)
}

type RecognitionEngine interface {
	Start() error
	Stop()
	Abort()
}

type RecognizerFactory func(cfg RecognitionConfig, h RecognitionHandlers) (RecognitionEngine, error)

// Utterance is a single synthesis request. Handlers are set by the caller
// before it is passed to Speaker.Speak and must not be changed afterwards.
type Utterance struct {
	Text   string
	Lang   string
	Rate   float64
	Pitch  float64
	Volume float64

	OnStart func()
	OnEnd   func()
	OnError func(code string)
}

func NewUtterance(text string) *Utterance {
	return &Utterance{
		Text:   text,
		Lang:   Language,
		Rate:   SpeechRate,
		Pitch:  SpeechPitch,
		Volume: SpeechVolume,
	}
}

// Speaker queues utterances. Cancel drops every pending and active one.
type Speaker interface {
	Speak(u *Utterance)
	Cancel()
}

type Clipboard interface {
	Copy(text string) error
}

// Host holds the capabilities found in the environment. A nil field means
// the capability is absent.
type Host struct {
	NewRecognizer RecognizerFactory
	Speaker       Speaker
}

// Dispatcher runs fn on the console's event loop. Engine callbacks and
// clipboard results are always delivered through it.
type Dispatcher func(fn func())

// Immediate runs fn on the calling goroutine.
func Immediate(fn func()) { fn() }
