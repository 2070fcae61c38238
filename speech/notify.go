package speech

type Severity int

const (
	SeverityNormal Severity = iota
	SeverityDestructive
)

func (s Severity) String() string {
	if s == SeverityDestructive {
		return "destructive"
	}
	return "normal"
}

// Notification is a transient status message for the presentation layer.
// Err carries the underlying error for destructive notifications.
type Notification struct {
	Title       string
	Description string
	Severity    Severity
	Err         error
}

type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

func failure(title string, err error) Notification {
	return Notification{
		Title:       title,
		Description: err.Error(),
		Severity:    SeverityDestructive,
		Err:         err,
	}
}
