// Package recognition describes the host speech-recognition capability the
// session manager drives: a constructible recognizer that reports its
// lifecycle through normalized events.
package recognition

import "errors"

var (
	// ErrUnsupported is returned when the host has no recognizer at all
	ErrUnsupported = errors.New("speech recognition is not supported by this host")

	// ErrInvalidLanguage is returned for empty or malformed language tags
	ErrInvalidLanguage = errors.New("invalid language tag")
)

// Options configures a recognizer at construction time. Hosts generally
// refuse to change these on a live instance.
type Options struct {
	Language       string
	Continuous     bool
	InterimResults bool
}

// Recognizer is a single handle on the host recognition primitive.
//
// Implementations deliver events to their Sink asynchronously: a Sink must
// never be called from inside Start, Stop or Abort.
type Recognizer interface {
	Start() error
	Stop() error
	Abort() error
	Language() string
}

// Sink receives the events of one recognizer
type Sink interface {
	HandleEvent(event Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(event Event)

// HandleEvent calls f(event)
func (f SinkFunc) HandleEvent(event Event) {
	f(event)
}

// Host is the platform capability: it reports support and locale
// preferences, and constructs recognizers.
type Host interface {
	Supported() bool
	Locales() []string
	DefaultLocale() string
	New(opts Options, sink Sink) (Recognizer, error)
}
