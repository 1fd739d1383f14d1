package speech

import (
	"github.com/yegors/co-hud/internal/recognition"
)

type fakeRecognizer struct {
	opts     recognition.Options
	sink     recognition.Sink
	starts   int
	stops    int
	aborts   int
	startErr error
	stopErr  error
}

func (r *fakeRecognizer) Start() error {
	if r.startErr != nil {
		return r.startErr
	}
	r.starts++
	return nil
}

func (r *fakeRecognizer) Stop() error {
	if r.stopErr != nil {
		return r.stopErr
	}
	r.stops++
	return nil
}

func (r *fakeRecognizer) Abort() error {
	r.aborts++
	return nil
}

func (r *fakeRecognizer) Language() string { return r.opts.Language }

func (r *fakeRecognizer) emit(event recognition.Event) {
	r.sink.HandleEvent(event)
}

func (r *fakeRecognizer) emitType(t recognition.EventType) {
	r.emit(recognition.Event{Type: t})
}

func (r *fakeRecognizer) emitError(reason recognition.ErrorReason) {
	r.emit(recognition.Event{Type: recognition.EventError, Reason: reason})
}

func (r *fakeRecognizer) emitResult(final bool, text string) {
	r.emit(recognition.Event{
		Type: recognition.EventResult,
		Results: []recognition.Result{{
			Final:        final,
			Alternatives: []recognition.Alternative{{Transcript: text, Confidence: 0.9}},
		}},
	})
}

type fakeHost struct {
	supported     bool
	locales       []string
	defaultLocale string
	newErr        error
	startErr      error
	instances     []*fakeRecognizer
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		supported:     true,
		locales:       []string{"en-US", "fr-FR"},
		defaultLocale: "en-US",
	}
}

func (h *fakeHost) Supported() bool       { return h.supported }
func (h *fakeHost) Locales() []string     { return h.locales }
func (h *fakeHost) DefaultLocale() string { return h.defaultLocale }

func (h *fakeHost) New(opts recognition.Options, sink recognition.Sink) (recognition.Recognizer, error) {
	if h.newErr != nil {
		return nil, h.newErr
	}
	rec := &fakeRecognizer{opts: opts, sink: sink, startErr: h.startErr}
	h.instances = append(h.instances, rec)
	return rec, nil
}

func (h *fakeHost) last() *fakeRecognizer {
	if len(h.instances) == 0 {
		return nil
	}
	return h.instances[len(h.instances)-1]
}
