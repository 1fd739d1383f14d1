package recognition

import "strings"

// EventType is the closed set of recognizer events
type EventType string

const (
	EventStart      EventType = "start"
	EventResult     EventType = "result"
	EventError      EventType = "error"
	EventEnd        EventType = "end"
	EventAudioStart EventType = "audiostart"
)

// Valid reports whether t is one of the known event types
func (t EventType) Valid() bool {
	switch t {
	case EventStart, EventResult, EventError, EventEnd, EventAudioStart:
		return true
	default:
		return false
	}
}

// ErrorReason is the host-reported cause of an error event
type ErrorReason string

const (
	ReasonNotAllowed ErrorReason = "not-allowed"
	ReasonNoSpeech   ErrorReason = "no-speech"
	ReasonAborted    ErrorReason = "aborted"
	ReasonNetwork    ErrorReason = "network"
	// ReasonStartFailed is reported by hosts whose start command is
	// acknowledged before the recognizer actually runs
	ReasonStartFailed ErrorReason = "start-failed"
)

// Alternative is one candidate transcription of a result
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Result is one recognized segment; Final results will not change again
type Result struct {
	Final        bool          `json:"final"`
	Alternatives []Alternative `json:"alternatives"`
}

// Best returns the transcript of the first alternative
func (r Result) Best() string {
	if len(r.Alternatives) == 0 {
		return ""
	}
	return r.Alternatives[0].Transcript
}

// Event is a normalized recognizer event
type Event struct {
	Type        EventType   `json:"type"`
	ResultIndex int         `json:"result_index,omitempty"`
	Results     []Result    `json:"results,omitempty"`
	Reason      ErrorReason `json:"reason,omitempty"`
	Message     string      `json:"message,omitempty"`
}

// Transcript folds the results changed by this event into one string.
// Final results from ResultIndex on are concatenated; when none of them is
// final yet the interim text is used instead.
func (e Event) Transcript() string {
	var final, interim strings.Builder

	start := e.ResultIndex
	if start < 0 {
		start = 0
	}
	for i := start; i < len(e.Results); i++ {
		if e.Results[i].Final {
			final.WriteString(e.Results[i].Best())
		} else {
			interim.WriteString(e.Results[i].Best())
		}
	}

	if final.Len() > 0 {
		return final.String()
	}
	return interim.String()
}
