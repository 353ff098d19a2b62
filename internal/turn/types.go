package turn

import (
	"time"
)

// State is the voice session state
type State string

const (
	StateIdle             State = "idle"
	StateListening        State = "listening"
	StateRecognized       State = "recognized"
	StateQuerying         State = "querying"
	StateResponding       State = "responding"
	StateSpeakingQuestion State = "speaking_question"
)

// Outcome is how a turn ended
type Outcome string

const (
	OutcomeInProgress     Outcome = "in_progress"
	OutcomeCompleted      Outcome = "completed"
	OutcomeNoMatch        Outcome = "no_match"
	OutcomeNoConnectivity Outcome = "no_connectivity"
	OutcomeUnsupported    Outcome = "unsupported_language"
	OutcomeEngineError    Outcome = "engine_error"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeFailed         Outcome = "failed"
	OutcomeCancelled      Outcome = "cancelled"
)

// ID uniquely identifies a turn
type ID string

// Transition is one state change within a turn
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Exchange is one recognised request and the reply it got. A turn holds more
// than one exchange when the reply was a question and the microphone re-opened.
type Exchange struct {
	Transcript string      `json:"transcript"`
	Confidence *float32    `json:"confidence,omitempty"`
	Reply      string      `json:"reply,omitempty"`
	SpokenText string      `json:"spoken_text,omitempty"`
	Directives []string    `json:"directives,omitempty"`
	Outcomes   interface{} `json:"outcomes,omitempty"`
}

// Turn is one cycle from the listen trigger back to idle
type Turn struct {
	ID          ID           `json:"id"`
	Outcome     Outcome      `json:"outcome"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Transitions []Transition `json:"transitions"`
	Exchanges   []Exchange   `json:"exchanges"`
	Utterances  []string     `json:"utterances"`
	Error       string       `json:"error,omitempty"`
}

// Event is published for every change in the journal
type Event struct {
	TurnID    ID          `json:"turn_id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Event types
const (
	EventTurnStarted   = "turn_started"
	EventStateChanged  = "state_changed"
	EventRecognized    = "recognized"
	EventReplied       = "replied"
	EventDispatched    = "directives_dispatched"
	EventUtterance     = "utterance"
	EventTurnCompleted = "turn_completed"
	EventTurnFailed    = "turn_failed"
)
