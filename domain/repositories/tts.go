package repositories

import (
	"context"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
)

// Availability is the level of support a synthesis engine has for a locale
type Availability int

const (
	LangUnsupported Availability = iota
	LangMissingData
	LangAvailable
	LangCountryAvailable
)

func (a Availability) String() string {
	switch a {
	case LangCountryAvailable:
		return "full"
	case LangAvailable:
		return "language_only"
	case LangMissingData:
		return "missing_data"
	default:
		return "unsupported"
	}
}

// SynthesisEventKind identifies a synthesis event
type SynthesisEventKind string

const (
	UtteranceStart SynthesisEventKind = "utt_start"
	UtteranceDone  SynthesisEventKind = "utt_done"
	UtteranceError SynthesisEventKind = "utt_error"
)

// SynthesisEvent is emitted asynchronously by a SynthesisEngine
type SynthesisEvent struct {
	Kind        SynthesisEventKind
	UtteranceID entities.UtteranceID
}

// SynthesisEngine abstracts an asynchronous text to speech service.
// At most one utterance is in flight at a time.
type SynthesisEngine interface {
	// Speak submits an utterance according to its queue mode
	Speak(ctx context.Context, utterance entities.Utterance) error
	// Stop interrupts the current utterance and drops the queue
	Stop() error
	// Shutdown releases the engine, it cannot be used afterwards
	Shutdown() error
	IsLanguageAvailable(locale entities.Locale) Availability
	DefaultLocale() entities.Locale
	// Events delivers utterance start, done and error events
	Events() <-chan SynthesisEvent
}

// AudioSink receives synthesized audio as it is produced
type AudioSink interface {
	WriteAudio(utteranceID entities.UtteranceID, chunk []byte) error
}
