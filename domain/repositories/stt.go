package repositories

import (
	"context"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
)

// LanguageModel selects the recognition model
type LanguageModel string

const (
	// FreeFormModel is tuned for dictation-like free speech
	FreeFormModel LanguageModel = "free_form"
	// WebSearchModel is tuned for short search-like queries
	WebSearchModel LanguageModel = "web_search"
)

// ListenConfig is the configuration of a single listen operation
type ListenConfig struct {
	Language   string        `json:"language"`
	Model      LanguageModel `json:"model"`
	MaxResults int           `json:"max_results"`
}

// LanguageDetails describes which recognition languages an engine accepts
type LanguageDetails struct {
	Preference string   `json:"preference"`
	Supported  []string `json:"supported"`
}

// RecognitionEventKind identifies a recognition event
type RecognitionEventKind string

const (
	RecognitionReady  RecognitionEventKind = "ready"
	RecognitionResult RecognitionEventKind = "result"
	RecognitionError  RecognitionEventKind = "error"
)

// RecognitionEvent is emitted asynchronously by a RecognitionEngine
type RecognitionEvent struct {
	Kind       RecognitionEventKind
	Hypotheses []entities.Hypothesis
	Code       domain.RecognitionErrorCode
}

// RecognitionEngine abstracts an asynchronous speech recognition service.
// It owns at most one outstanding listen operation.
type RecognitionEngine interface {
	// LanguageDetails queries the languages the engine can recognise
	LanguageDetails(ctx context.Context) (LanguageDetails, error)
	// StartListening opens the microphone; results arrive on Events
	StartListening(ctx context.Context, config ListenConfig) error
	// StopListening ends the current listen operation, if any
	StopListening() error
	// Events delivers ready, result and error events
	Events() <-chan RecognitionEvent
}

// AudioInput receives captured audio for the listen operation in progress
type AudioInput interface {
	Stream(data []byte) error
	EndOfSpeech() error
	// InputLost reports that no audio source is left. A listen operation in
	// progress ends with a speech timeout.
	InputLost() error
}

// TranscriptInput receives text typed on the device in place of audio
type TranscriptInput interface {
	SubmitTranscript(text string) error
}
