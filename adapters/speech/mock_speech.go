package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zoraidacallejas/talk-to-your-assistant/adapters/tts"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
)

// ErrNotListening is returned when input arrives outside a listen operation
var ErrNotListening = errors.New("mock recognizer is not listening")

const defaultListenTimeout = 8 * time.Second

// MockRecognizer is a recognition engine for running without a cloud
// account. Devices submit typed transcripts, or raw audio which is mapped to
// canned phrases by size. A listen operation that receives neither ends
// with a speech timeout.
type MockRecognizer struct {
	logger    *zap.Logger
	languages []string
	timeout   time.Duration

	mu        sync.Mutex
	listening bool
	audio     int
	deadline  *time.Timer
	events    chan repositories.RecognitionEvent
}

// NewMockRecognizer creates a mock recognizer accepting the given languages.
// listenTimeout bounds each listen operation, zero selects the default.
func NewMockRecognizer(languages []string, listenTimeout time.Duration, logger *zap.Logger) *MockRecognizer {
	if listenTimeout <= 0 {
		listenTimeout = defaultListenTimeout
	}
	return &MockRecognizer{
		logger:    logger,
		languages: append([]string(nil), languages...),
		timeout:   listenTimeout,
		events:    make(chan repositories.RecognitionEvent, 16),
	}
}

// LanguageDetails implements repositories.RecognitionEngine
func (m *MockRecognizer) LanguageDetails(ctx context.Context) (repositories.LanguageDetails, error) {
	details := repositories.LanguageDetails{Supported: append([]string(nil), m.languages...)}
	if len(m.languages) > 0 {
		details.Preference = m.languages[0]
	}
	return details, nil
}

// StartListening implements repositories.RecognitionEngine
func (m *MockRecognizer) StartListening(ctx context.Context, config repositories.ListenConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Initializing mock recognition",
		zap.String("language", config.Language),
		zap.String("model", string(config.Model)))

	m.endLocked()
	m.listening = true
	m.audio = 0

	var timer *time.Timer
	timer = time.AfterFunc(m.timeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.deadline != timer {
			return
		}
		m.logger.Info("Mock recognition timed out", zap.Duration("timeout", m.timeout))
		m.timeoutLocked()
	})
	m.deadline = timer

	m.events <- repositories.RecognitionEvent{Kind: repositories.RecognitionReady}
	return nil
}

// StopListening implements repositories.RecognitionEngine
func (m *MockRecognizer) StopListening() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endLocked()
	return nil
}

// InputLost implements repositories.AudioInput
func (m *MockRecognizer) InputLost() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listening {
		m.timeoutLocked()
	}
	return nil
}

// endLocked closes the listen operation without emitting anything
func (m *MockRecognizer) endLocked() {
	m.listening = false
	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
}

func (m *MockRecognizer) timeoutLocked() {
	m.endLocked()
	m.events <- repositories.RecognitionEvent{Kind: repositories.RecognitionError, Code: domain.RecognitionErrorSpeechTimeout}
}

// Events implements repositories.RecognitionEngine
func (m *MockRecognizer) Events() <-chan repositories.RecognitionEvent {
	return m.events
}

// SubmitTranscript delivers text as the recognition result
func (m *MockRecognizer) SubmitTranscript(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.listening {
		return ErrNotListening
	}
	m.endLocked()

	text = strings.TrimSpace(text)
	if text == "" {
		m.events <- repositories.RecognitionEvent{Kind: repositories.RecognitionError, Code: domain.RecognitionErrorNoMatch}
		return nil
	}
	m.events <- repositories.RecognitionEvent{
		Kind:       repositories.RecognitionResult,
		Hypotheses: []entities.Hypothesis{{Text: text}},
	}
	return nil
}

// Stream implements repositories.AudioInput
func (m *MockRecognizer) Stream(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.listening {
		return ErrNotListening
	}
	m.audio += len(data)
	return nil
}

// EndOfSpeech maps the amount of audio received to a canned phrase
func (m *MockRecognizer) EndOfSpeech() error {
	m.mu.Lock()
	audio := m.audio
	m.mu.Unlock()

	m.logger.Info("Ending mock recognition", zap.Int("audioSize", audio))

	switch {
	case audio > 10000:
		return m.SubmitTranscript("show me coffee near me")
	case audio > 5000:
		return m.SubmitTranscript("what is my battery level")
	case audio > 1000:
		return m.SubmitTranscript("hello")
	default:
		return m.SubmitTranscript("")
	}
}

// MockSynthesizer plays utterances instantly, writing a synthetic waveform
// to the sink so clients can exercise audio playback.
type MockSynthesizer struct {
	logger        *zap.Logger
	sink          repositories.AudioSink
	defaultLocale entities.Locale
	queue         *tts.Queue
	events        chan repositories.SynthesisEvent

	mu     sync.Mutex
	spoken []entities.Utterance
}

// NewMockSynthesizer creates a mock synthesizer and starts its worker
func NewMockSynthesizer(defaultLocale entities.Locale, sink repositories.AudioSink, logger *zap.Logger) *MockSynthesizer {
	m := &MockSynthesizer{
		logger:        logger,
		sink:          sink,
		defaultLocale: defaultLocale.Normalize(),
		events:        make(chan repositories.SynthesisEvent, 32),
	}
	m.queue = tts.NewQueue(m.play, m.emit, logger)
	go m.queue.Run()
	return m
}

// Speak implements repositories.SynthesisEngine
func (m *MockSynthesizer) Speak(ctx context.Context, utterance entities.Utterance) error {
	return m.queue.Push(utterance)
}

// Stop implements repositories.SynthesisEngine
func (m *MockSynthesizer) Stop() error {
	m.queue.Clear()
	return nil
}

// Shutdown implements repositories.SynthesisEngine
func (m *MockSynthesizer) Shutdown() error {
	m.queue.Close()
	return nil
}

// IsLanguageAvailable implements repositories.SynthesisEngine
func (m *MockSynthesizer) IsLanguageAvailable(locale entities.Locale) repositories.Availability {
	return tts.Availability(locale)
}

// DefaultLocale implements repositories.SynthesisEngine
func (m *MockSynthesizer) DefaultLocale() entities.Locale {
	return m.defaultLocale
}

// Events implements repositories.SynthesisEngine
func (m *MockSynthesizer) Events() <-chan repositories.SynthesisEvent {
	return m.events
}

// Spoken returns every utterance played so far
func (m *MockSynthesizer) Spoken() []entities.Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.Utterance(nil), m.spoken...)
}

func (m *MockSynthesizer) play(ctx context.Context, utterance entities.Utterance) error {
	m.logger.Info("Processing text-to-speech",
		zap.String("text", utterance.Text),
		zap.String("locale", utterance.Locale().String()))

	m.mu.Lock()
	m.spoken = append(m.spoken, utterance)
	m.mu.Unlock()

	if m.sink == nil {
		return nil
	}

	// Mock audio data sized on text length
	mockAudio := make([]byte, len(utterance.Text)*100)
	for i := range mockAudio {
		mockAudio[i] = byte(i % 256)
	}
	return m.sink.WriteAudio(utterance.ID, mockAudio)
}

func (m *MockSynthesizer) emit(ev repositories.SynthesisEvent) {
	select {
	case m.events <- ev:
	case <-m.queue.Done():
	}
}

var (
	_ repositories.RecognitionEngine = (*MockRecognizer)(nil)
	_ repositories.AudioInput        = (*MockRecognizer)(nil)
	_ repositories.TranscriptInput   = (*MockRecognizer)(nil)
	_ repositories.SynthesisEngine   = (*MockSynthesizer)(nil)
)
