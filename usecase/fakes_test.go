package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/turn"
)

type fakeRecognizer struct {
	mu        sync.Mutex
	supported []string
	startErr  error
	configs   []repositories.ListenConfig
	stops     int
	events    chan repositories.RecognitionEvent
}

func newFakeRecognizer(supported ...string) *fakeRecognizer {
	return &fakeRecognizer{
		supported: supported,
		events:    make(chan repositories.RecognitionEvent, 16),
	}
}

func (r *fakeRecognizer) LanguageDetails(ctx context.Context) (repositories.LanguageDetails, error) {
	return repositories.LanguageDetails{Supported: r.supported}, nil
}

func (r *fakeRecognizer) StartListening(ctx context.Context, config repositories.ListenConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.configs = append(r.configs, config)
	return nil
}

func (r *fakeRecognizer) StopListening() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *fakeRecognizer) Events() <-chan repositories.RecognitionEvent {
	return r.events
}

func (r *fakeRecognizer) starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.configs)
}

func (r *fakeRecognizer) result(texts ...string) {
	hypotheses := make([]entities.Hypothesis, 0, len(texts))
	for _, text := range texts {
		hypotheses = append(hypotheses, entities.Hypothesis{Text: text})
	}
	r.events <- repositories.RecognitionEvent{Kind: repositories.RecognitionResult, Hypotheses: hypotheses}
}

func (r *fakeRecognizer) fail(code domain.RecognitionErrorCode) {
	r.events <- repositories.RecognitionEvent{Kind: repositories.RecognitionError, Code: code}
}

type fakeSynthesizer struct {
	mu           sync.Mutex
	availability map[string]repositories.Availability
	defaultLoc   entities.Locale
	utterances   []entities.Utterance
	stops        int
	events       chan repositories.SynthesisEvent
}

func newFakeSynthesizer() *fakeSynthesizer {
	return &fakeSynthesizer{
		availability: map[string]repositories.Availability{
			"en":    repositories.LangAvailable,
			"en-US": repositories.LangCountryAvailable,
		},
		defaultLoc: entities.Locale{Language: "en", Country: "US"},
		events:     make(chan repositories.SynthesisEvent, 16),
	}
}

func (s *fakeSynthesizer) Speak(ctx context.Context, utterance entities.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utterances = append(s.utterances, utterance)
	return nil
}

func (s *fakeSynthesizer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeSynthesizer) Shutdown() error { return nil }

func (s *fakeSynthesizer) IsLanguageAvailable(locale entities.Locale) repositories.Availability {
	return s.availability[locale.String()]
}

func (s *fakeSynthesizer) DefaultLocale() entities.Locale { return s.defaultLoc }

func (s *fakeSynthesizer) Events() <-chan repositories.SynthesisEvent { return s.events }

func (s *fakeSynthesizer) spoken() []entities.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.Utterance(nil), s.utterances...)
}

func (s *fakeSynthesizer) texts() []string {
	var texts []string
	for _, u := range s.spoken() {
		texts = append(texts, u.Text)
	}
	return texts
}

func (s *fakeSynthesizer) done(id entities.UtteranceID) {
	s.events <- repositories.SynthesisEvent{Kind: repositories.UtteranceDone, UtteranceID: id}
}

type dialogueCall struct {
	text      string
	sessionID string
}

type fakeDialogue struct {
	mu      sync.Mutex
	replies []repositories.DialogueReply
	err     error
	block   chan struct{}
	calls   []dialogueCall
	ctxErr  error
}

func (d *fakeDialogue) Query(ctx context.Context, text string, sessionID string) (repositories.DialogueReply, error) {
	d.mu.Lock()
	d.calls = append(d.calls, dialogueCall{text: text, sessionID: sessionID})
	block := d.block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			d.mu.Lock()
			d.ctxErr = ctx.Err()
			d.mu.Unlock()
			return repositories.DialogueReply{}, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return repositories.DialogueReply{}, d.err
	}
	if len(d.replies) == 0 {
		return repositories.DialogueReply{Text: "I have nothing to say"}, nil
	}
	reply := d.replies[0]
	d.replies = d.replies[1:]
	return reply, nil
}

func (d *fakeDialogue) callList() []dialogueCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dialogueCall(nil), d.calls...)
}

type fakeConnectivity struct {
	connected bool
}

func (c fakeConnectivity) Connected(ctx context.Context) bool { return c.connected }

type fakeBattery struct {
	status entities.BatteryStatus
}

func (b fakeBattery) BatteryStatus(ctx context.Context) (entities.BatteryStatus, error) {
	return b.status, nil
}

func waitForState(t *testing.T, s *VoiceSession, want turn.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected state %s, still %s", want, s.State())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
