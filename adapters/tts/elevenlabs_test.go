package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
)

type recordingSink struct {
	mu     sync.Mutex
	chunks map[entities.UtteranceID][]byte
}

func (s *recordingSink) WriteAudio(id entities.UtteranceID, chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks == nil {
		s.chunks = make(map[entities.UtteranceID][]byte)
	}
	s.chunks[id] = append(s.chunks[id], chunk...)
	return nil
}

func (s *recordingSink) audio(id entities.UtteranceID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.chunks[id])
}

func newTestSynthesizer(t *testing.T, handler http.HandlerFunc, sink repositories.AudioSink) *ElevenLabsSynthesizer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	s, err := NewElevenLabsSynthesizer(ElevenLabsConfig{
		APIKey:     "test-api-key",
		APIBaseURL: server.URL,
		ChunkSize:  4,
	}, sink, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create synthesizer: %v", err)
	}
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func nextEvent(t *testing.T, s *ElevenLabsSynthesizer) repositories.SynthesisEvent {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for synthesis event")
		return repositories.SynthesisEvent{}
	}
}

func TestNewElevenLabsSynthesizer(t *testing.T) {
	logger := zaptest.NewLogger(t)

	if _, err := NewElevenLabsSynthesizer(ElevenLabsConfig{}, nil, logger); err == nil {
		t.Error("Expected error when API key is not set")
	}

	if _, err := NewElevenLabsSynthesizer(ElevenLabsConfig{APIKey: "k", Stability: 2}, nil, logger); err == nil {
		t.Error("Expected error for stability out of range")
	}

	s, err := NewElevenLabsSynthesizer(ElevenLabsConfig{APIKey: "k"}, nil, logger)
	if err != nil {
		t.Fatalf("Failed to create synthesizer: %v", err)
	}
	defer s.Shutdown()

	if s.voiceID != defaultVoiceID {
		t.Errorf("Expected default voice ID '%s', got '%s'", defaultVoiceID, s.voiceID)
	}
	if got := s.DefaultLocale().String(); got != "en-US" {
		t.Errorf("Expected default locale en-US, got %s", got)
	}
}

func TestElevenLabsSpeakStreamsAudio(t *testing.T) {
	var request ElevenLabsRequest
	var apiKey string
	sink := &recordingSink{}

	s := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("xi-api-key")
		json.NewDecoder(r.Body).Decode(&request)
		w.Write([]byte("0123456789"))
	}, sink)

	err := s.Speak(context.Background(), entities.Utterance{
		Text:         "Hello there",
		LanguageCode: "EN",
		CountryCode:  "US",
		ID:           entities.PromptInfo,
		QueueMode:    entities.QueueFlush,
	})
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	if ev := nextEvent(t, s); ev.Kind != repositories.UtteranceStart || ev.UtteranceID != entities.PromptInfo {
		t.Errorf("Expected utt_start for PROMPT_INFO, got %+v", ev)
	}
	if ev := nextEvent(t, s); ev.Kind != repositories.UtteranceDone {
		t.Errorf("Expected utt_done, got %+v", ev)
	}

	if got := sink.audio(entities.PromptInfo); got != "0123456789" {
		t.Errorf("Expected all audio forwarded to sink, got %q", got)
	}
	if apiKey != "test-api-key" {
		t.Errorf("Expected api key header, got %q", apiKey)
	}
	if request.Text != "Hello there" || request.LanguageCode != "en" {
		t.Errorf("Unexpected request payload %+v", request)
	}
}

func TestElevenLabsSpeakReportsError(t *testing.T) {
	s := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}, nil)

	if err := s.Speak(context.Background(), entities.Utterance{Text: "Hi", ID: entities.PromptQuery}); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	nextEvent(t, s)
	if ev := nextEvent(t, s); ev.Kind != repositories.UtteranceError || ev.UtteranceID != entities.PromptQuery {
		t.Errorf("Expected utt_error for PROMPT_QUERY, got %+v", ev)
	}
}

func TestElevenLabsFlushInterruptsCurrent(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	s := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ElevenLabsRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Text == "long story" {
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		w.Write([]byte("ok"))
	}, nil)

	ctx := context.Background()
	s.Speak(ctx, entities.Utterance{Text: "long story", ID: entities.PromptInfo, QueueMode: entities.QueueFlush})
	if ev := nextEvent(t, s); ev.Kind != repositories.UtteranceStart {
		t.Fatalf("Expected first utterance to start, got %+v", ev)
	}

	s.Speak(ctx, entities.Utterance{Text: "Is that all?", ID: entities.PromptQuery, QueueMode: entities.QueueFlush})

	start := nextEvent(t, s)
	if start.Kind != repositories.UtteranceStart || start.UtteranceID != entities.PromptQuery {
		t.Errorf("Expected flushed utterance to end silently, got %+v", start)
	}
	if ev := nextEvent(t, s); ev.Kind != repositories.UtteranceDone || ev.UtteranceID != entities.PromptQuery {
		t.Errorf("Expected question to finish, got %+v", ev)
	}
}

func TestElevenLabsEnqueueKeepsOrder(t *testing.T) {
	var mu sync.Mutex
	var texts []string
	s := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ElevenLabsRequest
		json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		texts = append(texts, req.Text)
		mu.Unlock()
		w.Write([]byte("ok"))
	}, nil)

	ctx := context.Background()
	for _, text := range []string{"one", "two", "three"} {
		s.Speak(ctx, entities.Utterance{Text: text, ID: entities.PromptInfo, QueueMode: entities.QueueEnqueue})
	}

	done := 0
	for done < 3 {
		if ev := nextEvent(t, s); ev.Kind == repositories.UtteranceDone {
			done++
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 3 || texts[0] != "one" || texts[1] != "two" || texts[2] != "three" {
		t.Errorf("Expected utterances in submission order, got %v", texts)
	}
}

func TestElevenLabsSpeakRejectsEmptyText(t *testing.T) {
	s := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {}, nil)

	if err := s.Speak(context.Background(), entities.Utterance{Text: "   "}); err == nil {
		t.Error("Expected error for whitespace-only text")
	}
}

func TestElevenLabsShutdown(t *testing.T) {
	s := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {}, nil)

	s.Shutdown()
	if err := s.Speak(context.Background(), entities.Utterance{Text: "late"}); err != ErrShutdown {
		t.Errorf("Expected ErrShutdown, got %v", err)
	}
}

func TestAvailability(t *testing.T) {
	tests := []struct {
		locale string
		want   repositories.Availability
	}{
		{"en-US", repositories.LangCountryAvailable},
		{"en_GB", repositories.LangCountryAvailable},
		{"en-ZA", repositories.LangAvailable},
		{"es", repositories.LangAvailable},
		{"ro-RO", repositories.LangAvailable},
		{"xx-YY", repositories.LangUnsupported},
	}

	for _, tt := range tests {
		if got := Availability(entities.ParseLocale(tt.locale)); got != tt.want {
			t.Errorf("Availability(%s) = %s, want %s", tt.locale, got, tt.want)
		}
	}
}
