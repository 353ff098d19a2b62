package speech

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
)

func recognitionEvent(t *testing.T, r *MockRecognizer) repositories.RecognitionEvent {
	t.Helper()
	select {
	case ev := <-r.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for recognition event")
		return repositories.RecognitionEvent{}
	}
}

func TestMockRecognizerTranscript(t *testing.T) {
	r := NewMockRecognizer([]string{"en-US"}, time.Minute, zaptest.NewLogger(t))

	assert.ErrorIs(t, r.SubmitTranscript("too early"), ErrNotListening)

	require.NoError(t, r.StartListening(context.Background(), repositories.ListenConfig{Language: "en-US"}))
	assert.Equal(t, repositories.RecognitionReady, recognitionEvent(t, r).Kind)

	require.NoError(t, r.SubmitTranscript("  search for cats "))
	ev := recognitionEvent(t, r)
	assert.Equal(t, repositories.RecognitionResult, ev.Kind)
	require.Len(t, ev.Hypotheses, 1)
	assert.Equal(t, "search for cats", ev.Hypotheses[0].Text)
}

func TestMockRecognizerAudio(t *testing.T) {
	r := NewMockRecognizer(nil, time.Minute, zaptest.NewLogger(t))

	require.NoError(t, r.StartListening(context.Background(), repositories.ListenConfig{}))
	recognitionEvent(t, r)
	require.NoError(t, r.Stream(make([]byte, 6000)))
	require.NoError(t, r.EndOfSpeech())

	ev := recognitionEvent(t, r)
	require.Len(t, ev.Hypotheses, 1)
	assert.Equal(t, "what is my battery level", ev.Hypotheses[0].Text)

	require.NoError(t, r.StartListening(context.Background(), repositories.ListenConfig{}))
	recognitionEvent(t, r)
	require.NoError(t, r.EndOfSpeech())

	ev = recognitionEvent(t, r)
	assert.Equal(t, repositories.RecognitionError, ev.Kind)
	assert.Equal(t, domain.RecognitionErrorNoMatch, ev.Code)
}

func TestMockRecognizerTimeout(t *testing.T) {
	r := NewMockRecognizer(nil, 50*time.Millisecond, zaptest.NewLogger(t))

	require.NoError(t, r.StartListening(context.Background(), repositories.ListenConfig{}))
	recognitionEvent(t, r)

	ev := recognitionEvent(t, r)
	assert.Equal(t, repositories.RecognitionError, ev.Kind)
	assert.Equal(t, domain.RecognitionErrorSpeechTimeout, ev.Code)
	assert.ErrorIs(t, r.SubmitTranscript("too late"), ErrNotListening)
}

func TestMockRecognizerStopDisarmsTimeout(t *testing.T) {
	r := NewMockRecognizer(nil, 50*time.Millisecond, zaptest.NewLogger(t))

	require.NoError(t, r.StartListening(context.Background(), repositories.ListenConfig{}))
	recognitionEvent(t, r)
	require.NoError(t, r.StopListening())

	select {
	case ev := <-r.Events():
		t.Fatalf("Unexpected event after stop: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMockRecognizerInputLost(t *testing.T) {
	r := NewMockRecognizer(nil, time.Minute, zaptest.NewLogger(t))
	require.NoError(t, r.InputLost(), "no-op while idle")

	require.NoError(t, r.StartListening(context.Background(), repositories.ListenConfig{}))
	recognitionEvent(t, r)
	require.NoError(t, r.InputLost())

	ev := recognitionEvent(t, r)
	assert.Equal(t, repositories.RecognitionError, ev.Kind)
	assert.Equal(t, domain.RecognitionErrorSpeechTimeout, ev.Code)
}

type countingSink struct {
	bytes int
}

func (s *countingSink) WriteAudio(id entities.UtteranceID, chunk []byte) error {
	s.bytes += len(chunk)
	return nil
}

func TestMockSynthesizer(t *testing.T) {
	sink := &countingSink{}
	s := NewMockSynthesizer(entities.ParseLocale("en-us"), sink, zaptest.NewLogger(t))
	defer s.Shutdown()

	assert.Equal(t, "en-US", s.DefaultLocale().String())
	assert.Equal(t, repositories.LangCountryAvailable, s.IsLanguageAvailable(entities.ParseLocale("en-GB")))

	require.NoError(t, s.Speak(context.Background(), entities.Utterance{Text: "Hello", ID: entities.PromptQuery}))

	var kinds []repositories.SynthesisEventKind
	for len(kinds) < 2 {
		select {
		case ev := <-s.Events():
			assert.Equal(t, entities.PromptQuery, ev.UtteranceID)
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for synthesis event")
		}
	}

	assert.Equal(t, []repositories.SynthesisEventKind{repositories.UtteranceStart, repositories.UtteranceDone}, kinds)
	assert.Equal(t, 500, sink.bytes)
	require.Len(t, s.Spoken(), 1)
}
