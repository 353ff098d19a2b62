package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/directive"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/turn"
)

type harness struct {
	session      *VoiceSession
	recognizer   *fakeRecognizer
	synthesizer  *fakeSynthesizer
	dialogue     *fakeDialogue
	journal      *turn.Journal
	connectivity *fakeConnectivity
	cancel       context.CancelFunc
	stopped      chan error
}

type harnessOption func(h *harness, cfg *VoiceSessionConfig, handlers *directive.Handlers)

func withBattery(raw, scale int) harnessOption {
	return func(h *harness, cfg *VoiceSessionConfig, handlers *directive.Handlers) {
		handlers.Battery = fakeBattery{status: entities.BatteryStatus{RawLevel: raw, Scale: scale}}
	}
}

func withReopenOnQuestion() harnessOption {
	return func(h *harness, cfg *VoiceSessionConfig, handlers *directive.Handlers) {
		cfg.ReopenOnQuestion = true
	}
}

func withRecognitionLocale(locale string) harnessOption {
	return func(h *harness, cfg *VoiceSessionConfig, handlers *directive.Handlers) {
		cfg.RecognitionLocale = locale
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	h := &harness{
		recognizer:   newFakeRecognizer("en-US", "es-ES"),
		synthesizer:  newFakeSynthesizer(),
		dialogue:     &fakeDialogue{},
		journal:      turn.NewJournal(10, logger),
		connectivity: &fakeConnectivity{connected: true},
		stopped:      make(chan error, 1),
	}

	cfg := VoiceSessionConfig{RecognitionLocale: "en-US"}
	var handlers directive.Handlers
	for _, opt := range opts {
		opt(h, &cfg, &handlers)
	}

	voice := NewVoice(h.synthesizer, entities.Locale{Language: "en", Country: "US"}, logger)
	dispatcher := directive.NewDispatcher(voice, handlers, 0, logger)
	h.session = NewVoiceSession(cfg, h.recognizer, h.synthesizer, h.dialogue, h.connectivity, dispatcher, voice, h.journal, logger)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.stopped <- h.session.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.stopped
	})
	return h
}

func TestListenStartsRecognition(t *testing.T) {
	h := newHarness(t)

	id, err := h.session.Listen(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, turn.StateListening, h.session.State())

	require.Equal(t, 1, h.recognizer.starts())
	assert.Equal(t, repositories.ListenConfig{
		Language:   "en-US",
		Model:      repositories.FreeFormModel,
		MaxResults: 1,
	}, h.recognizer.configs[0])
}

func TestEmptyHypothesesSpeakNoMatch(t *testing.T) {
	h := newHarness(t)

	id, err := h.session.Listen(context.Background())
	require.NoError(t, err)

	h.recognizer.result()
	waitForState(t, h.session, turn.StateIdle)

	spoken := h.synthesizer.spoken()
	require.Len(t, spoken, 1)
	assert.Equal(t, "No recognition result matched", spoken[0].Text)
	assert.Equal(t, entities.PromptInfo, spoken[0].ID)
	assert.Empty(t, h.dialogue.callList())

	waitFor(t, "turn outcome", func() bool {
		tr, _ := h.journal.Get(id)
		return tr.Outcome == turn.OutcomeNoMatch
	})
}

func TestListenWhileQueryingIsBusy(t *testing.T) {
	h := newHarness(t)
	h.dialogue.block = make(chan struct{})
	h.dialogue.replies = []repositories.DialogueReply{{Text: "Done", SessionID: "s1"}}

	_, err := h.session.Listen(context.Background())
	require.NoError(t, err)
	h.recognizer.result("what time is it")
	waitForState(t, h.session, turn.StateQuerying)

	_, err = h.session.Listen(context.Background())
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.Equal(t, turn.StateQuerying, h.session.State())
	assert.Equal(t, 1, h.recognizer.starts())

	close(h.dialogue.block)
	waitForState(t, h.session, turn.StateIdle)
	assert.Equal(t, []string{"Done"}, h.synthesizer.texts())
}

func TestListenWhileListeningIsBusy(t *testing.T) {
	h := newHarness(t)

	_, err := h.session.Listen(context.Background())
	require.NoError(t, err)

	_, err = h.session.Listen(context.Background())
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.Equal(t, turn.StateListening, h.session.State())
	assert.Equal(t, 1, h.recognizer.starts())
}

func TestOnlyBestHypothesisIsQueried(t *testing.T) {
	h := newHarness(t)

	_, err := h.session.Listen(context.Background())
	require.NoError(t, err)
	h.recognizer.result("hello", "yellow", "fellow")
	waitForState(t, h.session, turn.StateIdle)

	calls := h.dialogue.callList()
	require.Len(t, calls, 1)
	assert.Equal(t, "hello", calls[0].text)
}

func TestPlainReplyIsStrippedAndSpoken(t *testing.T) {
	h := newHarness(t)
	h.dialogue.replies = []repositories.DialogueReply{
		{Text: "<p>Hello there</p>", SessionID: "abc"},
		{Text: "Still here"},
	}

	_, err := h.session.Listen(context.Background())
	require.NoError(t, err)
	h.recognizer.result("hi")
	waitForState(t, h.session, turn.StateIdle)

	assert.Equal(t, []string{"Hello there"}, h.synthesizer.texts())
	assert.Equal(t, "abc", h.session.Session().ID)

	_, err = h.session.Listen(context.Background())
	require.NoError(t, err)
	h.recognizer.result("are you there")
	waitFor(t, "second reply", func() bool { return len(h.synthesizer.spoken()) == 2 })
	waitForState(t, h.session, turn.StateIdle)

	calls := h.dialogue.callList()
	require.Len(t, calls, 2)
	assert.Equal(t, "", calls[0].sessionID)
	assert.Equal(t, "abc", calls[1].sessionID)
	assert.Equal(t, "abc", h.session.Session().ID)
	assert.Equal(t, 2, h.session.Session().Turns)
}

func TestTransportErrorKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.dialogue.replies = []repositories.DialogueReply{{Text: "Hi", SessionID: "abc"}}

	_, err := h.session.Listen(context.Background())
	require.NoError(t, err)
	h.recognizer.result("hi")
	waitForState(t, h.session, turn.StateIdle)

	h.dialogue.mu.Lock()
	h.dialogue.err = &domain.TransportError{Op: "post", Err: errors.New("connection reset")}
	h.dialogue.mu.Unlock()

	id, err := h.session.Listen(context.Background())
	require.NoError(t, err)
	h.recognizer.result("hello again")
	waitFor(t, "network message", func() bool { return len(h.synthesizer.spoken()) == 2 })
	waitForState(t, h.session, turn.StateIdle)

	assert.Equal(t, "Network unreachable", h.synthesizer.spoken()[1].Text)
	assert.Equal(t, "abc", h.session.Session().ID)
	waitFor(t, "turn outcome", func() bool {
		tr, _ := h.journal.Get(id)
		return tr.Outcome == turn.OutcomeTransportError
	})
}

func TestRecognitionErrorIsSpoken(t *testing.T) {
	h := newHarness(t)

	id, err := h.session.Listen(context.Background())
	require.NoError(t, err)
	h.recognizer.fail(domain.RecognitionErrorAudio)
	waitForState(t, h.session, turn.StateIdle)

	assert.Equal(t, []string{"Audio recording error"}, h.synthesizer.texts())
	assert.Equal(t, 1, h.recognizer.starts())
	assert.Empty(t, h.dialogue.callList())
	waitFor(t, "turn outcome", func() bool {
		tr, _ := h.journal.Get(id)
		return tr.Outcome == turn.OutcomeEngineError
	})
}

func TestNoConnectivity(t *testing.T) {
	h := newHarness(t)
	h.connectivity.connected = false

	_, err := h.session.Listen(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoConnectivity)
	assert.Equal(t, turn.StateIdle, h.session.State())
	assert.Zero(t, h.recognizer.starts())
	assert.Equal(t, []string{"Please check your Internet connection"}, h.synthesizer.texts())
}

func TestUnsupportedRecognitionLanguage(t *testing.T) {
	h := newHarness(t, withRecognitionLocale("ja-JP"))

	_, err := h.session.Listen(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnsupportedLanguage)
	assert.Equal(t, turn.StateIdle, h.session.State())
	assert.Zero(t, h.recognizer.starts())
}

func TestRecognizerRefusesToStart(t *testing.T) {
	h := newHarness(t)
	h.recognizer.startErr = errors.New("microphone in use")

	_, err := h.session.Listen(context.Background())
	assert.Error(t, err)
	assert.Equal(t, turn.StateIdle, h.session.State())
	assert.Equal(t, []string{"Speech recognition could not be started"}, h.synthesizer.texts())
}

func TestQuestionReopensMicrophone(t *testing.T) {
	h := newHarness(t, withReopenOnQuestion())
	h.dialogue.replies = []repositories.DialogueReply{{Text: "What is your name?"}}

	_, err := h.session.Listen(context.Background())
	require.NoError(t, err)
	h.recognizer.result("hello")
	waitForState(t, h.session, turn.StateSpeakingQuestion)

	spoken := h.synthesizer.spoken()
	require.Len(t, spoken, 1)
	assert.Equal(t, entities.PromptQuery, spoken[0].ID)

	// Informational utterances completing do not reopen the microphone
	h.synthesizer.done(entities.PromptInfo)
	h.synthesizer.done(entities.PromptQuery)
	waitForState(t, h.session, turn.StateListening)
	assert.Equal(t, 2, h.recognizer.starts())
}

func TestQuestionIsInformationalWhenReopenDisabled(t *testing.T) {
	h := newHarness(t)
	h.dialogue.replies = []repositories.DialogueReply{{Text: "What is your name?"}}

	_, err := h.session.Listen(context.Background())
	require.NoError(t, err)
	h.recognizer.result("hello")
	waitForState(t, h.session, turn.StateIdle)

	h.synthesizer.done(entities.PromptQuery)
	waitFor(t, "utterance", func() bool { return len(h.synthesizer.spoken()) == 1 })
	assert.Equal(t, entities.PromptInfo, h.synthesizer.spoken()[0].ID)
	assert.Equal(t, turn.StateIdle, h.session.State())
	assert.Equal(t, 1, h.recognizer.starts())
}

func TestAskSpeaksPromptThenListens(t *testing.T) {
	h := newHarness(t)

	_, err := h.session.Ask(context.Background(), "How can I help you?")
	require.NoError(t, err)
	assert.Equal(t, turn.StateSpeakingQuestion, h.session.State())
	assert.Zero(t, h.recognizer.starts())

	_, err = h.session.Listen(context.Background())
	assert.ErrorIs(t, err, domain.ErrBusy)

	h.synthesizer.done(entities.PromptQuery)
	waitForState(t, h.session, turn.StateListening)
	assert.Equal(t, 1, h.recognizer.starts())
}

func TestDirectiveReplyIsDispatched(t *testing.T) {
	h := newHarness(t, withBattery(50, 100))
	h.dialogue.replies = []repositories.DialogueReply{{Text: "<oob><battery></oob>All set"}}

	id, err := h.session.Listen(context.Background())
	require.NoError(t, err)
	h.recognizer.result("how much battery do I have")
	waitForState(t, h.session, turn.StateIdle)

	assert.Equal(t, []string{"Your battery level is 50 per cent"}, h.synthesizer.texts())

	waitFor(t, "journal", func() bool {
		tr, _ := h.journal.Get(id)
		return tr.Outcome == turn.OutcomeCompleted
	})
	tr, _ := h.journal.Get(id)
	require.Len(t, tr.Exchanges, 1)
	assert.Equal(t, []string{"battery"}, tr.Exchanges[0].Directives)
}

func TestRunCancelsQueryInFlight(t *testing.T) {
	h := newHarness(t)
	h.dialogue.block = make(chan struct{})

	_, err := h.session.Listen(context.Background())
	require.NoError(t, err)
	h.recognizer.result("tell me a story")
	waitForState(t, h.session, turn.StateQuerying)

	h.cancel()
	assert.ErrorIs(t, <-h.stopped, context.Canceled)
	h.stopped <- context.Canceled

	waitFor(t, "dialogue cancellation", func() bool {
		h.dialogue.mu.Lock()
		defer h.dialogue.mu.Unlock()
		return h.dialogue.ctxErr != nil
	})
	assert.Equal(t, turn.StateIdle, h.session.State())

	_, err = h.session.Listen(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}
