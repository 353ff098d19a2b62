package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/directive"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/metrics"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/turn"
)

// ResultCap is the number of recognition hypotheses requested per listen
const ResultCap = 1

// ErrStopped is returned by Listen and Ask once Run has returned
var ErrStopped = errors.New("voice session stopped")

// VoiceSessionConfig holds the controller settings
type VoiceSessionConfig struct {
	// RecognitionLocale is matched against the recognizer's languages, e.g. "en-US"
	RecognitionLocale string
	// ReopenOnQuestion speaks replies ending in a question mark as a
	// question and listens again once they have been spoken
	ReopenOnQuestion bool
}

type turnRequest struct {
	prompt string
	result chan turnResult
}

type turnResult struct {
	id  turn.ID
	err error
}

type dialogueResult struct {
	turnID turn.ID
	reply  repositories.DialogueReply
	err    error
}

// VoiceSession sequences recognition, the dialogue service and synthesis
// into conversational turns. All state changes happen on the goroutine
// running Run.
type VoiceSession struct {
	config       VoiceSessionConfig
	recognizer   repositories.RecognitionEngine
	synthesizer  repositories.SynthesisEngine
	dialogue     repositories.DialogueClient
	connectivity repositories.ConnectivityChecker
	dispatcher   *directive.Dispatcher
	voice        *Voice
	journal      *turn.Journal
	logger       *zap.Logger

	requests chan turnRequest
	replies  chan dialogueResult
	done     chan struct{}

	mu          sync.RWMutex
	state       turn.State
	session     *entities.Session
	currentTurn turn.ID
}

// NewVoiceSession creates the controller. connectivity may be nil to skip
// the network precheck.
func NewVoiceSession(
	config VoiceSessionConfig,
	recognizer repositories.RecognitionEngine,
	synthesizer repositories.SynthesisEngine,
	dialogue repositories.DialogueClient,
	connectivity repositories.ConnectivityChecker,
	dispatcher *directive.Dispatcher,
	voice *Voice,
	journal *turn.Journal,
	logger *zap.Logger,
) *VoiceSession {
	s := &VoiceSession{
		config:       config,
		recognizer:   recognizer,
		synthesizer:  synthesizer,
		dialogue:     dialogue,
		connectivity: connectivity,
		dispatcher:   dispatcher,
		voice:        voice,
		journal:      journal,
		logger:       logger,
		requests:     make(chan turnRequest),
		replies:      make(chan dialogueResult, 1),
		done:         make(chan struct{}),
		state:        turn.StateIdle,
		session:      entities.NewSession(),
	}

	voice.Observe(func(u entities.Utterance) {
		s.journal.Spoke(s.CurrentTurn(), u.Text)
	})
	return s
}

// State returns the current controller state
func (s *VoiceSession) State() turn.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Session returns a snapshot of the dialogue session
func (s *VoiceSession) Session() entities.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Snapshot()
}

// CurrentTurn returns the id of the turn in progress, empty when idle
func (s *VoiceSession) CurrentTurn() turn.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentTurn
}

// Listen starts a turn by opening the microphone. It fails with
// domain.ErrBusy when a turn is already in progress.
func (s *VoiceSession) Listen(ctx context.Context) (turn.ID, error) {
	return s.submit(ctx, turnRequest{})
}

// Ask starts a turn by speaking prompt as a question; the microphone opens
// once it has been spoken.
func (s *VoiceSession) Ask(ctx context.Context, prompt string) (turn.ID, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return s.Listen(ctx)
	}
	return s.submit(ctx, turnRequest{prompt: prompt})
}

func (s *VoiceSession) submit(ctx context.Context, req turnRequest) (turn.ID, error) {
	req.result = make(chan turnResult, 1)

	select {
	case s.requests <- req:
	case <-s.done:
		return "", ErrStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-req.result:
		return res.id, res.err
	case <-s.done:
		return "", ErrStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run processes requests and engine events until ctx is cancelled. The
// dialogue query in flight, if any, is cancelled with ctx.
func (s *VoiceSession) Run(ctx context.Context) error {
	defer close(s.done)

	recognition := s.recognizer.Events()
	synthesis := s.synthesizer.Events()

	s.logger.Info("Voice session started",
		zap.String("recognitionLocale", s.config.RecognitionLocale),
		zap.Bool("reopenOnQuestion", s.config.ReopenOnQuestion))

	for {
		select {
		case <-ctx.Done():
			s.stop()
			return ctx.Err()

		case req := <-s.requests:
			id, err := s.handleRequest(ctx, req)
			req.result <- turnResult{id: id, err: err}

		case ev, ok := <-recognition:
			if !ok {
				recognition = nil
				continue
			}
			s.handleRecognition(ctx, ev)

		case ev, ok := <-synthesis:
			if !ok {
				synthesis = nil
				continue
			}
			s.handleSynthesis(ctx, ev)

		case res := <-s.replies:
			s.handleReply(ctx, res)
		}
	}
}

func (s *VoiceSession) handleRequest(ctx context.Context, req turnRequest) (turn.ID, error) {
	if state := s.State(); state != turn.StateIdle {
		metrics.TurnRejectionsTotal.WithLabelValues("busy").Inc()
		s.logger.Info("Turn rejected, controller busy", zap.String("state", string(state)))
		return "", domain.ErrBusy
	}

	id := s.journal.Start()
	s.mu.Lock()
	s.currentTurn = id
	s.mu.Unlock()

	if req.prompt != "" {
		s.transition(turn.StateSpeakingQuestion)
		if err := s.voice.Speak(ctx, req.prompt, entities.PromptQuery, entities.QueueFlush); err != nil {
			s.finishTurn(turn.OutcomeEngineError, fmt.Errorf("speak prompt: %w", err))
			return id, err
		}
		return id, nil
	}

	return id, s.startListening(ctx)
}

// startListening performs the IDLE or SPEAKING_QUESTION to LISTENING transition
func (s *VoiceSession) startListening(ctx context.Context) error {
	if s.connectivity != nil && !s.connectivity.Connected(ctx) {
		metrics.TurnRejectionsTotal.WithLabelValues("no_connectivity").Inc()
		s.say(ctx, domain.MessageNoConnectivity)
		s.finishTurn(turn.OutcomeNoConnectivity, domain.ErrNoConnectivity)
		return domain.ErrNoConnectivity
	}

	language, err := s.recognitionLanguage(ctx)
	if err != nil {
		s.say(ctx, domain.MessageRecognitionNotStart)
		s.finishTurn(turn.OutcomeUnsupported, err)
		return err
	}

	config := repositories.ListenConfig{
		Language:   language,
		Model:      repositories.FreeFormModel,
		MaxResults: ResultCap,
	}
	if err := s.recognizer.StartListening(ctx, config); err != nil {
		s.say(ctx, domain.MessageRecognitionNotStart)
		err = fmt.Errorf("start listening: %w", err)
		s.finishTurn(turn.OutcomeEngineError, err)
		return err
	}

	s.transition(turn.StateListening)
	return nil
}

func (s *VoiceSession) recognitionLanguage(ctx context.Context) (string, error) {
	details, err := s.recognizer.LanguageDetails(ctx)
	if err != nil {
		return "", fmt.Errorf("query recognition languages: %w", err)
	}
	return MatchLanguage(s.config.RecognitionLocale, details.Supported)
}

func (s *VoiceSession) handleRecognition(ctx context.Context, ev repositories.RecognitionEvent) {
	if s.State() != turn.StateListening {
		s.logger.Warn("Ignoring recognition event outside of listening",
			zap.String("kind", string(ev.Kind)),
			zap.String("state", string(s.State())))
		return
	}

	switch ev.Kind {
	case repositories.RecognitionReady:
		s.logger.Debug("Recognizer ready for speech")

	case repositories.RecognitionResult:
		if len(ev.Hypotheses) == 0 {
			s.say(ctx, domain.CategoryNoMatch.Message())
			s.finishTurn(turn.OutcomeNoMatch, nil)
			return
		}
		best := ev.Hypotheses[0]
		s.logger.Info("Speech recognised", zap.String("text", best.Text))
		s.transition(turn.StateRecognized)
		s.journal.Recognized(s.CurrentTurn(), best.Text, best.Confidence)
		s.query(ctx, best.Text)

	case repositories.RecognitionError:
		category := domain.CategoryForCode(ev.Code)
		metrics.RecognitionErrorsTotal.WithLabelValues(string(category)).Inc()
		s.logger.Warn("Recognition error",
			zap.Int("code", int(ev.Code)),
			zap.String("category", string(category)))
		s.say(ctx, category.Message())
		s.finishTurn(turn.OutcomeEngineError, &domain.EngineError{Category: category, Code: int(ev.Code)})
	}
}

// query sends text to the dialogue service without blocking the event loop
func (s *VoiceSession) query(ctx context.Context, text string) {
	s.transition(turn.StateQuerying)

	s.mu.RLock()
	sessionID := s.session.ID
	turnID := s.currentTurn
	s.mu.RUnlock()

	go func() {
		reply, err := s.dialogue.Query(ctx, text, sessionID)
		select {
		case s.replies <- dialogueResult{turnID: turnID, reply: reply, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *VoiceSession) handleReply(ctx context.Context, res dialogueResult) {
	if s.State() != turn.StateQuerying || res.turnID != s.CurrentTurn() {
		s.logger.Warn("Ignoring stale dialogue reply", zap.String("turnID", string(res.turnID)))
		return
	}
	s.transition(turn.StateResponding)

	if res.err != nil {
		s.logger.Error("Dialogue query failed", zap.Error(res.err))
		s.say(ctx, domain.MessageNetworkUnreachable)
		outcome := turn.OutcomeFailed
		if domain.IsTransportError(res.err) {
			outcome = turn.OutcomeTransportError
		}
		s.finishTurn(outcome, res.err)
		return
	}

	s.mu.Lock()
	s.session.ApplyReply(res.reply.SessionID)
	s.mu.Unlock()

	parsed := directive.Parse(res.reply.Text)
	kinds := make([]string, 0, len(parsed.Directives))
	for _, k := range parsed.Kinds() {
		kinds = append(kinds, string(k))
	}
	s.journal.Replied(res.turnID, res.reply.Text, parsed.SpokenText, kinds)

	if parsed.HasDirective() {
		outcomes := s.dispatcher.Dispatch(ctx, parsed)
		s.journal.Dispatched(res.turnID, outcomes)
		s.finishTurn(turn.OutcomeCompleted, nil)
		return
	}

	text := parsed.SpokenText
	if text == "" {
		s.finishTurn(turn.OutcomeCompleted, nil)
		return
	}

	if s.config.ReopenOnQuestion && isQuestion(text) {
		s.transition(turn.StateSpeakingQuestion)
		if err := s.voice.Speak(ctx, text, entities.PromptQuery, entities.QueueFlush); err != nil {
			s.logger.Error("Failed to speak question", zap.Error(err))
			s.finishTurn(turn.OutcomeCompleted, nil)
		}
		return
	}

	s.say(ctx, text)
	s.finishTurn(turn.OutcomeCompleted, nil)
}

func (s *VoiceSession) handleSynthesis(ctx context.Context, ev repositories.SynthesisEvent) {
	metrics.UtterancesTotal.WithLabelValues(string(ev.UtteranceID), string(ev.Kind)).Inc()

	if ev.UtteranceID != entities.PromptQuery || s.State() != turn.StateSpeakingQuestion {
		return
	}

	switch ev.Kind {
	case repositories.UtteranceDone:
		if err := s.startListening(ctx); err != nil {
			s.logger.Warn("Could not listen for the answer", zap.Error(err))
		}
	case repositories.UtteranceError:
		s.finishTurn(turn.OutcomeEngineError, errors.New("question could not be spoken"))
	}
}

// say speaks informational feedback, failures only get logged
func (s *VoiceSession) say(ctx context.Context, text string) {
	if err := s.voice.Speak(ctx, text, entities.PromptInfo, entities.QueueFlush); err != nil {
		s.logger.Error("TTS not accessible", zap.String("text", text), zap.Error(err))
	}
}

func (s *VoiceSession) transition(to turn.State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	id := s.currentTurn
	s.mu.Unlock()

	metrics.StateTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	s.journal.Transition(id, from, to)
	s.logger.Debug("State transition",
		zap.String("turnID", string(id)),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
}

// finishTurn returns the controller to idle and closes the journal entry
func (s *VoiceSession) finishTurn(outcome turn.Outcome, err error) {
	if s.State() != turn.StateIdle {
		s.transition(turn.StateIdle)
	}

	s.mu.Lock()
	id := s.currentTurn
	s.currentTurn = ""
	s.mu.Unlock()

	if id == "" {
		return
	}
	metrics.TurnsTotal.WithLabelValues(string(outcome)).Inc()
	s.journal.Finish(id, outcome, err)
}

func (s *VoiceSession) stop() {
	if err := s.recognizer.StopListening(); err != nil {
		s.logger.Warn("Failed to stop recognizer", zap.Error(err))
	}
	if err := s.synthesizer.Stop(); err != nil {
		s.logger.Warn("Failed to stop synthesizer", zap.Error(err))
	}
	if s.State() != turn.StateIdle {
		s.finishTurn(turn.OutcomeCancelled, context.Canceled)
	}
	s.logger.Info("Voice session stopped")
}

func isQuestion(text string) bool {
	return strings.HasSuffix(strings.TrimSpace(text), "?")
}
