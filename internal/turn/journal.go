package turn

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultCapacity = 100

// Journal keeps the most recent turns in memory and publishes their events
type Journal struct {
	logger    *zap.Logger
	turns     map[ID]*Turn
	order     []ID
	capacity  int
	eventChan chan Event
	mu        sync.RWMutex
}

// NewJournal creates a journal keeping at most capacity turns
func NewJournal(capacity int, logger *zap.Logger) *Journal {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Journal{
		logger:    logger,
		turns:     make(map[ID]*Turn),
		capacity:  capacity,
		eventChan: make(chan Event, 100),
	}
}

// Start opens a new turn
func (j *Journal) Start() ID {
	id := ID(uuid.New().String())
	now := time.Now()

	j.mu.Lock()
	j.turns[id] = &Turn{
		ID:        id,
		Outcome:   OutcomeInProgress,
		StartedAt: now,
	}
	j.order = append(j.order, id)
	for len(j.order) > j.capacity {
		delete(j.turns, j.order[0])
		j.order = j.order[1:]
	}
	j.mu.Unlock()

	j.emitEvent(Event{TurnID: id, Type: EventTurnStarted, Timestamp: now})
	j.logger.Info("Turn started", zap.String("turnID", string(id)))
	return id
}

// Transition records a state change. An empty id records an idle transition
// outside of any turn and only publishes the event.
func (j *Journal) Transition(id ID, from, to State) {
	now := time.Now()
	j.update(id, func(t *Turn) {
		t.Transitions = append(t.Transitions, Transition{From: from, To: to, At: now})
	})
	j.emitEvent(Event{
		TurnID:    id,
		Type:      EventStateChanged,
		Timestamp: now,
		Data:      Transition{From: from, To: to, At: now},
	})
}

// Recognized opens a new exchange with the best hypothesis
func (j *Journal) Recognized(id ID, transcript string, confidence *float32) {
	j.update(id, func(t *Turn) {
		t.Exchanges = append(t.Exchanges, Exchange{Transcript: transcript, Confidence: confidence})
	})
	j.emitEvent(Event{TurnID: id, Type: EventRecognized, Timestamp: time.Now(), Data: transcript})
}

// Replied completes the current exchange with the dialogue reply
func (j *Journal) Replied(id ID, reply, spokenText string, directives []string) {
	j.update(id, func(t *Turn) {
		if ex := t.lastExchange(); ex != nil {
			ex.Reply = reply
			ex.SpokenText = spokenText
			ex.Directives = directives
		}
	})
	j.emitEvent(Event{
		TurnID:    id,
		Type:      EventReplied,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"spoken_text": spokenText,
			"directives":  directives,
		},
	})
}

// Dispatched stores the directive outcomes of the current exchange
func (j *Journal) Dispatched(id ID, outcomes interface{}) {
	j.update(id, func(t *Turn) {
		if ex := t.lastExchange(); ex != nil {
			ex.Outcomes = outcomes
		}
	})
	j.emitEvent(Event{TurnID: id, Type: EventDispatched, Timestamp: time.Now(), Data: outcomes})
}

// Spoke records an utterance submitted to synthesis
func (j *Journal) Spoke(id ID, text string) {
	j.update(id, func(t *Turn) {
		t.Utterances = append(t.Utterances, text)
	})
	j.emitEvent(Event{TurnID: id, Type: EventUtterance, Timestamp: time.Now(), Data: text})
}

// Finish closes a turn with its outcome
func (j *Journal) Finish(id ID, outcome Outcome, err error) {
	now := time.Now()
	j.update(id, func(t *Turn) {
		t.Outcome = outcome
		t.CompletedAt = &now
		if err != nil {
			t.Error = err.Error()
		}
	})

	event := Event{TurnID: id, Type: EventTurnCompleted, Timestamp: now, Data: outcome}
	if outcome != OutcomeCompleted {
		event.Type = EventTurnFailed
		if err != nil {
			event.Data = map[string]interface{}{"outcome": outcome, "error": err.Error()}
		}
	}
	j.emitEvent(event)

	j.logger.Info("Turn finished",
		zap.String("turnID", string(id)),
		zap.String("outcome", string(outcome)),
		zap.Error(err))
}

// Get returns a copy of a turn
func (j *Journal) Get(id ID) (Turn, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	t, exists := j.turns[id]
	if !exists {
		return Turn{}, false
	}
	return t.clone(), true
}

// Recent returns up to n turns, newest first
func (j *Journal) Recent(n int) []Turn {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if n <= 0 || n > len(j.order) {
		n = len(j.order)
	}
	turns := make([]Turn, 0, n)
	for i := len(j.order) - 1; i >= 0 && len(turns) < n; i-- {
		turns = append(turns, j.turns[j.order[i]].clone())
	}
	return turns
}

// EventChannel returns the event channel for listening to turn events
func (j *Journal) EventChannel() <-chan Event {
	return j.eventChan
}

func (j *Journal) update(id ID, fn func(t *Turn)) {
	if id == "" {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if t, exists := j.turns[id]; exists {
		fn(t)
	}
}

func (j *Journal) emitEvent(event Event) {
	select {
	case j.eventChan <- event:
	default:
		j.logger.Warn("Event channel full, dropping event", zap.String("type", event.Type))
	}
}

func (t *Turn) lastExchange() *Exchange {
	if len(t.Exchanges) == 0 {
		return nil
	}
	return &t.Exchanges[len(t.Exchanges)-1]
}

func (t *Turn) clone() Turn {
	cp := *t
	cp.Transitions = append([]Transition(nil), t.Transitions...)
	cp.Exchanges = append([]Exchange(nil), t.Exchanges...)
	cp.Utterances = append([]string(nil), t.Utterances...)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return cp
}
