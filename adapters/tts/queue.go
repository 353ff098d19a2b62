package tts

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
)

// PlayFunc renders a single utterance, returning when playback has finished
type PlayFunc func(ctx context.Context, utterance entities.Utterance) error

// Queue plays utterances one at a time in submission order. A flushed or
// stopped utterance ends silently, without a done or error event.
type Queue struct {
	play   PlayFunc
	emit   func(repositories.SynthesisEvent)
	logger *zap.Logger

	mu      sync.Mutex
	pending []entities.Utterance
	cancel  context.CancelFunc
	closed  bool

	wake   chan struct{}
	done   chan struct{}
	ctx    context.Context
	stopFn context.CancelFunc
}

// NewQueue creates a queue. Run must be started by the caller.
func NewQueue(play PlayFunc, emit func(repositories.SynthesisEvent), logger *zap.Logger) *Queue {
	ctx, stop := context.WithCancel(context.Background())
	return &Queue{
		play:   play,
		emit:   emit,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		ctx:    ctx,
		stopFn: stop,
	}
}

// Done is closed once the queue has been closed
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Push adds an utterance according to its queue mode
func (q *Queue) Push(utterance entities.Utterance) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrShutdown
	}
	if utterance.QueueMode == entities.QueueFlush {
		q.dropLocked()
	}
	q.pending = append(q.pending, utterance)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Clear drops pending utterances and interrupts the one playing
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dropLocked()
}

// Close stops the worker, the queue cannot be used afterwards
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.dropLocked()
	q.mu.Unlock()

	q.stopFn()
	close(q.done)
}

// Pending returns the number of utterances waiting to be played
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) dropLocked() {
	if len(q.pending) > 0 {
		q.logger.Debug("Dropping queued utterances", zap.Int("count", len(q.pending)))
	}
	q.pending = nil
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
}

// Run plays queued utterances until Close is called
func (q *Queue) Run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}

		for {
			utterance, ctx, ok := q.next()
			if !ok {
				break
			}
			q.playOne(ctx, utterance)
		}
	}
}

func (q *Queue) next() (entities.Utterance, context.Context, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.pending) == 0 {
		return entities.Utterance{}, nil, false
	}
	utterance := q.pending[0]
	q.pending = q.pending[1:]

	ctx, cancel := context.WithCancel(q.ctx)
	q.cancel = cancel
	return utterance, ctx, true
}

func (q *Queue) playOne(ctx context.Context, utterance entities.Utterance) {
	q.emit(repositories.SynthesisEvent{Kind: repositories.UtteranceStart, UtteranceID: utterance.ID})

	err := q.play(ctx, utterance)

	q.mu.Lock()
	interrupted := ctx.Err() != nil
	if !interrupted && q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	q.mu.Unlock()

	switch {
	case interrupted:
		q.logger.Debug("Utterance interrupted", zap.String("utteranceID", string(utterance.ID)))
	case err != nil:
		q.logger.Error("Failed to speak utterance",
			zap.String("utteranceID", string(utterance.ID)),
			zap.Error(err))
		q.emit(repositories.SynthesisEvent{Kind: repositories.UtteranceError, UtteranceID: utterance.ID})
	default:
		q.emit(repositories.SynthesisEvent{Kind: repositories.UtteranceDone, UtteranceID: utterance.ID})
	}
}
