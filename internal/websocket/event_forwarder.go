package websocket

import (
	"sync"

	"go.uber.org/zap"

	"github.com/zoraidacallejas/talk-to-your-assistant/internal/turn"
)

// EventForwarder relays turn journal events to connected devices
type EventForwarder struct {
	events   <-chan turn.Event
	hub      *Hub
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewEventForwarder creates a forwarder reading from events
func NewEventForwarder(events <-chan turn.Event, hub *Hub, logger *zap.Logger) *EventForwarder {
	return &EventForwarder{
		events:   events,
		hub:      hub,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins forwarding in the background
func (f *EventForwarder) Start() {
	go f.forwardLoop()
	f.logger.Info("Turn event forwarder started")
}

// Stop stops forwarding and waits for the loop to exit
func (f *EventForwarder) Stop() {
	f.stopOnce.Do(func() { close(f.stopChan) })
	<-f.done
	f.logger.Info("Turn event forwarder stopped")
}

func (f *EventForwarder) forwardLoop() {
	defer close(f.done)

	for {
		select {
		case <-f.stopChan:
			return
		case event, ok := <-f.events:
			if !ok {
				return
			}
			if err := f.hub.BroadcastJSON(CreateTurnEventMessage(event)); err != nil {
				f.logger.Error("Failed to forward turn event",
					zap.String("turnID", string(event.TurnID)),
					zap.String("type", event.Type),
					zap.Error(err))
			}
		}
	}
}
