package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/metrics"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/turn"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Time allowed for the voice session to accept a listen request.
	requestTimeout = 5 * time.Second

	sendBuffer = 256
)

// ErrNoDevice is returned when a command is published with no device connected
var ErrNoDevice = errors.New("no device connected")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Devices authenticate with a bearer token, not cookies
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// TurnStarter starts conversational turns
type TurnStarter interface {
	Listen(ctx context.Context) (turn.ID, error)
	Ask(ctx context.Context, prompt string) (turn.ID, error)
}

// DeviceState stores the readings pushed by the device
type DeviceState interface {
	UpdateBattery(status entities.BatteryStatus)
	UpdateLocation(fix entities.Coordinates) (bool, error)
	ReplaceApps(apps []entities.App) error
}

// Hub maintains the set of connected devices. It routes their audio and
// control messages to the voice session and pushes synthesized audio,
// device commands and turn events back to them.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	turnsMu     sync.RWMutex
	turns       TurnStarter
	audio       repositories.AudioInput
	transcripts repositories.TranscriptInput
	device      DeviceState
	validator   *MessageValidator

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub. transcripts may be nil when the
// recognizer only accepts audio. Listen requests are rejected until a
// TurnStarter is set.
func NewHub(
	audio repositories.AudioInput,
	transcripts repositories.TranscriptInput,
	device DeviceState,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		audio:       audio,
		transcripts: transcripts,
		device:      device,
		validator:   NewMessageValidator(),
		logger:      logger,
	}
}

// SetTurnStarter sets the target of listen requests
func (h *Hub) SetTurnStarter(turns TurnStarter) {
	h.turnsMu.Lock()
	defer h.turnsMu.Unlock()
	h.turns = turns
}

func (h *Hub) turnStarter() TurnStarter {
	h.turnsMu.RLock()
	defer h.turnsMu.RUnlock()
	return h.turns
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
			}
			h.mu.Unlock()
			metrics.ConnectedDevices.Set(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.deviceID]; ok {
				close(old.send)
				h.logger.Info("Replacing previous connection", zap.String("deviceID", client.deviceID))
			}
			h.clients[client.deviceID] = client
			count := len(h.clients)
			h.mu.Unlock()
			metrics.ConnectedDevices.Set(float64(count))
			h.logger.Info("Client registered", zap.String("deviceID", client.deviceID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.deviceID]; ok && current == client {
				delete(h.clients, client.deviceID)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.ConnectedDevices.Set(float64(count))
			h.logger.Info("Client unregistered", zap.String("deviceID", client.deviceID))
			if count == 0 && h.audio != nil {
				if err := h.audio.InputLost(); err != nil {
					h.logger.Warn("Failed to end listening after last device left", zap.Error(err))
				}
			}
		}
	}
}

// ConnectedDevices returns the ids of the connected devices
func (h *Hub) ConnectedDevices() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// WriteAudio forwards a synthesized audio chunk to every connected device.
// Audio produced with no device connected is dropped.
func (h *Hub) WriteAudio(utteranceID entities.UtteranceID, chunk []byte) error {
	h.broadcast(WriteData{Type: websocket.BinaryMessage, Payload: chunk})
	return nil
}

// PublishCommand sends a command to every connected device
func (h *Hub) PublishCommand(cmd entities.DeviceCommand) error {
	payload, err := json.Marshal(CreateCommandMessage(cmd))
	if err != nil {
		return err
	}
	if h.broadcast(WriteData{Type: websocket.TextMessage, Payload: payload}) == 0 {
		return ErrNoDevice
	}
	return nil
}

// BroadcastJSON sends a JSON message to every connected device
func (h *Hub) BroadcastJSON(message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	h.broadcast(WriteData{Type: websocket.TextMessage, Payload: payload})
	return nil
}

// broadcast returns the number of clients the data was queued for
func (h *Hub) broadcast(data WriteData) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, client := range h.clients {
		select {
		case client.send <- data:
			delivered++
		default:
			h.logger.Warn("Send buffer full, dropping message", zap.String("deviceID", id))
		}
	}
	return delivered
}

// sendTo queues data for a single client if it is still registered
func (h *Hub) sendTo(client *Client, data WriteData) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.clients[client.deviceID] != client {
		return false
	}
	select {
	case client.send <- data:
		return true
	default:
		h.logger.Warn("Send buffer full, dropping message", zap.String("deviceID", client.deviceID))
		return false
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Device ID for this client
	deviceID string

	logger *zap.Logger

	chunkCount int
}

// HandleWebSocketWithAuth handles websocket requests with pre-authenticated device ID
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, deviceID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan WriteData, sendBuffer),
		deviceID: deviceID,
		logger:   logger.With(zap.String("deviceID", deviceID)),
	}

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage processes incoming control messages from the device
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendJSON(CreateErrorMessage("invalid_message", "Message rejected", err.Error()))
		return
	}

	switch m := msg.(type) {
	case *PingMessage:
		c.sendJSON(CreatePongMessage(m.Data))

	case *ListenRequestMessage:
		c.handleListenRequest(m)

	case *ListeningEndMessage:
		c.logger.Info("Listening ended", zap.Int("chunks", c.chunkCount))
		c.chunkCount = 0
		if err := c.hub.audio.EndOfSpeech(); err != nil {
			c.logger.Warn("Failed to end speech", zap.Error(err))
			c.sendJSON(CreateErrorMessage("not_listening", "No listen operation in progress", err.Error()))
		}

	case *TranscriptMessage:
		if c.hub.transcripts == nil {
			c.sendJSON(CreateErrorMessage("unsupported", "Typed transcripts are not accepted", ""))
			return
		}
		if err := c.hub.transcripts.SubmitTranscript(m.Text); err != nil {
			c.logger.Warn("Failed to submit transcript", zap.Error(err))
			c.sendJSON(CreateErrorMessage("not_listening", "No listen operation in progress", err.Error()))
		}

	case *BatteryStatusMessage:
		c.hub.device.UpdateBattery(m.Status())

	case *LocationUpdateMessage:
		if _, err := c.hub.device.UpdateLocation(m.Coordinates()); err != nil {
			c.sendJSON(CreateErrorMessage("invalid_location", "Location rejected", err.Error()))
		}

	case *InstalledAppsMessage:
		if err := c.hub.device.ReplaceApps(m.Apps); err != nil {
			c.sendJSON(CreateErrorMessage("invalid_apps", "App list rejected", err.Error()))
		}
	}
}

func (c *Client) handleListenRequest(m *ListenRequestMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	turns := c.hub.turnStarter()
	if turns == nil {
		c.sendJSON(CreateErrorMessage("unavailable", "Voice session is not running", ""))
		return
	}

	c.chunkCount = 0
	id, err := turns.Ask(ctx, m.Prompt)
	if err != nil {
		c.logger.Info("Listen request rejected", zap.Error(err))
		switch {
		case errors.Is(err, domain.ErrBusy):
			c.sendJSON(CreateErrorMessage("busy", "A turn is already in progress", ""))
		default:
			c.sendJSON(CreateErrorMessage("turn_failed", "Failed to start turn", err.Error()))
		}
		return
	}

	c.logger.Info("Turn started", zap.String("turnID", string(id)))
}

// processBinaryAudioChunk streams captured audio to the recognizer
func (c *Client) processBinaryAudioChunk(data []byte) {
	c.chunkCount++
	if err := c.hub.audio.Stream(data); err != nil {
		c.logger.Debug("Dropping audio chunk", zap.Int("size", len(data)), zap.Error(err))
		return
	}
}

func (c *Client) sendJSON(message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	c.hub.sendTo(c, WriteData{Type: websocket.TextMessage, Payload: payload})
}

var (
	_ repositories.AudioSink        = (*Hub)(nil)
	_ repositories.CommandPublisher = (*Hub)(nil)
)
