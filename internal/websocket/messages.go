package websocket

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/turn"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Device to server
const (
	MessageTypePing           MessageType = "ping"
	MessageTypeListeningEnd   MessageType = "listening_end"
	MessageTypeTranscript     MessageType = "transcript"
	MessageTypeBatteryStatus  MessageType = "battery_status"
	MessageTypeLocationUpdate MessageType = "location_update"
	MessageTypeInstalledApps  MessageType = "installed_apps"
	MessageTypeListenRequest  MessageType = "listen_request"
)

// Server to device
const (
	MessageTypePong      MessageType = "pong"
	MessageTypeError     MessageType = "error"
	MessageTypeTurnEvent MessageType = "turn_event"
	MessageTypeCommand   MessageType = "command"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type" validate:"required"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ListeningEndMessage marks the end of the audio stream for the current listen
type ListeningEndMessage struct {
	BaseMessage
}

// TranscriptMessage carries text typed on the device in place of speech
type TranscriptMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// BatteryStatusMessage reports the raw battery reading
type BatteryStatusMessage struct {
	BaseMessage
	RawLevel int `json:"raw_level"`
	Scale    int `json:"scale"`
}

// LocationUpdateMessage reports a location fix
type LocationUpdateMessage struct {
	BaseMessage
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	// FixTime is the unix time of the fix in milliseconds, zero means now
	FixTime int64 `json:"fix_time,omitempty"`
}

// InstalledAppsMessage replaces the list of launchable apps
type InstalledAppsMessage struct {
	BaseMessage
	Apps []entities.App `json:"apps"`
}

// ListenRequestMessage asks for a new turn, optionally opened by a spoken prompt
type ListenRequestMessage struct {
	BaseMessage
	Prompt string `json:"prompt,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// TurnEventMessage forwards a turn journal event to the device
type TurnEventMessage struct {
	BaseMessage
	Event turn.Event `json:"event"`
}

// CommandMessage asks the device to carry out an action
type CommandMessage struct {
	BaseMessage
	Command entities.DeviceCommand `json:"command"`
}

// Coordinates converts the message to a location fix
func (m *LocationUpdateMessage) Coordinates() entities.Coordinates {
	fix := entities.Coordinates{Latitude: m.Latitude, Longitude: m.Longitude}
	if m.FixTime > 0 {
		fix.Timestamp = time.UnixMilli(m.FixTime)
	}
	return fix
}

// Status converts the message to a battery reading
func (m *BatteryStatusMessage) Status() entities.BatteryStatus {
	return entities.BatteryStatus{RawLevel: m.RawLevel, Scale: m.Scale}
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses and validates an incoming text message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case MessageTypeListeningEnd:
		return &ListeningEndMessage{BaseMessage: base}, nil

	case MessageTypeTranscript:
		var msg TranscriptMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid transcript message: %w", err)
		}
		return &msg, nil

	case MessageTypeBatteryStatus:
		// Invalid readings are accepted, they are never spoken
		var msg BatteryStatusMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid battery status message: %w", err)
		}
		return &msg, nil

	case MessageTypeLocationUpdate:
		var msg LocationUpdateMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid location update message: %w", err)
		}
		if err := v.validateLocation(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeInstalledApps:
		var msg InstalledAppsMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid installed apps message: %w", err)
		}
		for i, app := range msg.Apps {
			if err := app.Validate(); err != nil {
				return nil, fmt.Errorf("app %d: %w", i, err)
			}
		}
		return &msg, nil

	case MessageTypeListenRequest:
		var msg ListenRequestMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid listen request message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func (v *MessageValidator) validateLocation(msg *LocationUpdateMessage) error {
	if math.IsNaN(msg.Latitude) || msg.Latitude < -90 || msg.Latitude > 90 {
		return fmt.Errorf("lat must be between -90 and 90")
	}
	if math.IsNaN(msg.Longitude) || msg.Longitude < -180 || msg.Longitude > 180 {
		return fmt.Errorf("lng must be between -180 and 180")
	}
	if msg.FixTime < 0 {
		return fmt.Errorf("fix_time must be positive")
	}
	return nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateTurnEventMessage wraps a journal event
func CreateTurnEventMessage(event turn.Event) *TurnEventMessage {
	return &TurnEventMessage{
		BaseMessage: newBase(MessageTypeTurnEvent),
		Event:       event,
	}
}

// CreateCommandMessage wraps a device command
func CreateCommandMessage(cmd entities.DeviceCommand) *CommandMessage {
	return &CommandMessage{
		BaseMessage: newBase(MessageTypeCommand),
		Command:     cmd,
	}
}
