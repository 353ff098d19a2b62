package api

import (
	"time"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/turn"
)

// DeviceAuthRequest represents the request payload for device authentication
type DeviceAuthRequest struct {
	SerialNumber string `json:"serial_number" validate:"required"`
	SecretKey    string `json:"secret_key" validate:"required"`
}

// DeviceAuthResponse represents the response payload for device authentication
type DeviceAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	DeviceID  string    `json:"device_id"`
}

// StartTurnRequest starts a turn. With a prompt the turn opens by asking it.
type StartTurnRequest struct {
	Prompt string `json:"prompt,omitempty"`
}

// StartTurnResponse identifies the turn that was started
type StartTurnResponse struct {
	TurnID turn.ID `json:"turn_id"`
}

// TurnListResponse lists the most recent turns, newest first
type TurnListResponse struct {
	Turns []turn.Turn `json:"turns"`
}

// SessionResponse reports the controller state and the dialogue session
type SessionResponse struct {
	State            turn.State       `json:"state"`
	CurrentTurn      turn.ID          `json:"current_turn,omitempty"`
	Session          entities.Session `json:"session"`
	ConnectedDevices []string         `json:"connected_devices"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
