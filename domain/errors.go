package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a turn is requested while another one is in progress
	ErrBusy = errors.New("a turn is already in progress")
	// ErrNoConnectivity is returned when the network is unreachable at turn start
	ErrNoConnectivity = errors.New("device not connected to internet")
	// ErrUnsupportedLanguage is returned when no acceptable locale match exists
	ErrUnsupportedLanguage = errors.New("language not supported")
)

// TransportError is a failed dialogue service call, including unparsable responses
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dialogue transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// EngineError is a recognition or synthesis failure mapped to a fixed category
type EngineError struct {
	Category ErrorCategory
	Code     int
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Category.Message())
}

// IsTransportError reports whether err is or wraps a *TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
