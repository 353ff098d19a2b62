package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zoraidacallejas/talk-to-your-assistant/adapters/device"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/auth"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/turn"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/websocket"
	"github.com/zoraidacallejas/talk-to-your-assistant/usecase"
)

const (
	defaultTurnLimit = 20
	maxTurnLimit     = 100
	startTurnTimeout = 5 * time.Second
)

// VoiceController is the voice session as seen by the HTTP surface
type VoiceController interface {
	Listen(ctx context.Context) (turn.ID, error)
	Ask(ctx context.Context, prompt string) (turn.ID, error)
	State() turn.State
	Session() entities.Session
	CurrentTurn() turn.ID
}

// TurnHistory looks up journaled turns
type TurnHistory interface {
	Get(id turn.ID) (turn.Turn, bool)
	Recent(n int) []turn.Turn
}

// DeviceValidator checks device credentials
type DeviceValidator interface {
	ValidateDevice(serialNumber, secret string) (string, error)
}

// Dependencies groups what the routes need
type Dependencies struct {
	Hub     *websocket.Hub
	Voice   VoiceController
	Turns   TurnHistory
	Devices DeviceValidator
	Tokens  *auth.TokenIssuer
	Service string
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": deps.Service,
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/device/auth", func(c echo.Context) error {
		return deviceAuth(c, deps.Devices, deps.Tokens, logger)
	})

	v1.POST("/turns", func(c echo.Context) error {
		return startTurn(c, deps.Voice, logger)
	})
	v1.GET("/turns", func(c echo.Context) error {
		return listTurns(c, deps.Turns)
	})
	v1.GET("/turns/:id", func(c echo.Context) error {
		return getTurn(c, deps.Turns)
	})
	v1.GET("/session", func(c echo.Context) error {
		return getSession(c, deps.Voice, deps.Hub)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(deps.Hub, deps.Tokens, c, logger)
	})
}

func deviceAuth(c echo.Context, devices DeviceValidator, tokens *auth.TokenIssuer, logger *zap.Logger) error {
	var req DeviceAuthRequest

	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind device auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.SerialNumber == "" || req.SecretKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Serial number and secret key are required",
		})
	}

	deviceID, err := devices.ValidateDevice(req.SerialNumber, req.SecretKey)
	if err != nil {
		logger.Warn("Device authentication failed",
			zap.String("serial_number", req.SerialNumber),
			zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid device credentials",
		})
	}

	token, expiresAt, err := tokens.GenerateDeviceToken(deviceID)
	if err != nil {
		logger.Error("Failed to generate device token",
			zap.String("device_id", deviceID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Device authenticated successfully", zap.String("device_id", deviceID))

	return c.JSON(http.StatusOK, DeviceAuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		DeviceID:  deviceID,
	})
}

func startTurn(c echo.Context, voice VoiceController, logger *zap.Logger) error {
	var req StartTurnRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: "Invalid request format",
			})
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), startTurnTimeout)
	defer cancel()

	id, err := voice.Ask(ctx, req.Prompt)
	if err != nil {
		logger.Info("Turn request failed", zap.Error(err))
		status, response := turnError(err)
		if id != "" {
			response.Message += " (turn " + string(id) + ")"
		}
		return c.JSON(status, response)
	}

	return c.JSON(http.StatusAccepted, StartTurnResponse{TurnID: id})
}

// turnError maps controller errors to HTTP responses
func turnError(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, domain.ErrBusy):
		return http.StatusConflict, ErrorResponse{Error: "busy", Message: err.Error()}
	case errors.Is(err, domain.ErrNoConnectivity):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "no_connectivity", Message: err.Error()}
	case errors.Is(err, domain.ErrUnsupportedLanguage):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: "unsupported_language", Message: err.Error()}
	case errors.Is(err, usecase.ErrStopped):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "stopped", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorResponse{Error: "timeout", Message: "Voice session did not respond"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "turn_failed", Message: err.Error()}
	}
}

func listTurns(c echo.Context, turns TurnHistory) error {
	limit := defaultTurnLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be a positive integer",
			})
		}
		limit = min(n, maxTurnLimit)
	}

	return c.JSON(http.StatusOK, TurnListResponse{Turns: turns.Recent(limit)})
}

func getTurn(c echo.Context, turns TurnHistory) error {
	t, ok := turns.Get(turn.ID(c.Param("id")))
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Turn not found",
		})
	}
	return c.JSON(http.StatusOK, t)
}

func getSession(c echo.Context, voice VoiceController, hub *websocket.Hub) error {
	response := SessionResponse{
		State:            voice.State(),
		CurrentTurn:      voice.CurrentTurn(),
		Session:          voice.Session(),
		ConnectedDevices: []string{},
	}
	if hub != nil {
		response.ConnectedDevices = hub.ConnectedDevices()
	}
	return c.JSON(http.StatusOK, response)
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *websocket.Hub, tokens *auth.TokenIssuer, c echo.Context, logger *zap.Logger) error {
	token, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header",
		})
	}

	claims, err := tokens.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	if claims.Role != auth.RoleDevice {
		logger.Warn("WebSocket connection rejected: invalid role",
			zap.String("role", claims.Role))
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only device tokens are allowed for WebSocket connections",
		})
	}

	if claims.DeviceID == "" {
		logger.Error("WebSocket connection rejected: missing device ID in token")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Device ID not found in token",
		})
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("device_id", claims.DeviceID),
		zap.String("role", claims.Role))

	return websocket.HandleWebSocketWithAuth(hub, c, claims.DeviceID, logger)
}

var _ DeviceValidator = (*device.Registry)(nil)
