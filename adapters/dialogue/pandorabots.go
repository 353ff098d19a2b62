package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/zoraidacallejas/talk-to-your-assistant/adapters/network"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/metrics"
)

// Default configuration values
const (
	DefaultPandorabotsBaseURL = "qa.pandorabots.com"
	DefaultPandorabotsBotID   = "drwallace/speechtekbot"
	DefaultPandorabotsTimeout = 60 * time.Second

	talkPath = "/pandora/talk-xml"
)

// PandorabotsConfig holds the bot endpoint settings
type PandorabotsConfig struct {
	// BaseURL is the bot host. A scheme may be included, https is assumed otherwise.
	BaseURL    string
	BotID      string
	Timeout    time.Duration
	SocksProxy string
}

// PandorabotsClient implements DialogueClient against the Pandorabots talk API
type PandorabotsClient struct {
	endpoint   string
	botID      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

type talkResponse struct {
	Status  int     `json:"status"`
	That    *string `json:"that"`
	CustID  string  `json:"custid"`
	Message string  `json:"message"`
}

// NewPandorabotsClient creates a client, applying defaults for empty settings
func NewPandorabotsClient(config PandorabotsConfig, logger *zap.Logger) (*PandorabotsClient, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultPandorabotsBaseURL
		logger.Info("Using default bot base URL", zap.String("baseURL", baseURL))
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid bot base URL %q: %w", baseURL, err)
	}

	botID := config.BotID
	if botID == "" {
		botID = DefaultPandorabotsBotID
		logger.Info("Using default bot id", zap.String("botID", botID))
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultPandorabotsTimeout
		logger.Info("Using default timeout", zap.Duration("timeout", timeout))
	}

	httpClient, err := network.NewHTTPClient(timeout, config.SocksProxy)
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pandorabots",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &PandorabotsClient{
		endpoint:   strings.TrimRight(baseURL, "/") + talkPath,
		botID:      botID,
		httpClient: httpClient,
		breaker:    breaker,
		logger:     logger,
	}, nil
}

// Query sends text to the bot. sessionID is sent as custid when known.
func (c *PandorabotsClient) Query(ctx context.Context, text string, sessionID string) (repositories.DialogueReply, error) {
	start := time.Now()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.talk(ctx, text, sessionID)
	})

	status := "ok"
	defer func() {
		metrics.DialogueLatency.WithLabelValues("pandorabots", status).Observe(time.Since(start).Seconds())
	}()

	if err != nil {
		status = "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return repositories.DialogueReply{}, &domain.TransportError{Op: "circuit", Err: err}
		}
		return repositories.DialogueReply{}, err
	}

	reply := result.(repositories.DialogueReply)
	c.logger.Info("Bot replied",
		zap.String("that", reply.Text),
		zap.String("custid", reply.SessionID))
	return reply, nil
}

// RequestURL builds the talk URL for a query
func (c *PandorabotsClient) RequestURL(text, sessionID string) string {
	params := url.Values{}
	params.Set("botid", c.botID)
	if sessionID != "" {
		params.Set("custid", sessionID)
	}
	params.Set("input", text)
	params.Set("format", "json")
	return c.endpoint + "?" + params.Encode()
}

func (c *PandorabotsClient) talk(ctx context.Context, text, sessionID string) (repositories.DialogueReply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RequestURL(text, sessionID), nil)
	if err != nil {
		return repositories.DialogueReply{}, &domain.TransportError{Op: "request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return repositories.DialogueReply{}, &domain.TransportError{Op: "post", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return repositories.DialogueReply{}, &domain.TransportError{Op: "read", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return repositories.DialogueReply{}, &domain.TransportError{
			Op:  "post",
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var parsed talkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return repositories.DialogueReply{}, &domain.TransportError{Op: "decode", Err: err}
	}
	if parsed.That == nil {
		msg := "response has no 'that' field"
		if parsed.Message != "" {
			msg = fmt.Sprintf("%s: %s", msg, parsed.Message)
		}
		return repositories.DialogueReply{}, &domain.TransportError{Op: "decode", Err: errors.New(msg)}
	}

	return repositories.DialogueReply{
		Text:      *parsed.That,
		SessionID: parsed.CustID,
	}, nil
}

var _ repositories.DialogueClient = (*PandorabotsClient)(nil)
