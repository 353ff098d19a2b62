package dialogue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/metrics"
)

const (
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultTemperature   = 0.7
	defaultTopP          = 0.9
	defaultTopK          = 40
	defaultMaxTokens     = 256
	defaultGeminiTimeout = 30 * time.Second
	maxGeminiAttempts    = 3
	maxHistoryPerSession = 40
)

// assistantPrompt teaches the model the out-of-band markup understood by the device
const assistantPrompt = `You are a voice assistant running on a phone. Answer in one or two short spoken sentences.
When the user asks for a device action, start your reply with exactly one block
<oob>...</oob> followed by the sentence to speak. Inside the block use:
<map>place</map> to show a place, or <map><myloc>place</myloc></map> for places near the user;
<search>query</search> to search the web;
<launch>app name</launch> to open an installed app;
<battery/> to report the battery level;
<directions><from>origin</from><to>destination</to></directions> for a route, omitting <from> to start at the user location.
Never use markup for anything else. Ask a question, ending with a question mark, only when you need more information.`

var fallbacks = []string{
	"Sorry, I did not catch that. Could you say it again?",
	"I am not sure how to answer that.",
}

// GeminiConfig holds generation settings for the Gemini dialogue client
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int
	Timeout         time.Duration
}

// Validate checks ranges of the generation settings
func (c GeminiConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("Gemini API key is required")
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("topP must be between 0 and 1, got %f", c.TopP)
	}
	if c.TopK < 0 {
		return fmt.Errorf("topK must be positive, got %f", c.TopK)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// contentGenerator is the part of the genai client used here
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiDialogue implements DialogueClient on top of a Gemini model. Each
// session id owns its own conversation history kept in memory.
type GeminiDialogue struct {
	models   contentGenerator
	logger   *zap.Logger
	model    string
	settings *genai.GenerateContentConfig
	timeout  time.Duration
	backoff  time.Duration

	mu       sync.Mutex
	sessions map[string][]*genai.Content
}

// NewGeminiDialogue creates the genai client and applies defaults
func NewGeminiDialogue(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiDialogue, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGeminiDialogue(client.Models, config, logger), nil
}

func newGeminiDialogue(models contentGenerator, config GeminiConfig, logger *zap.Logger) *GeminiDialogue {
	model := config.Model
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default model", zap.String("model", model))
	}

	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
		logger.Info("Using default temperature", zap.Float32("temperature", temperature))
	}

	topP := config.TopP
	if topP == 0 {
		topP = defaultTopP
		logger.Info("Using default topP", zap.Float32("topP", topP))
	}

	topK := config.TopK
	if topK == 0 {
		topK = defaultTopK
		logger.Info("Using default topK", zap.Float32("topK", topK))
	}

	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxTokens
		logger.Info("Using default maxOutputTokens", zap.Int("maxOutputTokens", maxOutputTokens))
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultGeminiTimeout
		logger.Info("Using default timeout", zap.Duration("timeout", timeout))
	}

	return &GeminiDialogue{
		models: models,
		logger: logger,
		model:  model,
		settings: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(assistantPrompt, genai.RoleUser),
			Temperature:       genai.Ptr(temperature),
			TopP:              genai.Ptr(topP),
			TopK:              genai.Ptr(topK),
			MaxOutputTokens:   int32(maxOutputTokens),
		},
		timeout:  timeout,
		backoff:  time.Second,
		sessions: make(map[string][]*genai.Content),
	}
}

// Query sends text within the conversation named by sessionID. An empty or
// unknown id starts a new conversation whose id is returned in the reply.
func (g *GeminiDialogue) Query(ctx context.Context, text string, sessionID string) (repositories.DialogueReply, error) {
	start := time.Now()
	status := "ok"
	defer func() {
		metrics.DialogueLatency.WithLabelValues("gemini", status).Observe(time.Since(start).Seconds())
	}()

	g.mu.Lock()
	history, known := g.sessions[sessionID]
	if !known {
		sessionID = uuid.New().String()
		g.logger.Info("Starting dialogue session", zap.String("sessionID", sessionID))
	}
	history = append([]*genai.Content(nil), history...)
	g.mu.Unlock()

	userContent := genai.NewContentFromText(text, genai.RoleUser)
	contents := append(history, userContent)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < maxGeminiAttempts; attempt++ {
		response, err = g.models.GenerateContent(ctx, g.model, contents, g.settings)
		if err == nil {
			break
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < maxGeminiAttempts-1 {
			select {
			case <-ctx.Done():
				status = "error"
				return repositories.DialogueReply{}, &domain.TransportError{Op: "generate", Err: ctx.Err()}
			case <-time.After(time.Duration(attempt+1) * g.backoff):
			}
		}
	}

	if err != nil {
		status = "error"
		g.logger.Error("Failed to query Gemini", zap.Error(err))
		return repositories.DialogueReply{}, &domain.TransportError{Op: "generate", Err: err}
	}

	replyText := responseText(response)
	if replyText == "" {
		g.logger.Warn("Empty response from Gemini, using fallback")
		replyText = fallbacks[int(time.Now().UnixNano()%int64(len(fallbacks)))]
	}

	g.remember(sessionID, userContent, genai.NewContentFromText(replyText, genai.RoleModel))

	return repositories.DialogueReply{Text: replyText, SessionID: sessionID}, nil
}

// Forget drops the history of a conversation
func (g *GeminiDialogue) Forget(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, sessionID)
}

func (g *GeminiDialogue) remember(sessionID string, turn ...*genai.Content) {
	g.mu.Lock()
	defer g.mu.Unlock()

	history := append(g.sessions[sessionID], turn...)
	if len(history) > maxHistoryPerSession {
		history = history[len(history)-maxHistoryPerSession:]
	}
	g.sessions[sessionID] = history
}

func responseText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}

	var text strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(text.String())
}

var _ repositories.DialogueClient = (*GeminiDialogue)(nil)
