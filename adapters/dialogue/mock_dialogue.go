package dialogue

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
)

// MockDialogue answers from a small keyword table, emitting the same
// out-of-band markup a real bot would. Useful for running without network.
type MockDialogue struct {
	mu       sync.Mutex
	sessions map[string]int
}

// NewMockDialogue creates a mock dialogue client
func NewMockDialogue() *MockDialogue {
	return &MockDialogue{sessions: make(map[string]int)}
}

// Query implements repositories.DialogueClient
func (m *MockDialogue) Query(ctx context.Context, text string, sessionID string) (repositories.DialogueReply, error) {
	if err := ctx.Err(); err != nil {
		return repositories.DialogueReply{}, err
	}

	m.mu.Lock()
	if _, ok := m.sessions[sessionID]; !ok || sessionID == "" {
		sessionID = uuid.New().String()
	}
	m.sessions[sessionID]++
	m.mu.Unlock()

	return repositories.DialogueReply{Text: mockReply(text), SessionID: sessionID}, nil
}

func mockReply(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))

	switch {
	case lower == "":
		return "Sorry, what did you say?"
	case strings.Contains(lower, "battery"):
		return "<oob><battery/></oob>Let me check"
	case strings.HasPrefix(lower, "search for "):
		query := strings.TrimPrefix(lower, "search for ")
		return fmt.Sprintf("<oob><search>%s</search></oob>Searching for %s", query, query)
	case strings.HasPrefix(lower, "open "):
		app := strings.TrimPrefix(lower, "open ")
		return fmt.Sprintf("<oob><launch>%s</launch></oob>Opening %s", app, app)
	case strings.HasPrefix(lower, "show me "):
		place := strings.TrimPrefix(lower, "show me ")
		return fmt.Sprintf("<oob><map>%s</map></oob>Here is %s", place, place)
	case strings.Contains(lower, " near me"):
		place, _, _ := strings.Cut(lower, " near me")
		return fmt.Sprintf("<oob><map><myloc>%s</myloc></map></oob>These are the %s near you", place, place)
	case strings.HasPrefix(lower, "directions to "):
		to := strings.TrimPrefix(lower, "directions to ")
		return fmt.Sprintf("<oob><directions><to>%s</to></directions></oob>Here is the route to %s", to, to)
	case lower == "hi" || strings.HasPrefix(lower, "hello"):
		return "Hello! How can I help you?"
	default:
		return fmt.Sprintf("You said %s", text)
	}
}

var _ repositories.DialogueClient = (*MockDialogue)(nil)
