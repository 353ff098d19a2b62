package repositories

import "context"

// DialogueReply is the raw answer of the remote dialogue service
type DialogueReply struct {
	Text      string `json:"that"`
	SessionID string `json:"custid,omitempty"`
}

// DialogueClient abstracts the remote bot endpoint
type DialogueClient interface {
	// Query sends the user's text with the current session id (empty on the first turn).
	// Transport failures and unparsable responses are returned as *domain.TransportError.
	Query(ctx context.Context, text string, sessionID string) (DialogueReply, error)
}
