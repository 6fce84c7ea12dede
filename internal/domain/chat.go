package domain

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape sent to the
// completion integration.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationTurn is one retained turn of a session's history.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SamplingConfig carries the per-call completion parameters.
type SamplingConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
}
