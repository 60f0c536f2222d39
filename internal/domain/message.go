package domain

// MessageRole represents the sender of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn's worth of text. Assistant content grows while a
// stream is in flight; user content never changes after creation.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}
