package template

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
