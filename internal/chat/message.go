package chat

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single chat turn as exchanged with the backend and held in
// session history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
