package types

import "time"

// Sender identifies who produced a transcript message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Role is the upstream name for a sender in the history payload.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Role maps a sender onto the role the chat backend expects.
func (s Sender) Role() Role {
	if s == SenderUser {
		return RoleUser
	}
	return RoleAssistant
}

// Message is one transcript entry. It is never edited after creation.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryEntry is the wire shape of a prior message sent upstream.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Credentials are the settings-panel values sent with every request.
type Credentials struct {
	UserID      string `json:"user_id"`
	BearerToken string `json:"bearer_token"`
}
