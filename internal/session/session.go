// Package session owns conversation state and composes the client's
// components behind one façade consumed by the UI.
package session

// Role identifies which side of the conversation produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation. Immutable once appended.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is the active conversation context: a client-generated opaque
// identifier and an ordered message log.
type Session struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

// firstUserMessage returns the content of the earliest user turn.
func (s *Session) firstUserMessage() string {
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			return m.Content
		}
	}
	return ""
}
