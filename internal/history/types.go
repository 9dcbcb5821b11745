package history

import "time"

// Summary is one entry in chat history.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	LastActivity time.Time `json:"last_activity"`
	Model        string    `json:"model"`
}

// Exchange is one recorded request/response pair from the gateway's
// message-listing API.
type Exchange struct {
	UserMessage string `json:"userMessage"`
	AIResponse  string `json:"aiResponse"`
}
