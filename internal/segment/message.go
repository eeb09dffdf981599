package segment

import (
	"strings"
	"time"
)

// Message is a single turn in a captured conversation.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Role constants used across the pipeline.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// normalizeRole maps the role words that show up in pasted transcripts onto
// the two canonical roles. Unknown words map to assistant, since captures
// name the assistant after whatever product produced them.
func normalizeRole(word string) string {
	switch strings.ToLower(word) {
	case "user", "you", "me", "human":
		return RoleUser
	}
	return RoleAssistant
}
