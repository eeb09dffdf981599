// Package identity derives stable conversation identities from message
// content. Two captures of the same conversation must resolve to the same
// identity no matter how many turns follow the opening prompt, so the digest
// is a pure function of content: no clock, no randomness.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/segment"
)

// Identity is a hex-encoded sha256 digest identifying a conversation.
type Identity string

// Identify derives the identity for a segmented capture from the trimmed
// content of its first user message. Captures with no user message fall back
// to a digest over every message's role and content; that path carries no
// uniqueness guarantee beyond hash collision resistance.
func Identify(msgs []segment.Message) Identity {
	for _, m := range msgs {
		if m.Role == segment.RoleUser {
			return digest(strings.TrimSpace(m.Content))
		}
	}

	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Role)
		sb.WriteString("\x1f")
		sb.WriteString(m.Content)
		sb.WriteString("\x1e")
	}
	return digest(sb.String())
}

func digest(s string) Identity {
	sum := sha256.Sum256([]byte(s))
	return Identity(hex.EncodeToString(sum[:]))
}
