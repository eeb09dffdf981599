package slack

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// ReactionEvent is the structure received from slack-forwarder via NATS.
type ReactionEvent struct {
	Reaction  string `json:"reaction"`
	UserID    string `json:"user_id"`
	Channel   string `json:"channel"`
	MessageTS string `json:"message_ts"`
}

// ConflictVerdict maps a Slack reaction to a conflict resolution.
type ConflictVerdict string

const (
	// VerdictFork keeps both conversations: the capture becomes a fresh record.
	VerdictFork ConflictVerdict = "fork"
	// VerdictReplace overwrites the stored record with the capture.
	VerdictReplace ConflictVerdict = "replace"
	// VerdictDiscard drops the capture entirely.
	VerdictDiscard ConflictVerdict = "discard"
	VerdictUnknown ConflictVerdict = "unknown"
)

// ParseReaction converts a Slack reaction emoji name to a conflict verdict.
func ParseReaction(reaction string) ConflictVerdict {
	switch reaction {
	case "+1", "thumbsup":
		return VerdictFork
	case "-1", "thumbsdown":
		return VerdictReplace
	case "shrug":
		return VerdictDiscard
	default:
		return VerdictUnknown
	}
}

// ParseReactionEvent parses a NATS message payload from slack-forwarder into a ReactionEvent.
func ParseReactionEvent(data []byte, logger *slog.Logger) (*ReactionEvent, error) {
	// The slack-forwarder publishes events with metadata in a wrapper.
	var wrapper struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse reaction wrapper: %w", err)
	}

	evt := &ReactionEvent{
		Reaction:  wrapper.Metadata["text"],
		UserID:    wrapper.Metadata["user_id"],
		Channel:   wrapper.Metadata["channel_id"],
		MessageTS: wrapper.Metadata["message_ts"],
	}

	// Clean reaction text (remove colons if present)
	if len(evt.Reaction) > 2 && evt.Reaction[0] == ':' && evt.Reaction[len(evt.Reaction)-1] == ':' {
		evt.Reaction = evt.Reaction[1 : len(evt.Reaction)-1]
	}

	return evt, nil
}
