package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/segment"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostConflict posts an identity-collision conflict for human review.
// Returns the message timestamp (ts) which is used for tracking reactions.
func (p *Poster) PostConflict(ctx context.Context, captureID, source string, stored, incoming []segment.Message) (string, error) {
	text := formatConflictMessage(captureID, source, stored, incoming)

	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "React: :+1: keep both (fork) | :-1: overwrite stored | :shrug: discard capture",
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Info("posted conflict to slack", "ts", slackResp.TS, "capture_id", captureID)
	return slackResp.TS, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	body, err := json.Marshal(map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func formatConflictMessage(captureID, source string, stored, incoming []segment.Message) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Capture conflict:* %s (via %s)\n", captureID, source)
	sb.WriteString("A new capture collides with a stored conversation but its content diverges.\n\n")

	fmt.Fprintf(&sb, "*Stored (%d messages):*\n", len(stored))
	writePreview(&sb, stored)
	fmt.Fprintf(&sb, "\n*Incoming (%d messages):*\n", len(incoming))
	writePreview(&sb, incoming)

	return sb.String()
}

// writePreview renders the first few turns, truncated, enough for a human
// to tell the two conversations apart.
func writePreview(sb *strings.Builder, msgs []segment.Message) {
	const maxTurns = 3
	for i, m := range msgs {
		if i >= maxTurns {
			fmt.Fprintf(sb, "   … %d more\n", len(msgs)-maxTurns)
			break
		}
		text := m.Content
		if len(text) > 120 {
			text = text[:120] + "…"
		}
		text = strings.ReplaceAll(text, "\n", " ")
		fmt.Fprintf(sb, "> *%s:* %s\n", m.Role, text)
	}
}
