// Package ingest imports historical conversation files from disk: structured
// session JSONL logs written by agent runtimes, flat message-export JSONL, and
// plain-text transcripts that go through the segmenter like any live capture.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/segment"
)

// sessionLine is a single line from an agent session JSONL log. Lines form a
// chain through parentUuid links rather than arriving in order.
type sessionLine struct {
	Type       string      `json:"type"`
	UUID       string      `json:"uuid"`
	ParentUUID *string     `json:"parentUuid"`
	SessionID  string      `json:"sessionId"`
	Timestamp  string      `json:"timestamp"`
	Message    lineMessage `json:"message"`
}

type lineMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ParseSessionFile parses a chain-linked session JSONL file into an ordered
// message sequence. Tool calls, tool results, and thinking blocks are dropped;
// only the user/assistant text exchange survives.
func ParseSessionFile(path string) ([]segment.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	byUUID := make(map[string]*sessionLine)
	var roots []string
	children := make(map[string]string) // parentUuid → childUuid

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // 10MB line buffer
	for scanner.Scan() {
		var line sessionLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue // skip malformed lines
		}
		if line.Type != "user" && line.Type != "assistant" {
			continue
		}

		byUUID[line.UUID] = &line

		if line.ParentUUID == nil || *line.ParentUUID == "" {
			roots = append(roots, line.UUID)
		} else {
			children[*line.ParentUUID] = line.UUID
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	if len(byUUID) == 0 {
		return nil, nil
	}

	// Walk the parent chain from each root.
	var ordered []*sessionLine
	for _, rootID := range roots {
		current := rootID
		for current != "" {
			if line, ok := byUUID[current]; ok {
				ordered = append(ordered, line)
			}
			current = children[current]
		}
	}

	// Orphans outside any chain are appended rather than lost.
	visited := make(map[string]bool, len(ordered))
	for _, l := range ordered {
		visited[l.UUID] = true
	}
	if len(visited) < len(byUUID) {
		for id, line := range byUUID {
			if !visited[id] {
				ordered = append(ordered, line)
			}
		}
	}

	var msgs []segment.Message
	for _, line := range ordered {
		text, isToolResult := extractText(line.Message.Content)
		if isToolResult || text == "" {
			continue
		}
		ts, _ := time.Parse(time.RFC3339Nano, line.Timestamp)
		msgs = append(msgs, segment.Message{
			Role:      line.Type, // "user" or "assistant"
			Content:   text,
			Timestamp: ts,
		})
	}

	return msgs, nil
}

// ParseExportFile parses a flat message-export JSONL file, one message event
// per line, ordered by timestamp.
func ParseExportFile(path string) ([]segment.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var msgs []segment.Message

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	for scanner.Scan() {
		var line struct {
			Type      string      `json:"type"`
			Timestamp string      `json:"timestamp"`
			Message   lineMessage `json:"message"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Type != "message" {
			continue
		}
		if line.Message.Role != "user" && line.Message.Role != "assistant" {
			continue
		}

		text, isToolResult := extractText(line.Message.Content)
		if isToolResult || text == "" {
			continue
		}

		ts, _ := time.Parse(time.RFC3339Nano, line.Timestamp)
		msgs = append(msgs, segment.Message{
			Role:      line.Message.Role,
			Content:   text,
			Timestamp: ts,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	return msgs, nil
}

// ParseTranscriptFile reads a plain-text or markdown transcript and segments
// it the same way a live capture would be.
func ParseTranscriptFile(path string) ([]segment.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return segment.Segment(string(data)), nil
}

// extractText pulls the text out of a message content field, which is either
// a plain string or an array of typed blocks. The second return reports a
// tool_result message, which callers skip entirely.
func extractText(raw json.RawMessage) (string, bool) {
	if raw == nil {
		return "", false
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain, false
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", false
	}

	for _, b := range blocks {
		if b.Type == "tool_result" {
			return "", true
		}
	}

	var text string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			if text != "" {
				text += "\n"
			}
			text += b.Text
		}
	}

	return text, false
}
