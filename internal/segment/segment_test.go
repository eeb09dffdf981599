package segment

import (
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSegment_EmptyInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n\n\t\n"} {
		msgs := segmentAt(raw, testNow)
		if len(msgs) != 0 {
			t.Errorf("Segment(%q) = %d messages, want 0", raw, len(msgs))
		}
	}
}

func TestSegment_StructuredMarkers(t *testing.T) {
	raw := `**User**

Write a function that reverses a string.

**Assistant**

Here you go:

` + "```go\nfunc reverse(s string) string {\n\t// ...\n}\n```" + `

Let me know if you need tests.`

	msgs := segmentAt(raw, testNow)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser {
		t.Errorf("msg[0] role = %q, want user", msgs[0].Role)
	}
	if msgs[0].Content != "Write a function that reverses a string." {
		t.Errorf("msg[0] content = %q", msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant {
		t.Errorf("msg[1] role = %q, want assistant", msgs[1].Role)
	}
	// The fenced code block must survive inside the second message, not be
	// truncated at its first newline.
	if !strings.Contains(msgs[1].Content, "func reverse(s string) string {\n\t// ...\n}") {
		t.Errorf("code fence not preserved in msg[1]: %q", msgs[1].Content)
	}
	if !strings.HasSuffix(msgs[1].Content, "Let me know if you need tests.") {
		t.Errorf("trailing prose lost: %q", msgs[1].Content)
	}
}

func TestSegment_MarkerVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		role string
	}{
		{"bold with colon", "**User:**\nhello\n**Assistant:**\nhi", RoleUser},
		{"content on marker line", "**User:** hello\n**Assistant:** hi", RoleUser},
		{"heading", "### User\nhello\n### Cursor\nhi", RoleUser},
		{"bracketed", "[User]\nhello\n[Claude]\nhi", RoleUser},
		{"lowercase", "**user**\nhello\n**assistant**\nhi", RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := segmentAt(tt.raw, testNow)
			if len(msgs) != 2 {
				t.Fatalf("expected 2 messages, got %d", len(msgs))
			}
			if msgs[0].Role != tt.role || msgs[0].Content != "hello" {
				t.Errorf("msg[0] = %q %q", msgs[0].Role, msgs[0].Content)
			}
			if msgs[1].Role != RoleAssistant || msgs[1].Content != "hi" {
				t.Errorf("msg[1] = %q %q", msgs[1].Role, msgs[1].Content)
			}
		})
	}
}

func TestSegment_MarkerTimestampReused(t *testing.T) {
	raw := "**User (2025-03-01 14:22:05):**\nhello\n**Assistant:**\nhi"

	msgs := segmentAt(raw, testNow)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	want := time.Date(2025, 3, 1, 14, 22, 5, 0, time.UTC)
	if !msgs[0].Timestamp.Equal(want) {
		t.Errorf("msg[0] timestamp = %v, want %v", msgs[0].Timestamp, want)
	}
	if !msgs[1].Timestamp.Equal(testNow) {
		t.Errorf("msg[1] timestamp = %v, want segmentation time", msgs[1].Timestamp)
	}
}

func TestSegment_MarkerWithoutBodyDropped(t *testing.T) {
	raw := "**User**\nhello\n**Assistant**\n**User**\nstill there?"

	msgs := segmentAt(raw, testNow)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages (empty assistant dropped), got %d", len(msgs))
	}
	if msgs[1].Role != RoleUser || msgs[1].Content != "still there?" {
		t.Errorf("msg[1] = %q %q", msgs[1].Role, msgs[1].Content)
	}
}

func TestSegment_RoundTripSourceOrder(t *testing.T) {
	turns := []struct {
		marker  string
		content string
	}{
		{"**User**", "first question"},
		{"**Assistant**", "first answer"},
		{"**User**", "second question"},
		{"**Assistant**", "second answer"},
		{"**User**", "third question"},
	}
	var sb strings.Builder
	for _, turn := range turns {
		sb.WriteString(turn.marker + "\n" + turn.content + "\n\n")
	}

	msgs := segmentAt(sb.String(), testNow)
	if len(msgs) != len(turns) {
		t.Fatalf("expected %d messages, got %d", len(turns), len(msgs))
	}
	for i, turn := range turns {
		if msgs[i].Content != turn.content {
			t.Errorf("msg[%d] content = %q, want %q", i, msgs[i].Content, turn.content)
		}
	}
}

func TestSegment_SeparatorBlocks(t *testing.T) {
	raw := "User: can you check the logs\n\n---\n\nAssistant\nNothing unusual in the last hour.\n\n---\n\nUser: thanks"

	msgs := segmentAt(raw, testNow)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "can you check the logs" {
		t.Errorf("msg[0] = %q %q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "Nothing unusual in the last hour." {
		t.Errorf("msg[1] = %q %q", msgs[1].Role, msgs[1].Content)
	}
	if msgs[2].Role != RoleUser || msgs[2].Content != "thanks" {
		t.Errorf("msg[2] = %q %q", msgs[2].Role, msgs[2].Content)
	}
}

func TestSegment_InlineRolesMergeInSourceOrder(t *testing.T) {
	raw := "You: where is the config loaded\nAI: In internal/config, from environment variables.\nYou: and the defaults\nAI: Hard-coded in Load."

	msgs := segmentAt(raw, testNow)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	wantRoles := []string{RoleUser, RoleAssistant, RoleUser, RoleAssistant}
	for i, want := range wantRoles {
		if msgs[i].Role != want {
			t.Errorf("msg[%d] role = %q, want %q (order not preserved)", i, msgs[i].Role, want)
		}
	}
	if msgs[2].Content != "and the defaults" {
		t.Errorf("msg[2] content = %q", msgs[2].Content)
	}
}

func TestSegment_InlineRolesMultiline(t *testing.T) {
	raw := "Me: summarize this file\nAssistant: Sure.\nIt loads config,\nthen starts the server."

	msgs := segmentAt(raw, testNow)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if !strings.Contains(msgs[1].Content, "then starts the server.") {
		t.Errorf("continuation lines lost: %q", msgs[1].Content)
	}
}

func TestSegment_QuotedParagraphs(t *testing.T) {
	raw := "> how do I bump the version?\n\nEdit the VERSION file and tag the commit.\n\n> and push the tag?\n\nYes, git push --tags."

	msgs := segmentAt(raw, testNow)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "how do I bump the version?" {
		t.Errorf("msg[0] = %q %q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant {
		t.Errorf("msg[1] role = %q, want assistant", msgs[1].Role)
	}
}

func TestSegment_LinguisticCues(t *testing.T) {
	raw := "what does the retry loop do\nIt re-dials the broker with backoff.\nThe cap is sixty attempts."

	msgs := segmentAt(raw, testNow)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "what does the retry loop do" {
		t.Errorf("msg[0] = %q %q", msgs[0].Role, msgs[0].Content)
	}
	// Adjacent assistant lines coalesce into one message.
	if msgs[1].Role != RoleAssistant || !strings.Contains(msgs[1].Content, "sixty attempts") {
		t.Errorf("msg[1] = %q %q", msgs[1].Role, msgs[1].Content)
	}
}

func TestSegment_QuestionMarkCue(t *testing.T) {
	raw := "It compiles cleanly now.\nare you sure?"

	msgs := segmentAt(raw, testNow)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleAssistant {
		t.Errorf("msg[0] role = %q, want assistant", msgs[0].Role)
	}
	if msgs[1].Role != RoleUser || msgs[1].Content != "are you sure?" {
		t.Errorf("msg[1] = %q %q", msgs[1].Role, msgs[1].Content)
	}
}

func TestSegment_WholeTextFallback(t *testing.T) {
	raw := "  just an unstructured note pasted by accident  "

	msgs := segmentAt(raw, testNow)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser {
		t.Errorf("fallback role = %q, want user", msgs[0].Role)
	}
	if msgs[0].Content != "just an unstructured note pasted by accident" {
		t.Errorf("fallback content = %q", msgs[0].Content)
	}
}

func TestSegment_BinaryLookingInputDoesNotPanic(t *testing.T) {
	raw := "\x00\x01\xffgarbage\x7f bytes"

	msgs := segmentAt(raw, testNow)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 fallback message, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser {
		t.Errorf("role = %q, want user", msgs[0].Role)
	}
}

func TestSegment_InternalWhitespacePreserved(t *testing.T) {
	body := "line one\n\n    indented line\nline three"
	raw := "**User**\n" + body + "\n**Assistant**\nok"

	msgs := segmentAt(raw, testNow)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != body {
		t.Errorf("internal whitespace altered:\ngot  %q\nwant %q", msgs[0].Content, body)
	}
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		word string
		want string
	}{
		{"User", RoleUser},
		{"you", RoleUser},
		{"ME", RoleUser},
		{"Human", RoleUser},
		{"Assistant", RoleAssistant},
		{"Cursor", RoleAssistant},
		{"ChatGPT", RoleAssistant},
		{"somebot", RoleAssistant},
	}
	for _, tt := range tests {
		if got := normalizeRole(tt.word); got != tt.want {
			t.Errorf("normalizeRole(%q) = %q, want %q", tt.word, got, tt.want)
		}
	}
}
