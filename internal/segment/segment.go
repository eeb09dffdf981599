package segment

import (
	"regexp"
	"strings"
	"time"
)

// Segment converts a raw capture into an ordered sequence of role-tagged
// messages. It never fails: strategies are tried from strictest to loosest,
// and input with no recognizable structure comes back as a single user
// message holding the whole trimmed text. Empty or whitespace-only input
// yields an empty slice.
func Segment(raw string) []Message {
	return segmentAt(raw, time.Now().UTC())
}

// strategy attempts one way of reading structure out of a capture.
// A nil or empty result means the strategy declines the input.
type strategy func(raw string, now time.Time) []Message

var strategies = []strategy{
	segmentMarkers,
	segmentSeparatorBlocks,
	segmentInlineRoles,
	segmentQuotedParagraphs,
	segmentLinguisticCues,
}

func segmentAt(raw string, now time.Time) []Message {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	for _, s := range strategies {
		if msgs := s(raw, now); len(msgs) > 0 {
			return msgs
		}
	}

	// Whole-text fallback: one user message, nothing lost.
	return []Message{{Role: RoleUser, Content: trimmed, Timestamp: now}}
}

const roleWords = `User|You|Me|Human|Assistant|AI|Agent|Bot|Model|ChatGPT|Claude|Copilot|Cursor|Gemini`

// markerRe matches decorated role labels at the start of a line: "**User**",
// "### Assistant", "[User]", with an optional colon and an optional
// parenthesized timestamp, e.g. "**User (2025-03-01 14:22):**". The turn's
// text may sit on the marker's own line or start on the next one.
var markerRe = regexp.MustCompile(
	`(?mi)^[ \t]{0,3}(?:\*\*|__|#{1,4}[ \t]+|\[)[ \t]*(` + roleWords + `)(?:[ \t]*\(([^)]*)\))?[ \t]*:?[ \t]*(?:\*\*|__|\])?:?[ \t]*`,
)

// segmentMarkers handles captures with explicit structured role markers.
// A message's content is everything between its marker and the next marker
// line, so multi-line turns and fenced code blocks survive intact.
func segmentMarkers(raw string, now time.Time) []Message {
	matches := markerRe.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return nil
	}

	var msgs []Message
	for i, m := range matches {
		end := len(raw)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		content := strings.TrimSpace(raw[m[1]:end])
		if content == "" {
			continue // marker with no body is dropped, not emitted empty
		}

		ts := now
		if m[4] >= 0 {
			if parsed, ok := parseMarkerTime(raw[m[4]:m[5]]); ok {
				ts = parsed
			}
		}

		msgs = append(msgs, Message{
			Role:      normalizeRole(raw[m[2]:m[3]]),
			Content:   content,
			Timestamp: ts,
		})
	}
	return msgs
}

// markerTimeLayouts covers the timestamp formats chat surfaces put in
// exported headers. Time-only layouts yield a zero date, which is fine:
// reconciliation never compares timestamps.
var markerTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"15:04:05",
	"3:04 PM",
	"15:04",
}

func parseMarkerTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range markerTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// separatorRe matches horizontal-rule lines used to divide turns.
var separatorRe = regexp.MustCompile(`(?m)^[ \t]*(?:-{3,}|_{3,}|\*{3,})[ \t]*$`)

// blockRoleRe matches a bare role word opening a block, followed by a colon
// or a line break. The colon-or-newline requirement keeps prose like
// "You can run it now" from being read as a marker.
var blockRoleRe = regexp.MustCompile(`(?i)^(` + roleWords + `)[ \t]*(?::|\r?\n)`)

// segmentSeparatorBlocks splits on horizontal rules and keeps the blocks
// that open with a role word.
func segmentSeparatorBlocks(raw string, now time.Time) []Message {
	blocks := separatorRe.Split(raw, -1)
	if len(blocks) < 2 {
		return nil
	}

	var msgs []Message
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		m := blockRoleRe.FindStringSubmatchIndex(block)
		if m == nil {
			continue
		}
		content := strings.TrimSpace(block[m[1]:])
		if content == "" {
			continue
		}
		msgs = append(msgs, Message{
			Role:      normalizeRole(block[m[2]:m[3]]),
			Content:   content,
			Timestamp: now,
		})
	}
	return msgs
}

var (
	inlineUserRe      = regexp.MustCompile(`(?mi)^[ \t]*(You|User|Me|Human)[ \t]*:[ \t]*`)
	inlineAssistantRe = regexp.MustCompile(`(?mi)^[ \t]*(Assistant|AI|Agent|Bot|ChatGPT|Claude|Copilot|Cursor|Gemini)[ \t]*:[ \t]*`)
)

// inlineSpan is one colon-prefixed message opening found by a scan.
type inlineSpan struct {
	start        int // offset of the prefix line
	contentStart int // offset just past the "Role:" prefix
	role         string
}

// segmentInlineRoles recognizes "You:" / "Assistant:" style lines. User and
// assistant prefixes are collected by two independent scans and the two span
// lists are merged back into source order before slicing content.
func segmentInlineRoles(raw string, now time.Time) []Message {
	userSpans := scanInline(raw, inlineUserRe, RoleUser)
	assistantSpans := scanInline(raw, inlineAssistantRe, RoleAssistant)
	spans := mergeSpans(userSpans, assistantSpans)
	if len(spans) == 0 {
		return nil
	}

	var msgs []Message
	for i, sp := range spans {
		end := len(raw)
		if i+1 < len(spans) {
			end = spans[i+1].start
		}
		content := strings.TrimSpace(raw[sp.contentStart:end])
		if content == "" {
			continue
		}
		msgs = append(msgs, Message{Role: sp.role, Content: content, Timestamp: now})
	}
	return msgs
}

func scanInline(raw string, re *regexp.Regexp, role string) []inlineSpan {
	var spans []inlineSpan
	for _, m := range re.FindAllStringIndex(raw, -1) {
		spans = append(spans, inlineSpan{start: m[0], contentStart: m[1], role: role})
	}
	return spans
}

// mergeSpans interleaves two offset-sorted span lists, preserving source
// order. Appending one list after the other would reorder the conversation.
func mergeSpans(a, b []inlineSpan) []inlineSpan {
	merged := make([]inlineSpan, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].start <= b[j].start {
			merged = append(merged, a[i])
			i++
		} else {
			merged = append(merged, b[j])
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)
	return merged
}

var paragraphRe = regexp.MustCompile(`\n[ \t]*\n+`)

// segmentQuotedParagraphs splits on blank lines and reads quote-marked
// paragraphs as the user side. It declines the input entirely when no
// paragraph carries a quote marker, since "everything is the assistant"
// is not structure.
func segmentQuotedParagraphs(raw string, now time.Time) []Message {
	paragraphs := paragraphRe.Split(raw, -1)
	quoted := false

	var msgs []Message
	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if strings.HasPrefix(para, ">") {
			quoted = true
			content := strings.TrimSpace(stripQuoteMarkers(para))
			if content == "" {
				continue
			}
			msgs = append(msgs, Message{Role: RoleUser, Content: content, Timestamp: now})
			continue
		}
		msgs = append(msgs, Message{Role: RoleAssistant, Content: para, Timestamp: now})
	}

	if !quoted {
		return nil
	}
	return msgs
}

func stripQuoteMarkers(para string) string {
	lines := strings.Split(para, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		trimmed = strings.TrimPrefix(trimmed, ">")
		lines[i] = strings.TrimPrefix(trimmed, " ")
	}
	return strings.Join(lines, "\n")
}

// userCueWords are leading words that suggest a line is the user talking:
// imperatives and question openers.
var userCueWords = map[string]bool{
	"add": true, "build": true, "can": true, "change": true, "check": true,
	"could": true, "create": true, "explain": true, "find": true, "fix": true,
	"generate": true, "give": true, "help": true, "how": true, "implement": true,
	"list": true, "make": true, "please": true, "refactor": true, "remove": true,
	"rename": true, "rewrite": true, "show": true, "tell": true, "translate": true,
	"update": true, "what": true, "when": true, "where": true, "why": true,
	"would": true, "write": true,
}

// segmentLinguisticCues walks the text line by line, reading lines that end
// in a question mark or open with an imperative/interrogative word as user
// turns and everything else as the assistant. Adjacent same-role lines
// coalesce into one message. With no user cue anywhere there is no structure
// to report, so the strategy declines and the whole-text fallback fires.
func segmentLinguisticCues(raw string, now time.Time) []Message {
	lines := strings.Split(raw, "\n")

	var msgs []Message
	var buf []string
	bufRole := ""
	sawUserCue := false

	flush := func() {
		if len(buf) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(buf, "\n"))
		if content != "" {
			msgs = append(msgs, Message{Role: bufRole, Content: content, Timestamp: now})
		}
		buf = buf[:0]
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(buf) > 0 {
				buf = append(buf, line)
			}
			continue
		}

		role := RoleAssistant
		if hasUserCue(line) {
			role = RoleUser
			sawUserCue = true
		}
		if role != bufRole {
			flush()
			bufRole = role
		}
		buf = append(buf, line)
	}
	flush()

	if !sawUserCue {
		return nil
	}
	return msgs
}

func hasUserCue(line string) bool {
	trimmed := strings.TrimSpace(line)
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	first, _, _ := strings.Cut(trimmed, " ")
	first = strings.Trim(strings.ToLower(first), ",.:;!")
	return userCueWords[first]
}
