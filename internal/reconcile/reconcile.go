// Package reconcile decides how a freshly segmented capture relates to
// whatever is already stored under the same identity: the same conversation
// continuing, the same conversation with an edited opening prompt, or an
// unrelated conversation that happens to collide.
package reconcile

import (
	"regexp"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/segment"
)

// PlanKind classifies the relationship between a stored conversation and an
// incoming capture.
type PlanKind string

const (
	// PlanCreateNew means nothing is stored for this identity yet.
	PlanCreateNew PlanKind = "create_new"
	// PlanAppend means the stored messages are a prefix of the capture;
	// only the tail needs writing. An empty tail is a no-op.
	PlanAppend PlanKind = "append"
	// PlanReplace means the opening message was edited after the fact;
	// the stored record's content must be overwritten in place so the edit
	// does not fork a second record.
	PlanReplace PlanKind = "replace"
	// PlanUnrelated means the capture does not fit the stored conversation.
	// Callers decide policy; the store must not be silently overwritten.
	PlanUnrelated PlanKind = "unrelated"
)

// Plan is the minimal write plan produced by Reconcile.
type Plan struct {
	Kind PlanKind
	// Tail holds the messages to append for PlanAppend.
	Tail []segment.Message
	// Messages holds the full incoming sequence for PlanCreateNew and
	// PlanReplace.
	Messages []segment.Message
}

// lenientWindow is how many trailing stored messages the loosest tier
// compares against the head of the capture. Captures often start
// mid-conversation when a user copies only part of a long thread.
const lenientWindow = 3

// Reconcile compares the stored messages for an identity against an incoming
// capture and always resolves to exactly one plan; there is no failure
// outcome. The tier order is load-bearing: strict prefix before
// edited-opening before the lenient suffix check, because a looser tier run
// first would mask the edit-detection case.
func Reconcile(existing, incoming []segment.Message) Plan {
	if len(existing) == 0 {
		return Plan{Kind: PlanCreateNew, Messages: incoming}
	}

	// Tier 1: stored conversation is a strict prefix of the capture.
	if len(incoming) >= len(existing) && matchRun(existing, incoming, len(existing)) {
		return Plan{Kind: PlanAppend, Tail: incoming[len(existing):]}
	}

	// Tier 2: opening prompt was edited; everything after it still lines up.
	if editedOpening(existing, incoming) {
		return Plan{Kind: PlanReplace, Messages: incoming}
	}

	// Tier 3: capture starts mid-conversation; its head overlaps the stored
	// tail.
	if n := overlapLen(existing, incoming); n > 0 {
		return Plan{Kind: PlanAppend, Tail: incoming[n:]}
	}

	return Plan{Kind: PlanUnrelated}
}

// editedOpening reports whether existing and incoming disagree only in their
// first message (same role, different content) while agreeing from the
// second message onward across the overlapping length.
func editedOpening(existing, incoming []segment.Message) bool {
	if len(existing) < 1 || len(incoming) < 1 {
		return false
	}
	if existing[0].Role != incoming[0].Role {
		return false
	}
	if Normalize(existing[0].Content) == Normalize(incoming[0].Content) {
		return false
	}
	n := min(len(existing), len(incoming)) - 1
	for i := 1; i <= n; i++ {
		if !matches(existing[i], incoming[i]) {
			return false
		}
	}
	return true
}

// overlapLen reports how many messages overlap between the stored tail and
// the capture head, or 0 when they do not line up. The window is small on
// purpose; see the package tests for the misclassification this tolerates.
func overlapLen(existing, incoming []segment.Message) int {
	n := min(lenientWindow, min(len(existing), len(incoming)))
	if n == 0 {
		return 0
	}
	tail := existing[len(existing)-n:]
	if !matchRun(tail, incoming, n) {
		return 0
	}
	return n
}

// matchRun reports whether the first n messages of a and b match pairwise.
func matchRun(a, b []segment.Message, n int) bool {
	for i := 0; i < n; i++ {
		if !matches(a[i], b[i]) {
			return false
		}
	}
	return true
}

func matches(a, b segment.Message) bool {
	return a.Role == b.Role && Normalize(a.Content) == Normalize(b.Content)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize collapses runs of whitespace (newline runs included) to single
// spaces and trims, so captures separated by formatting-only differences
// still compare equal. It never fails, whatever bytes the capture carried.
func Normalize(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
