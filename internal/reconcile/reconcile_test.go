package reconcile

import (
	"testing"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/segment"
)

func msg(role, content string) segment.Message {
	return segment.Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

func conv(pairs ...string) []segment.Message {
	msgs := make([]segment.Message, 0, len(pairs))
	for i, content := range pairs {
		role := segment.RoleUser
		if i%2 == 1 {
			role = segment.RoleAssistant
		}
		msgs = append(msgs, msg(role, content))
	}
	return msgs
}

func TestReconcile_CreateNew(t *testing.T) {
	incoming := conv("Hello", "Hi")

	for _, existing := range [][]segment.Message{nil, {}} {
		plan := Reconcile(existing, incoming)
		if plan.Kind != PlanCreateNew {
			t.Errorf("Reconcile(%v, incoming) = %s, want create_new", existing, plan.Kind)
		}
		if len(plan.Messages) != 2 {
			t.Errorf("expected full incoming in plan, got %d messages", len(plan.Messages))
		}
	}
}

func TestReconcile_SimpleContinuation(t *testing.T) {
	existing := conv("Hello", "Hi")
	incoming := conv("Hello", "Hi", "How are you?", "Fine")

	plan := Reconcile(existing, incoming)
	if plan.Kind != PlanAppend {
		t.Fatalf("plan = %s, want append", plan.Kind)
	}
	if len(plan.Tail) != 2 {
		t.Fatalf("tail = %d messages, want 2", len(plan.Tail))
	}
	if plan.Tail[0].Content != "How are you?" || plan.Tail[1].Content != "Fine" {
		t.Errorf("tail = %q, %q", plan.Tail[0].Content, plan.Tail[1].Content)
	}
}

func TestReconcile_IdenticalIsEmptyAppend(t *testing.T) {
	existing := conv("Hello", "Hi")
	incoming := conv("Hello", "Hi")

	plan := Reconcile(existing, incoming)
	if plan.Kind != PlanAppend {
		t.Fatalf("plan = %s, want append", plan.Kind)
	}
	if len(plan.Tail) != 0 {
		t.Errorf("identical sequences must yield an empty tail, got %d", len(plan.Tail))
	}
}

func TestReconcile_MonotonicGrowth(t *testing.T) {
	existing := conv("Start the job", "Started", "Is it done?", "Not yet")
	for tailLen := 0; tailLen <= 3; tailLen++ {
		incoming := append(append([]segment.Message{}, existing...),
			conv("a", "b", "c")[:tailLen]...)

		plan := Reconcile(existing, incoming)
		if plan.Kind != PlanAppend {
			t.Errorf("tailLen=%d: plan = %s, want append", tailLen, plan.Kind)
		}
		if len(plan.Tail) != tailLen {
			t.Errorf("tailLen=%d: got tail of %d", tailLen, len(plan.Tail))
		}
	}
}

func TestReconcile_EditedOpeningPrompt(t *testing.T) {
	existing := conv("Build X", "Done")
	incoming := conv("Build X and Y", "Done")

	plan := Reconcile(existing, incoming)
	if plan.Kind != PlanReplace {
		t.Fatalf("plan = %s, want replace", plan.Kind)
	}
	if len(plan.Messages) != 2 || plan.Messages[0].Content != "Build X and Y" {
		t.Errorf("replace must carry the full incoming sequence")
	}
}

func TestReconcile_EditedOpeningLongerIncoming(t *testing.T) {
	existing := conv("Build X", "Done", "thanks")
	incoming := conv("Build X properly", "Done", "thanks", "np")

	plan := Reconcile(existing, incoming)
	if plan.Kind != PlanReplace {
		t.Errorf("plan = %s, want replace", plan.Kind)
	}
}

func TestReconcile_EditedOpeningRoleMismatchIsNotEdit(t *testing.T) {
	existing := []segment.Message{msg("assistant", "Welcome"), msg("assistant", "Hi")}
	incoming := []segment.Message{msg("user", "Hello"), msg("assistant", "Hi")}

	plan := Reconcile(existing, incoming)
	if plan.Kind == PlanReplace {
		t.Error("a role change in the opening message is not an edit")
	}
}

func TestReconcile_UnrelatedCapture(t *testing.T) {
	existing := conv("Hello", "Hi")
	incoming := conv("Goodbye", "See you")

	plan := Reconcile(existing, incoming)
	if plan.Kind != PlanUnrelated {
		t.Errorf("plan = %s, want unrelated", plan.Kind)
	}
}

func TestReconcile_NonMergeGuarantee(t *testing.T) {
	// Shared opening line, then genuinely different conversations.
	existing := conv("Hello", "Hi, what can I do?", "Deploy the app", "Deploying now")
	incoming := conv("Hello", "Hey there", "Tell me a joke", "Why did the gopher...")

	plan := Reconcile(existing, incoming)
	if plan.Kind == PlanAppend || plan.Kind == PlanReplace {
		t.Errorf("unrelated conversations merged: plan = %s", plan.Kind)
	}
}

func TestReconcile_MidConversationCapture(t *testing.T) {
	existing := conv("q1", "a1", "q2", "a2", "q3", "a3")
	// Capture starts partway through: last three stored turns, then new ones.
	incoming := append(append([]segment.Message{}, existing[3:]...), conv("q4", "a4")...)

	plan := Reconcile(existing, incoming)
	if plan.Kind != PlanAppend {
		t.Fatalf("plan = %s, want append via lenient overlap", plan.Kind)
	}
	if len(plan.Tail) != 2 {
		t.Fatalf("tail = %d messages, want 2", len(plan.Tail))
	}
	if plan.Tail[0].Content != "q4" {
		t.Errorf("tail[0] = %q, want q4", plan.Tail[0].Content)
	}
}

func TestReconcile_LenientWindowShortConversations(t *testing.T) {
	existing := conv("only turn")
	incoming := append(conv("only turn"), msg("assistant", "late reply"))

	plan := Reconcile(existing, incoming)
	if plan.Kind != PlanAppend || len(plan.Tail) != 1 {
		t.Errorf("plan = %s tail=%d, want append with 1", plan.Kind, len(plan.Tail))
	}
}

func TestReconcile_StrictPrefixBeatsLenientTier(t *testing.T) {
	// An edited opening must be seen as replace even though the trailing
	// turns also happen to line up for the lenient window.
	existing := conv("v1 prompt", "ok", "more", "sure")
	incoming := conv("v2 prompt", "ok", "more", "sure")

	plan := Reconcile(existing, incoming)
	if plan.Kind != PlanReplace {
		t.Errorf("tier order violated: plan = %s, want replace", plan.Kind)
	}
}

func TestReconcile_WhitespaceOnlyDifferencesMatch(t *testing.T) {
	existing := []segment.Message{
		msg("user", "Hello   there\n\nfriend"),
		msg("assistant", "Hi"),
	}
	incoming := []segment.Message{
		msg("user", "Hello there\nfriend"),
		msg("assistant", "Hi"),
		msg("user", "More"),
	}

	plan := Reconcile(existing, incoming)
	if plan.Kind != PlanAppend {
		t.Errorf("plan = %s, want append despite formatting differences", plan.Kind)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  a  b  ", "a b"},
		{"a\n\n\nb", "a b"},
		{"a\t \tb", "a b"},
		{"", ""},
		{"\x00binary\xff ok", "\x00binary\xff ok"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
