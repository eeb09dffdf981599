package bus

// Subjects scribe consumes and emits.
const (
	// SubjectCaptureSubmitted carries raw capture text from the clipper
	// surfaces (clipboard watcher, editor selection, export dialog).
	SubjectCaptureSubmitted = "swarm.clipper.capture.submitted"
	// SubjectConversationStored announces a committed write plan.
	SubjectConversationStored = "swarm.scribe.conversation.stored"
	// SubjectConflictDetected announces an identity collision whose content
	// diverges beyond the tolerated edit pattern.
	SubjectConflictDetected = "swarm.scribe.conflict.detected"
	// SubjectRegistered announces scribe coming online.
	SubjectRegistered = "swarm.agent.scribe.registered"
)

// CaptureSubmitted is the payload on SubjectCaptureSubmitted.
type CaptureSubmitted struct {
	CaptureID  string `json:"capture_id"`
	Source     string `json:"source"`
	RawText    string `json:"raw_text"`
	CapturedAt string `json:"captured_at"`
}

// ConversationStored is the payload on SubjectConversationStored.
type ConversationStored struct {
	ConversationID string `json:"conversation_id"`
	Identity       string `json:"identity"`
	Plan           string `json:"plan"`
	MessageCount   int    `json:"message_count"`
	Appended       int    `json:"appended"`
	Source         string `json:"source"`
}

// ConflictDetected is the payload on SubjectConflictDetected.
type ConflictDetected struct {
	ConversationID string `json:"conversation_id"`
	Identity       string `json:"identity"`
	CaptureID      string `json:"capture_id"`
	Resolution     string `json:"resolution"` // "forked", "pending_review", "discarded"
}
