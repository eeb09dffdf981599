// Package capture wires the pure core (segment → identify → reconcile) to
// the storage, bus, and review collaborators. The core holds no state; all
// pipeline state is the pending-conflict map for the Slack review loop.
package capture

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/bus"
	"github.com/MikeSquared-Agency/scribe/internal/identity"
	"github.com/MikeSquared-Agency/scribe/internal/reconcile"
	"github.com/MikeSquared-Agency/scribe/internal/segment"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

// Storage is the slice of the store the pipeline needs.
type Storage interface {
	Lookup(ctx context.Context, id identity.Identity) (*store.Conversation, error)
	Commit(ctx context.Context, id identity.Identity, plan reconcile.Plan, ref uuid.UUID, source string) (uuid.UUID, error)
}

// Publisher is the slice of the bus client the pipeline needs.
type Publisher interface {
	Publish(subject string, data any) error
}

// Notifier posts conflicts for human review. Nil disables the review loop.
type Notifier interface {
	PostConflict(ctx context.Context, captureID, source string, stored, incoming []segment.Message) (string, error)
	PostThread(ctx context.Context, threadTS, text string) error
}

// Result reports what one capture did to storage.
type Result struct {
	Plan          reconcile.PlanKind
	Ref           uuid.UUID
	Identity      identity.Identity
	MessageCount  int // messages now stored (best effort for appends)
	Appended      int
	Empty         bool
	PendingReview bool
	Forked        bool
}

// Pipeline runs captures through the core and applies the resulting plans.
type Pipeline struct {
	store          Storage
	bus            Publisher
	notifier       Notifier
	logger         *slog.Logger
	forkOnConflict bool

	mu               sync.Mutex
	pendingConflicts map[string]*pendingConflict // keyed by Slack message TS
}

func New(s Storage, b Publisher, n Notifier, forkOnConflict bool, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:            s,
		bus:              b,
		notifier:         n,
		logger:           logger,
		forkOnConflict:   forkOnConflict,
		pendingConflicts: make(map[string]*pendingConflict),
	}
}

// Process ingests one raw capture end to end.
func (p *Pipeline) Process(ctx context.Context, captureID, source, raw string) (Result, error) {
	msgs := segment.Segment(raw)
	if len(msgs) == 0 {
		p.logger.Info("capture empty after segmentation", "capture_id", captureID)
		return Result{Empty: true}, nil
	}
	return p.ProcessMessages(ctx, captureID, source, msgs)
}

// ProcessMessages runs an already-segmented message sequence through
// reconciliation and storage. Importers that parse structured session files
// enter here, skipping segmentation.
func (p *Pipeline) ProcessMessages(ctx context.Context, captureID, source string, msgs []segment.Message) (Result, error) {
	if len(msgs) == 0 {
		return Result{Empty: true}, nil
	}

	id := identity.Identify(msgs)

	existing, err := p.store.Lookup(ctx, id)
	if err != nil {
		return Result{}, err
	}

	var existingMsgs []segment.Message
	var existingRef uuid.UUID
	if existing != nil {
		existingMsgs = existing.Messages
		existingRef = existing.Ref
	}

	plan := reconcile.Reconcile(existingMsgs, msgs)

	switch plan.Kind {
	case reconcile.PlanCreateNew:
		ref, err := p.store.Commit(ctx, id, plan, uuid.Nil, source)
		if err != nil {
			return Result{}, err
		}
		p.publishStored(ref, id, plan.Kind, len(msgs), len(msgs), source)
		return Result{Plan: plan.Kind, Ref: ref, Identity: id, MessageCount: len(msgs), Appended: len(msgs)}, nil

	case reconcile.PlanAppend:
		ref, err := p.store.Commit(ctx, id, plan, existingRef, source)
		if err != nil {
			return Result{}, err
		}
		total := len(existingMsgs) + len(plan.Tail)
		p.publishStored(ref, id, plan.Kind, total, len(plan.Tail), source)
		return Result{Plan: plan.Kind, Ref: ref, Identity: id, MessageCount: total, Appended: len(plan.Tail)}, nil

	case reconcile.PlanReplace:
		ref, err := p.store.Commit(ctx, id, plan, existingRef, source)
		if err != nil {
			return Result{}, err
		}
		p.publishStored(ref, id, plan.Kind, len(msgs), 0, source)
		return Result{Plan: plan.Kind, Ref: ref, Identity: id, MessageCount: len(msgs)}, nil

	default:
		return p.handleConflict(ctx, captureID, source, id, existing, msgs)
	}
}

func (p *Pipeline) publishStored(ref uuid.UUID, id identity.Identity, kind reconcile.PlanKind, total, appended int, source string) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(bus.SubjectConversationStored, bus.ConversationStored{
		ConversationID: ref.String(),
		Identity:       string(id),
		Plan:           string(kind),
		MessageCount:   total,
		Appended:       appended,
		Source:         source,
	}); err != nil {
		p.logger.Warn("failed to publish conversation stored", "error", err)
	}
}

// HandleCaptureSubmitted is the NATS handler for swarm.clipper.capture.submitted.
func (p *Pipeline) HandleCaptureSubmitted(subject string, data []byte) {
	ctx := context.Background()

	var evt bus.CaptureSubmitted
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse capture event", "error", err)
		return
	}
	if evt.CaptureID == "" {
		evt.CaptureID = uuid.New().String()
	}

	res, err := p.Process(ctx, evt.CaptureID, evt.Source, evt.RawText)
	if err != nil {
		p.logger.Error("capture processing failed", "capture_id", evt.CaptureID, "error", err)
		return
	}

	p.logger.Info("capture processed",
		"capture_id", evt.CaptureID,
		"plan", string(res.Plan),
		"conversation_id", res.Ref,
		"appended", res.Appended,
		"pending_review", res.PendingReview,
	)
}
