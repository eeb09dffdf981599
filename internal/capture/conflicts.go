package capture

import (
	"context"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/bus"
	"github.com/MikeSquared-Agency/scribe/internal/identity"
	"github.com/MikeSquared-Agency/scribe/internal/reconcile"
	"github.com/MikeSquared-Agency/scribe/internal/segment"
	"github.com/MikeSquared-Agency/scribe/internal/slack"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

// pendingConflict tracks a posted conflict awaiting a reaction verdict.
type pendingConflict struct {
	CaptureID string
	Source    string
	StoredRef uuid.UUID
	Identity  identity.Identity
	Incoming  []segment.Message
}

// handleConflict deals with an unrelated capture colliding with a stored
// identity. The stored record is never silently overwritten: with a notifier
// the decision goes to a human, otherwise policy decides between forking a
// fresh record and dropping the capture.
func (p *Pipeline) handleConflict(ctx context.Context, captureID, source string, id identity.Identity, existing *store.Conversation, msgs []segment.Message) (Result, error) {
	if p.notifier != nil {
		ts, err := p.notifier.PostConflict(ctx, captureID, source, existing.Messages, msgs)
		if err != nil {
			p.logger.Error("failed to post conflict for review", "capture_id", captureID, "error", err)
			// Fall through to the unattended policy below.
		} else {
			p.mu.Lock()
			p.pendingConflicts[ts] = &pendingConflict{
				CaptureID: captureID,
				Source:    source,
				StoredRef: existing.Ref,
				Identity:  id,
				Incoming:  msgs,
			}
			p.mu.Unlock()

			p.publishConflict(existing.Ref, id, captureID, "pending_review")
			return Result{Plan: reconcile.PlanUnrelated, Ref: existing.Ref, Identity: id, PendingReview: true}, nil
		}
	}

	if !p.forkOnConflict {
		p.publishConflict(existing.Ref, id, captureID, "discarded")
		p.logger.Warn("discarding conflicting capture", "capture_id", captureID, "conversation_id", existing.Ref)
		return Result{Plan: reconcile.PlanUnrelated, Ref: existing.Ref, Identity: id}, nil
	}

	ref, err := p.store.Commit(ctx, id, reconcile.Plan{Kind: reconcile.PlanCreateNew, Messages: msgs}, uuid.Nil, source)
	if err != nil {
		return Result{}, err
	}
	p.publishConflict(ref, id, captureID, "forked")
	p.logger.Warn("forked conflicting capture into new conversation",
		"capture_id", captureID,
		"collided_with", existing.Ref,
		"conversation_id", ref,
	)
	return Result{Plan: reconcile.PlanUnrelated, Ref: ref, Identity: id, MessageCount: len(msgs), Forked: true}, nil
}

func (p *Pipeline) publishConflict(ref uuid.UUID, id identity.Identity, captureID, resolution string) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(bus.SubjectConflictDetected, bus.ConflictDetected{
		ConversationID: ref.String(),
		Identity:       string(id),
		CaptureID:      captureID,
		Resolution:     resolution,
	}); err != nil {
		p.logger.Warn("failed to publish conflict", "error", err)
	}
}

// HandleReaction processes Slack reaction feedback from slack-forwarder via
// NATS and resolves the pending conflict the reacted message belongs to.
func (p *Pipeline) HandleReaction(subject string, data []byte) {
	ctx := context.Background()

	evt, err := slack.ParseReactionEvent(data, p.logger)
	if err != nil {
		p.logger.Error("failed to parse reaction", "error", err)
		return
	}

	verdict := slack.ParseReaction(evt.Reaction)
	if verdict == slack.VerdictUnknown {
		return // not a conflict reaction
	}

	p.mu.Lock()
	pending, ok := p.pendingConflicts[evt.MessageTS]
	if ok {
		delete(p.pendingConflicts, evt.MessageTS)
	}
	p.mu.Unlock()
	if !ok {
		return // not a message we're tracking
	}

	p.logger.Info("resolving capture conflict",
		"capture_id", pending.CaptureID,
		"verdict", string(verdict),
	)

	switch verdict {
	case slack.VerdictFork:
		ref, err := p.store.Commit(ctx, pending.Identity,
			reconcile.Plan{Kind: reconcile.PlanCreateNew, Messages: pending.Incoming}, uuid.Nil, pending.Source)
		if err != nil {
			p.logger.Error("failed to fork conversation", "capture_id", pending.CaptureID, "error", err)
			return
		}
		p.publishConflict(ref, pending.Identity, pending.CaptureID, "forked")
		p.ackThread(ctx, evt.MessageTS, "Forked into a new conversation.")

	case slack.VerdictReplace:
		ref, err := p.store.Commit(ctx, pending.Identity,
			reconcile.Plan{Kind: reconcile.PlanReplace, Messages: pending.Incoming}, pending.StoredRef, pending.Source)
		if err != nil {
			p.logger.Error("failed to replace conversation", "capture_id", pending.CaptureID, "error", err)
			return
		}
		p.publishStored(ref, pending.Identity, reconcile.PlanReplace, len(pending.Incoming), 0, pending.Source)
		p.ackThread(ctx, evt.MessageTS, "Stored conversation overwritten with the capture.")

	case slack.VerdictDiscard:
		p.publishConflict(pending.StoredRef, pending.Identity, pending.CaptureID, "discarded")
		p.ackThread(ctx, evt.MessageTS, "Capture discarded.")
	}
}

func (p *Pipeline) ackThread(ctx context.Context, ts, text string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.PostThread(ctx, ts, text); err != nil {
		p.logger.Warn("failed to post resolution thread", "error", err)
	}
}
