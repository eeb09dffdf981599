package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/scribe/internal/identity"
	"github.com/MikeSquared-Agency/scribe/internal/reconcile"
	"github.com/MikeSquared-Agency/scribe/internal/segment"
)

// Conversation is a stored conversation record.
// Tables: conversations, conversation_messages.
type Conversation struct {
	Ref        uuid.UUID
	Identity   identity.Identity
	Source     string
	Messages   []segment.Message
	CreatedAt  time.Time
	UpdatedAt  time.Time
	MergedInto *uuid.UUID
}

// Lookup returns the live conversation stored under an identity, or nil when
// none exists. Records merged away by dedup and records with no messages are
// treated as absent, so reconciliation sees them as create-new.
func (s *Store) Lookup(ctx context.Context, id identity.Identity) (*Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, identity, source, created_at, updated_at
		FROM conversations
		WHERE identity = $1 AND merged_into IS NULL
		ORDER BY updated_at DESC
		LIMIT 1`, string(id))

	var c Conversation
	var ident string
	if err := row.Scan(&c.Ref, &ident, &c.Source, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}
	c.Identity = identity.Identity(ident)

	msgs, err := s.readMessages(ctx, c.Ref)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	c.Messages = msgs
	return &c, nil
}

// GetConversation fetches a conversation by its reference, merged or not.
func (s *Store) GetConversation(ctx context.Context, ref uuid.UUID) (*Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, identity, source, created_at, updated_at, merged_into
		FROM conversations
		WHERE id = $1`, ref)

	var c Conversation
	var ident string
	if err := row.Scan(&c.Ref, &ident, &c.Source, &c.CreatedAt, &c.UpdatedAt, &c.MergedInto); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	c.Identity = identity.Identity(ident)

	msgs, err := s.readMessages(ctx, c.Ref)
	if err != nil {
		return nil, err
	}
	c.Messages = msgs
	return &c, nil
}

func (s *Store) readMessages(ctx context.Context, ref uuid.UUID) ([]segment.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role, content, ts
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY idx`, ref)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	defer rows.Close()

	var msgs []segment.Message
	for rows.Next() {
		var m segment.Message
		if err := rows.Scan(&m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return msgs, nil
}

// Commit applies a reconciliation plan and returns the conversation
// reference it wrote to. For create-new plans ref is ignored and a fresh
// reference is returned; append and replace require the ref from Lookup.
// Unrelated plans are not committable — the caller must decide policy and
// resubmit as create-new (fork) or replace.
func (s *Store) Commit(ctx context.Context, id identity.Identity, plan reconcile.Plan, ref uuid.UUID, source string) (uuid.UUID, error) {
	switch plan.Kind {
	case reconcile.PlanCreateNew:
		return s.createConversation(ctx, id, plan.Messages, source)
	case reconcile.PlanAppend:
		return ref, s.appendMessages(ctx, ref, plan.Tail)
	case reconcile.PlanReplace:
		return ref, s.replaceMessages(ctx, ref, id, plan.Messages)
	default:
		return uuid.Nil, fmt.Errorf("plan %q cannot be committed", plan.Kind)
	}
}

func (s *Store) createConversation(ctx context.Context, id identity.Identity, msgs []segment.Message, source string) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ref := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, identity, source, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())`,
		ref, string(id), source,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert conversation: %w", err)
	}

	if err := insertMessages(ctx, tx, ref, 0, msgs); err != nil {
		return uuid.Nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	return ref, nil
}

// appendMessages adds the tail after the current highest index. The row lock
// on the conversation serializes concurrent captures of the same
// conversation so two appends cannot interleave.
func (s *Store) appendMessages(ctx context.Context, ref uuid.UUID, tail []segment.Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var next int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM conversation_messages
		WHERE conversation_id = (
			SELECT id FROM conversations WHERE id = $1 FOR UPDATE
		)`, ref).Scan(&next)
	if err != nil {
		return fmt.Errorf("lock conversation: %w", err)
	}

	if len(tail) > 0 {
		if err := insertMessages(ctx, tx, ref, next, tail); err != nil {
			return err
		}
	}

	// Empty tail is the idempotent re-capture case: touch only updated_at.
	_, err = tx.Exec(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, ref)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// replaceMessages overwrites the record's full content in place, keeping the
// stored reference so an edited opening prompt does not fork a second
// record. The identity column is refreshed since the opening message is what
// the identity is derived from.
func (s *Store) replaceMessages(ctx context.Context, ref uuid.UUID, id identity.Identity, msgs []segment.Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE conversations SET identity = $2, updated_at = now()
		WHERE id = $1`, ref, string(id))
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM conversation_messages WHERE conversation_id = $1`, ref)
	if err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	if err := insertMessages(ctx, tx, ref, 0, msgs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertMessages(ctx context.Context, tx pgx.Tx, ref uuid.UUID, startIdx int, msgs []segment.Message) error {
	for i, m := range msgs {
		_, err := tx.Exec(ctx, `
			INSERT INTO conversation_messages (conversation_id, idx, role, content, ts)
			VALUES ($1, $2, $3, $4, $5)`,
			ref, startIdx+i, m.Role, m.Content, m.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert message %d: %w", startIdx+i, err)
		}
	}
	return nil
}
