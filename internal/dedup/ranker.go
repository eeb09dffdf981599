package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConversationRecord holds what ranking needs to know about a conversation.
type ConversationRecord struct {
	ID           uuid.UUID
	MessageCount int
	UpdatedAt    time.Time
}

// Ranker picks survivors from clusters of duplicate conversations.
type Ranker struct {
	pool *pgxpool.Pool
}

// NewRanker creates a new ranker instance.
func NewRanker(pool *pgxpool.Pool) *Ranker {
	return &Ranker{pool: pool}
}

// RankConversations picks the record to survive a merge: the one holding the
// most messages, with recency breaking ties.
func (r *Ranker) RankConversations(ctx context.Context, ids []uuid.UUID) (uuid.UUID, error) {
	if len(ids) == 0 {
		return uuid.Nil, fmt.Errorf("empty cluster")
	}
	if len(ids) == 1 {
		return ids[0], nil
	}

	query := `
		SELECT c.id, count(m.idx), c.updated_at
		FROM conversations c
		LEFT JOIN conversation_messages m ON m.conversation_id = c.id
		WHERE c.id = ANY($1)
		GROUP BY c.id, c.updated_at`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return uuid.Nil, fmt.Errorf("fetch conversations: %w", err)
	}
	defer rows.Close()

	var records []ConversationRecord
	for rows.Next() {
		var record ConversationRecord
		if err := rows.Scan(&record.ID, &record.MessageCount, &record.UpdatedAt); err != nil {
			return uuid.Nil, fmt.Errorf("scan conversation: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return uuid.Nil, fmt.Errorf("rows error: %w", err)
	}

	if len(records) == 0 {
		return uuid.Nil, fmt.Errorf("no records found")
	}

	best := records[0]
	for _, record := range records[1:] {
		if isConversationBetter(record, best) {
			best = record
		}
	}

	return best.ID, nil
}

// isConversationBetter determines if record a should survive over record b.
func isConversationBetter(a, b ConversationRecord) bool {
	// 1. More messages wins: the longer record is the superset.
	if a.MessageCount != b.MessageCount {
		return a.MessageCount > b.MessageCount
	}
	// 2. More recent updated_at breaks ties.
	return a.UpdatedAt.After(b.UpdatedAt)
}
