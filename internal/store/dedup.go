package store

import (
	"context"
	"log/slog"

	"github.com/MikeSquared-Agency/scribe/internal/dedup"
)

// GetDeduplicator returns a deduplicator instance using the store's connection pool.
func (s *Store) GetDeduplicator(logger *slog.Logger) *dedup.Deduplicator {
	return dedup.New(s.pool, logger)
}

// MergeDuplicateConversations runs a duplicate-merge pass over stored conversations.
func (s *Store) MergeDuplicateConversations(ctx context.Context, execute bool, logger *slog.Logger) (*dedup.Result, error) {
	deduper := s.GetDeduplicator(logger)
	return deduper.MergeDuplicateConversations(ctx, execute)
}
