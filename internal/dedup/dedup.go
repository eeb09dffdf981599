// Package dedup finds and merges conversation records that collided on the
// same identity — typically records created before scribe ran, or by two
// captures racing the first write. Conversations that share an identity but
// hold genuinely different content (deliberate conflict forks) are left
// alone: a pair only merges when reconciliation says one record is a prefix
// of the other.
package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/scribe/internal/reconcile"
	"github.com/MikeSquared-Agency/scribe/internal/segment"
)

// Result reports what a merge pass found and did.
type Result struct {
	Execute    bool            `json:"execute"`
	Pairs      int             `json:"pairs"`
	Mergeable  int             `json:"mergeable"`
	Clusters   int             `json:"clusters"`
	TotalItems int             `json:"total_items"`
	Merged     int             `json:"merged"`
	Survivors  int             `json:"survivors"`
	Details    []ClusterDetail `json:"details,omitempty"`
}

// ClusterDetail provides information about a specific duplicate cluster.
type ClusterDetail struct {
	SurvivorID uuid.UUID   `json:"survivor_id"`
	MergedIDs  []uuid.UUID `json:"merged_ids"`
	Size       int         `json:"size"`
}

// Deduplicator orchestrates the merge process.
type Deduplicator struct {
	pool    *pgxpool.Pool
	scanner *Scanner
	ranker  *Ranker
	logger  *slog.Logger
}

// New creates a new deduplicator instance.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{
		pool:    pool,
		scanner: NewScanner(pool),
		ranker:  NewRanker(pool),
		logger:  logger,
	}
}

// MergeDuplicateConversations finds identity collisions, keeps the pairs
// whose content actually overlaps, and marks losers merged into a survivor.
// With execute false it only reports what it would do.
func (d *Deduplicator) MergeDuplicateConversations(ctx context.Context, execute bool) (*Result, error) {
	d.logger.Info("starting conversation merge scan", "execute", execute)

	pairs, err := d.scanner.FindIdentityDuplicates(ctx)
	if err != nil {
		return nil, fmt.Errorf("find duplicates: %w", err)
	}

	d.logger.Info("found identity collisions", "count", len(pairs))

	result := &Result{Execute: execute, Pairs: len(pairs)}
	if len(pairs) == 0 {
		return result, nil
	}

	// Keep only pairs where one record continues the other; forked
	// conflicts stay separate on purpose.
	var mergeable []DuplicatePair
	for _, pair := range pairs {
		ok, err := d.contentOverlaps(ctx, pair)
		if err != nil {
			d.logger.Error("failed to compare pair", "id1", pair.ID1, "id2", pair.ID2, "error", err)
			continue
		}
		if ok {
			mergeable = append(mergeable, pair)
		}
	}
	result.Mergeable = len(mergeable)
	if len(mergeable) == 0 {
		return result, nil
	}

	clusters := clusterPairs(mergeable)
	result.Clusters = len(clusters)
	d.logger.Info("clustered duplicates", "clusters", len(clusters))

	for _, cluster := range clusters {
		result.TotalItems += len(cluster)

		survivorID, err := d.ranker.RankConversations(ctx, cluster)
		if err != nil {
			d.logger.Error("failed to rank cluster", "cluster", cluster, "error", err)
			continue
		}

		var mergedIDs []uuid.UUID
		for _, id := range cluster {
			if id != survivorID {
				mergedIDs = append(mergedIDs, id)
			}
		}

		if execute {
			if err := d.markMerged(ctx, mergedIDs, survivorID); err != nil {
				d.logger.Error("failed to mark merged", "survivor", survivorID, "merged", mergedIDs, "error", err)
				continue
			}
		}

		result.Survivors++
		result.Merged += len(mergedIDs)
		result.Details = append(result.Details, ClusterDetail{
			SurvivorID: survivorID,
			MergedIDs:  mergedIDs,
			Size:       len(cluster),
		})
	}

	d.logger.Info("merge scan completed", "survivors", result.Survivors, "merged", result.Merged)
	return result, nil
}

// contentOverlaps loads both records and asks the reconciliation core
// whether either one is a continuation of the other.
func (d *Deduplicator) contentOverlaps(ctx context.Context, pair DuplicatePair) (bool, error) {
	a, err := d.readMessages(ctx, pair.ID1)
	if err != nil {
		return false, err
	}
	b, err := d.readMessages(ctx, pair.ID2)
	if err != nil {
		return false, err
	}

	if reconcile.Reconcile(a, b).Kind == reconcile.PlanAppend {
		return true, nil
	}
	return reconcile.Reconcile(b, a).Kind == reconcile.PlanAppend, nil
}

func (d *Deduplicator) readMessages(ctx context.Context, id uuid.UUID) ([]segment.Message, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT role, content, ts
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY idx`, id)
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

// clusterPairs groups duplicate pairs into connected components using union-find.
func clusterPairs(pairs []DuplicatePair) [][]uuid.UUID {
	if len(pairs) == 0 {
		return nil
	}

	parent := make(map[uuid.UUID]uuid.UUID)
	for _, pair := range pairs {
		if _, exists := parent[pair.ID1]; !exists {
			parent[pair.ID1] = pair.ID1
		}
		if _, exists := parent[pair.ID2]; !exists {
			parent[pair.ID2] = pair.ID2
		}
	}

	var find func(uuid.UUID) uuid.UUID
	find = func(id uuid.UUID) uuid.UUID {
		if parent[id] != id {
			parent[id] = find(parent[id]) // path compression
		}
		return parent[id]
	}

	union := func(id1, id2 uuid.UUID) {
		root1 := find(id1)
		root2 := find(id2)
		if root1 != root2 {
			parent[root2] = root1
		}
	}

	for _, pair := range pairs {
		union(pair.ID1, pair.ID2)
	}

	groups := make(map[uuid.UUID][]uuid.UUID)
	for id := range parent {
		root := find(id)
		groups[root] = append(groups[root], id)
	}

	var clusters [][]uuid.UUID
	for _, cluster := range groups {
		if len(cluster) > 1 {
			clusters = append(clusters, cluster)
		}
	}

	return clusters
}

// markMerged points losing records at their survivor. Nothing is deleted;
// the messages stay readable under the merged record.
func (d *Deduplicator) markMerged(ctx context.Context, mergedIDs []uuid.UUID, survivorID uuid.UUID) error {
	if len(mergedIDs) == 0 {
		return nil
	}

	query := `
		UPDATE conversations
		SET merged_into = $1, updated_at = now()
		WHERE id = ANY($2)`

	_, err := d.pool.Exec(ctx, query, survivorID, mergedIDs)
	if err != nil {
		return fmt.Errorf("update conversations: %w", err)
	}

	return nil
}
