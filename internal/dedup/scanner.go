package dedup

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DuplicatePair represents two live conversations stored under the same
// identity. Sharing an identity is necessary but not sufficient for a merge:
// deliberately forked conflicts also share one.
type DuplicatePair struct {
	ID1      uuid.UUID
	ID2      uuid.UUID
	Identity string
}

// Scanner finds conversations colliding on identity.
type Scanner struct {
	pool *pgxpool.Pool
}

// NewScanner creates a new scanner instance.
func NewScanner(pool *pgxpool.Pool) *Scanner {
	return &Scanner{pool: pool}
}

// FindIdentityDuplicates returns every pair of live conversations sharing an
// identity.
func (s *Scanner) FindIdentityDuplicates(ctx context.Context) ([]DuplicatePair, error) {
	query := `
		SELECT a.id, b.id, a.identity
		FROM conversations a, conversations b
		WHERE a.id < b.id
		  AND a.identity = b.identity
		  AND a.merged_into IS NULL AND b.merged_into IS NULL
		ORDER BY a.identity`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query identity duplicates: %w", err)
	}
	defer rows.Close()

	var pairs []DuplicatePair
	for rows.Next() {
		var pair DuplicatePair
		if err := rows.Scan(&pair.ID1, &pair.ID2, &pair.Identity); err != nil {
			return nil, fmt.Errorf("scan duplicate pair: %w", err)
		}
		pairs = append(pairs, pair)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return pairs, nil
}
