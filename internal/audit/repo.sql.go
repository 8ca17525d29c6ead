package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// PostgresRepository reads audit_logs.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL timeline reader.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const timelineWindowSQL = `SELECT occurred_at, action, entity, entity_id, meta
FROM audit_logs
WHERE owner_id = $1
  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
  AND ($3::timestamptz IS NULL OR occurred_at < $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR action = $5)
ORDER BY occurred_at DESC, id DESC
OFFSET $6 LIMIT $7`

// TimelineWindow returns one page of the owner's audit rows.
func (r *PostgresRepository) TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("%w: audit repository not initialised", shared.ErrUnavailable)
	}
	rows, err := r.pool.Query(ctx, timelineWindowSQL, arg.OwnerID, arg.FromAt, arg.ToAt, arg.Entity, arg.Action, arg.OffsetRows, arg.LimitRows)
	if err != nil {
		return nil, fmt.Errorf("%w: audit: %w", shared.ErrUnavailable, err)
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var meta []byte
		if err := rows.Scan(&row.At, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, fmt.Errorf("%w: audit: %w", shared.ErrUnavailable, err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta: %w", err)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: audit: %w", shared.ErrUnavailable, err)
	}
	return out, nil
}
