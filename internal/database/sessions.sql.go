package database

import (
	"context"

	"github.com/google/uuid"
)

const upsertSessionStatus = `-- name: UpsertSessionStatus :exec
INSERT INTO sessions (id, status)
VALUES ($1, $2)
ON CONFLICT (id)
DO UPDATE SET
    status = EXCLUDED.status,
    updated_at = CURRENT_TIMESTAMP
`

type UpsertSessionStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) UpsertSessionStatus(ctx context.Context, arg UpsertSessionStatusParams) error {
	_, err := q.db.ExecContext(ctx, upsertSessionStatus, arg.ID, arg.Status)
	return err
}
