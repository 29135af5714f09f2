package database

import (
	"context"

	"github.com/google/uuid"
)

const createResume = `-- name: CreateResume :exec
INSERT INTO resumes (
id, original_filename, mime, size_bytes, storage_provider, object_key, session_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

type CreateResumeParams struct {
	ID               uuid.UUID
	OriginalFilename string
	Mime             string
	SizeBytes        int64
	StorageProvider  string
	ObjectKey        string
	SessionID        uuid.UUID
}

func (q *Queries) CreateResume(ctx context.Context, arg CreateResumeParams) error {
	_, err := q.db.ExecContext(ctx, createResume,
		arg.ID,
		arg.OriginalFilename,
		arg.Mime,
		arg.SizeBytes,
		arg.StorageProvider,
		arg.ObjectKey,
		arg.SessionID,
	)
	return err
}

const getResumesBySession = `-- name: GetResumesBySession :many
SELECT id, original_filename, mime, size_bytes, storage_provider, object_key, created_at, session_id FROM resumes WHERE session_id=$1
ORDER BY created_at
`

func (q *Queries) GetResumesBySession(ctx context.Context, sessionID uuid.UUID) ([]Resume, error) {
	rows, err := q.db.QueryContext(ctx, getResumesBySession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Resume
	for rows.Next() {
		var i Resume
		if err := rows.Scan(
			&i.ID,
			&i.OriginalFilename,
			&i.Mime,
			&i.SizeBytes,
			&i.StorageProvider,
			&i.ObjectKey,
			&i.CreatedAt,
			&i.SessionID,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
