package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
)

const createAnalysis = `-- name: CreateAnalysis :exec
INSERT INTO analyses (
id, session_id, model, match_score, indeterminate, matched_keywords, has_email, result, resume_object_key)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING
`

type CreateAnalysisParams struct {
	ID              uuid.UUID
	SessionID       uuid.UUID
	Model           string
	MatchScore      int32
	Indeterminate   bool
	MatchedKeywords json.RawMessage
	HasEmail        bool
	Result          string
	ResumeObjectKey sql.NullString
}

func (q *Queries) CreateAnalysis(ctx context.Context, arg CreateAnalysisParams) error {
	_, err := q.db.ExecContext(ctx, createAnalysis,
		arg.ID,
		arg.SessionID,
		arg.Model,
		arg.MatchScore,
		arg.Indeterminate,
		arg.MatchedKeywords,
		arg.HasEmail,
		arg.Result,
		arg.ResumeObjectKey,
	)
	return err
}

const listAnalysesBySession = `-- name: ListAnalysesBySession :many
SELECT id, session_id, model, match_score, indeterminate, matched_keywords, has_email, result, resume_object_key, created_at FROM analyses
WHERE session_id=$1
ORDER BY created_at
`

func (q *Queries) ListAnalysesBySession(ctx context.Context, sessionID uuid.UUID) ([]Analysis, error) {
	rows, err := q.db.QueryContext(ctx, listAnalysesBySession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Analysis
	for rows.Next() {
		var i Analysis
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.Model,
			&i.MatchScore,
			&i.Indeterminate,
			&i.MatchedKeywords,
			&i.HasEmail,
			&i.Result,
			&i.ResumeObjectKey,
			&i.CreatedAt,
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
