package database

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id UUID PRIMARY KEY,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS resumes (
    id UUID PRIMARY KEY,
    original_filename TEXT NOT NULL,
    mime TEXT NOT NULL,
    size_bytes BIGINT NOT NULL,
    storage_provider TEXT NOT NULL,
    object_key TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    session_id UUID NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
    id UUID PRIMARY KEY,
    session_id UUID NOT NULL,
    model TEXT NOT NULL,
    match_score INTEGER NOT NULL,
    indeterminate BOOLEAN NOT NULL DEFAULT FALSE,
    matched_keywords JSONB NOT NULL DEFAULT '[]',
    has_email BOOLEAN NOT NULL,
    result TEXT NOT NULL,
    resume_object_key TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS analyses_session_id_idx ON analyses (session_id);
CREATE INDEX IF NOT EXISTS resumes_session_id_idx ON resumes (session_id);
`

// Migrate creates the archive tables when they do not exist yet.
func (q *Queries) Migrate(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, schema)
	return err
}
