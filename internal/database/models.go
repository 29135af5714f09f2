package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Analysis struct {
	ID              uuid.UUID
	SessionID       uuid.UUID
	Model           string
	MatchScore      int32
	Indeterminate   bool
	MatchedKeywords json.RawMessage
	HasEmail        bool
	Result          string
	ResumeObjectKey sql.NullString
	CreatedAt       time.Time
}

type Resume struct {
	ID               uuid.UUID
	OriginalFilename string
	Mime             string
	SizeBytes        int64
	StorageProvider  string
	ObjectKey        string
	CreatedAt        time.Time
	SessionID        uuid.UUID
}

type Session struct {
	ID        uuid.UUID
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
