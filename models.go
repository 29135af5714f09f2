package main

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
)

type R2Config struct {
	AccountID string
	Bucket    string
	AccessKey string
	SecretKey string
}

type Config struct {
	Port     string
	LogLevel string

	GoogleApiKey     string
	Model            string
	AnalyzerBackend  string
	VerifyOnStartup  bool
	AnalysisTimeout  time.Duration
	LegacyScoreBands bool

	SessionTTL     time.Duration
	MaxUploadBytes int64

	DBUrl          string
	RABBITMQUrl    string
	ArchiveWorkers int
	R2             *R2Config
	AwsConfig      *aws.Config
}

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

type Kind string

const (
	KindText     Kind = "text"
	KindAnalysis Kind = "analysis"
	KindError    Kind = "error"
)

// Message is one transcript entry. It is never mutated after it is appended.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

type MatchResult struct {
	Score   int      `json:"score"`
	Matches []string `json:"matches"`
	// Indeterminate is set when the job description has no important keywords.
	Indeterminate bool `json:"indeterminate"`
}

// AnalysisRecord is what gets archived after a successful analysis.
type AnalysisRecord struct {
	ID              uuid.UUID   `json:"id"`
	SessionID       uuid.UUID   `json:"session_id"`
	Model           string      `json:"model"`
	Match           MatchResult `json:"match"`
	HasEmail        bool        `json:"has_email"`
	Result          string      `json:"result"`
	ResumeObjectKey string      `json:"resume_object_key,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

type ResumeUpload struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Filename  string    `json:"filename"`
	Mime      string    `json:"mime"`
	SizeBytes int64     `json:"size_bytes"`
	ObjectKey string    `json:"object_key"`
	Provider  string    `json:"provider"`
}

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)
