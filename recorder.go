package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/muhammadolammi/jobaiassistant/internal/database"
)

var ErrArchiveDisabled = errors.New("analysis archive is not configured")

// Recorder receives session status changes, finished analyses and stored
// resume uploads. The transcript never depends on it succeeding.
type Recorder interface {
	RecordStatus(ctx context.Context, sessionID uuid.UUID, status string) error
	RecordAnalysis(ctx context.Context, rec AnalysisRecord) error
	RecordResume(ctx context.Context, upload ResumeUpload) error
}

type nopRecorder struct{}

func (nopRecorder) RecordStatus(context.Context, uuid.UUID, string) error { return nil }
func (nopRecorder) RecordAnalysis(context.Context, AnalysisRecord) error  { return nil }
func (nopRecorder) RecordResume(context.Context, ResumeUpload) error      { return nil }

type multiRecorder []Recorder

func (m multiRecorder) RecordStatus(ctx context.Context, sessionID uuid.UUID, status string) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordStatus(ctx, sessionID, status))
	}
	return errors.Join(errs...)
}

func (m multiRecorder) RecordAnalysis(ctx context.Context, rec AnalysisRecord) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordAnalysis(ctx, rec))
	}
	return errors.Join(errs...)
}

func (m multiRecorder) RecordResume(ctx context.Context, upload ResumeUpload) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordResume(ctx, upload))
	}
	return errors.Join(errs...)
}

// NewRecorder combines the configured recorders. nil entries are skipped.
func NewRecorder(recorders ...Recorder) Recorder {
	var m multiRecorder
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	switch len(m) {
	case 0:
		return nopRecorder{}
	case 1:
		return m[0]
	default:
		return m
	}
}

// History is what the archive holds for one session.
type History struct {
	SessionID uuid.UUID        `json:"session_id"`
	Analyses  []AnalysisRecord `json:"analyses"`
	Resumes   []ResumeUpload   `json:"resumes"`
}

type HistoryReader interface {
	History(ctx context.Context, sessionID uuid.UUID) (*History, error)
}

type archiveQueries interface {
	UpsertSessionStatus(ctx context.Context, arg database.UpsertSessionStatusParams) error
	CreateAnalysis(ctx context.Context, arg database.CreateAnalysisParams) error
	CreateResume(ctx context.Context, arg database.CreateResumeParams) error
	ListAnalysesBySession(ctx context.Context, sessionID uuid.UUID) ([]database.Analysis, error)
	GetResumesBySession(ctx context.Context, sessionID uuid.UUID) ([]database.Resume, error)
}

// DBRecorder writes to Postgres. With writeRecords false only session
// status is written; records then arrive through the archive queue.
type DBRecorder struct {
	db           archiveQueries
	writeRecords bool
	attempts     int
}

func NewDBRecorder(db archiveQueries, writeRecords bool) *DBRecorder {
	return &DBRecorder{db: db, writeRecords: writeRecords, attempts: 3}
}

func (r *DBRecorder) RecordStatus(ctx context.Context, sessionID uuid.UUID, status string) error {
	_, err := retry(r.attempts, func() (any, error) {
		return nil, r.db.UpsertSessionStatus(ctx, database.UpsertSessionStatusParams{
			ID:     sessionID,
			Status: status,
		})
	})
	return err
}

func (r *DBRecorder) RecordAnalysis(ctx context.Context, rec AnalysisRecord) error {
	if !r.writeRecords {
		return nil
	}
	return r.storeAnalysis(ctx, rec)
}

func (r *DBRecorder) RecordResume(ctx context.Context, upload ResumeUpload) error {
	if !r.writeRecords {
		return nil
	}
	return r.storeResume(ctx, upload)
}

func (r *DBRecorder) storeAnalysis(ctx context.Context, rec AnalysisRecord) error {
	matches := rec.Match.Matches
	if matches == nil {
		matches = []string{}
	}
	matchesJSON, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("failed to marshal matched keywords: %w", err)
	}

	_, err = retry(r.attempts, func() (any, error) {
		return nil, r.db.CreateAnalysis(ctx, database.CreateAnalysisParams{
			ID:              rec.ID,
			SessionID:       rec.SessionID,
			Model:           rec.Model,
			MatchScore:      int32(rec.Match.Score),
			Indeterminate:   rec.Match.Indeterminate,
			MatchedKeywords: matchesJSON,
			HasEmail:        rec.HasEmail,
			Result:          rec.Result,
			ResumeObjectKey: sql.NullString{String: rec.ResumeObjectKey, Valid: rec.ResumeObjectKey != ""},
		})
	})
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

func (r *DBRecorder) storeResume(ctx context.Context, upload ResumeUpload) error {
	_, err := retry(r.attempts, func() (any, error) {
		return nil, r.db.CreateResume(ctx, database.CreateResumeParams{
			ID:               upload.ID,
			OriginalFilename: upload.Filename,
			Mime:             upload.Mime,
			SizeBytes:        upload.SizeBytes,
			StorageProvider:  upload.Provider,
			ObjectKey:        upload.ObjectKey,
			SessionID:        upload.SessionID,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to save resume: %w", err)
	}
	return nil
}

func (r *DBRecorder) History(ctx context.Context, sessionID uuid.UUID) (*History, error) {
	analyses, err := r.db.ListAnalysesBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error getting analyses for session: %v, err: %w", sessionID, err)
	}
	resumes, err := r.db.GetResumesBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error getting resumes for session: %v, err: %w", sessionID, err)
	}

	h := &History{
		SessionID: sessionID,
		Analyses:  make([]AnalysisRecord, 0, len(analyses)),
		Resumes:   make([]ResumeUpload, 0, len(resumes)),
	}
	for _, a := range analyses {
		matches := []string{}
		if len(a.MatchedKeywords) > 0 {
			if err := json.Unmarshal(a.MatchedKeywords, &matches); err != nil {
				return nil, fmt.Errorf("json unmarshal error: %w", err)
			}
		}
		h.Analyses = append(h.Analyses, AnalysisRecord{
			ID:        a.ID,
			SessionID: a.SessionID,
			Model:     a.Model,
			Match: MatchResult{
				Score:         int(a.MatchScore),
				Matches:       matches,
				Indeterminate: a.Indeterminate,
			},
			HasEmail:        a.HasEmail,
			Result:          a.Result,
			ResumeObjectKey: a.ResumeObjectKey.String,
			CreatedAt:       a.CreatedAt,
		})
	}
	for _, res := range resumes {
		h.Resumes = append(h.Resumes, ResumeUpload{
			ID:        res.ID,
			SessionID: res.SessionID,
			Filename:  res.OriginalFilename,
			Mime:      res.Mime,
			SizeBytes: res.SizeBytes,
			ObjectKey: res.ObjectKey,
			Provider:  res.StorageProvider,
		})
	}
	return h, nil
}
