package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ResumeStore keeps a copy of uploaded resume files.
type ResumeStore interface {
	Save(ctx context.Context, key, mime string, data []byte) error
	Provider() string
}

type r2Store struct {
	client ObjectPutter
	bucket string
}

func NewR2Store(client ObjectPutter, bucket string) ResumeStore {
	return &r2Store{client: client, bucket: bucket}
}

func (s *r2Store) Save(ctx context.Context, key, mime string, data []byte) error {
	_, err := retry(3, func() (struct{}, error) {
		return struct{}{}, UploadToR2(ctx, s.client, s.bucket, key, mime, data)
	})
	return err
}

func (s *r2Store) Provider() string {
	return "r2"
}

// ExtractResume turns an uploaded file into resume text and stores it on the
// session. The loading flag is raised for the duration of the extraction.
// Storage failures are logged; they do not fail the upload.
func (a *Assistant) ExtractResume(ctx context.Context, s *Session, filename, declaredMime string, data []byte) (string, error) {
	if err := s.BeginExtraction(); err != nil {
		return "", err
	}

	mime := DetectMime(declaredMime, filename, data)
	text, err := ExtractResumeText(mime, data)
	if err != nil {
		a.logger.Warn("resume extraction failed", "session_id", s.ID, "filename", filename, "mime", mime, "error", err)
		s.FinishExtraction("", "", err)
		return "", fmt.Errorf("extract resume text: %w", err)
	}

	objectKey := a.storeResume(ctx, s.ID, filename, mime, data)
	s.FinishExtraction(text, objectKey, nil)
	return text, nil
}

func (a *Assistant) storeResume(ctx context.Context, sessionID uuid.UUID, filename, mime string, data []byte) string {
	if a.files == nil {
		return ""
	}
	id := uuid.New()
	key := resumeObjectKey(sessionID, id, filename)
	if err := a.files.Save(ctx, key, mime, data); err != nil {
		a.logger.Warn("failed to store resume", "session_id", sessionID, "object_key", key, "error", err)
		return ""
	}
	upload := ResumeUpload{
		ID:        id,
		SessionID: sessionID,
		Filename:  filename,
		Mime:      mime,
		SizeBytes: int64(len(data)),
		ObjectKey: key,
		Provider:  a.files.Provider(),
	}
	if err := a.recorder.RecordResume(ctx, upload); err != nil {
		a.logger.Warn("failed to record resume", "session_id", sessionID, "object_key", key, "error", err)
	}
	return key
}
