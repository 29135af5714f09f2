package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyInput     = errors.New("resume and job description are required")
	ErrBusy           = errors.New("a request is already in progress")
	ErrAnalysisFailed = errors.New("analysis failed")

	errSubmissionDone = errors.New("submission already resolved")
)

const (
	userSubmitMessage       = "Here are my details. Please analyze them."
	fallbackAnalysisMessage = "I couldn't generate an analysis. Please try again."
	analysisErrorMessage    = "Error: Something went wrong with the API."
	extractionFailedAlert   = "Failed to read PDF. Please try copying the text manually."
)

type AssistantConfig struct {
	Analyzer Analyzer
	Model    string
	Bands    ScoreBands
	Recorder Recorder
	Files    ResumeStore
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Assistant drives a submission from the form to the transcript.
type Assistant struct {
	analyzer Analyzer
	model    string
	bands    ScoreBands
	recorder Recorder
	files    ResumeStore
	timeout  time.Duration
	logger   *slog.Logger
}

func NewAssistant(cfg AssistantConfig) *Assistant {
	a := &Assistant{
		analyzer: cfg.Analyzer,
		model:    cfg.Model,
		bands:    cfg.Bands,
		recorder: cfg.Recorder,
		files:    cfg.Files,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
	if a.recorder == nil {
		a.recorder = nopRecorder{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

func (a *Assistant) Model() string {
	return a.model
}

// Submission is an accepted request whose analysis has not resolved yet.
type Submission struct {
	assistant       *Assistant
	session         *Session
	resume          string
	jobDescription  string
	prompt          string
	resumeObjectKey string
	done            bool
}

// Begin validates the inputs, appends the user message and raises the
// loading flag. No analysis call is made when it returns an error.
func (a *Assistant) Begin(s *Session, resume, jobDescription string) (*Submission, error) {
	if strings.TrimSpace(resume) == "" || strings.TrimSpace(jobDescription) == "" {
		return nil, ErrEmptyInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != PendingNone {
		return nil, ErrBusy
	}
	s.resume = resume
	s.jobDescription = jobDescription
	s.conversation.Append(RoleUser, KindText, userSubmitMessage)
	s.pending = PendingAnalyzing

	return &Submission{
		assistant:       a,
		session:         s,
		resume:          resume,
		jobDescription:  jobDescription,
		prompt:          BuildPrompt(resume, jobDescription),
		resumeObjectKey: s.resumeObjectKey,
	}, nil
}

// Run calls the analyzer and resolves the submission. The loading flag is
// cleared on both paths. The returned error wraps ErrAnalysisFailed when the
// analysis service call failed; the transcript already holds the error
// message in that case.
func (sub *Submission) Run(ctx context.Context) error {
	if sub.done {
		return errSubmissionDone
	}
	sub.done = true

	a := sub.assistant
	sessionID := sub.session.ID
	a.recordStatus(ctx, sessionID, StatusProcessing)

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	text, err := a.analyzer.Analyze(callCtx, sub.prompt)
	if err != nil {
		sub.fail()
		a.logger.Error("analysis failed", "session_id", sessionID, "error", err)
		a.recordStatus(ctx, sessionID, StatusFailed)
		return fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	rec := sub.complete(text)
	a.logger.Info("analysis completed",
		"session_id", sessionID,
		"score", rec.Match.Score,
		"indeterminate", rec.Match.Indeterminate,
		"has_email", rec.HasEmail,
	)
	if err := a.recorder.RecordAnalysis(ctx, rec); err != nil {
		a.logger.Warn("failed to record analysis", "session_id", sessionID, "error", err)
	}
	a.recordStatus(ctx, sessionID, StatusCompleted)
	return nil
}

// Submit runs both phases back to back.
func (a *Assistant) Submit(ctx context.Context, s *Session, resume, jobDescription string) error {
	sub, err := a.Begin(s, resume, jobDescription)
	if err != nil {
		return err
	}
	return sub.Run(ctx)
}

func (sub *Submission) complete(text string) AnalysisRecord {
	a := sub.assistant
	if text == "" {
		text = fallbackAnalysisMessage
	}
	match := CalculateMatchScore(sub.resume, sub.jobDescription)
	hasEmail := HasEmail(sub.resume)

	s := sub.session
	s.mu.Lock()
	s.conversation.Append(RoleAI, KindAnalysis, text)
	s.conversation.Append(RoleAI, KindAnalysis, a.bands.Select(match).Message())
	if !hasEmail {
		s.conversation.Append(RoleAI, KindAnalysis, missingEmailMessage)
	}
	s.resume = ""
	s.jobDescription = ""
	s.resumeObjectKey = ""
	s.pending = PendingNone
	s.mu.Unlock()

	return AnalysisRecord{
		ID:              uuid.New(),
		SessionID:       s.ID,
		Model:           a.model,
		Match:           match,
		HasEmail:        hasEmail,
		Result:          text,
		ResumeObjectKey: sub.resumeObjectKey,
		CreatedAt:       time.Now().UTC(),
	}
}

// fail keeps the inputs so the user can edit and retry.
func (sub *Submission) fail() {
	s := sub.session
	s.mu.Lock()
	s.conversation.Append(RoleAI, KindError, analysisErrorMessage)
	s.pending = PendingNone
	s.mu.Unlock()
}

func (a *Assistant) recordStatus(ctx context.Context, sessionID uuid.UUID, status string) {
	if err := a.recorder.RecordStatus(ctx, sessionID, status); err != nil {
		a.logger.Warn("failed to record session status", "session_id", sessionID, "status", status, "error", err)
	}
}
