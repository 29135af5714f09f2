package main

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/muhammadolammi/jobaiassistant/web"
)

const (
	sessionCookieName = "jobai_session"
	sessionHeaderName = "X-Session-ID"
	busyAlert         = "Please wait, your previous request is still in progress."
)

type contextKey int

const sessionKey contextKey = iota

func sessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	return s
}

type ServerConfig struct {
	Assistant      *Assistant
	Sessions       *SessionStore
	History        HistoryReader
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type Server struct {
	assistant *Assistant
	sessions  *SessionStore
	history   HistoryReader
	maxUpload int64
	tmpl      *template.Template
	logger    *slog.Logger
}

func NewServer(cfg ServerConfig) (*Server, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		assistant: cfg.Assistant,
		sessions:  cfg.Sessions,
		history:   cfg.History,
		maxUpload: cfg.MaxUploadBytes,
		tmpl:      tmpl,
		logger:    logger,
	}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Handle("/static/*", web.StaticHandler())

	r.Group(func(r chi.Router) {
		r.Use(s.sessionMiddleware)

		r.Get("/", s.handleIndex)
		r.Post("/analyze", s.handleAnalyzeForm)
		r.Post("/resume", s.handleUploadForm)
		r.Post("/reset", s.handleReset)
		r.Get("/messages/{id}/raw", s.handleRawMessage)

		r.Route("/api", func(r chi.Router) {
			r.Get("/conversation", s.handleConversation)
			r.Post("/analyze", s.handleAnalyzeAPI)
			r.Post("/extract", s.handleExtractAPI)
			r.Get("/history", s.handleHistory)
		})
	})

	return r
}

// sessionMiddleware resolves the caller's session from the header or the
// cookie, creating one when neither names a live session.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id uuid.UUID
		if raw := r.Header.Get(sessionHeaderName); raw != "" {
			id, _ = uuid.Parse(raw)
		} else if c, err := r.Cookie(sessionCookieName); err == nil {
			id, _ = uuid.Parse(c.Value)
		}

		sess := s.sessions.GetOrCreate(id)
		if sess.ID != id {
			setSessionCookie(w, sess.ID)
		}
		w.Header().Set(sessionHeaderName, sess.ID.String())

		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func setSessionCookie(w http.ResponseWriter, id uuid.UUID) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id.String(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// the status line is already sent
		slog.Error("failed to encode response", "status", status, "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type pageData struct {
	Snapshot
	Model     string
	CanSubmit bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := sessionFromContext(r.Context()).TakeSnapshot()
	data := pageData{
		Snapshot:  snap,
		Model:     s.assistant.Model(),
		CanSubmit: canSubmit(snap),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.Error("failed to render page", "error", err)
	}
}

func canSubmit(snap Snapshot) bool {
	return !snap.Loading && strings.TrimSpace(snap.Resume) != "" && strings.TrimSpace(snap.JobDescription) != ""
}

func (s *Server) handleAnalyzeForm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		Error(w, http.StatusBadRequest, "invalid form")
		return
	}
	resume := r.PostFormValue("resume")
	jobDescription := r.PostFormValue("job_description")

	err := s.assistant.Submit(r.Context(), sess, resume, jobDescription)
	switch {
	case errors.Is(err, ErrEmptyInput):
		sess.SetInputs(resume, jobDescription)
	case errors.Is(err, ErrBusy):
		sess.SetAlert(busyAlert)
	}
	redirectHome(w, r)
}

func (s *Server) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	filename, mime, data, err := s.readUpload(w, r)
	if err != nil {
		s.logger.Warn("failed to read upload", "session_id", sess.ID, "error", err)
		sess.SetAlert(extractionFailedAlert)
		redirectHome(w, r)
		return
	}
	if jd, ok := r.MultipartForm.Value["job_description"]; ok && len(jd) > 0 && jd[0] != "" {
		sess.SetJobDescription(jd[0])
	}

	if _, err := s.assistant.ExtractResume(r.Context(), sess, filename, mime, data); errors.Is(err, ErrBusy) {
		sess.SetAlert(busyAlert)
	}
	redirectHome(w, r)
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (filename, mime string, data []byte, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return "", "", nil, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", nil, err
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		return "", "", nil, err
	}
	return header.Filename, header.Header.Get("Content-Type"), data, nil
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	fresh := s.sessions.Reset(sess.ID)
	setSessionCookie(w, fresh.ID)
	redirectHome(w, r)
}

func (s *Server) handleRawMessage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}
	msg, ok := sessionFromContext(r.Context()).FindMessage(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, msg.Content)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, sessionFromContext(r.Context()).Snapshot())
}

type analyzeRequest struct {
	Resume         string `json:"resume"`
	JobDescription string `json:"job_description"`
}

func (s *Server) handleAnalyzeAPI(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.assistant.Submit(r.Context(), sess, req.Resume, req.JobDescription)
	switch {
	case err == nil:
		JSON(w, http.StatusOK, sess.Snapshot())
	case errors.Is(err, ErrEmptyInput):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrBusy):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrAnalysisFailed):
		JSON(w, http.StatusBadGateway, sess.Snapshot())
	default:
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleExtractAPI(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	filename, mime, data, err := s.readUpload(w, r)
	if err != nil {
		Error(w, http.StatusBadRequest, "a resume file is required in the \"file\" field")
		return
	}

	text, err := s.assistant.ExtractResume(r.Context(), sess, filename, mime, data)
	switch {
	case err == nil:
		JSON(w, http.StatusOK, map[string]string{"text": text})
	case errors.Is(err, ErrBusy):
		Error(w, http.StatusConflict, err.Error())
	default:
		Error(w, http.StatusUnprocessableEntity, extractionFailedAlert)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		Error(w, http.StatusNotFound, ErrArchiveDisabled.Error())
		return
	}
	sess := sessionFromContext(r.Context())
	h, err := s.history.History(r.Context(), sess.ID)
	if err != nil {
		s.logger.Error("failed to load history", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	JSON(w, http.StatusOK, h)
}
