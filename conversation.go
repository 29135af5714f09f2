package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// Conversation is an append-only message log. Display order is insertion order.
type Conversation struct {
	messages []Message
}

func (c *Conversation) Append(role Role, kind Kind, content string) Message {
	msg := Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	c.messages = append(c.messages, msg)
	return msg
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int {
	return len(c.messages)
}

func (c *Conversation) Find(id uuid.UUID) (Message, bool) {
	for _, m := range c.messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

type Pending string

const (
	PendingNone       Pending = ""
	PendingExtracting Pending = "extracting"
	PendingAnalyzing  Pending = "analyzing"
)

// Session is the state behind one browser session: the transcript, the two
// input fields and the loading flag. Every access goes through mu.
type Session struct {
	ID uuid.UUID

	mu              sync.Mutex
	conversation    Conversation
	resume          string
	jobDescription  string
	pending         Pending
	alert           string
	resumeObjectKey string
	lastSeen        time.Time
}

func NewSession() *Session {
	return &Session{ID: uuid.New(), lastSeen: time.Now()}
}

// Snapshot is a consistent, read-only copy of a session.
type Snapshot struct {
	SessionID      uuid.UUID `json:"session_id"`
	Messages       []Message `json:"messages"`
	Resume         string    `json:"resume"`
	JobDescription string    `json:"job_description"`
	Loading        bool      `json:"loading"`
	Pending        Pending   `json:"pending"`
	Alert          string    `json:"alert,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// TakeSnapshot returns the snapshot and clears the one-shot alert.
func (s *Session) TakeSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	s.alert = ""
	return snap
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:      s.ID,
		Messages:       s.conversation.Messages(),
		Resume:         s.resume,
		JobDescription: s.jobDescription,
		Loading:        s.pending != PendingNone,
		Pending:        s.pending,
		Alert:          s.alert,
	}
}

func (s *Session) FindMessage(id uuid.UUID) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation.Find(id)
}

// SetInputs records what the user typed without submitting.
func (s *Session) SetInputs(resume, jobDescription string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resume = resume
	s.jobDescription = jobDescription
}

func (s *Session) SetJobDescription(jobDescription string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobDescription = jobDescription
}

// SetAlert raises a one-shot notice shown on the next render.
func (s *Session) SetAlert(alert string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alert = alert
}

// BeginExtraction raises the loading flag for a file upload.
func (s *Session) BeginExtraction() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != PendingNone {
		return ErrBusy
	}
	s.pending = PendingExtracting
	return nil
}

// FinishExtraction clears the loading flag. On failure the resume field is
// left as it was and the alert is raised.
func (s *Session) FinishExtraction(text, objectKey string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = PendingNone
	if err != nil {
		s.alert = extractionFailedAlert
		return
	}
	s.resume = text
	s.resumeObjectKey = objectKey
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != PendingNone {
		return 0
	}
	return now.Sub(s.lastSeen)
}

// SessionStore keeps sessions in memory only; nothing survives a restart.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*Session),
		now:      time.Now,
	}
}

func (st *SessionStore) Get(id uuid.UUID) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(st.now())
	return s, nil
}

// GetOrCreate returns the session for id, creating a fresh one when id is
// unknown. The returned session may carry a different ID than requested.
func (st *SessionStore) GetOrCreate(id uuid.UUID) *Session {
	if s, err := st.Get(id); err == nil {
		return s
	}
	s := NewSession()
	s.lastSeen = st.now()
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Reset drops the session for id and returns a new, empty one.
func (st *SessionStore) Reset(id uuid.UUID) *Session {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
	return st.GetOrCreate(uuid.Nil)
}

func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep evicts sessions idle for longer than ttl. Sessions with work in
// flight are never evicted.
func (st *SessionStore) Sweep(ttl time.Duration) int {
	now := st.now()
	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, s := range st.sessions {
		if s.idleSince(now) > ttl {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSessionJanitor sweeps idle sessions every interval until ctx is done.
func RunSessionJanitor(ctx context.Context, st *SessionStore, ttl, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(ttl); n > 0 {
				logger.Info("evicted idle sessions", "count", n, "remaining", st.Len())
			}
		}
	}
}
