package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	h   *History
	err error
}

func (f fakeHistory) History(_ context.Context, sessionID uuid.UUID) (*History, error) {
	if f.err != nil {
		return nil, f.err
	}
	h := *f.h
	h.SessionID = sessionID
	return &h, nil
}

type testServer struct {
	handler  http.Handler
	sessions *SessionStore
}

func newTestServer(t *testing.T, analyzer Analyzer, history HistoryReader) *testServer {
	t.Helper()
	sessions := NewSessionStore()
	srv, err := NewServer(ServerConfig{
		Assistant:      newTestAssistant(analyzer, nil),
		Sessions:       sessions,
		History:        history,
		MaxUploadBytes: 1 << 20,
		Logger:         discardLogger(),
	})
	require.NoError(t, err)
	return &testServer{handler: srv.Routes(), sessions: sessions}
}

func (ts *testServer) do(req *http.Request, sessionID uuid.UUID) *httptest.ResponseRecorder {
	if sessionID != uuid.Nil {
		req.Header.Set(sessionHeaderName, sessionID.String())
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func sessionOf(t *testing.T, rec *httptest.ResponseRecorder) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(rec.Header().Get(sessionHeaderName))
	require.NoError(t, err)
	return id
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func multipartUpload(t *testing.T, filename, contentType string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	h["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestServer_IndexCreatesSession(t *testing.T) {
	ts := newTestServer(t, &fakeAnalyzer{}, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil), uuid.Nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	body := rec.Body.String()
	assert.Contains(t, body, "Powered by test-model")
	assert.Contains(t, body, `id="submit" disabled`)

	id := sessionOf(t, rec)
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, id.String(), cookie.Value)
	assert.Equal(t, 1, ts.sessions.Len())

	again := ts.do(httptest.NewRequest(http.MethodGet, "/", nil), id)
	assert.Equal(t, id, sessionOf(t, again))
	assert.Empty(t, again.Result().Cookies())
}

func TestServer_IndexDisablesSubmitWhileLoading(t *testing.T) {
	t.Run("analyzing", func(t *testing.T) {
		analyzer := &fakeAnalyzer{text: "ok", gate: make(chan struct{})}
		ts := newTestServer(t, analyzer, nil)
		sess := ts.sessions.GetOrCreate(uuid.Nil)

		sub, err := newTestAssistant(analyzer, nil).Begin(sess, testResume, testJD)
		require.NoError(t, err)

		body := ts.do(httptest.NewRequest(http.MethodGet, "/", nil), sess.ID).Body.String()
		assert.Contains(t, body, `data-loading="true"`)
		assert.Contains(t, body, `id="submit" disabled`)
		assert.Contains(t, body, "Analyzing your profile...")
		assert.NotContains(t, body, `id="pending" class="pending" hidden`)

		close(analyzer.gate)
		require.NoError(t, sub.Run(context.Background()))
	})

	t.Run("extracting", func(t *testing.T) {
		ts := newTestServer(t, &fakeAnalyzer{}, nil)
		sess := ts.sessions.GetOrCreate(uuid.Nil)
		sess.SetInputs(testResume, testJD)
		require.NoError(t, sess.BeginExtraction())

		body := ts.do(httptest.NewRequest(http.MethodGet, "/", nil), sess.ID).Body.String()
		assert.Contains(t, body, `data-loading="true"`)
		assert.Contains(t, body, `id="submit" disabled`)
		assert.Contains(t, body, "Extracting PDF text...")
	})

	t.Run("idle with both fields", func(t *testing.T) {
		ts := newTestServer(t, &fakeAnalyzer{}, nil)
		sess := ts.sessions.GetOrCreate(uuid.Nil)
		sess.SetInputs(testResume, testJD)

		body := ts.do(httptest.NewRequest(http.MethodGet, "/", nil), sess.ID).Body.String()
		assert.Contains(t, body, `data-loading="false"`)
		assert.Contains(t, body, `id="submit">`)
		assert.NotContains(t, body, `id="submit" disabled`)
	})
}

func TestJSON_EncodeFailureKeepsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestServer_AnalyzeAPI(t *testing.T) {
	ts := newTestServer(t, &fakeAnalyzer{text: "## Strong Matches"}, nil)

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/analyze",
		jsonBody(t, analyzeRequest{Resume: testResume, JobDescription: testJD})), uuid.Nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, []string{userSubmitMessage, "## Strong Matches", lowMatchMessage}, contents(snap.Messages))
	assert.Empty(t, snap.Resume)
	assert.False(t, snap.Loading)

	conv := ts.do(httptest.NewRequest(http.MethodGet, "/api/conversation", nil), sessionOf(t, rec))
	require.Equal(t, http.StatusOK, conv.Code)
	var again Snapshot
	require.NoError(t, json.Unmarshal(conv.Body.Bytes(), &again))
	assert.Len(t, again.Messages, 3)
}

func TestServer_AnalyzeAPIErrors(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		analyzer := &fakeAnalyzer{text: "ok"}
		ts := newTestServer(t, analyzer, nil)
		rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/analyze",
			jsonBody(t, analyzeRequest{Resume: "  ", JobDescription: testJD})), uuid.Nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, analyzer.calls())
	})

	t.Run("bad body", func(t *testing.T) {
		ts := newTestServer(t, &fakeAnalyzer{}, nil)
		rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("{")), uuid.Nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("analysis failure", func(t *testing.T) {
		ts := newTestServer(t, &fakeAnalyzer{err: errors.New("quota")}, nil)
		rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/analyze",
			jsonBody(t, analyzeRequest{Resume: testResume, JobDescription: testJD})), uuid.Nil)
		require.Equal(t, http.StatusBadGateway, rec.Code)

		var snap Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		require.Len(t, snap.Messages, 2)
		assert.Equal(t, KindError, snap.Messages[1].Kind)
		assert.Equal(t, testResume, snap.Resume)
	})

	t.Run("busy", func(t *testing.T) {
		analyzer := &fakeAnalyzer{text: "ok", gate: make(chan struct{})}
		ts := newTestServer(t, analyzer, nil)
		sess := ts.sessions.GetOrCreate(uuid.Nil)

		sub, err := newTestAssistant(analyzer, nil).Begin(sess, testResume, testJD)
		require.NoError(t, err)

		rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/analyze",
			jsonBody(t, analyzeRequest{Resume: testResume, JobDescription: testJD})), sess.ID)
		assert.Equal(t, http.StatusConflict, rec.Code)

		close(analyzer.gate)
		require.NoError(t, sub.Run(context.Background()))
	})
}

func TestServer_AnalyzeFormRedirectsAndKeepsBlankInputs(t *testing.T) {
	analyzer := &fakeAnalyzer{text: "ok"}
	ts := newTestServer(t, analyzer, nil)

	form := url.Values{"resume": {"my resume"}, "job_description": {" "}}
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := ts.do(req, uuid.Nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, 0, analyzer.calls())

	sess, err := ts.sessions.Get(sessionOf(t, rec))
	require.NoError(t, err)
	snap := sess.Snapshot()
	assert.Equal(t, "my resume", snap.Resume)
	assert.Empty(t, snap.Messages)
}

func TestServer_AnalyzeFormThenRender(t *testing.T) {
	ts := newTestServer(t, &fakeAnalyzer{text: "**Interview Prep**"}, nil)

	form := url.Values{"resume": {testResume}, "job_description": {testJD}}
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := ts.do(req, uuid.Nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	page := ts.do(httptest.NewRequest(http.MethodGet, "/", nil), sessionOf(t, rec))
	body := page.Body.String()
	assert.Contains(t, body, userSubmitMessage)
	assert.Contains(t, body, "**Interview Prep**")
	assert.Contains(t, body, "row-ai")
	assert.Contains(t, body, "/raw")
}

func TestServer_ExtractAPI(t *testing.T) {
	ts := newTestServer(t, &fakeAnalyzer{}, nil)

	body, ct := multipartUpload(t, "cv.txt", "text/plain", []byte("Go developer"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
	req.Header.Set("Content-Type", ct)
	rec := ts.do(req, uuid.Nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Go developer", resp["text"])

	sess, err := ts.sessions.Get(sessionOf(t, rec))
	require.NoError(t, err)
	assert.Equal(t, "Go developer", sess.Snapshot().Resume)
}

func TestServer_ExtractAPIErrors(t *testing.T) {
	ts := newTestServer(t, &fakeAnalyzer{}, nil)

	body, ct := multipartUpload(t, "cv.pdf", "application/pdf", []byte("not a pdf"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
	req.Header.Set("Content-Type", ct)
	rec := ts.do(req, uuid.Nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), extractionFailedAlert)

	req = httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader("resume"))
	req.Header.Set("Content-Type", "text/plain")
	rec = ts.do(req, uuid.Nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_UploadFormKeepsJobDescription(t *testing.T) {
	ts := newTestServer(t, &fakeAnalyzer{}, nil)

	body, ct := multipartUpload(t, "cv.txt", "text/plain", []byte("Go developer"),
		map[string]string{"job_description": "need gophers"})
	req := httptest.NewRequest(http.MethodPost, "/resume", body)
	req.Header.Set("Content-Type", ct)
	rec := ts.do(req, uuid.Nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	sess, err := ts.sessions.Get(sessionOf(t, rec))
	require.NoError(t, err)
	snap := sess.Snapshot()
	assert.Equal(t, "Go developer", snap.Resume)
	assert.Equal(t, "need gophers", snap.JobDescription)
}

func TestServer_RawMessage(t *testing.T) {
	ts := newTestServer(t, &fakeAnalyzer{text: "# Heading\n- item"}, nil)
	sess := ts.sessions.GetOrCreate(uuid.Nil)
	require.NoError(t, newTestAssistant(&fakeAnalyzer{text: "# Heading\n- item"}, nil).
		Submit(context.Background(), sess, testResume, testJD))
	ai := sess.Snapshot().Messages[1]

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/messages/"+ai.ID.String()+"/raw", nil), sess.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# Heading\n- item", rec.Body.String())

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/messages/"+uuid.NewString()+"/raw", nil), sess.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/messages/nope/raw", nil), sess.ID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Reset(t *testing.T) {
	ts := newTestServer(t, &fakeAnalyzer{}, nil)
	sess := ts.sessions.GetOrCreate(uuid.Nil)
	sess.SetInputs("resume", "jd")

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/reset", nil), sess.ID)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	_, err := ts.sessions.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	var fresh string
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			fresh = c.Value
		}
	}
	require.NotEmpty(t, fresh)
	assert.NotEqual(t, sess.ID.String(), fresh)
}

func TestServer_History(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t, &fakeAnalyzer{}, nil)
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/history", nil), uuid.Nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("configured", func(t *testing.T) {
		history := fakeHistory{h: &History{
			Analyses: []AnalysisRecord{{ID: uuid.New(), Result: "archived"}},
			Resumes:  []ResumeUpload{},
		}}
		ts := newTestServer(t, &fakeAnalyzer{}, history)
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/history", nil), uuid.Nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var h History
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
		assert.Equal(t, sessionOf(t, rec), h.SessionID)
		require.Len(t, h.Analyses, 1)
		assert.Equal(t, "archived", h.Analyses[0].Result)
	})

	t.Run("archive error", func(t *testing.T) {
		ts := newTestServer(t, &fakeAnalyzer{}, fakeHistory{err: errors.New("db down")})
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/history", nil), uuid.Nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, &fakeAnalyzer{}, nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil), uuid.Nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
