package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"arx/app/middleware"
	"arx/rag"
	"arx/store"
	"arx/types"
)

type memIndex struct {
	entries []types.ScoredChunk
	docs    map[string]struct{}
}

func newMemIndex() *memIndex {
	return &memIndex{docs: make(map[string]struct{})}
}

func (m *memIndex) Add(ctx context.Context, chunks []types.Chunk) error {
	for _, c := range chunks {
		m.docs[c.Meta.DocumentID] = struct{}{}
		m.entries = append(m.entries, types.ScoredChunk{Chunk: c})
	}
	return nil
}

func (m *memIndex) Search(ctx context.Context, query string, k int) ([]types.ScoredChunk, error) {
	if k < len(m.entries) {
		return m.entries[:k], nil
	}
	return m.entries, nil
}

func (m *memIndex) Reset(ctx context.Context) error {
	m.entries = nil
	m.docs = make(map[string]struct{})
	return nil
}

func (m *memIndex) Reload(ctx context.Context) error { return nil }

func (m *memIndex) DocumentIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{}, len(m.docs))
	for id := range m.docs {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (m *memIndex) Count(ctx context.Context) (int, error) { return len(m.entries), nil }

type staticGenerator struct{ output string }

func (g staticGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.output, nil
}

type zeroScorer struct{}

func (zeroScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	return make([]float64, len(texts)), nil
}

type textExtractor struct{}

func (textExtractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	return string(data), nil
}

type wordTok struct{}

func (wordTok) Count(text string) int { return len(strings.Fields(text)) }

func (wordTok) Truncate(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text
	}
	return strings.Join(words[:maxTokens], " ")
}

// fakeHistory is an in-memory HistoryStorer.
type fakeHistory struct {
	threads map[string]types.Thread
	turns   map[string][]types.ConversationTurn
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		threads: make(map[string]types.Thread),
		turns:   make(map[string][]types.ConversationTurn),
	}
}

func (f *fakeHistory) EnsureThread(ctx context.Context, threadID, userID string) (types.Thread, error) {
	if t, ok := f.threads[threadID]; ok {
		return t, nil
	}
	t := types.Thread{ID: threadID, UserID: userID, Title: store.DefaultThreadTitle}
	f.threads[threadID] = t
	return t, nil
}

func (f *fakeHistory) CreateThread(ctx context.Context, userID string) (types.Thread, error) {
	return f.EnsureThread(ctx, store.NewThreadID(), userID)
}

func (f *fakeHistory) RenameThread(ctx context.Context, threadID, title string) error {
	t, ok := f.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s not found", threadID)
	}
	t.Title = title
	f.threads[threadID] = t
	return nil
}

func (f *fakeHistory) DeleteThread(ctx context.Context, threadID string) error {
	if _, ok := f.threads[threadID]; !ok {
		return fmt.Errorf("thread %s not found", threadID)
	}
	delete(f.threads, threadID)
	delete(f.turns, threadID)
	return nil
}

func (f *fakeHistory) ListThreads(ctx context.Context, userID string) ([]types.Thread, error) {
	var out []types.Thread
	for _, t := range f.threads {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeHistory) ListThreadPreviews(ctx context.Context, userID string) ([]types.ThreadPreview, error) {
	var out []types.ThreadPreview
	for _, t := range f.threads {
		if t.UserID == userID {
			out = append(out, types.ThreadPreview{ThreadID: t.ID, Title: t.Title})
		}
	}
	return out, nil
}

func (f *fakeHistory) SaveTurn(ctx context.Context, userID, sessionID, threadID, question, answer string) error {
	f.turns[threadID] = append(f.turns[threadID], types.ConversationTurn{User: question, Assistant: answer})
	return nil
}

func (f *fakeHistory) Turns(ctx context.Context, userID, sessionID, threadID string, nbMessages int) ([]types.ConversationTurn, error) {
	return f.turns[threadID], nil
}

func newTestApp(history store.HistoryStorer, idx *memIndex) *fiber.App {
	opts := rag.DefaultOptions()
	opts.Retry = rag.RetryPolicy{Attempts: 1, Backoff: 0}
	opts.Summarize = false

	engine := rag.NewEngine(idx, staticGenerator{output: "a generated answer"}, zeroScorer{}, textExtractor{}, wordTok{}, opts)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	askHandler := NewAskHandler(engine, history)
	threadHandler := NewThreadHandler(history)
	adminHandler := NewAdminHandler(engine)

	apiv1 := app.Group("/api/v1")
	apiv1.Post("/ask", askHandler.HandleAsk)
	apiv1.Get("/history", threadHandler.HandleHistory)
	apiv1.Get("/chats", threadHandler.HandleChats)
	apiv1.Get("/threads", threadHandler.HandleListThreads)
	apiv1.Post("/threads", threadHandler.HandleCreateThread)
	apiv1.Put("/threads/:id", threadHandler.HandleRenameThread)
	apiv1.Delete("/threads/:id", threadHandler.HandleDeleteThread)

	admin := app.Group("/admin", middleware.AdminAuth("secret"))
	admin.Post("/reload_index", adminHandler.HandleReloadIndex)
	admin.Post("/reset_index", adminHandler.HandleResetIndex)
	admin.Post("/add_document", adminHandler.HandleAddDocument)

	return app
}

func multipartRequest(t *testing.T, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for name, content := range files {
		part, err := writer.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeAsk(t *testing.T, resp *http.Response) types.AskResponse {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out types.AskResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestHandleAskMissingSessionID(t *testing.T) {
	app := newTestApp(newFakeHistory(), newMemIndex())

	req := multipartRequest(t, map[string]string{"question": "hello"}, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestHandleAskNoQuestionNoFiles(t *testing.T) {
	app := newTestApp(newFakeHistory(), newMemIndex())

	req := multipartRequest(t, map[string]string{"session_id": "s1"}, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleAskDirectQuestion(t *testing.T) {
	history := newFakeHistory()
	app := newTestApp(history, newMemIndex())

	req := multipartRequest(t, map[string]string{
		"question":   "what is the answer to everything",
		"session_id": "s1",
		"user_id":    "u1",
		"use_rag":    "false",
	}, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeAsk(t, resp)
	require.Equal(t, "a generated answer", out.Answer)
	require.NotEmpty(t, out.ThreadID)
	require.Equal(t, "s1", out.SessionID)

	// The turn is persisted and the fresh thread gets auto-titled from
	// the question's first six words.
	require.Len(t, history.turns[out.ThreadID], 1)
	require.Equal(t, "what is the answer to everything", history.threads[out.ThreadID].Title)
}

func TestHandleAskWithFileIngests(t *testing.T) {
	history := newFakeHistory()
	idx := newMemIndex()
	app := newTestApp(history, idx)

	req := multipartRequest(t,
		map[string]string{"session_id": "s1", "use_rag": "false"},
		map[string]string{"notes.txt": "Some uploaded text to index."},
	)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeAsk(t, resp)
	require.Equal(t, "a generated answer", out.Answer)
	require.Len(t, out.Ingested, 1)
	require.Equal(t, "added", out.Ingested[0].Status.String())
	require.NotEmpty(t, idx.entries)
}

func TestAdminAuth(t *testing.T) {
	app := newTestApp(newFakeHistory(), newMemIndex())

	req := httptest.NewRequest(http.MethodPost, "/admin/reload_index", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/admin/reload_index", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/admin/reload_index", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminAddDocumentAndReset(t *testing.T) {
	idx := newMemIndex()
	app := newTestApp(newFakeHistory(), idx)

	body, _ := json.Marshal(types.AddDocumentParams{Text: "Raw admin text.", Source: "manual", Title: "manual"})
	req := httptest.NewRequest(http.MethodPost, "/admin/add_document", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, idx.entries)

	req = httptest.NewRequest(http.MethodPost, "/admin/reset_index", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, idx.entries)
}

func TestThreadLifecycle(t *testing.T) {
	history := newFakeHistory()
	app := newTestApp(history, newMemIndex())

	body, _ := json.Marshal(map[string]string{"user_id": "u1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/threads", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var thread types.Thread
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &thread))
	require.NotEmpty(t, thread.ID)

	body, _ = json.Marshal(types.ThreadParams{UserID: "u1", Title: "renamed"})
	req = httptest.NewRequest(http.MethodPut, "/api/v1/threads/"+thread.ID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "renamed", history.threads[thread.ID].Title)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/chats?user_id=u1", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var previews []types.ThreadPreview
	raw, _ = io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &previews))
	require.Len(t, previews, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/threads?user_id=u1", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var threads []types.Thread
	raw, _ = io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &threads))
	require.Len(t, threads, 1)
	require.Equal(t, thread.ID, threads[0].ID)
	require.Equal(t, "renamed", threads[0].Title)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/threads/"+thread.ID, nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotContains(t, history.threads, thread.ID)
}

func TestHandleHistoryRequiresThreadID(t *testing.T) {
	app := newTestApp(newFakeHistory(), newMemIndex())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
