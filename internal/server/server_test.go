// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/forkchat/internal/keys"
	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/storage"
	"github.com/jeranaias/forkchat/internal/stream"
	"github.com/jeranaias/forkchat/internal/upstream"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeUpstream replays a canned body or fails with err.
type fakeUpstream struct {
	mu     sync.Mutex
	body   io.Reader
	err    error
	gotKey string
	got    map[string]any
}

func (f *fakeUpstream) Open(_ context.Context, key string, body map[string]any) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotKey = key
	f.got = body
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(f.body), nil
}

type fixture struct {
	srv   *Server
	store storage.Store
	keys  *keys.Store
	up    *fakeUpstream
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("OPENROUTER_API_KEY", "")
	dir := t.TempDir()
	st, err := storage.NewFileStore(dir)
	require.NoError(t, err)
	ks := keys.NewStore(filepath.Join(dir, "keys.json"))
	up := &fakeUpstream{}
	srv := New(Config{}, Deps{Store: st, Keys: ks, Upstream: up, Logger: zerolog.Nop()})
	return &fixture{srv: srv, store: st, keys: ks, up: up}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seed(t *testing.T, msgs ...*model.Message) *model.Conversation {
	t.Helper()
	conv := model.NewConversation()
	conv.Messages = msgs
	require.NoError(t, f.store.Save(context.Background(), conv))
	return conv
}

func decodeEvents(t *testing.T, body string) []stream.Event {
	t.Helper()
	r := stream.NewReader(strings.NewReader(body))
	var out []stream.Event
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

// =============================================================================
// CHAT CRUD TESTS
// =============================================================================

func TestCreateGetUpdateDelete(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/chats", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var created model.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, model.DefaultTitle, created.Title)
	assert.Equal(t, model.DefaultSettings().Model, created.Settings.Model)

	update := `{"title":"Trip","messages":[{"role":"user","content":"hi"}],"bookmarked":true}`
	rec = f.do(t, http.MethodPut, "/api/chats/"+created.ID, strings.NewReader(update), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := f.store.Load(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Trip", got.Title)
	assert.True(t, got.Bookmarked)
	require.Len(t, got.Messages, 1)
	assert.NotEmpty(t, got.Messages[0].ID)
	assert.Equal(t, created.Settings.Model, got.Settings.Model, "absent fields are kept")

	rec = f.do(t, http.MethodGet, "/api/chats/"+created.ID, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/chats/"+created.ID, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/chats/"+created.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Chat not found")
}

func TestListAndSearch(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, model.NewUserMessage("the quick brown fox jumps over the lazy dog"))
	a.Title = "Animals"
	require.NoError(t, f.store.Save(context.Background(), a))
	f.seed(t, model.NewUserMessage("nothing here"))

	rec := f.do(t, http.MethodGet, "/api/chats", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var metas []model.ConversationMeta
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metas))
	assert.Len(t, metas, 2)

	rec = f.do(t, http.MethodGet, "/api/chats/search?q=fox&mode=content", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var results []storage.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, a.ID, results[0].ID)
	assert.Contains(t, results[0].Snippet, "fox")

	rec = f.do(t, http.MethodGet, "/api/chats/search?q=", nil, "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestUpdateMissingChat(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/api/chats/nope", strings.NewReader(`{"title":"x"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// GENERATE TESTS
// =============================================================================

func TestGenerateAppendsReply(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.keys.Update(map[string]string{"openrouter": "sk-test"}))
	conv := f.seed(t, model.NewUserMessage("hi"))

	upstreamBody := "data: {\"choices\":[{\"delta\":{\"reasoning\":\"think \"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" Hel\"}}]}\n\n" +
		": keepalive\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo \"}}]}\n\n" +
		"data: [DONE]\n\n"
	f.up.body = strings.NewReader(upstreamBody)

	rec := f.do(t, http.MethodPost, "/api/chats/"+conv.ID+"/generate", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, upstreamBody, rec.Body.String(), "upstream records pass through verbatim")
	assert.Equal(t, "sk-test", f.up.gotKey)
	assert.Equal(t, true, f.up.got["stream"])

	got, err := f.store.Load(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	reply := got.Messages[1]
	assert.Equal(t, model.RoleModel, reply.Role)
	assert.Equal(t, "Hello", reply.Content)
	assert.Equal(t, "think", reply.Reasoning)
	assert.NotEmpty(t, reply.ID)
}

func TestGenerateEmptyReplyNotStored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.keys.Update(map[string]string{"openrouter": "sk"}))
	conv := f.seed(t, model.NewUserMessage("hi"))
	f.up.body = strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"  \"}}]}\n\ndata: [DONE]\n\n")

	f.do(t, http.MethodPost, "/api/chats/"+conv.ID+"/generate", nil, "")

	got, err := f.store.Load(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1)
}

func TestGenerateNoKey(t *testing.T) {
	f := newFixture(t)
	conv := f.seed(t, model.NewUserMessage("hi"))

	rec := f.do(t, http.MethodPost, "/api/chats/"+conv.ID+"/generate", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	events := decodeEvents(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.True(t, events[0].IsError())
	_, err := stream.Decode(events[0])
	var se *stream.ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Nil(t, f.up.got, "upstream never called")
}

func TestGenerateUpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "status",
			err:        &upstream.StatusError{Status: 429, Message: "rate limited"},
			wantStatus: 429,
			wantMsg:    "rate limited",
		},
		{
			name:       "transport",
			err:        &upstream.TransportError{Err: errors.New("connection refused")},
			wantStatus: http.StatusBadGateway,
			wantMsg:    "Network failure while calling upstream: connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.keys.Update(map[string]string{"openrouter": "sk"}))
			conv := f.seed(t, model.NewUserMessage("hi"))
			f.up.err = tt.err

			rec := f.do(t, http.MethodPost, "/api/chats/"+conv.ID+"/generate", nil, "")
			events := decodeEvents(t, rec.Body.String())
			require.Len(t, events, 1)
			_, err := stream.Decode(events[0])
			var se *stream.ServiceError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.wantStatus, se.Status)
			assert.Equal(t, tt.wantMsg, se.Message)
		})
	}
}

func TestGenerateMidStreamFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.keys.Update(map[string]string{"openrouter": "sk"}))
	conv := f.seed(t, model.NewUserMessage("hi"))
	f.up.body = io.MultiReader(
		strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n\n"),
		iotest.ErrReader(errors.New("reset by peer")),
	)

	rec := f.do(t, http.MethodPost, "/api/chats/"+conv.ID+"/generate", nil, "")
	events := decodeEvents(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.True(t, events[1].IsError())

	got, err := f.store.Load(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1, "failed stream appends nothing")
}

func TestGenerateDisconnect(t *testing.T) {
	const partial = "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n"
	tests := []struct {
		name     string
		body     string
		wantMsgs int
	}{
		{"before terminator skips append", partial, 1},
		{"after terminator still appends", partial + "data: [DONE]\n\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.keys.Update(map[string]string{"openrouter": "sk"}))
			conv := f.seed(t, model.NewUserMessage("hi"))
			f.up.body = strings.NewReader(tt.body)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			req := httptest.NewRequest(http.MethodPost, "/api/chats/"+conv.ID+"/generate", nil).WithContext(ctx)
			rec := httptest.NewRecorder()
			f.srv.Handler().ServeHTTP(rec, req)

			got, err := f.store.Load(context.Background(), conv.ID)
			require.NoError(t, err)
			assert.Len(t, got.Messages, tt.wantMsgs)
		})
	}
}

// beforeRead runs fn once, ahead of the first read from r.
type beforeRead struct {
	r    io.Reader
	fn   func()
	once sync.Once
}

func (b *beforeRead) Read(p []byte) (int, error) {
	b.once.Do(b.fn)
	return b.r.Read(p)
}

func TestGenerateKeepsReplySavedByClient(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.keys.Update(map[string]string{"openrouter": "sk"}))
	conv := f.seed(t, model.NewUserMessage("hi"))

	// The client stops early and stores its partial reply while the
	// service is still reading the upstream.
	f.up.body = &beforeRead{
		r: strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"full reply\"}}]}\n\ndata: [DONE]\n\n"),
		fn: func() {
			saved := conv.Clone()
			partial := model.NewModelMessage()
			partial.Content = "full"
			saved.AddMessage(partial)
			require.NoError(t, f.store.Save(context.Background(), saved))
		},
	}

	f.do(t, http.MethodPost, "/api/chats/"+conv.ID+"/generate", nil, "")

	got, err := f.store.Load(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2, "reply stored once")
	assert.Equal(t, "full", got.Messages[1].Content)
}

func TestGenerateMissingChat(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/chats/missing/generate", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// FILE TESTS
// =============================================================================

func multipartBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadAndServe(t *testing.T) {
	f := newFixture(t)
	conv := f.seed(t)

	body, ct := multipartBody(t, "../../notes.txt", []byte("hello file"))
	rec := f.do(t, http.MethodPost, "/api/chats/"+conv.ID+"/upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var up Upload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.Len(t, up.ID, 8)
	assert.Equal(t, "notes.txt", up.Name)
	assert.Equal(t, up.ID+"_notes.txt", up.Filename)
	assert.Equal(t, "text/plain", up.Type)
	assert.EqualValues(t, 10, up.Size)

	data, err := os.ReadFile(filepath.Join(f.store.FilesDir(conv.ID), up.Filename))
	require.NoError(t, err)
	assert.Equal(t, "hello file", string(data))

	rec = f.do(t, http.MethodGet, "/api/chats/"+conv.ID+"/files/"+up.Filename, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello file", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/chats/"+conv.ID+"/files/..%2F..%2Fkeys.json", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadMimeType(t *testing.T) {
	assert.Equal(t, "image/png", uploadMimeType("image/png", "x.bin"))
	assert.Equal(t, "image/png", uploadMimeType("application/octet-stream", "x.png"))
	assert.Equal(t, "application/octet-stream", uploadMimeType("", "blob.unknownext"))
}

func TestUploadMissingFile(t *testing.T) {
	f := newFixture(t)
	conv := f.seed(t)
	rec := f.do(t, http.MethodPost, "/api/chats/"+conv.ID+"/upload", strings.NewReader(""), "multipart/form-data; boundary=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// KEYS, HEALTH & METRICS TESTS
// =============================================================================

func TestKeys(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/keys", nil, "")
	var status map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status["openrouter"])

	rec = f.do(t, http.MethodPost, "/api/keys", strings.NewReader(`{"openrouter":"sk-1"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status["openrouter"])
	assert.NotContains(t, rec.Body.String(), "sk-1", "keys are never echoed")

	f.do(t, http.MethodPost, "/api/keys", strings.NewReader(`{"openrouter":""}`), "application/json")
	assert.Empty(t, f.keys.Get("openrouter"))
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var h HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)

	conv := f.seed(t, model.NewUserMessage("hi"))
	f.do(t, http.MethodPost, "/api/chats/"+conv.ID+"/generate", nil, "")

	rec = f.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `forkchat_generations_total{outcome="no_key"} 1`)
	assert.Contains(t, rec.Body.String(), "forkchat_http_requests_total")
}

func TestRateLimit(t *testing.T) {
	dir := t.TempDir()
	st, err := storage.NewFileStore(dir)
	require.NoError(t, err)
	srv := New(Config{RateLimit: 1, RateBurst: 1}, Deps{Store: st, Upstream: &fakeUpstream{}, Logger: zerolog.Nop()})

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chats", nil))
		codes[i] = rec.Code
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health is not rate limited")
}
