// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client talks to the conversation service over HTTP. It satisfies
// generation.Service and adds the listing, search and upload calls the
// terminal client needs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/storage"
)

const (
	// DefaultBaseURL matches the server's default listen address.
	DefaultBaseURL = "http://127.0.0.1:8000"

	// DefaultTimeout bounds non-streaming calls.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 64 << 10
)

// APIError is a non-success response from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("service error (%d): %s", e.Status, e.Message)
}

// Client is a conversation service client.
type Client struct {
	base *url.URL

	// http is used for bounded calls; streaming has no overall timeout and is
	// governed by the request context.
	http      *http.Client
	streaming *http.Client
}

// New creates a client for baseURL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		base:      u,
		http:      &http.Client{Transport: transport, Timeout: timeout},
		streaming: &http.Client{Transport: transport},
	}, nil
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// List returns conversation metadata, newest first.
func (c *Client) List(ctx context.Context) ([]model.ConversationMeta, error) {
	var out []model.ConversationMeta
	err := c.doJSON(ctx, http.MethodGet, "/api/chats", nil, &out)
	return out, err
}

// Search finds conversations matching query.
func (c *Client) Search(ctx context.Context, query string, mode storage.SearchMode) ([]storage.SearchResult, error) {
	q := url.Values{"q": {query}}
	if mode != "" {
		q.Set("mode", string(mode))
	}
	var out []storage.SearchResult
	err := c.doJSON(ctx, http.MethodGet, "/api/chats/search?"+q.Encode(), nil, &out)
	return out, err
}

// Create starts a new conversation.
func (c *Client) Create(ctx context.Context) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.doJSON(ctx, http.MethodPost, "/api/chats", nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Load reads a conversation.
func (c *Client) Load(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.doJSON(ctx, http.MethodGet, chatPath(id), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Save writes the full conversation state.
func (c *Client) Save(ctx context.Context, conv *model.Conversation) error {
	return c.doJSON(ctx, http.MethodPut, chatPath(conv.ID), conv, nil)
}

// Delete removes a conversation.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, chatPath(id), nil, nil)
}

// Generate opens the response event stream. The caller closes the body;
// cancelling ctx aborts the request.
func (c *Client) Generate(ctx context.Context, id string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodPost, chatPath(id)+"/generate", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.streaming.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp.Body, nil
}

// =============================================================================
// FILES & KEYS
// =============================================================================

// Upload is the service's record of a stored attachment.
type Upload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Filename string `json:"filename"`
}

// Ref converts the upload into an attachment reference.
func (u Upload) Ref() model.AttachmentRef {
	return model.AttachmentRef{
		ID:          u.ID,
		Filename:    u.Filename,
		DisplayName: u.Name,
		MimeType:    u.Type,
		Size:        u.Size,
	}
}

// Upload sends one file as multipart form data.
func (c *Client) Upload(ctx context.Context, chatID, name, mimeType string, data []byte) (Upload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return Upload{}, fmt.Errorf("create part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return Upload{}, fmt.Errorf("write part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Upload{}, fmt.Errorf("close multipart: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, chatPath(chatID)+"/upload", &buf)
	if err != nil {
		return Upload{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var up Upload
	if err := c.do(req, &up); err != nil {
		return Upload{}, err
	}
	return up, nil
}

// KeyStatus reports which providers have a key configured.
func (c *Client) KeyStatus(ctx context.Context) (map[string]bool, error) {
	out := map[string]bool{}
	err := c.doJSON(ctx, http.MethodGet, "/api/keys", nil, &out)
	return out, err
}

// SetKeys updates provider keys; an empty value clears one.
func (c *Client) SetKeys(ctx context.Context, keys map[string]string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/keys", keys, nil)
}

// Models returns the service's model catalog.
func (c *Client) Models(ctx context.Context) (model.Catalog, error) {
	var out model.Catalog
	err := c.doJSON(ctx, http.MethodGet, "/api/models", nil, &out)
	return out, err
}

// =============================================================================
// HELPERS
// =============================================================================

func chatPath(id string) string {
	return "/api/chats/" + url.PathEscape(id)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "forkchat")
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readAPIError builds an APIError from the "detail" or "message" field.
func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := http.StatusText(resp.StatusCode)
	if gjson.ValidBytes(raw) {
		for _, path := range []string{"detail", "message", "error.message", "error"} {
			if r := gjson.GetBytes(raw, path); r.Type == gjson.String && r.String() != "" {
				msg = r.String()
				break
			}
		}
	} else if s := strings.TrimSpace(string(raw)); s != "" {
		msg = s
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
