// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// DefaultURL is the OpenRouter chat completions endpoint.
	DefaultURL = "https://openrouter.ai/api/v1/chat/completions"

	// DefaultTimeout bounds connection setup and time to first byte. The body
	// itself is governed by the request context.
	DefaultTimeout = 90 * time.Second

	maxErrorBody = 1 << 20
)

// ErrNoAPIKey is returned when Open is called without a key.
var ErrNoAPIKey = errors.New("no API key configured")

// StatusError is a non-success upstream response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream error (%d): %s", e.Status, e.Message)
}

// TransportError wraps a connection-level failure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "Network failure while calling upstream: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client opens streaming completions.
type Client struct {
	URL  string
	HTTP *http.Client

	// Referer and Title are sent as OpenRouter attribution headers when set.
	Referer string
	Title   string
}

// NewClient returns a client for url, or DefaultURL when url is empty.
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		URL: url,
		HTTP: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: timeout,
			},
		},
		Title: "forkchat",
	}
}

// Open posts body and returns the event-stream response body. Callers must
// close it.
func (c *Client) Open(ctx context.Context, apiKey string, body map[string]any) (io.ReadCloser, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, apiKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Status: resp.StatusCode, Message: ErrorMessage(raw, resp.StatusCode)}
	}
	return resp.Body, nil
}

func (c *Client) setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.Referer != "" {
		req.Header.Set("HTTP-Referer", c.Referer)
	}
	if c.Title != "" {
		req.Header.Set("X-Title", c.Title)
	}
}

// ErrorMessage extracts the message from an upstream error body: the
// "error.message" field, a string "error", or a generic status line.
func ErrorMessage(raw []byte, status int) string {
	fallback := fmt.Sprintf("upstream request failed with status %d", status)
	if !gjson.ValidBytes(raw) {
		return fallback
	}
	e := gjson.GetBytes(raw, "error")
	switch {
	case e.Type == gjson.String:
		return e.String()
	case e.IsObject():
		if m := e.Get("message"); m.Exists() {
			return m.String()
		}
	}
	return fallback
}
