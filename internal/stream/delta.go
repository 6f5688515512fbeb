// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// =============================================================================
// DELTA DECODING
// =============================================================================

// ReasoningFields lists the delta field names providers use for reasoning
// text. All of them feed the same channel; the first non-empty one wins.
var ReasoningFields = []string{"reasoning", "thinking", "reasoning_content"}

// ErrMalformed marks a record whose payload cannot be parsed. Callers skip it.
var ErrMalformed = errors.New("malformed stream record")

// Delta is the text carried by one record.
type Delta struct {
	Answer    string
	Reasoning string
}

// IsEmpty reports whether the delta carries no text.
func (d Delta) IsEmpty() bool {
	return d.Answer == "" && d.Reasoning == ""
}

// ServiceError is an explicit error reported inside the stream.
type ServiceError struct {
	Message string
	Status  int
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("service error (%d): %s", e.Status, e.Message)
	}
	return "service error: " + e.Message
}

// Decode interprets one record. It returns a *ServiceError for error records,
// ErrMalformed for payloads that are not valid JSON, and otherwise the first
// choice's answer and reasoning fragments.
func Decode(ev Event) (Delta, error) {
	if ev.IsError() {
		return Delta{}, errorFromRecord(ev.Data)
	}
	if !gjson.ValidBytes(ev.Data) {
		return Delta{}, ErrMalformed
	}
	payload := gjson.ParseBytes(ev.Data)
	if e := payload.Get("error"); e.Exists() && e.Type != gjson.Null {
		return Delta{}, errorFromRecord(ev.Data)
	}

	delta := payload.Get("choices.0.delta")
	if !delta.IsObject() {
		return Delta{}, nil
	}
	out := Delta{Answer: textOf(delta.Get("content"))}
	for _, field := range ReasoningFields {
		if r := textOf(delta.Get(field)); r != "" {
			out.Reasoning = r
			break
		}
	}
	return out, nil
}

// textOf accepts a plain string or a list of {"type":"text","text":...} parts.
func textOf(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		return v.Str
	case v.IsArray():
		var sb strings.Builder
		v.ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				sb.WriteString(part.Get("text").String())
			}
			return true
		})
		return sb.String()
	}
	return ""
}

func errorFromRecord(data []byte) *ServiceError {
	if !gjson.ValidBytes(data) {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = "unknown error"
		}
		return &ServiceError{Message: msg}
	}
	payload := gjson.ParseBytes(data)
	se := &ServiceError{}
	for _, path := range []string{"status_code", "status", "error.code"} {
		if s := payload.Get(path); s.Type == gjson.Number {
			se.Status = int(s.Int())
			break
		}
	}
	switch e := payload.Get("error"); {
	case e.Type == gjson.String:
		se.Message = e.Str
	case e.IsObject():
		se.Message = e.Get("message").String()
	}
	if se.Message == "" {
		se.Message = payload.Get("message").String()
	}
	if se.Message == "" {
		se.Message = "unknown error"
	}
	return se
}

// =============================================================================
// ACCUMULATOR
// =============================================================================

// Accumulator collects answer and reasoning text across records.
type Accumulator struct {
	answer    strings.Builder
	reasoning strings.Builder
	fragments int
}

// Add appends a delta. Empty deltas are ignored.
func (a *Accumulator) Add(d Delta) {
	if d.IsEmpty() {
		return
	}
	a.answer.WriteString(d.Answer)
	a.reasoning.WriteString(d.Reasoning)
	a.fragments++
}

// Answer returns the accumulated answer text.
func (a *Accumulator) Answer() string { return a.answer.String() }

// Reasoning returns the accumulated reasoning text.
func (a *Accumulator) Reasoning() string { return a.reasoning.String() }

// Fragments returns the number of non-empty deltas added.
func (a *Accumulator) Fragments() int { return a.fragments }

// =============================================================================
// CONSUME
// =============================================================================

// Consume reads records until the terminator, end of stream, or an error
// record. Each decoded delta is passed to fn. Malformed records are skipped.
// The returned error is a *ServiceError, a read error, or nil.
func Consume(r *Reader, fn func(Delta)) error {
	_, err := ConsumeTerminated(r, fn)
	return err
}

// ConsumeTerminated is Consume that also reports whether the stream ended
// with the terminator record rather than by closing.
func ConsumeTerminated(r *Reader, fn func(Delta)) (bool, error) {
	for {
		ev, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}
		if ev.IsDone() {
			return true, nil
		}
		d, err := Decode(ev)
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				continue
			}
			return false, err
		}
		if !d.IsEmpty() {
			fn(d)
		}
	}
}
