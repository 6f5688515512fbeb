// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Terminator is the data payload that signals intentional end of stream.
const Terminator = "[DONE]"

// EventError is the event type of an explicit service error record.
const EventError = "error"

// MaxRecordSize bounds the bytes buffered for a single record (1MB).
const MaxRecordSize = 1024 * 1024

// ErrRecordTooLarge is returned when a record exceeds MaxRecordSize.
var ErrRecordTooLarge = errors.New("stream record too large")

// =============================================================================
// EVENT
// =============================================================================

// Event is one parsed record.
type Event struct {
	Type string
	Data []byte
}

// IsDone reports whether the record is the end-of-stream terminator.
func (e Event) IsDone() bool {
	return string(bytes.TrimSpace(e.Data)) == Terminator
}

// IsError reports whether the record carries the dedicated error event type.
func (e Event) IsError() bool {
	return e.Type == EventError
}

// =============================================================================
// READER
// =============================================================================

// Reader splits a byte stream into records. Reads may end anywhere inside a
// line; only complete lines are parsed.
type Reader struct {
	reader *bufio.Reader
	done   bool
}

// NewReader creates a reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{reader: bufio.NewReader(r)}
}

// Next returns the next record that carries data. It returns io.EOF once the
// underlying stream is exhausted. A final record not followed by a blank line
// is still returned before io.EOF.
func (r *Reader) Next() (Event, error) {
	if r.done {
		return Event{}, io.EOF
	}

	var (
		eventType string
		data      [][]byte
		size      int
	)
	flush := func() Event {
		ev := Event{Type: eventType, Data: bytes.Join(data, []byte("\n"))}
		eventType, data, size = "", nil, 0
		return ev
	}

	for {
		line, err := r.readLine(MaxRecordSize - size)
		if err != nil && err != io.EOF {
			return Event{}, err
		}
		eof := err == io.EOF

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(data) > 0 {
				if eof {
					r.done = true
				}
				return flush(), nil
			}
			if eof {
				r.done = true
				return Event{}, io.EOF
			}
			eventType = ""
			continue
		}

		size += len(line)
		if size > MaxRecordSize {
			return Event{}, ErrRecordTooLarge
		}

		field, value := splitField(line)
		switch field {
		case "event":
			eventType = string(value)
		case "data":
			data = append(data, value)
		}
		// id:, retry: and ":" comments carry nothing we use.

		if eof {
			r.done = true
			if len(data) > 0 {
				return flush(), nil
			}
			return Event{}, io.EOF
		}
	}
}

// readLine returns the next line including its newline. At most limit bytes
// are buffered; longer lines fail with ErrRecordTooLarge.
func (r *Reader) readLine(limit int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.reader.ReadSlice('\n')
		if len(line)+len(chunk) > limit+2 {
			return nil, ErrRecordTooLarge
		}
		line = append(line, chunk...)
		switch {
		case err == nil:
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == io.EOF:
			return line, io.EOF
		default:
			return nil, fmt.Errorf("read stream: %w", err)
		}
	}
}

// splitField splits "name: value", dropping one optional space after the colon.
func splitField(line []byte) (string, []byte) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return string(line), nil
	}
	if i == 0 {
		return "", nil
	}
	value := line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:i]), value
}
