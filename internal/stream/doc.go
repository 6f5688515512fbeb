// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream parses the line-oriented event stream returned by the
// generation endpoint and decodes its records into answer and reasoning
// fragments.
//
// Records are separated by blank lines. Each record carries an optional
// "event:" line and one or more "data:" lines. The payload "[DONE]" marks
// intentional end of stream; a stream that closes without it is treated the
// same way.
//
// Usage:
//
//	r := stream.NewReader(resp.Body)
//	for {
//	    ev, err := r.Next()
//	    if err == io.EOF || ev.IsDone() {
//	        break
//	    }
//	    delta, err := stream.Decode(ev)
//	    ...
//	}
package stream
