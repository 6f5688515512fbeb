// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/stream"
	"github.com/jeranaias/forkchat/internal/upstream"
)

// flushWriter flushes after every write so proxied records reach the client
// as soon as they arrive.
type flushWriter struct {
	w *echo.Response
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err == nil {
		f.w.Flush()
	}
	return n, err
}

// writeErrorEvent emits the in-band error record.
func writeErrorEvent(w *echo.Response, msg string, status int) {
	payload, _ := json.Marshal(map[string]any{"error": msg, "status_code": status})
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", stream.EventError, payload)
	w.Flush()
}

func (s *Server) handleGenerate(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	conv, err := s.store.Load(ctx, id)
	if err != nil {
		return storeError(err)
	}
	log := s.log.With().Str("chat", id).Logger()

	w := c.Response()
	h := w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	s.metrics.active.Inc()
	defer s.metrics.active.Dec()

	key := ""
	if s.keys != nil {
		key = s.keys.Get(upstreamProvider)
	}
	if key == "" {
		s.metrics.generation(outcomeNoKey)
		writeErrorEvent(w, "No API key configured for "+upstreamProvider, http.StatusUnauthorized)
		return nil
	}

	body, err := s.upstream.Open(ctx, key, s.builder.Body(conv))
	if err != nil {
		var se *upstream.StatusError
		switch {
		case ctx.Err() != nil:
			s.metrics.generation(outcomeDisconnected)
		case errors.As(err, &se):
			s.metrics.generation(outcomeUpstream)
			log.Warn().Int("status", se.Status).Str("error", se.Message).Msg("upstream rejected request")
			writeErrorEvent(w, se.Message, se.Status)
		default:
			s.metrics.generation(outcomeTransport)
			log.Error().Err(err).Msg("upstream request failed")
			writeErrorEvent(w, transportMessage(err), http.StatusBadGateway)
		}
		return nil
	}
	defer body.Close()

	var acc stream.Accumulator
	terminated, err := stream.ConsumeTerminated(stream.NewReader(io.TeeReader(body, flushWriter{w})), acc.Add)

	var svcErr *stream.ServiceError
	switch {
	case err == nil && (terminated || ctx.Err() == nil):
		// Completed. After the terminator a client hang-up no longer matters.
	case ctx.Err() != nil:
		s.metrics.generation(outcomeDisconnected)
		log.Info().Int("fragments", acc.Fragments()).Msg("client disconnected")
		return nil
	case errors.As(err, &svcErr):
		// Already proxied to the client.
		s.metrics.generation(outcomeUpstream)
		log.Warn().Int("status", svcErr.Status).Str("error", svcErr.Message).Msg("upstream stream error")
		return nil
	case err != nil:
		s.metrics.generation(outcomeTransport)
		log.Error().Err(err).Msg("upstream stream failed")
		writeErrorEvent(w, transportMessage(err), http.StatusBadGateway)
		return nil
	}

	s.metrics.generation(outcomeCompleted)
	switch err := s.appendReply(context.WithoutCancel(ctx), id, lastMessageID(conv), acc.Answer(), acc.Reasoning()); {
	case errors.Is(err, errReplySuperseded):
		log.Info().Msg("reply already saved by the client")
	case err != nil:
		log.Error().Err(err).Msg("save reply failed")
	}
	return nil
}

// errReplySuperseded means the client stored its own copy of the reply first.
var errReplySuperseded = errors.New("conversation changed during generation")

// appendReply stores the finished model message on the latest stored copy.
// Empty replies are not stored. The reply is only appended while the stored
// conversation still ends where it ended when generation began; otherwise the
// client has already saved its own version of this turn.
func (s *Server) appendReply(ctx context.Context, id, afterID, answer, reasoning string) error {
	answer = strings.TrimSpace(answer)
	reasoning = strings.TrimSpace(reasoning)
	if answer == "" && reasoning == "" {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conv, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if lastMessageID(conv) != afterID {
		return errReplySuperseded
	}
	msg := model.NewModelMessage()
	msg.Content = answer
	msg.Reasoning = reasoning
	conv.AddMessage(msg)
	return s.store.Save(ctx, conv)
}

func lastMessageID(conv *model.Conversation) string {
	if last := conv.LastMessage(); last != nil {
		return last.ID
	}
	return ""
}

func transportMessage(err error) string {
	var te *upstream.TransportError
	if errors.As(err, &te) {
		return te.Error()
	}
	return "Network failure while calling upstream: " + err.Error()
}
