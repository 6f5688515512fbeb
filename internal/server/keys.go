// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleGetKeys(c echo.Context) error {
	if s.keys == nil {
		return c.JSON(http.StatusOK, map[string]bool{})
	}
	return c.JSON(http.StatusOK, s.keys.Status())
}

// handleUpdateKeys sets the posted keys; an empty value clears one.
func (s *Server) handleUpdateKeys(c echo.Context) error {
	if s.keys == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Key storage disabled")
	}
	var body map[string]string
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := s.keys.Update(body); err != nil {
		return err
	}
	s.log.Info().Int("providers", len(body)).Msg("api keys updated")
	return c.JSON(http.StatusOK, s.keys.Status())
}
