// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/storage"
)

// Upload is the response to POST /api/chats/:id/upload.
type Upload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Filename string `json:"filename"`
}

// uploadMimeType picks the part's declared type, then the extension's, then
// a generic binary type.
func uploadMimeType(declared, name string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		if base, _, err := mime.ParseMediaType(t); err == nil {
			return base
		}
		return t
	}
	return "application/octet-stream"
}

func (s *Server) handleUpload(c echo.Context) error {
	id := c.Param("id")
	if !storage.ValidID(id) {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid chat id")
	}
	ctx := c.Request().Context()
	if _, err := s.store.Load(ctx, id); err != nil {
		return storeError(err)
	}

	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, s.cfg.MaxUploadSize+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing file")
	}
	if fh.Size > s.cfg.MaxUploadSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "File too large")
	}
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := filepath.Base(strings.ReplaceAll(fh.Filename, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	fileID := model.NewID()[:8]
	stored := fileID + "_" + name

	dir := s.store.FilesDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create files dir: %w", err)
	}
	dst, err := os.Create(filepath.Join(dir, stored))
	if err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(dir, stored))
		return fmt.Errorf("write upload: %w", err)
	}
	s.metrics.uploadBytes.Add(float64(n))

	up := Upload{
		ID:       fileID,
		Name:     name,
		Type:     uploadMimeType(fh.Header.Get(echo.HeaderContentType), name),
		Size:     n,
		Filename: stored,
	}
	s.log.Debug().Str("chat", id).Str("file", stored).Int64("size", n).Msg("file uploaded")
	return c.JSON(http.StatusOK, up)
}

func (s *Server) handleServeFile(c echo.Context) error {
	id := c.Param("id")
	if !storage.ValidID(id) {
		return echo.NewHTTPError(http.StatusNotFound, "File not found")
	}
	name := filepath.Base(c.Param("filename"))
	if name == "." || name == ".." || name == "/" {
		return echo.NewHTTPError(http.StatusNotFound, "File not found")
	}
	path := filepath.Join(s.store.FilesDir(id), name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return echo.NewHTTPError(http.StatusNotFound, "File not found")
		}
		return err
	}
	return c.File(path)
}
