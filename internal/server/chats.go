// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/storage"
)

// ChatUpdate is the body of PUT /api/chats/:id. Absent fields are left as
// stored.
type ChatUpdate struct {
	Title      *string                        `json:"title"`
	Settings   *model.Settings                `json:"settings"`
	Messages   *[]*model.Message              `json:"messages"`
	Branches   *map[string]*model.BranchPoint `json:"branches"`
	Bookmarked *bool                          `json:"bookmarked"`
}

// apply merges the update into conv. Messages without an id get one.
func (u ChatUpdate) apply(conv *model.Conversation) {
	if u.Title != nil {
		conv.Title = strings.TrimSpace(*u.Title)
		if conv.Title == "" {
			conv.Title = model.DefaultTitle
		}
	}
	if u.Settings != nil {
		conv.Settings = u.Settings.Clone()
	}
	if u.Messages != nil {
		msgs := make([]*model.Message, 0, len(*u.Messages))
		for _, m := range *u.Messages {
			if m == nil {
				continue
			}
			if m.ID == "" {
				m.ID = model.NewID()
			}
			msgs = append(msgs, m)
		}
		conv.Messages = msgs
	}
	if u.Branches != nil {
		conv.Branches = *u.Branches
	}
	if u.Bookmarked != nil {
		conv.Bookmarked = *u.Bookmarked
	}
}

func (s *Server) handleListChats(c echo.Context) error {
	metas, err := s.store.List(c.Request().Context())
	if err != nil {
		return err
	}
	if metas == nil {
		metas = []model.ConversationMeta{}
	}
	return c.JSON(http.StatusOK, metas)
}

func (s *Server) handleSearchChats(c echo.Context) error {
	mode := storage.SearchMode(c.QueryParam("mode"))
	results, err := storage.Search(c.Request().Context(), s.store, c.QueryParam("q"), mode)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, results)
}

func (s *Server) handleCreateChat(c echo.Context) error {
	conv := model.NewConversation()
	if err := s.store.Save(c.Request().Context(), conv); err != nil {
		return storeError(err)
	}
	s.log.Debug().Str("chat", conv.ID).Msg("chat created")
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) handleGetChat(c echo.Context) error {
	conv, err := s.store.Load(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) handleUpdateChat(c echo.Context) error {
	var u ChatUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	ctx := c.Request().Context()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conv, err := s.store.Load(ctx, c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	u.apply(conv)
	if err := s.store.Save(ctx, conv); err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) handleDeleteChat(c echo.Context) error {
	id := c.Param("id")
	if err := s.store.Delete(c.Request().Context(), id); err != nil {
		return storeError(err)
	}
	s.log.Debug().Str("chat", id).Msg("chat deleted")
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
