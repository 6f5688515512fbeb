// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package keys stores provider API keys in keys.json, falling back to the
// provider's environment variable when no key was saved.
package keys

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/forkchat/internal/util"
)

// EnvVars maps each known provider to the environment variable consulted
// when keys.json has no entry.
var EnvVars = map[string]string{
	"openrouter": "OPENROUTER_API_KEY",
	"google":     "GOOGLE_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"openai":     "OPENAI_API_KEY",
}

// Providers returns the known provider names in sorted order.
func Providers() []string {
	out := make([]string, 0, len(EnvVars))
	for p := range EnvVars {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Store reads and writes the key file. Keys are never returned over the API;
// only Status is.
type Store struct {
	path   string
	getenv func(string) string

	mu sync.Mutex
}

// NewStore creates a store over path.
func NewStore(path string) *Store {
	return &Store{path: path, getenv: os.Getenv}
}

// Get returns the key for provider, or "" when none is configured.
func (s *Store) Get(provider string) string {
	s.mu.Lock()
	saved := s.load()
	s.mu.Unlock()

	if k := saved[provider]; k != "" {
		return k
	}
	if env, ok := EnvVars[provider]; ok {
		return s.getenv(env)
	}
	return ""
}

// Status reports which known providers have a key.
func (s *Store) Status() map[string]bool {
	out := make(map[string]bool, len(EnvVars))
	for _, p := range Providers() {
		out[p] = s.Get(p) != ""
	}
	return out
}

// Update saves the given keys. An empty value removes the provider's key.
func (s *Store) Update(keys map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.load()
	for provider, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			delete(current, provider)
		} else {
			current[provider] = key
		}
	}
	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keys: %w", err)
	}
	return util.AtomicWriteFileWithDir(s.path, data, 0600, 0700)
}

// load reads the key file; a missing or unreadable file means no keys.
func (s *Store) load() map[string]string {
	keys := map[string]string{}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return keys
	}
	if err := json.Unmarshal(data, &keys); err != nil {
		return map[string]string{}
	}
	return keys
}
