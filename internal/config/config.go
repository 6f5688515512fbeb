// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	koanftoml "github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/util"
)

// EnvPrefix prefixes environment overrides. Sections and keys are separated
// by a double underscore: FORKCHAT_SERVER__ADDR.
const EnvPrefix = "FORKCHAT_"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete forkchat configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server" toml:"server"`
	Client     ClientConfig     `koanf:"client" toml:"client"`
	Generation GenerationConfig `koanf:"generation" toml:"generation"`
	Media      MediaConfig      `koanf:"media" toml:"media"`
	Log        LogConfig        `koanf:"log" toml:"log"`

	// Models is the catalog consulted for multimodal capabilities.
	Models []model.ModelInfo `koanf:"models" toml:"models"`
}

// ServerConfig configures the conversation service.
type ServerConfig struct {
	Addr           string        `koanf:"addr" toml:"addr"`
	DataDir        string        `koanf:"data_dir" toml:"data_dir"`
	Store          string        `koanf:"store" toml:"store"`
	UpstreamURL    string        `koanf:"upstream_url" toml:"upstream_url"`
	RequestTimeout time.Duration `koanf:"request_timeout" toml:"request_timeout"`

	// RateLimit is API requests per second per client; 0 disables.
	RateLimit float64 `koanf:"rate_limit" toml:"rate_limit"`
	RateBurst int     `koanf:"rate_burst" toml:"rate_burst"`

	MaxUploadBytes int64 `koanf:"max_upload_bytes" toml:"max_upload_bytes"`
}

// ClientConfig configures the terminal client.
type ClientConfig struct {
	BaseURL string        `koanf:"base_url" toml:"base_url"`
	ChatID  string        `koanf:"chat_id" toml:"chat_id"`
	Timeout time.Duration `koanf:"timeout" toml:"timeout"`
}

// GenerationConfig tunes streaming display.
type GenerationConfig struct {
	RenderInterval time.Duration `koanf:"render_interval" toml:"render_interval"`
}

// MediaConfig tunes the image fit search.
type MediaConfig struct {
	MaxImageBytes  int64   `koanf:"max_image_bytes" toml:"max_image_bytes"`
	DefaultQuality int     `koanf:"default_quality" toml:"default_quality"`
	Qualities      []int   `koanf:"qualities" toml:"qualities"`
	MinScale       float64 `koanf:"min_scale" toml:"min_scale"`
	Iterations     int     `koanf:"iterations" toml:"iterations"`
	TargetRatio    float64 `koanf:"target_ratio" toml:"target_ratio"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level  string `koanf:"level" toml:"level"`
	Format string `koanf:"format" toml:"format"`
	File   string `koanf:"file" toml:"file"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := "data"
	if dir, err := ConfigDir(); err == nil {
		dataDir = filepath.Join(dir, "data")
	}
	return &Config{
		Server: ServerConfig{
			Addr:           "127.0.0.1:8000",
			DataDir:        dataDir,
			Store:          "file",
			UpstreamURL:    "https://openrouter.ai/api/v1/chat/completions",
			RequestTimeout: 90 * time.Second,
			RateLimit:      20,
			RateBurst:      40,
			MaxUploadBytes: 64 << 20,
		},
		Client: ClientConfig{
			BaseURL: "http://127.0.0.1:8000",
			Timeout: 30 * time.Second,
		},
		Generation: GenerationConfig{
			RenderInterval: 33 * time.Millisecond,
		},
		Media: MediaConfig{
			MaxImageBytes:  5 << 20,
			DefaultQuality: 92,
			Qualities:      []int{85, 75, 65, 50},
			MinScale:       0.1,
			Iterations:     8,
			TargetRatio:    0.94,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Models: DefaultModels(),
	}
}

// DefaultModels is the catalog used when the config file lists none.
func DefaultModels() []model.ModelInfo {
	return []model.ModelInfo{
		{ID: "google/gemini-3-pro-preview", Name: "Gemini 3 Pro", Provider: "openrouter", Multimodal: []string{"image", "audio", "video"}},
		{ID: "google/gemini-2.5-flash", Name: "Gemini 2.5 Flash", Provider: "openrouter", Multimodal: []string{"image", "audio", "video"}},
		{ID: "anthropic/claude-sonnet-4.5", Name: "Claude Sonnet 4.5", Provider: "openrouter", Multimodal: []string{"image"}},
		{ID: "openai/gpt-5", Name: "GPT-5", Provider: "openrouter", Multimodal: []string{"image"}},
		{ID: "deepseek/deepseek-r1", Name: "DeepSeek R1", Provider: "openrouter"},
	}
}

// defaultMap flattens Default into koanf keys. Models are left out so a file
// catalog replaces the built-in one instead of merging index by index.
func defaultMap() map[string]any {
	d := Default()
	return map[string]any{
		"server.addr":             d.Server.Addr,
		"server.data_dir":         d.Server.DataDir,
		"server.store":            d.Server.Store,
		"server.upstream_url":     d.Server.UpstreamURL,
		"server.request_timeout":  d.Server.RequestTimeout.String(),
		"server.rate_limit":       d.Server.RateLimit,
		"server.rate_burst":       d.Server.RateBurst,
		"server.max_upload_bytes": d.Server.MaxUploadBytes,

		"client.base_url": d.Client.BaseURL,
		"client.chat_id":  d.Client.ChatID,
		"client.timeout":  d.Client.Timeout.String(),

		"generation.render_interval": d.Generation.RenderInterval.String(),

		"media.max_image_bytes": d.Media.MaxImageBytes,
		"media.default_quality": d.Media.DefaultQuality,
		"media.qualities":       d.Media.Qualities,
		"media.min_scale":       d.Media.MinScale,
		"media.iterations":      d.Media.Iterations,
		"media.target_ratio":    d.Media.TargetRatio,

		"log.level":  d.Log.Level,
		"log.format": d.Log.Format,
		"log.file":   d.Log.File,
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the forkchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".forkchat"), nil
}

// DefaultPath returns the path to the default config file.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// Load builds the configuration from defaults, the config file and the
// environment. An empty path uses DefaultPath when that file exists; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		if p, err := DefaultPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), koanftoml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load TOML config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envKey maps FORKCHAT_SERVER__DATA_DIR to server.data_dir.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// SetDefaults fills zero values that have no meaningful zero setting.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Server.Store == "" {
		c.Server.Store = d.Server.Store
	}
	if c.Server.UpstreamURL == "" {
		c.Server.UpstreamURL = d.Server.UpstreamURL
	}
	if c.Client.BaseURL == "" {
		c.Client.BaseURL = d.Client.BaseURL
	}
	if len(c.Media.Qualities) == 0 {
		c.Media.Qualities = d.Media.Qualities
	}
	if len(c.Models) == 0 {
		c.Models = d.Models
	}
}

// Catalog returns the configured models as a catalog.
func (c *Config) Catalog() model.Catalog {
	return model.Catalog(c.Models)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Encode renders the configuration as TOML with a header comment.
func Encode(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# forkchat configuration file\n")
	buf.WriteString("# Environment overrides: FORKCHAT_SECTION__KEY, e.g. FORKCHAT_SERVER__ADDR\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// ErrExists is returned by WriteFile when the target exists and force is off.
var ErrExists = errors.New("configuration file already exists")

// WriteFile writes cfg to path atomically with owner-only permissions.
func WriteFile(cfg *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w at %s", ErrExists, path)
		}
	}
	data, err := Encode(cfg)
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// ==========================================================================
	// Server
	// ==========================================================================

	if c.Server.Addr == "" {
		add("server.addr", "must not be empty")
	}
	if c.Server.DataDir == "" {
		add("server.data_dir", "must not be empty")
	}
	switch c.Server.Store {
	case "file", "sqlite":
	default:
		add("server.store", "invalid store '%s', must be one of: file, sqlite", c.Server.Store)
	}
	if !validHTTPURL(c.Server.UpstreamURL) {
		add("server.upstream_url", "invalid URL '%s'", c.Server.UpstreamURL)
	}
	if c.Server.RequestTimeout < 0 {
		add("server.request_timeout", "must not be negative")
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must not be negative")
	}
	if c.Server.MaxUploadBytes < 0 {
		add("server.max_upload_bytes", "must not be negative")
	}

	// ==========================================================================
	// Client & Generation
	// ==========================================================================

	if !validHTTPURL(c.Client.BaseURL) {
		add("client.base_url", "invalid URL '%s'", c.Client.BaseURL)
	}
	if c.Generation.RenderInterval <= 0 || c.Generation.RenderInterval > time.Second {
		add("generation.render_interval", "must be between 1ms and 1s, got %s", c.Generation.RenderInterval)
	}

	// ==========================================================================
	// Media
	// ==========================================================================

	if c.Media.MaxImageBytes < 0 {
		add("media.max_image_bytes", "must not be negative")
	}
	if c.Media.DefaultQuality < 1 || c.Media.DefaultQuality > 100 {
		add("media.default_quality", "must be between 1 and 100, got %d", c.Media.DefaultQuality)
	}
	for i, q := range c.Media.Qualities {
		if q < 1 || q > 100 {
			add(fmt.Sprintf("media.qualities[%d]", i), "must be between 1 and 100, got %d", q)
		}
	}
	if c.Media.MinScale <= 0 || c.Media.MinScale >= 1 {
		add("media.min_scale", "must be in (0, 1), got %g", c.Media.MinScale)
	}
	if c.Media.Iterations < 1 {
		add("media.iterations", "must be at least 1")
	}
	if c.Media.TargetRatio <= 0 || c.Media.TargetRatio > 1 {
		add("media.target_ratio", "must be in (0, 1], got %g", c.Media.TargetRatio)
	}

	// ==========================================================================
	// Logging & Models
	// ==========================================================================

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		add("log.level", "invalid level '%s'", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		add("log.format", "invalid format '%s', must be one of: console, json", c.Log.Format)
	}
	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.ID == "" {
			add(fmt.Sprintf("models[%d].id", i), "must not be empty")
			continue
		}
		key := m.Provider + "|" + m.ID
		if seen[key] {
			add(fmt.Sprintf("models[%d].id", i), "duplicate model '%s'", m.ID)
		}
		seen[key] = true
		for _, cat := range m.Multimodal {
			switch cat {
			case "image", "audio", "video":
			default:
				add(fmt.Sprintf("models[%d].multimodal", i), "unknown category '%s'", cat)
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
