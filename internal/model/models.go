// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes one model offered by a provider.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id" koanf:"id" toml:"id"`

	// Name is the human-readable display name
	Name string `json:"name" koanf:"name" toml:"name"`

	// Provider identifies the catalog section the model is listed under
	Provider string `json:"provider" koanf:"provider" toml:"provider"`

	// Multimodal lists the media categories the model accepts
	// ("image", "audio", "video").
	Multimodal []string `json:"multimodal,omitempty" koanf:"multimodal" toml:"multimodal"`
}

// Supports reports whether the model accepts the media category.
func (m ModelInfo) Supports(category string) bool {
	for _, c := range m.Multimodal {
		if c == category {
			return true
		}
	}
	return false
}

// Catalog is an ordered list of known models.
type Catalog []ModelInfo

// Lookup finds the model entry for a provider and model id.
func (c Catalog) Lookup(provider, id string) (ModelInfo, bool) {
	for _, m := range c {
		if m.ID == id && (m.Provider == "" || m.Provider == provider) {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// Capabilities returns the multimodal categories for the settings' model.
// Unknown models accept no media.
func (c Catalog) Capabilities(s Settings) map[string]bool {
	caps := make(map[string]bool)
	if m, ok := c.Lookup(s.Provider, s.Model); ok {
		for _, cat := range m.Multimodal {
			caps[cat] = true
		}
	}
	return caps
}
