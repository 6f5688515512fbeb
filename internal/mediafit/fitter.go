// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mediafit

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// =============================================================================
// ERRORS & CONSTANTS
// =============================================================================

var (
	// ErrCannotFit means no candidate satisfied the budget.
	ErrCannotFit = errors.New("image cannot be reduced to fit the size limit")

	// ErrUndecodable means the source is not a decodable image.
	ErrUndecodable = errors.New("image cannot be decoded")

	// ErrZeroBudget means the budget admits no file at all.
	ErrZeroBudget = errors.New("size limit is zero")

	// ErrSkipped means the user chose not to attach the file.
	ErrSkipped = errors.New("attachment skipped")
)

// NoBudget disables the size constraint.
const NoBudget int64 = -1

// Search defaults.
const (
	DefaultQuality     = 92
	DefaultMinScale    = 0.1
	DefaultIterations  = 8
	DefaultTargetRatio = 0.94
)

// DefaultQualities is the descending list of quality levels searched after
// the full-resolution re-encode fails.
var DefaultQualities = []int{85, 75, 65, 50}

// =============================================================================
// TYPES
// =============================================================================

// File is an attachment's content and metadata.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Size returns the byte size of the file.
func (f File) Size() int64 { return int64(len(f.Data)) }

// Encoder decodes a source image once and re-encodes it at a given scale and
// quality.
type Encoder interface {
	Decode(data []byte) (image.Image, error)
	Encode(img image.Image, scale float64, quality int) ([]byte, error)
	MimeType() string
	Extension() string
}

// Result describes what Fit produced.
type Result struct {
	File    File
	Choice  Choice
	Changed bool
	Quality int
	Scale   float64
}

// =============================================================================
// FITTER
// =============================================================================

// Fitter runs the fit search.
type Fitter struct {
	Encoder        Encoder
	Prompter       Prompter
	DefaultQuality int
	Qualities      []int
	MinScale       float64
	Iterations     int
	TargetRatio    float64
	Logger         zerolog.Logger
}

// New creates a fitter with default search parameters and a JPEG encoder.
func New(prompter Prompter, logger zerolog.Logger) *Fitter {
	return &Fitter{
		Encoder:        JPEGEncoder{},
		Prompter:       prompter,
		DefaultQuality: DefaultQuality,
		Qualities:      DefaultQualities,
		MinScale:       DefaultMinScale,
		Iterations:     DefaultIterations,
		TargetRatio:    DefaultTargetRatio,
		Logger:         logger,
	}
}

// Fit returns a file that satisfies budget. In preflight mode the keep
// option is not offered, since an oversized file would be rejected anyway.
// Keep returns the original unchanged; every other successful result is at
// most budget bytes.
func (f *Fitter) Fit(ctx context.Context, file File, budget int64, preflight bool) (Result, error) {
	if budget == 0 {
		return Result{}, ErrZeroBudget
	}
	if budget < 0 || file.Size() <= budget {
		return Result{File: file}, nil
	}

	img, err := f.Encoder.Decode(file.Data)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrUndecodable, file.Name, err)
	}

	choice, err := f.choose(ctx, file, budget, preflight)
	if err != nil {
		return Result{}, err
	}
	switch choice {
	case ChoiceKeep:
		return Result{File: file, Choice: ChoiceKeep}, nil
	case ChoiceConvert:
	default:
		return Result{Choice: ChoiceSkip}, ErrSkipped
	}

	best, err := f.search(ctx, img, budget)
	if err != nil {
		return Result{}, err
	}
	if best == nil {
		f.Logger.Warn().
			Str("file", file.Name).
			Int64("size", file.Size()).
			Int64("budget", budget).
			Msg("image cannot fit budget")
		return Result{}, fmt.Errorf("%w: %s", ErrCannotFit, file.Name)
	}

	out := File{
		Name:     replaceExt(file.Name, f.Encoder.Extension()),
		MimeType: f.Encoder.MimeType(),
		Data:     best.data,
	}
	f.Logger.Info().
		Str("file", file.Name).
		Int("quality", best.quality).
		Float64("scale", best.scale).
		Str("size", humanize.Bytes(uint64(out.Size()))).
		Str("budget", humanize.Bytes(uint64(budget))).
		Msg("image fitted")
	return Result{
		File:    out,
		Choice:  ChoiceConvert,
		Changed: true,
		Quality: best.quality,
		Scale:   best.scale,
	}, nil
}

func (f *Fitter) choose(ctx context.Context, file File, budget int64, preflight bool) (Choice, error) {
	if f.Prompter == nil {
		return ChoiceConvert, nil
	}
	choice, err := f.Prompter.Choose(ctx, Prompt{
		Filename:  file.Name,
		Size:      file.Size(),
		Budget:    budget,
		AllowKeep: !preflight,
	})
	if err != nil {
		return ChoiceSkip, err
	}
	if choice == ChoiceKeep && preflight {
		return ChoiceSkip, nil
	}
	return choice, nil
}

// =============================================================================
// SEARCH
// =============================================================================

type candidate struct {
	data    []byte
	quality int
	scale   float64
}

func (c *candidate) size() int64 {
	if c == nil {
		return -1
	}
	return int64(len(c.data))
}

// search returns the largest passing candidate, or nil.
func (f *Fitter) search(ctx context.Context, img image.Image, budget int64) (*candidate, error) {
	target := int64(float64(budget) * f.TargetRatio)

	first, err := f.encode(ctx, img, 1.0, f.DefaultQuality)
	if err != nil {
		return nil, err
	}
	if first.size() <= budget {
		return first, nil
	}

	var best *candidate
	for _, quality := range f.Qualities {
		levelBest, err := f.searchLevel(ctx, img, budget, target, quality)
		if err != nil {
			return nil, err
		}
		if levelBest.size() > best.size() {
			best = levelBest
		}
		if best.size() >= target {
			break
		}
	}
	return best, nil
}

// searchLevel bisects the scale at one quality level and returns the largest
// passing candidate.
func (f *Fitter) searchLevel(ctx context.Context, img image.Image, budget, target int64, quality int) (*candidate, error) {
	full, err := f.encode(ctx, img, 1.0, quality)
	if err != nil {
		return nil, err
	}
	if full.size() <= budget {
		return full, nil
	}

	var best *candidate
	lo, hi := f.MinScale, 1.0
	for i := 0; i < f.Iterations; i++ {
		mid := (lo + hi) / 2
		c, err := f.encode(ctx, img, mid, quality)
		if err != nil {
			return nil, err
		}
		if c.size() <= budget {
			if c.size() > best.size() {
				best = c
			}
			if best.size() >= target {
				break
			}
			lo = mid
		} else {
			hi = mid
		}
	}
	return best, nil
}

func (f *Fitter) encode(ctx context.Context, img image.Image, scale float64, quality int) (*candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := f.Encoder.Encode(img, scale, quality)
	if err != nil {
		return nil, fmt.Errorf("encode at quality %d scale %.3f: %w", quality, scale, err)
	}
	f.Logger.Debug().Int("quality", quality).Float64("scale", scale).Int("bytes", len(data)).Msg("fit candidate")
	return &candidate{data: data, quality: quality, scale: scale}, nil
}

func replaceExt(name, ext string) string {
	if name == "" {
		return "image" + ext
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return base + ext
}
