// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mediafit

import "context"

// Choice is the user's answer to an oversized image.
type Choice int

const (
	ChoiceConvert Choice = iota
	ChoiceKeep
	ChoiceSkip
)

// String returns the choice name.
func (c Choice) String() string {
	switch c {
	case ChoiceConvert:
		return "convert"
	case ChoiceKeep:
		return "keep"
	default:
		return "skip"
	}
}

// ParseChoice accepts "convert", "keep" or "skip" and their first letters.
func ParseChoice(s string) (Choice, bool) {
	switch s {
	case "convert", "c":
		return ChoiceConvert, true
	case "keep", "k":
		return ChoiceKeep, true
	case "skip", "s":
		return ChoiceSkip, true
	}
	return ChoiceSkip, false
}

// Prompt describes the question put to the user.
type Prompt struct {
	Filename  string
	Size      int64
	Budget    int64
	AllowKeep bool
}

// Prompter asks the user what to do with an oversized image.
type Prompter interface {
	Choose(ctx context.Context, p Prompt) (Choice, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, p Prompt) (Choice, error)

// Choose calls fn.
func (fn PrompterFunc) Choose(ctx context.Context, p Prompt) (Choice, error) {
	return fn(ctx, p)
}

// Always answers every prompt with the same choice.
func Always(c Choice) Prompter {
	return PrompterFunc(func(context.Context, Prompt) (Choice, error) { return c, nil })
}
