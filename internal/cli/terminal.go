// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"io"
	"os"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// isTerminal reports whether w writes to a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// =============================================================================
// HIGHLIGHTING
// =============================================================================

// formatterFor picks the chroma formatter matching the terminal's colors.
func formatterFor(p termenv.Profile) chroma.Formatter {
	name := "terminal"
	switch p {
	case termenv.TrueColor:
		name = "terminal16m"
	case termenv.ANSI256:
		name = "terminal256"
	case termenv.Ascii:
		return nil
	}
	return formatters.Get(name)
}

// writeHighlighted writes src to w, colored as language when w is a terminal
// that supports color.
func writeHighlighted(w io.Writer, src []byte, language string) error {
	var formatter chroma.Formatter
	if isTerminal(w) && os.Getenv("NO_COLOR") == "" {
		formatter = formatterFor(termenv.NewOutput(w).Profile)
	}
	if formatter == nil {
		_, err := w.Write(src)
		return err
	}

	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, string(src))
	if err != nil {
		_, err = w.Write(src)
		return err
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		_, err = w.Write(src)
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}
