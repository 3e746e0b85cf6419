// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"strings"
)

// wrapSlop is how far past the wrap column a final line may run, so that one short word does
// not end up on a line by itself.  This is the same rule that pflag's FlagUsagesWrapped uses,
// which keeps our text and pflag's flag table looking alike.
const wrapSlop = 5

// Wrap wraps s to width w.  A w of 0 disables wrapping.
func Wrap(w int, s string) string {
	return wrapText(0, w, s)
}

// WrapIndent is like Wrap, but indents every line after the first by i columns.  The caller is
// responsible for the first line already being at column i.
func WrapIndent(i, w int, s string) string {
	return wrapText(i, w, s)
}

// cutLine splits off the first line of s, breaking at whitespace before column width.  It
// does not break if s (plus slop) fits, or if there is no place to break.
func cutLine(width int, s string) (line, rest string) {
	if width+wrapSlop > len(s) {
		return s, ""
	}
	sp := strings.LastIndexAny(s[:width], " \t\n")
	if sp <= 0 {
		return s, ""
	}
	if nl := strings.LastIndex(s[:width], "\n"); nl > 0 && nl < sp {
		sp = nl
	}
	return s[:sp], s[sp+1:]
}

func wrapText(indent, w int, s string) string {
	reindent := func(str string) string {
		return strings.ReplaceAll(str, "\n", "\n"+strings.Repeat(" ", indent))
	}
	if w == 0 {
		return reindent(s)
	}
	width := w - indent
	if width < 24 {
		// Too narrow; fall back to a fixed indent.
		indent = 16
		width = w - indent
		if width < 24 {
			return reindent(s)
		}
	}
	width -= wrapSlop

	var out strings.Builder
	line, rest := cutLine(width, s)
	out.WriteString(line)
	rest = reindent(rest)
	for rest != "" {
		line, rest = cutLine(width, rest)
		out.WriteString("\n" + strings.Repeat(" ", indent) + line)
	}
	return out.String()
}
