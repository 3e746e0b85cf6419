// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pymodule

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// This is just enough of a Python tokenizer to find the top-level statements of a module and
// recognize the two shapes we care about:
//
//	"""docstring"""
//	__version__ = "1.0"

type tokKind int

const (
	tokName tokKind = iota
	tokString
	tokOp
	tokOther
)

type pyToken struct {
	kind tokKind
	text string
	// For tokString: the decoded value, and whether it is a plain str (not bytes or an
	// f-string).
	value string
	plain bool
}

// statement is one logical line.
type statement struct {
	indent int
	toks   []pyToken
}

var stringPrefixes = map[string]bool{
	"": true, "r": true, "u": true, "b": true, "f": true,
	"br": true, "rb": true, "fr": true, "rf": true,
}

// splitStatements tokenizes src in to logical lines.  Tokenizing stops quietly at anything
// it doesn't understand; the statements before that point are still returned.
func splitStatements(src string) []statement {
	var stmts []statement
	var cur *statement
	depth := 0
	atLineStart := true
	indent := 0

	flush := func() {
		if cur != nil && len(cur.toks) > 0 {
			stmts = append(stmts, *cur)
		}
		cur = nil
	}
	emit := func(tok pyToken) {
		if cur == nil {
			cur = &statement{indent: indent}
		}
		cur.toks = append(cur.toks, tok)
	}

	src = strings.TrimPrefix(src, "\ufeff")
	for i := 0; i < len(src); {
		c := src[i]
		if atLineStart {
			col := 0
			for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\f') {
				if src[i] == '\t' {
					col = (col/8 + 1) * 8
				} else {
					col++
				}
				i++
			}
			indent = col
			atLineStart = false
			continue
		}
		switch {
		case c == '\n' || c == '\r':
			i++
			if depth == 0 {
				flush()
				atLineStart = true
			}
		case c == ' ' || c == '\t' || c == '\f':
			i++
		case c == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '\\' && i+1 < len(src) && (src[i+1] == '\n' || src[i+1] == '\r'):
			i += 2
			if i < len(src) && src[i-1] == '\r' && src[i] == '\n' {
				i++
			}
		case c == ';' && depth == 0:
			i++
			flush()
		case c == '"' || c == '\'':
			tok, n := scanString(src[i:], "")
			if n == 0 {
				flush()
				return stmts
			}
			emit(tok)
			i += n
		case isNameStart(src[i:]):
			start := i
			for i < len(src) {
				r, size := utf8.DecodeRuneInString(src[i:])
				if !(r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
					break
				}
				i += size
			}
			name := src[start:i]
			if i < len(src) && (src[i] == '"' || src[i] == '\'') && stringPrefixes[strings.ToLower(name)] {
				tok, n := scanString(src[i:], strings.ToLower(name))
				if n == 0 {
					flush()
					return stmts
				}
				tok.text = name + tok.text
				emit(tok)
				i += n
				continue
			}
			emit(pyToken{kind: tokName, text: name})
		case strings.ContainsRune("([{", rune(c)):
			depth++
			emit(pyToken{kind: tokOp, text: string(c)})
			i++
		case strings.ContainsRune(")]}", rune(c)):
			if depth > 0 {
				depth--
			}
			emit(pyToken{kind: tokOp, text: string(c)})
			i++
		case c == '=' || c == ':' || c == ',' || c == '.':
			// "==" and friends are never part of the shapes we match, so a lone "=" is
			// enough.
			if c == '=' && i+1 < len(src) && src[i+1] == '=' {
				emit(pyToken{kind: tokOp, text: "=="})
				i += 2
				continue
			}
			emit(pyToken{kind: tokOp, text: string(c)})
			i++
		default:
			_, size := utf8.DecodeRuneInString(src[i:])
			emit(pyToken{kind: tokOther, text: src[i : i+size]})
			i += size
		}
	}
	flush()
	return stmts
}

func isNameStart(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r == '_' || unicode.IsLetter(r)
}

// scanString scans a string literal at the start of s (after any prefix, which is passed
// separately in lower case).  It returns the number of bytes consumed, or 0 if the literal is
// unterminated.
func scanString(s, prefix string) (pyToken, int) {
	quote := s[:1]
	if strings.HasPrefix(s, quote+quote+quote) {
		quote = quote + quote + quote
	}
	raw := strings.Contains(prefix, "r")
	i := len(quote)
	for i < len(s) {
		switch {
		case strings.HasPrefix(s[i:], quote):
			body := s[len(quote):i]
			value := body
			if !raw {
				value = unescape(body)
			}
			plain := !strings.ContainsAny(prefix, "bf")
			return pyToken{kind: tokString, text: s[:i+len(quote)], value: value, plain: plain},
				i + len(quote)
		case s[i] == '\\':
			i += 2
		case s[i] == '\n' && len(quote) == 1:
			return pyToken{}, 0
		default:
			i++
		}
	}
	return pyToken{}, 0
}

// unescape interprets backslash escapes in a non-raw string body.  Unknown escapes are kept
// verbatim, as Python does.
func unescape(body string) string {
	if !strings.Contains(body, `\`) {
		return body
	}
	var ret strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] != '\\' || i+1 == len(body) {
			ret.WriteByte(body[i])
			continue
		}
		i++
		switch c := body[i]; c {
		case '\n':
		case '\\', '\'', '"':
			ret.WriteByte(c)
		case 'a':
			ret.WriteByte('\a')
		case 'b':
			ret.WriteByte('\b')
		case 'f':
			ret.WriteByte('\f')
		case 'n':
			ret.WriteByte('\n')
		case 'r':
			ret.WriteByte('\r')
		case 't':
			ret.WriteByte('\t')
		case 'v':
			ret.WriteByte('\v')
		case 'x', 'u', 'U':
			width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
			if end := i + 1 + width; end <= len(body) {
				if n, err := strconv.ParseUint(body[i+1:end], 16, 32); err == nil {
					ret.WriteRune(rune(n))
					i = end - 1
					continue
				}
			}
			ret.WriteByte('\\')
			ret.WriteByte(c)
		default:
			if c >= '0' && c <= '7' {
				end := i
				for end < len(body) && end < i+3 && body[end] >= '0' && body[end] <= '7' {
					end++
				}
				n, _ := strconv.ParseUint(body[i:end], 8, 32)
				ret.WriteRune(rune(n))
				i = end - 1
				continue
			}
			ret.WriteByte('\\')
			ret.WriteByte(c)
		}
	}
	return ret.String()
}

// stringValue returns the concatenated value of toks if they are all plain string literals,
// possibly in parentheses.
func stringValue(toks []pyToken) (string, bool) {
	for len(toks) >= 2 && toks[0].text == "(" && toks[len(toks)-1].text == ")" &&
		toks[0].kind == tokOp && toks[len(toks)-1].kind == tokOp {
		toks = toks[1 : len(toks)-1]
	}
	if len(toks) == 0 {
		return "", false
	}
	var ret strings.Builder
	for _, tok := range toks {
		if tok.kind != tokString || !tok.plain {
			return "", false
		}
		ret.WriteString(tok.value)
	}
	return ret.String(), true
}

// staticDocstringAndVersion finds the module docstring and a literal string assignment to
// __version__ at the top level of src.  Either result may be empty.
func staticDocstringAndVersion(src string) (docstring, version string) {
	stmts := splitStatements(src)
	if len(stmts) > 0 {
		if doc, ok := stringValue(stmts[0].toks); ok {
			docstring = cleanDoc(doc)
		}
	}
	for _, stmt := range stmts {
		if stmt.indent != 0 {
			continue
		}
		if ver, ok := versionAssignment(stmt.toks); ok {
			version = ver
			break
		}
	}
	return docstring, version
}

// versionAssignment matches "NAME = [NAME = ...] STRING+" where one of the targets is
// __version__.
func versionAssignment(toks []pyToken) (string, bool) {
	isTarget := false
	i := 0
	for i+1 < len(toks) && toks[i].kind == tokName && toks[i+1].kind == tokOp && toks[i+1].text == "=" {
		if toks[i].text == "__version__" {
			isTarget = true
		}
		i += 2
	}
	if !isTarget {
		return "", false
	}
	return stringValue(toks[i:])
}

// cleanDoc removes the indentation of a docstring, like inspect.cleandoc.
func cleanDoc(doc string) string {
	lines := strings.Split(expandTabs(doc), "\n")
	margin := -1
	for _, line := range lines[1:] {
		content := strings.TrimLeft(line, " ")
		if content == "" {
			continue
		}
		if indent := len(line) - len(content); margin < 0 || indent < margin {
			margin = indent
		}
	}
	lines[0] = strings.TrimLeft(lines[0], " \t\n\r\f\v")
	if margin > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) > margin {
				lines[i] = lines[i][margin:]
			} else {
				lines[i] = strings.TrimLeft(lines[i], " ")
			}
		}
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var ret strings.Builder
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			n := 8 - col%8
			ret.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n', '\r':
			ret.WriteRune(r)
			col = 0
		default:
			ret.WriteRune(r)
			col++
		}
	}
	return ret.String()
}
