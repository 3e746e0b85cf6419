// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package python

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// Config maps section names to sections.
type Config map[string]ConfigSection

// ConfigSection maps option names to values.  Multi-line values are joined with "\n".
type ConfigSection map[string]string

// ConfigParser reads the INI dialect of Python's `configparser.ConfigParser` (without
// interpolation), which is what flit.ini and entry_points.txt are written in.
type ConfigParser struct {
	Delimiters      []string
	CommentPrefixes []string

	// Strict rejects duplicate sections and duplicate options within a section.
	Strict bool
	// EmptyLinesInValues allows blank lines inside a multi-line value.
	EmptyLinesInValues bool

	// OptionTransform is applied to option names; nil leaves them as written.
	OptionTransform func(string) string
}

func NewConfigParser() *ConfigParser {
	return &ConfigParser{
		Delimiters:         []string{"=", ":"},
		CommentPrefixes:    []string{"#", ";"},
		Strict:             true,
		EmptyLinesInValues: true,
		OptionTransform:    strings.ToLower,
	}
}

type iniState struct {
	*ConfigParser
	config Config

	section ConfigSection
	key     string
	val     []string // nil when not inside a value
	indent  int
}

func (st *iniState) flush() {
	if st.val == nil {
		return
	}
	st.section[st.key] = strings.TrimRight(strings.Join(st.val, "\n"), "\n")
	st.key, st.val = "", nil
}

func (st *iniState) isComment(trimmed string) bool {
	for _, prefix := range st.CommentPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func indentOf(line string) int {
	for i, r := range line {
		if !unicode.IsSpace(r) {
			return i
		}
	}
	return 0
}

func (st *iniState) line(lineno int, raw string) error {
	trimmed := strings.TrimSpace(raw)
	switch {
	case st.isComment(trimmed):
		return nil
	case trimmed == "":
		if !st.EmptyLinesInValues {
			st.indent = 0
		} else if st.val != nil {
			st.val = append(st.val, "")
		}
		return nil
	}

	indent := indentOf(raw)
	if st.val != nil && indent > 0 && indent > st.indent {
		st.val = append(st.val, trimmed)
		return nil
	}
	st.flush()
	st.indent = indent

	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		name := trimmed[1 : len(trimmed)-1]
		if _, dup := st.config[name]; dup {
			if st.Strict {
				return fmt.Errorf("line %d: duplicate section name %q", lineno, name)
			}
		} else {
			st.config[name] = make(ConfigSection)
		}
		st.section = st.config[name]
		return nil
	}

	if st.section == nil {
		return fmt.Errorf("line %d: no section header", lineno)
	}
	sep, sepLen := -1, 0
	for _, delim := range st.Delimiters {
		if i := strings.Index(trimmed, delim); i >= 0 && (sep < 0 || i < sep) {
			sep, sepLen = i, len(delim)
		}
	}
	if sep < 0 {
		return fmt.Errorf("line %d: invalid line: %q", lineno, trimmed)
	}
	key := strings.TrimSpace(trimmed[:sep])
	if st.OptionTransform != nil {
		key = st.OptionTransform(key)
	}
	if _, dup := st.section[key]; dup && st.Strict {
		return fmt.Errorf("line %d: duplicate option name %q", lineno, key)
	}
	st.key = key
	st.val = []string{strings.TrimSpace(trimmed[sep+sepLen:])}
	return nil
}

// Parse reads an INI document.
func (p *ConfigParser) Parse(r io.Reader) (Config, error) {
	st := &iniState{
		ConfigParser: p,
		config:       make(Config),
	}
	scanner := bufio.NewScanner(r)
	for lineno := 1; scanner.Scan(); lineno++ {
		if err := st.line(lineno, scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	st.flush()
	return st.config, nil
}
