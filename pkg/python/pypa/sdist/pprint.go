// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package sdist

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// pyDict is rendered as a Python dict literal with sorted keys.  Values are string, []string,
// or pyDict.
type pyDict map[string]interface{}

func (d pyDict) sortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// pyRepr renders a value the way Python's repr() does.
func pyRepr(val interface{}) string {
	switch val := val.(type) {
	case nil:
		return "None"
	case string:
		return pyReprStr(val)
	case []string:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, pyReprStr(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case pyDict:
		parts := make([]string, 0, len(val))
		for _, k := range val.sortedKeys() {
			parts = append(parts, pyReprStr(k)+": "+pyRepr(val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		panic(fmt.Errorf("pyRepr: unsupported type %T", val))
	}
}

func pyReprStr(str string) string {
	quote := '\''
	if strings.ContainsRune(str, '\'') && !strings.ContainsRune(str, '"') {
		quote = '"'
	}
	var ret strings.Builder
	ret.WriteRune(quote)
	for _, r := range str {
		switch {
		case r == quote || r == '\\':
			ret.WriteRune('\\')
			ret.WriteRune(r)
		case r == '\n':
			ret.WriteString(`\n`)
		case r == '\r':
			ret.WriteString(`\r`)
		case r == '\t':
			ret.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&ret, `\x%02x`, r)
		default:
			ret.WriteRune(r)
		}
	}
	ret.WriteRune(quote)
	return ret.String()
}

const pprintWidth = 80

// pformat renders a value like Python's pprint.pformat() with the default settings: if the
// repr() doesn't fit in 80 columns, containers are broken up one item per line.
func pformat(val interface{}) string {
	var ret strings.Builder
	pprint(&ret, val, 0, 0)
	return ret.String()
}

func pprint(out *strings.Builder, val interface{}, indent, allowance int) {
	rep := pyRepr(val)
	if utf8.RuneCountInString(rep) <= pprintWidth-indent-allowance {
		out.WriteString(rep)
		return
	}
	switch val := val.(type) {
	case []string:
		if len(val) == 0 {
			out.WriteString(rep)
			return
		}
		out.WriteString("[")
		for i, item := range val {
			if i > 0 {
				out.WriteString(",\n" + strings.Repeat(" ", indent+1))
			}
			itemAllowance := 1
			if i == len(val)-1 {
				itemAllowance = allowance + 1
			}
			pprint(out, item, indent+1, itemAllowance)
		}
		out.WriteString("]")
	case pyDict:
		keys := val.sortedKeys()
		if len(keys) == 0 {
			out.WriteString(rep)
			return
		}
		out.WriteString("{")
		for i, key := range keys {
			if i > 0 {
				out.WriteString(",\n" + strings.Repeat(" ", indent+1))
			}
			keyRep := pyReprStr(key)
			out.WriteString(keyRep + ": ")
			itemAllowance := 1
			if i == len(keys)-1 {
				itemAllowance = allowance + 1
			}
			pprint(out, val[key], indent+1+utf8.RuneCountInString(keyRep)+2, itemAllowance)
		}
		out.WriteString("}")
	default:
		out.WriteString(rep)
	}
}
