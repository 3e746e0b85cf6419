// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package direct_url

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf16"
)

// jsonDumps encodes v the way Python's `json.dumps(v, sort_keys=True)` would with its default
// separators and ensure_ascii.  Since pip writes direct_url.json that way, so do we.
func jsonDumps(v interface{}) ([]byte, error) {
	// Go through an untyped value so that struct tags and omitempty get applied.
	typed, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(typed))
	dec.UseNumber()
	var untyped interface{}
	if err := dec.Decode(&untyped); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pyDump(&buf, untyped); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pyDump(buf *bytes.Buffer, v interface{}) error {
	switch v := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			pyString(buf, k)
			buf.WriteString(": ")
			if err := pyDump(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteString(", ")
			}
			if err := pyDump(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case string:
		pyString(buf, v)
	case json.Number:
		buf.WriteString(v.String())
	case bool:
		fmt.Fprint(buf, v)
	case nil:
		buf.WriteString("null")
	default:
		return fmt.Errorf("jsonDumps: unexpected %T", v)
	}
	return nil
}

// pyString writes a string literal with everything outside of printable ASCII escaped.
func pyString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r >= 0x20 && r <= 0x7f:
			buf.WriteRune(r)
		case r > 0xffff:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(buf, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(buf, `\u%04x`, r)
		}
	}
	buf.WriteByte('"')
}
