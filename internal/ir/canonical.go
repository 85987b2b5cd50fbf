package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for hashing.
// This is the ONLY serialization used for identity computation.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. No floats (returns error)
//  5. Refs are encoded as {"$ref": id, "path": [...]}
func MarshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return marshalCanonicalString(string(val))
	case Int:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case Bool:
		return []byte(strconv.FormatBool(bool(val))), nil
	case Array:
		return marshalCanonicalArray(val)
	case Object:
		return marshalCanonicalObject(val)
	case Ref:
		obj := Object{"$ref": String(val.Action)}
		if len(val.Path) > 0 {
			path := make(Array, len(val.Path))
			for i, p := range val.Path {
				path[i] = String(p)
			}
			obj["path"] = path
		}
		return marshalCanonicalObject(obj)
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		conv, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("canonical JSON: %w", err)
		}
		return MarshalCanonical(conv)
	}
}

// marshalCanonicalString produces a canonical JSON string.
// Only control characters, backslash and quote are escaped; U+2028 and
// U+2029 are emitted literally as RFC 8785 requires.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder adds a trailing newline.
	result := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	return unescapeLineSeparators(result), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters, leaving escaped backslashes
// followed by "u2028" text untouched.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' {
			out = append(out, data[i])
			continue
		}
		// Escape sequence: copy the escaped pair unless it is \u2028/\u2029.
		if i+5 < len(data) && data[i+1] == 'u' && data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' &&
			(data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		out = append(out, data[i])
		if i+1 < len(data) {
			out = append(out, data[i+1])
			i++
		}
	}
	return out
}

func marshalCanonicalArray(arr Array) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj Object) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
