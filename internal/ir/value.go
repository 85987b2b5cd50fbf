package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Value is a sealed interface representing the closed set of input and
// result values. Only Null, String, Int, Bool, Array, Object and Ref
// implement it. There is no float: floats break hash determinism.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents a JSON null value.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string value.
type String string

func (String) value() {}

// Int represents an integer value. Always int64; amounts that exceed int64
// are carried as decimal strings.
type Int int64

func (Int) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Array represents an ordered list of values.
type Array []Value

func (Array) value() {}

// Object represents a map of string keys to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// Ref is a reference to the future result of another action in the same
// build. Path optionally selects into an object (or array) result.
//
// Refs only appear in declared inputs. Results captured from an executor and
// inputs handed to an executor never contain them.
type Ref struct {
	Action string   `json:"$ref"`
	Path   []string `json:"path,omitempty"`
}

func (Ref) value() {}

// String renders the reference the way it is written in declarations.
func (r Ref) String() string {
	s := r.Action
	for _, p := range r.Path {
		s += "." + p
	}
	return "${" + s + "}"
}

// MarshalJSON implements json.Marshaler for Ref.
func (r Ref) MarshalJSON() ([]byte, error) {
	obj := Object{"$ref": String(r.Action)}
	if len(r.Path) > 0 {
		path := make(Array, len(r.Path))
		for i, p := range r.Path {
			path[i] = String(p)
		}
		obj["path"] = path
	}
	return obj.MarshalJSON()
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*obj = make(Object, len(raw))
	for k, v := range raw {
		val, err := UnmarshalValue(v)
		if err != nil {
			return fmt.Errorf("object key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Array.
func (arr *Array) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*arr = make(Array, len(raw))
	for i, v := range raw {
		val, err := UnmarshalValue(v)
		if err != nil {
			return fmt.Errorf("array index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// UnmarshalValue decodes a JSON value into the appropriate Value type.
// Floats are rejected. An object whose only keys are "$ref" and optionally
// "path" decodes to a Ref.
func UnmarshalValue(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case 'n':
		return Null{}, nil

	case '[':
		var arr Array
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		return arr, nil

	case '{':
		var obj Object
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		if ref, ok := refFromObject(obj); ok {
			return ref, nil
		}
		return obj, nil

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not allowed in values: %s", string(data))
		}
		return Int(i), nil
	}
}

// refFromObject recognizes the JSON encoding of a Ref.
func refFromObject(obj Object) (Ref, bool) {
	action, ok := obj["$ref"].(String)
	if !ok {
		return Ref{}, false
	}
	ref := Ref{Action: string(action)}
	switch len(obj) {
	case 1:
		return ref, true
	case 2:
		path, ok := obj["path"].(Array)
		if !ok {
			return Ref{}, false
		}
		for _, p := range path {
			s, ok := p.(String)
			if !ok {
				return Ref{}, false
			}
			ref.Path = append(ref.Path, string(s))
		}
		return ref, true
	}
	return Ref{}, false
}

// MarshalJSON implements json.Marshaler for Object with RFC 8785 key order.
// NOTE: This is NOT canonical marshaling - it may HTML-escape. Use
// MarshalCanonical for anything that is hashed.
func (obj Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for Array.
func (arr Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("marshal array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalValue marshals a Value to JSON bytes.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for hashing.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Bool:
		return json.Marshal(bool(val))
	case Array:
		return val.MarshalJSON()
	case Object:
		return val.MarshalJSON()
	case Ref:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// FromAny converts a decoded YAML/JSON tree (maps, slices, scalars) into a
// Value. Strings are kept verbatim; reference syntax is interpreted by the
// compiler, not here. Floats are rejected unless they are whole numbers.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint64:
		if val > 1<<63-1 {
			return String(strconv.FormatUint(val, 10)), nil
		}
		return Int(int64(val)), nil
	case json.Number:
		i, err := val.Int64()
		if err != nil {
			if _, ferr := val.Float64(); ferr == nil && !isIntegerLiteral(val.String()) {
				return nil, fmt.Errorf("floats are not allowed in values: %s", val)
			}
			// Integer literal too large for int64: keep as decimal string.
			return String(val.String()), nil
		}
		return Int(i), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are not allowed in values: %v", val)
		}
		return Int(int64(val)), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	case map[any]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string object key %v", k)
			}
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", key, err)
			}
			obj[key] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

func isIntegerLiteral(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Refs returns every Ref contained in v, depth-first in canonical key order.
func Refs(v Value) []Ref {
	var refs []Ref
	walkRefs(v, &refs)
	return refs
}

func walkRefs(v Value, refs *[]Ref) {
	switch val := v.(type) {
	case Ref:
		*refs = append(*refs, val)
	case Array:
		for _, elem := range val {
			walkRefs(elem, refs)
		}
	case Object:
		for _, k := range val.SortedKeys() {
			walkRefs(val[k], refs)
		}
	}
}

// Lookup selects into v following path. Object segments are keys; array
// segments are decimal indexes. An empty path returns v itself.
func Lookup(v Value, path []string) (Value, bool) {
	cur := v
	for _, seg := range path {
		switch val := cur.(type) {
		case Object:
			next, ok := val[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case Array:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(val) {
				return nil, false
			}
			cur = val[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Equal reports whether two values are structurally identical.
func Equal(a, b Value) bool {
	ca, errA := MarshalCanonical(a)
	cb, errB := MarshalCanonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}
