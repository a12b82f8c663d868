package metric

import (
	"errors"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

var errInvalidDocument = errors.New("result document is not valid JSON")

// Document is a read-only view over a raw result document.
type Document struct {
	root gjson.Result
}

// Value is the result of a lookup. The zero value is absent.
type Value struct {
	res gjson.Result
}

// ParseDocument validates raw JSON and wraps it in a Document.
func ParseDocument(raw []byte) (*Document, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errInvalidDocument
	}

	return &Document{root: gjson.ParseBytes(raw)}, nil
}

// Lookup walks the document through the given literal keys. Keys may contain
// dots or other path syntax; they are never interpreted.
func (d *Document) Lookup(keys ...string) Value {
	return Value{res: d.root.Get(joinPath(keys))}
}

// Exists reports whether the value is present (null counts as present).
func (v Value) Exists() bool {
	return v.res.Exists()
}

// IsObject reports whether the value is a JSON object.
func (v Value) IsObject() bool {
	return v.res.IsObject()
}

// Get walks further into the value through literal keys.
func (v Value) Get(keys ...string) Value {
	if !v.res.Exists() {
		return Value{}
	}

	return Value{res: v.res.Get(joinPath(keys))}
}

// Number returns the numeric value, if the value is a JSON number.
func (v Value) Number() (float64, bool) {
	if v.res.Type != gjson.Number {
		return 0, false
	}

	return v.res.Num, true
}

// Truthy returns the numeric value only when it is a nonzero, finite number.
// Missing, null, zero, overflowing and non-numeric values are all reported as
// absent.
func (v Value) Truthy() (float64, bool) {
	n, ok := v.Number()
	if !ok || n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}

	return n, true
}

// String returns the value as a string, or "" when absent.
func (v Value) String() string {
	if !v.res.Exists() || v.res.Type == gjson.Null {
		return ""
	}

	return v.res.String()
}

// Array returns the elements of an array value. Non-arrays yield nil.
func (v Value) Array() []Value {
	if !v.res.IsArray() {
		return nil
	}

	items := v.res.Array()
	out := make([]Value, len(items))
	for i, item := range items {
		out[i] = Value{res: item}
	}

	return out
}

func joinPath(keys []string) string {
	escaped := make([]string, len(keys))
	for i, key := range keys {
		escaped[i] = escapeKey(key)
	}

	return strings.Join(escaped, ".")
}

// escapeKey escapes gjson path syntax so the key is matched literally.
func escapeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))

	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%', '[', ']', '{', '}', ',', ':', '"':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}
