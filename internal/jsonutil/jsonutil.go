// Package jsonutil provides read/write access to the open-schema JSON blobs
// (content, unsigned, prev_content) carried by Matrix events, without
// unmarshalling them into map[string]interface{}. It is the realization of
// the "generic JSON value" design note: gjson for reads, sjson for the
// handful of in-place writes the sync engine needs (redaction trimming,
// prev_content hoisting, receipt synthesis).
package jsonutil

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Empty is the canonical empty JSON object, used whenever a field defaults
// because the wire payload omitted or malformed it.
var Empty = json.RawMessage(`{}`)

// Normalize returns raw if it parses as a JSON object, otherwise Empty.
// Event construction never fails on a malformed content/unsigned blob; it
// degrades to an empty object instead (§4.B).
func Normalize(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return Empty
	}
	if !gjson.ParseBytes(raw).IsObject() {
		return Empty
	}
	return raw
}

// Get returns the gjson.Result for path within raw.
func Get(raw json.RawMessage, path string) gjson.Result {
	return gjson.GetBytes(raw, path)
}

// String returns the string value at path, or "" if absent or not a string.
func String(raw json.RawMessage, path string) string {
	r := Get(raw, path)
	if r.Type != gjson.String {
		return ""
	}
	return r.String()
}

// NonEmptyString returns the string at path only if it is non-empty.
func NonEmptyString(raw json.RawMessage, path string) (string, bool) {
	s := String(raw, path)
	return s, s != ""
}

// Has reports whether path is present in raw.
func Has(raw json.RawMessage, path string) bool {
	return Get(raw, path).Exists()
}

// IsObject reports whether the value at path is a JSON object.
func IsObject(raw json.RawMessage, path string) bool {
	r := Get(raw, path)
	return r.IsObject()
}

// Set writes value at path, returning the updated document. It never
// mutates raw in place.
func Set(raw json.RawMessage, path string, value interface{}) (json.RawMessage, error) {
	if len(raw) == 0 {
		raw = Empty
	}
	out, err := sjson.SetBytes(raw, path, value)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

// SetRaw writes a pre-encoded JSON fragment at path.
func SetRaw(raw json.RawMessage, path string, fragment json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		raw = Empty
	}
	out, err := sjson.SetRawBytes(raw, path, fragment)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

// Delete removes path from raw.
func Delete(raw json.RawMessage, path string) (json.RawMessage, error) {
	if len(raw) == 0 {
		return Empty, nil
	}
	out, err := sjson.DeleteBytes(raw, path)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

// EscapeKey escapes the gjson/sjson path metacharacters ('.', '*', '?')
// in a literal object key — e.g. a Matrix user ID used as a map key in
// m.ignored_user_list — so it can be embedded in a dotted path.
func EscapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PickKeys returns a new JSON object containing only the given top-level
// keys of raw that are present (used for redaction whitelisting, §4.B).
func PickKeys(raw json.RawMessage, keys []string) json.RawMessage {
	out := Empty
	for _, k := range keys {
		v := Get(raw, k)
		if !v.Exists() {
			continue
		}
		var err error
		out, err = SetRaw(out, k, json.RawMessage(v.Raw))
		if err != nil {
			return Empty
		}
	}
	return out
}
