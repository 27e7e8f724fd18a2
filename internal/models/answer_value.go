package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
)

// AnswerKind tags the shape held by an AnswerValue
type AnswerKind int

const (
	// AnswerEmpty is a null or missing value
	AnswerEmpty AnswerKind = iota
	// AnswerSingle is a plain string, one photo per input in older clients
	AnswerSingle
	// AnswerMultiple is an array of strings, one entry per photo
	AnswerMultiple
	// AnswerRaw is any other JSON value, kept verbatim
	AnswerRaw
)

func (k AnswerKind) String() string {
	switch k {
	case AnswerEmpty:
		return "empty"
	case AnswerSingle:
		return "single"
	case AnswerMultiple:
		return "multiple"
	case AnswerRaw:
		return "raw"
	}
	return fmt.Sprintf("AnswerKind(%d)", int(k))
}

// AnswerValue is the value of an answer slot
type AnswerValue struct {
	kind     AnswerKind
	single   string
	multiple []string
	raw      json.RawMessage
}

// SingleValue builds a single string value
func SingleValue(s string) AnswerValue {
	return AnswerValue{kind: AnswerSingle, single: s}
}

// MultipleValue builds an array value
func MultipleValue(entries ...string) AnswerValue {
	m := make([]string, len(entries))
	copy(m, entries)
	return AnswerValue{kind: AnswerMultiple, multiple: m}
}

// RawValue wraps an arbitrary JSON document
func RawValue(raw json.RawMessage) AnswerValue {
	return AnswerValue{kind: AnswerRaw, raw: append(json.RawMessage(nil), raw...)}
}

// Kind returns the tag
func (v AnswerValue) Kind() AnswerKind { return v.kind }

// Single returns the string value when the kind is AnswerSingle
func (v AnswerValue) Single() (string, bool) {
	return v.single, v.kind == AnswerSingle
}

// Multiple returns a copy of the entries when the kind is AnswerMultiple
func (v AnswerValue) Multiple() ([]string, bool) {
	if v.kind != AnswerMultiple {
		return nil, false
	}
	out := make([]string, len(v.multiple))
	copy(out, v.multiple)
	return out, true
}

// Clone returns a value that shares no backing storage with v
func (v AnswerValue) Clone() AnswerValue {
	switch v.kind {
	case AnswerMultiple:
		return MultipleValue(v.multiple...)
	case AnswerRaw:
		return RawValue(v.raw)
	}
	return v
}

// IsAbsoluteURL reports whether s already points at a stored file
func IsAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

// IsPlaceholderFor reports whether entry still stands in for the upload
// named original: it was never rewritten to a URL and carries that name.
func IsPlaceholderFor(entry, original string) bool {
	return entry != "" && entry == original && !IsAbsoluteURL(entry)
}

// ReplacePlaceholder swaps the first placeholder for original with fileURL.
// It returns false and leaves v untouched when v holds no placeholder.
func (v AnswerValue) ReplacePlaceholder(original, fileURL string) (AnswerValue, bool) {
	if v.kind != AnswerMultiple {
		return v, false
	}
	for i, entry := range v.multiple {
		if IsPlaceholderFor(entry, original) {
			out := MultipleValue(v.multiple...)
			out.multiple[i] = fileURL
			return out, true
		}
	}
	return v, false
}

// MarshalJSON implements json.Marshaler
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case AnswerSingle:
		return json.Marshal(v.single)
	case AnswerMultiple:
		if v.multiple == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.multiple)
	case AnswerRaw:
		return v.raw, nil
	}
	return []byte("null"), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = AnswerValue{}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = SingleValue(s)
		return nil
	case '[':
		var entries []string
		if err := json.Unmarshal(trimmed, &entries); err == nil {
			*v = MultipleValue(entries...)
			return nil
		}
	}

	if !json.Valid(trimmed) {
		return fmt.Errorf("invalid answer value: %s", string(trimmed))
	}
	*v = RawValue(trimmed)
	return nil
}

// Interface converts v to plain Go values for document stores
func (v AnswerValue) Interface() interface{} {
	switch v.kind {
	case AnswerSingle:
		return v.single
	case AnswerMultiple:
		out := make([]interface{}, len(v.multiple))
		for i, s := range v.multiple {
			out[i] = s
		}
		return out
	case AnswerRaw:
		var decoded interface{}
		if err := json.Unmarshal(v.raw, &decoded); err != nil {
			return nil
		}
		return decoded
	}
	return nil
}

// AnswerValueFrom rebuilds a value decoded by a document store
func AnswerValueFrom(x interface{}) (AnswerValue, error) {
	switch t := x.(type) {
	case nil:
		return AnswerValue{}, nil
	case string:
		return SingleValue(t), nil
	case []string:
		return MultipleValue(t...), nil
	}
	data, err := json.Marshal(x)
	if err != nil {
		return AnswerValue{}, fmt.Errorf("encode answer value: %w", err)
	}
	var v AnswerValue
	if err := v.UnmarshalJSON(data); err != nil {
		return AnswerValue{}, err
	}
	return v, nil
}
