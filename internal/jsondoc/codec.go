// Maps caller types to and from document elements.

package jsondoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/invopop/jsonschema"
)

// Reserved field names managed by the store.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// reservedFields are written first, in this order, in every element.
var reservedFields = []string{FieldID, FieldCreatedAt, FieldUpdatedAt}

// Fields is one document element: field name to raw JSON value.
type Fields map[string]json.RawMessage

// ID returns the element's "id" or "" when absent or not a string.
func (f Fields) ID() string {
	var id string
	if raw, ok := f[FieldID]; ok {
		_ = json.Unmarshal(raw, &id)
	}
	return id
}

// time returns the parsed timestamp stored under key, or false.
func (f Fields) time(key string) (time.Time, bool) {
	raw, ok := f[key]
	if !ok {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	t, err := parseTime(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// MarshalJSON writes the reserved fields first, then the rest sorted by name,
// so documents diff cleanly.
func (f Fields) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	keys := make([]string, 0, len(f))
	for _, k := range reservedFields {
		if _, ok := f[k]; ok {
			keys = append(keys, k)
		}
	}
	rest := make([]string, 0, len(f))
	for k := range f {
		if !slices.Contains(reservedFields, k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	keys = append(keys, rest...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		v := f[k]
		if len(v) == 0 {
			v = json.RawMessage("null")
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f Fields) clone() Fields {
	c := make(Fields, len(f))
	for k, v := range f {
		c[k] = slices.Clone(v)
	}
	return c
}

// Codec converts between a caller's record type and a document element.
//
// Encode may include the reserved fields; the store overwrites them. Decode
// receives the reserved fields along with the caller's fields.
type Codec[T any] interface {
	Encode(v T) (Fields, error)
	Decode(f Fields) (T, error)
}

// JSONCodec is the default Codec: it round-trips T through encoding/json.
// T must marshal to a JSON object.
type JSONCodec[T any] struct{}

// Encode implements Codec.
func (JSONCodec[T]) Encode(v T) (Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var f Fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errNotObject
	}
	if f == nil {
		return nil, errNotObject
	}
	return f, nil
}

// Decode implements Codec.
func (JSONCodec[T]) Decode(f Fields) (T, error) {
	var v T
	data, err := json.Marshal(f)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("failed to decode record %q: %w", f.ID(), err)
	}
	return v, nil
}

// Meta holds the store-managed fields. Embed it in record structs used with
// JSONCodec.
type Meta struct {
	ID        string `json:"id" jsonschema:"description=Store-assigned unique identifier"`
	CreatedAt Time   `json:"created_at" jsonschema:"description=Creation time, never changes"`
	UpdatedAt Time   `json:"updated_at" jsonschema:"description=Time of the last successful update"`
}

// Time is a reserved timestamp. It is written as RFC 3339 in UTC with
// nanoseconds and read from any ISO-8601 date-time, with or without a zone
// offset. Values without an offset are UTC.
type Time struct {
	time.Time
}

// MarshalJSON implements json.Marshaler.
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(formatTime(t.Time))
}

// UnmarshalJSON implements json.Unmarshaler. null and "" leave the zero time.
func (t *Time) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	v, err := parseTime(s)
	if err != nil {
		return err
	}
	t.Time = v
	return nil
}

// JSONSchema describes Time as a date-time string.
func (Time) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Format: "date-time"}
}

// zonelessLayout is ISO-8601 without an offset, e.g. "2024-01-01T00:00:00" or
// "2024-01-01T00:00:00.123456".
const zonelessLayout = "2006-01-02T15:04:05.999999999"

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(zonelessLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
