package jsondoc

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// query is a compiled Search query: every value normalized to what
// encoding/json produces when decoding into any, so 1 and 1.0 compare equal
// and structs compare by their JSON form.
type query map[string]any

func compileQuery(q map[string]any) (query, error) {
	out := make(query, len(q))
	for k, v := range q {
		// Stored timestamps are UTC; time.Time marshals in its own zone.
		switch t := v.(type) {
		case time.Time:
			v = formatTime(t)
		case *time.Time:
			if t != nil {
				v = formatTime(*t)
			}
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: query field %q: %w", ErrInvalidRecord, k, err)
		}
		var norm any
		if err := json.Unmarshal(data, &norm); err != nil {
			return nil, fmt.Errorf("%w: query field %q: %w", ErrInvalidRecord, k, err)
		}
		out[k] = norm
	}
	return out, nil
}

// match reports whether f has every query key with exactly the query value.
func (q query) match(f Fields) bool {
	for k, want := range q {
		raw, ok := f[k]
		if !ok {
			return false
		}
		var got any
		if err := json.Unmarshal(raw, &got); err != nil {
			return false
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
