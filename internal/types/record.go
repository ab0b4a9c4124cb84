package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// =============================================================================
// FINANCIAL RECORD
// =============================================================================

// Record maps canonical field names to values. Iteration follows the order
// in which fields were first set; overwriting a field keeps its position.
//
// A Record is built by a single pipeline run and is not safe for concurrent
// mutation.
type Record struct {
	fields []string
	values map[string]Value
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]Value)}
}

// Set stores value under field, overwriting any previous value.
func (r *Record) Set(field string, value Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, exists := r.values[field]; !exists {
		r.fields = append(r.fields, field)
	}
	r.values[field] = value
}

// Get returns the value stored under field.
func (r *Record) Get(field string) (Value, bool) {
	if r == nil {
		return Null(), false
	}
	v, ok := r.values[field]
	return v, ok
}

// Has reports whether field has been set.
func (r *Record) Has(field string) bool {
	_, ok := r.Get(field)
	return ok
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.fields)
}

// Fields returns the field names in insertion order.
func (r *Record) Fields() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// MarshalJSON writes the record as an ordered JSON object.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if r != nil {
		for i, f := range r.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(f)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(r.values[f])
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat JSON object of scalars, keeping key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object, got %v", tok)
	}

	out := NewRecord()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var v Value
		if err := dec.Decode(&v); err != nil {
			return err
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*r = *out
	return nil
}
