// =============================================================================
// MD to Excel Sync - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - extractor   (Table, Row, Value)
//   - normalizer  (Value)
//   - mapper      (Table in, Record out)
//   - xlsxwriter  (Record in)
//   - converter   (all of the above)
//
// =============================================================================

package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// =============================================================================
// VALUE KINDS
// =============================================================================

// Kind identifies which variant a Value holds.
type Kind int

const (
	// KindNull is an empty cell.
	KindNull Kind = iota
	// KindInt is an integer literal without a decimal point.
	KindInt
	// KindFloat is a number written with a decimal point.
	KindFloat
	// KindBool is a recognized boolean lexeme.
	KindBool
	// KindString is any other non-empty text.
	KindString
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// =============================================================================
// VALUE
// =============================================================================

// Value is a normalized cell value. It is a closed variant: exactly one of
// the payload fields is meaningful, selected by kind. The zero Value is Null.
//
// Consumers should switch on Kind() and handle all five cases.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
}

// Null returns the empty value.
func Null() Value { return Value{} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String returns a text value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the empty value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float payload.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsString returns the text payload.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Number returns the value as float64 for both numeric kinds.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Text renders the value the way it would read in a table cell.
// Null renders as the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	default:
		return ""
	}
}

// Native returns the payload as a plain Go value (nil, int64, float64,
// bool or string). It is used when handing values to libraries that take
// interface{} arguments, such as spreadsheet cell setters.
func (v Value) Native() interface{} {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindString:
		return v.s
	default:
		return nil
	}
}

// GoString implements fmt.GoStringer for readable test failures.
func (v Value) GoString() string {
	if v.kind == KindNull {
		return "types.Null()"
	}
	return fmt.Sprintf("types.%s(%#v)", kindConstructor(v.kind), v.Native())
}

func kindConstructor(k Kind) string {
	switch k {
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	default:
		return "String"
	}
}

// MarshalJSON encodes the value as a JSON null, number, boolean or string.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

// UnmarshalJSON decodes a JSON scalar. Numbers without a fractional part
// decode as Int; objects and arrays are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch x := raw.(type) {
	case nil:
		*v = Null()
	case bool:
		*v = Bool(x)
	case string:
		*v = String(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			*v = Int(i)
			return nil
		}
		f, err := x.Float64()
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", x.String(), err)
		}
		*v = Float(f)
	default:
		return fmt.Errorf("unsupported JSON value for cell: %s", string(data))
	}
	return nil
}
