package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind identifies the dynamic type carried by a Value.
type ValueKind int

const (
	ValueNumber ValueKind = iota
	ValueString
)

// Value is a comparison operand: either a number or a string. It decodes from
// a JSON number or string and encodes back to the same shape.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{Kind: ValueNumber, Num: f} }

// String returns a string Value.
func String(s string) Value { return Value{Kind: ValueString, Str: s} }

// NumberPtr is a convenience for building optional operands.
func NumberPtr(f float64) *Value {
	v := Number(f)
	return &v
}

// StringPtr is a convenience for building optional operands.
func StringPtr(s string) *Value {
	v := String(s)
	return &v
}

func (v Value) String() string {
	if v.Kind == ValueString {
		return strconv.Quote(v.Str)
	}
	return strconv.FormatFloat(v.Num, 'f', -1, 64)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == ValueString {
		return json.Marshal(v.Str)
	}
	return json.Marshal(v.Num)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("value: empty input")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("value: %w", err)
		}
		*v = String(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("value: expected number or string: %w", err)
	}
	*v = Number(f)
	return nil
}
