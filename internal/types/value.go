package types

import "strconv"

// ValueKind discriminates the variants of a flattened cell value.
type ValueKind int

const (
	// KindAbsent marks a column that does not exist at all for a record.
	// Distinct from KindNull, which is a present-but-null field.
	KindAbsent ValueKind = iota
	KindNull
	KindString
	KindNumber
	KindBool
)

// Value is a tagged union over the scalar shapes a flattened cell can
// take. Original JSON types are preserved; coercion to string is deferred
// to the tabular export step.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

// AbsentValue returns the explicit absence marker.
func AbsentValue() Value { return Value{kind: KindAbsent} }

// NullValue returns a present-but-null value.
func NullValue() Value { return Value{kind: KindNull} }

// StringValue wraps a string scalar.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue wraps a numeric scalar.
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }

// BoolValue wraps a boolean scalar.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// ValueOf converts a decoded JSON scalar into a Value. The second return
// is false for shapes that are not scalars (objects, arrays).
func ValueOf(v any) (Value, bool) {
	switch s := v.(type) {
	case nil:
		return NullValue(), true
	case string:
		return StringValue(s), true
	case float64:
		return NumberValue(s), true
	case int:
		return NumberValue(float64(s)), true
	case bool:
		return BoolValue(s), true
	}
	return Value{}, false
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsAbsent reports whether the value is the absence marker.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// IsNull reports whether the value is present but null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Interface returns the underlying scalar as a plain Go value. Absent and
// null both yield nil; use Kind to distinguish them.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	}
	return nil
}

// Render formats the value for tabular output. Absent cells render as the
// given marker; null renders as the empty string. Numbers use minimal
// digits, so integral values carry no trailing ".0".
func (v Value) Render(absentMarker string) string {
	switch v.kind {
	case KindAbsent:
		return absentMarker
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// Equal reports deep equality of two values, including their kinds.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	}
	return true
}
