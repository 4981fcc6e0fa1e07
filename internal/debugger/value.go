package debugger

import (
	"encoding/json"
	"math"
	"strconv"
)

// Kind classifies a script value for display.
type Kind int

const (
	// KindAbsent is an unset or undefined value.
	KindAbsent Kind = iota
	KindBool
	KindNumber
	KindString
	// KindFunction is any callable.
	KindFunction
	// KindNative is a host object the engine cannot inspect.
	KindNative
	// KindStructured is a table/object rendered as JSON.
	KindStructured
	// KindNull is anything else.
	KindNull
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindNative:
		return "native"
	case KindStructured:
		return "structured"
	default:
		return "null"
	}
}

// Sentinel renderings of values without a direct text form.
const (
	TextUndefined = "undefined"
	TextFunction  = "function"
	TextNative    = "native"
	TextIllegal   = "illegal"
	TextNull      = "null"
)

// Value is a script value classified once, at the engine boundary.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	data any
}

// Absent returns the value of an unset variable.
func Absent() Value { return Value{kind: KindAbsent} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String returns a text value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Function returns a callable value.
func Function() Value { return Value{kind: KindFunction} }

// Native returns an opaque host value.
func Native() Value { return Value{kind: KindNative} }

// Structured returns a structured value. data is converted to JSON when the
// value is rendered; it should be built from maps, slices and scalars.
func Structured(data any) Value { return Value{kind: KindStructured, data: data} }

// Null returns a value of no other kind.
func Null() Value { return Value{kind: KindNull} }

// Kind returns the classification of the value.
func (v Value) Kind() Kind { return v.kind }

// Stringify renders the value for display. The rendering is lossy and must
// not be parsed back.
func (v Value) Stringify() string {
	switch v.kind {
	case KindAbsent:
		return TextUndefined
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return FormatNumber(v.n)
	case KindString:
		return v.s
	case KindFunction:
		return TextFunction
	case KindNative:
		return TextNative
	case KindStructured:
		data, err := json.Marshal(v.data)
		if err != nil {
			return TextIllegal
		}
		return string(data)
	default:
		return TextNull
	}
}

// FormatNumber formats integral values without a decimal point and other
// values in their shortest round-trip form. Integers beyond 2^53 are not
// exact and use the float form.
func FormatNumber(n float64) string {
	if IsExactInt(n) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// IsExactInt reports whether n is an integer a float64 represents exactly.
func IsExactInt(n float64) bool {
	return math.Abs(n) < 1<<53 && n == math.Trunc(n)
}
