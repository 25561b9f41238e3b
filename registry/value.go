package registry

import (
	"math"
	"strconv"
)

// ValueKind names the arm a Value carries.
type ValueKind uint8

const (
	KindFloat ValueKind = iota + 1
	KindInt
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	}
	return "invalid"
}

// Value is a sensor reading holding exactly one of float, integer or boolean.
// The zero Value has no kind and reads as invalid.
type Value struct {
	kind ValueKind
	f    float64
	i    int64
	b    bool
}

func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// NoReading is the float placeholder for a sensor that has not reported yet.
func NoReading() Value { return FloatValue(math.NaN()) }

func (v Value) Kind() ValueKind { return v.kind }

// Float returns the float arm; ok is false when v holds another kind.
func (v Value) Float() (f float64, ok bool) { return v.f, v.kind == KindFloat }

// Int returns the integer arm; ok is false when v holds another kind.
func (v Value) Int() (i int64, ok bool) { return v.i, v.kind == KindInt }

// Bool returns the boolean arm; ok is false when v holds another kind.
func (v Value) Bool() (b bool, ok bool) { return v.b, v.kind == KindBool }

// Valid reports whether v holds an actual reading.
func (v Value) Valid() bool {
	switch v.kind {
	case KindFloat:
		return !math.IsNaN(v.f)
	case KindInt, KindBool:
		return true
	}
	return false
}

// String renders floats with one decimal, the way the display shows them.
func (v Value) String() string {
	if !v.Valid() {
		return ""
	}
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(math.Round(v.f*10)/10, 'f', 1, 64)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	default:
		if v.b {
			return "yes"
		}
		return "no"
	}
}

// Interface returns the held arm as a plain Go value, nil when invalid.
func (v Value) Interface() any {
	if !v.Valid() {
		return nil
	}
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return v.i
	default:
		return v.b
	}
}
