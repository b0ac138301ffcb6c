package lattice

import "fmt"

// Value is an element or global property value: a float64 scalar, a
// []float64 vector, or a string. The lattice file grammar produces exactly
// these three shapes.
type Value any

// AsFloat returns v as a scalar.
func AsFloat(v Value) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// AsVector returns v as a vector.
func AsVector(v Value) ([]float64, bool) {
	s, ok := v.([]float64)
	return s, ok
}

// AsString returns v as a string.
func AsString(v Value) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// CloneValue copies v deeply enough that vector mutation cannot alias.
func CloneValue(v Value) Value {
	if s, ok := v.([]float64); ok {
		c := make([]float64, len(s))
		copy(c, s)
		return c
	}
	return v
}

func valueTypeName(v Value) string {
	switch v.(type) {
	case float64:
		return "scalar"
	case []float64:
		return "vector"
	case string:
		return "string"
	default:
		return fmt.Sprintf("%T", v)
	}
}
