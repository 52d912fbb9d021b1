package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Value is a sealed interface over the literal types that can appear in a
// rendered shape or emission. Only Null, String, Int, Number, Bool, Array and
// Object implement it.
type Value interface {
	value()
}

// Null is a JSON null literal.
type Null struct{}

func (Null) value() {}

// String is a string literal.
type String string

func (String) value() {}

// Int is an integer literal.
type Int int64

func (Int) value() {}

// Number is a non-integer number kept as its shortest decimal text.
// Holding the text instead of a float64 keeps rendering deterministic.
type Number string

func (Number) value() {}

// Bool is a boolean literal.
type Bool bool

func (Bool) value() {}

// Array is an ordered list of values.
type Array []Value

func (Array) value() {}

// Object is a string-keyed map of values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's string comparison orders by UTF-8 bytes, which differs for
// characters outside the BMP.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// FromAny converts a Go value into a Value.
//
// Supported inputs are nil, strings, booleans, every integer kind, finite
// floats, slices and arrays of supported values, and maps keyed by strings.
// Values already implementing Value pass through. ok is false for anything
// else (functions, channels, structs, non-finite floats).
func FromAny(v any) (Value, bool) {
	switch val := v.(type) {
	case nil:
		return Null{}, true
	case Value:
		return val, true
	case string:
		return String(val), true
	case bool:
		return Bool(val), true
	case int:
		return Int(val), true
	case int64:
		return Int(val), true
	case float64:
		return fromFloat(val)
	case float32:
		return fromFloat(float64(val))
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			ev, ok := FromAny(elem)
			if !ok {
				return nil, false
			}
			arr[i] = ev
		}
		return arr, true
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ev, ok := FromAny(elem)
			if !ok {
				return nil, false
			}
			obj[k] = ev
		}
		return obj, true
	}
	return fromReflect(reflect.ValueOf(v))
}

func fromFloat(f float64) (Value, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return Int(int64(f)), true
	}
	return Number(strconv.FormatFloat(f, 'g', -1, 64)), true
}

func fromReflect(rv reflect.Value) (Value, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Number(strconv.FormatUint(u, 10)), true
		}
		return Int(int64(u)), true
	case reflect.Float32, reflect.Float64:
		return fromFloat(rv.Float())
	case reflect.String:
		return String(rv.String()), true
	case reflect.Bool:
		return Bool(rv.Bool()), true
	case reflect.Pointer:
		if rv.IsNil() {
			return Null{}, true
		}
		return FromAny(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null{}, true
		}
		arr := make(Array, rv.Len())
		for i := range arr {
			ev, ok := FromAny(rv.Index(i).Interface())
			if !ok {
				return nil, false
			}
			arr[i] = ev
		}
		return arr, true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		obj := make(Object, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			ev, ok := FromAny(iter.Value().Interface())
			if !ok {
				return nil, false
			}
			obj[iter.Key().String()] = ev
		}
		return obj, true
	}
	return nil, false
}

// ParseValue decodes JSON text into a Value. Integers become Int, any other
// number keeps its source text as a Number.
func ParseValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return fromDecoded(raw)
}

func fromDecoded(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return Int(n), nil
		}
		if _, err := val.Float64(); err != nil {
			return nil, fmt.Errorf("number %s: %w", val, err)
		}
		return Number(val.String()), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			ev, err := fromDecoded(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ev, err := fromDecoded(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported decoded type %T", v)
	}
}
