package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// ErrUnsupportedValue is returned when a Go value or JSON token cannot be
// represented as a Value.
var ErrUnsupportedValue = errors.New("unsupported value type")

// Value is a sealed interface representing the scalar types that may appear
// in event properties, event context and filter operands.
// Only String, Int, Double and Bool implement it.
type Value interface {
	irValue() // Sealed - only these types implement it
	Kind() Kind
}

// Kind identifies the concrete type behind a Value.
type Kind int

const (
	KindString Kind = iota + 1
	KindInt
	KindDouble
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// String is a string value.
type String string

func (String) irValue()   {}
func (String) Kind() Kind { return KindString }

// Int is an integer value. Always int64.
type Int int64

func (Int) irValue()   {}
func (Int) Kind() Kind { return KindInt }

// Double is a floating point value. NaN and infinities are not representable
// in JSON and are rejected by the encoders.
type Double float64

func (Double) irValue()   {}
func (Double) Kind() Kind { return KindDouble }

// Bool is a boolean value.
type Bool bool

func (Bool) irValue()   {}
func (Bool) Kind() Kind { return KindBool }

// Number returns the numeric value of v as a float64.
// Reports false for strings and booleans.
func Number(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Double:
		return float64(val), true
	default:
		return 0, false
	}
}

// Equal reports strict type-and-value equality.
//
// Two Ints compare exactly. The only cross-type equality is between Int and
// Double, which compare numerically. A number never equals its string
// representation.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return false
	}
	if ai, ok := a.(Int); ok {
		if bi, ok := b.(Int); ok {
			return ai == bi
		}
	}
	if an, ok := Number(a); ok {
		bn, ok := Number(b)
		return ok && an == bn
	}
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	default:
		return false
	}
}

// FromAny converts a Go value to a Value.
// Accepts string, bool, every signed and unsigned integer type that fits
// int64, float32/float64 and json.Number. Everything else, including nil,
// returns ErrUnsupportedValue.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, val)
		}
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, val)
		}
		return Int(val), nil
	case float32:
		return checkDouble(float64(val))
	case float64:
		return checkDouble(val)
	case json.Number:
		return numberValue(val)
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrUnsupportedValue)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func checkDouble(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, f)
	}
	return Double(f), nil
}

// numberValue turns a JSON number literal into Int when it has no fraction
// or exponent, Double otherwise.
func numberValue(n json.Number) (Value, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		i, err := n.Int64()
		if err == nil {
			return Int(i), nil
		}
		// Integer literal outside int64 range degrades to Double.
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: number %s", ErrUnsupportedValue, s)
	}
	return checkDouble(f)
}

// formatDouble renders f so that it decodes back as a Double.
func formatDouble(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedValue, f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s, nil
}

// MarshalValue marshals a Value to JSON bytes.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case String:
		return json.Marshal(string(val))
	case Int:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case Double:
		s, err := formatDouble(float64(val))
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	case Bool:
		return []byte(strconv.FormatBool(bool(val))), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// UnmarshalValue decodes a single JSON scalar into a Value.
// Rejects null, arrays and objects.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// Properties maps names to values. Used for event properties, event context
// and payload user info.
type Properties map[string]Value

// PropertiesFromMap converts a loosely typed map into Properties, rejecting
// any entry that is not a supported scalar.
func PropertiesFromMap(m map[string]any) (Properties, error) {
	if m == nil {
		return nil, nil
	}
	props := make(Properties, len(m))
	for k, raw := range m {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		props[k] = v
	}
	return props, nil
}

// Clone returns a shallow copy. Values are immutable so this is a full copy.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// SortedKeys returns keys in UTF-16 code unit order, the ordering used by
// canonical JSON.
func (p Properties) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 compares strings by UTF-16 code units.
// Go's string comparison uses UTF-8 bytes, which orders supplementary-plane
// characters differently.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}

// MarshalJSON writes the properties as a JSON object with sorted keys.
func (p Properties) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(p[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of scalars.
// Numbers keep their literal form (json.Number) so large integers never pass
// through float64.
func (p *Properties) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = nil
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = make(Properties, len(raw))
	for k, v := range raw {
		val, err := UnmarshalValue(v)
		if err != nil {
			return fmt.Errorf("property %q: %w", k, err)
		}
		(*p)[k] = val
	}
	return nil
}
