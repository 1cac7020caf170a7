package annotation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind is the type tag of an attribute Value.
type Kind uint8

// Value kinds. The set is closed: formats needing anything else must map it
// onto one of these.
const (
	KindInvalid Kind = iota
	KindBool
	KindNumber
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	}
	return "invalid"
}

// Value is a scalar attribute value: boolean, number or string.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
}

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Number returns a numeric Value.
func Number(v float64) Value { return Value{kind: KindNumber, n: v} }

// Int returns a numeric Value holding an integer.
func Int(v int) Value { return Number(float64(v)) }

// String returns a string Value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Kind returns the type tag.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric payload.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsInt returns the numeric payload when it is integral.
func (v Value) AsInt() (int, bool) {
	if v.kind != KindNumber || v.n != float64(int(v.n)) {
		return 0, false
	}
	return int(v.n), true
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Interface returns the payload as bool, float64 or string.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	}
	return nil
}

// Equal is type-sensitive: Bool(true) != Number(1) != String("true").
// NaN equals NaN so that every value equals itself.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n || (math.IsNaN(v.n) && math.IsNaN(o.n))
	case KindString:
		return v.s == o.s
	}
	return true
}

// String renders the value with its kind, e.g. `true`, `5`, `"hello"`.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	}
	return "<invalid>"
}

// Text renders the payload without quoting, for textual formats.
func (v Value) Text() string {
	if v.kind == KindString {
		return v.s
	}
	return v.String()
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindInvalid {
		return nil, fmt.Errorf("cannot marshal invalid attribute value")
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON accepts JSON booleans, numbers and strings only.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts a decoded scalar into a Value. NaN and infinities are
// rejected.
func ValueOf(x any) (Value, error) {
	v, err := valueOf(x)
	if err != nil {
		return Value{}, err
	}
	if v.kind == KindNumber && !finite(v.n) {
		return Value{}, fmt.Errorf("attribute number %v is not finite", v.n)
	}
	return v, nil
}

func valueOf(x any) (Value, error) {
	switch t := x.(type) {
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(t), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("attribute number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case Value:
		return t, nil
	}
	return Value{}, fmt.Errorf("unsupported attribute value of type %T", x)
}

// ParseText infers a Value from text: "true"/"false" become booleans,
// numeric literals become numbers, everything else stays a string.
func ParseText(s string) Value {
	switch s {
	case "true", "True":
		return Bool(true)
	case "false", "False":
		return Bool(false)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && finite(f) {
		return Number(f)
	}
	return String(s)
}

// Attributes is an open string-keyed bag of scalar values.
type Attributes map[string]Value

// Clone returns a copy that shares no storage with a.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal compares keys and type-sensitive values.
func (a Attributes) Equal(o Attributes) bool {
	return CompareAttributes(a, o) == nil
}

// AttributesFrom converts a decoded JSON object into Attributes.
func AttributesFrom(m map[string]any) (Attributes, error) {
	out := make(Attributes, len(m))
	for k, raw := range m {
		v, err := ValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// CompareAttributes returns the first differing key, in sorted key order.
func CompareAttributes(want, got Attributes) *Mismatch {
	keys := make(map[string]struct{}, len(want)+len(got))
	for k := range want {
		keys[k] = struct{}{}
	}
	for k := range got {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		w, wok := want[k]
		g, gok := got[k]
		switch {
		case !wok:
			return &Mismatch{Field: "attributes." + k, Want: "<absent>", Got: g.String()}
		case !gok:
			return &Mismatch{Field: "attributes." + k, Want: w.String(), Got: "<absent>"}
		case !w.Equal(g):
			return &Mismatch{
				Field: "attributes." + k,
				Want:  w.String() + " (" + w.Kind().String() + ")",
				Got:   g.String() + " (" + g.Kind().String() + ")",
			}
		}
	}
	return nil
}
