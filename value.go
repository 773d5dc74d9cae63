package fluentfwd

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindMap
	KindSeq
)

var kindNames = [...]string{
	KindNull:   "Null",
	KindBool:   "Bool",
	KindInt:    "Int",
	KindUint:   "Uint",
	KindFloat:  "Float",
	KindString: "String",
	KindBytes:  "Bytes",
	KindMap:    "Map",
	KindSeq:    "Seq",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is a record field value. It is a closed variant: the Encoder only
// knows how to serialize the kinds listed above, and AnyValue coerces
// everything else to a string before it reaches the Encoder.
//
// The zero Value is Null.
type Value struct {
	kind Kind
	num  uint64 // bool, int, uint and float bits
	str  string
	raw  []byte
	m    Map
	seq  []Value
}

// Field is one key/value entry of a Map.
type Field struct {
	Key   string
	Value Value
}

// Map is an ordered mapping from string keys to Values. Entries are
// serialized in slice order.
type Map []Field

// Get returns the value of the first entry with key k.
func (m Map) Get(k string) (Value, bool) {
	for i := range m {
		if m[i].Key == k {
			return m[i].Value, true
		}
	}
	return Value{}, false
}

// F is shorthand for a Field.
func F(key string, v Value) Field { return Field{Key: key, Value: v} }

// Null returns the Null Value, which is also the zero Value.
func Null() Value { return Value{} }

// Bool returns a Bool Value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// Int returns an Int Value.
func Int(i int64) Value { return Value{kind: KindInt, num: uint64(i)} }

// Uint returns an Int Value when u fits in an int64, so that a value
// survives an encode/decode round trip with the same kind; msgpack does not
// distinguish signedness for non-negative integers.
func Uint(u uint64) Value {
	if u <= math.MaxInt64 {
		return Int(int64(u))
	}
	return Value{kind: KindUint, num: u}
}

// Float returns a Float Value.
func Float(f float64) Value { return Value{kind: KindFloat, num: math.Float64bits(f)} }

// String returns a String Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bytes returns a Bytes Value. b is not copied.
func Bytes(b []byte) Value { return Value{kind: KindBytes, raw: b} }

// MapOf returns a Map Value holding fields in the given order.
func MapOf(fields ...Field) Value { return Value{kind: KindMap, m: Map(fields)} }

// SeqOf returns a Seq Value holding vals in the given order.
func SeqOf(vals ...Value) Value { return Value{kind: KindSeq, seq: vals} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the Null Value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// The accessors below return the payload of the matching Kind. Called on a
// Value of another Kind, they return an unspecified result.

// Bool returns the payload of a Bool Value.
func (v Value) Bool() bool { return v.num != 0 }

// Int returns the payload of an Int Value.
func (v Value) Int() int64 { return int64(v.num) }

// Uint returns the payload of a Uint Value.
func (v Value) Uint() uint64 { return v.num }

// Float returns the payload of a Float Value.
func (v Value) Float() float64 { return math.Float64frombits(v.num) }

// Str returns the payload of a String Value.
func (v Value) Str() string { return v.str }

// Raw returns the payload of a Bytes Value.
func (v Value) Raw() []byte { return v.raw }

// Map returns the entries of a Map Value.
func (v Value) Map() Map { return v.m }

// Seq returns the elements of a Seq Value.
func (v Value) Seq() []Value { return v.seq }

// String renders the Value for diagnostics.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "<nil>"
	case KindBool:
		return fmt.Sprint(v.Bool())
	case KindInt:
		return fmt.Sprint(v.Int())
	case KindUint:
		return fmt.Sprint(v.Uint())
	case KindFloat:
		return fmt.Sprint(v.Float())
	case KindString:
		return v.str
	case KindBytes:
		return fmt.Sprintf("%x", v.raw)
	case KindMap:
		var b bytes.Buffer
		b.WriteByte('{')
		for i, f := range v.m {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %s", f.Key, f.Value)
		}
		b.WriteByte('}')
		return b.String()
	case KindSeq:
		return fmt.Sprint(v.seq)
	}
	return v.kind.String()
}

// Equal reports whether a and b hold the same kind and contents. Map entries
// and sequence elements are compared in order.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool, KindInt, KindUint, KindFloat:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindBytes:
		return bytes.Equal(a.raw, b.raw)
	case KindMap:
		return EqualMaps(a.m, b.m)
	case KindSeq:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !Equal(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// EqualMaps is Equal for Maps.
func EqualMaps(a, b Map) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || !Equal(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}

// AnyValue converts an arbitrary Go value into a Value. Kinds the Encoder
// cannot represent are rendered with fmt.Sprint. Go maps have no order, so
// map[string]any keys are sorted.
func AnyValue(a any) Value {
	switch x := a.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case Map:
		return MapOf(x...)
	case []Field:
		return MapOf(x...)
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint:
		return Uint(uint64(x))
	case uint8:
		return Uint(uint64(x))
	case uint16:
		return Uint(uint64(x))
	case uint32:
		return Uint(uint64(x))
	case uint64:
		return Uint(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case string:
		return String(x)
	case []byte:
		return Bytes(x)
	case time.Time:
		return String(x.Format(time.RFC3339Nano))
	case time.Duration:
		return String(x.String())
	case error:
		return String(safeString(a, x.Error))
	case fmt.Stringer:
		return String(safeString(a, x.String))
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := make(Map, 0, len(keys))
		for _, k := range keys {
			m = append(m, F(k, AnyValue(x[k])))
		}
		return MapOf(m...)
	case []any:
		seq := make([]Value, len(x))
		for i := range x {
			seq[i] = AnyValue(x[i])
		}
		return SeqOf(seq...)
	case []string:
		seq := make([]Value, len(x))
		for i := range x {
			seq[i] = String(x[i])
		}
		return SeqOf(seq...)
	}

	// typed slices and arrays other than the common ones above
	rv := reflect.ValueOf(a)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		seq := make([]Value, rv.Len())
		for i := range seq {
			seq[i] = AnyValue(rv.Index(i).Interface())
		}
		return SeqOf(seq...)
	}

	return String(fmt.Sprint(a))
}

// safeString calls f, a method of a, and turns a panic into text. A nil
// pointer receiver renders as "<nil>".
func safeString(a any, f func() string) (s string) {
	defer func() {
		if p := recover(); p != nil {
			if rv := reflect.ValueOf(a); rv.Kind() == reflect.Pointer && rv.IsNil() {
				s = "<nil>"
				return
			}
			s = fmt.Sprintf("PANIC=%v", p)
		}
	}()
	return f()
}
