package fluentfwd

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// The forwarder never reads from the collector. The decoding path exists for
// tests and for tools that need to inspect what was sent, such as a fake
// collector.

// Envelope is one decoded Fluent Message mode event.
type Envelope struct {
	Tag string

	// Time is the decoded timestamp, in UTC.
	Time time.Time

	// TimeMode reports how the timestamp was encoded. RawTime holds the
	// EventTime payload when TimeMode is EventTimeMode.
	TimeMode TimeMode
	RawTime  [TimeLen]byte

	Record Map

	// Option is only present when the sender added the optional 4th element.
	Option Map
}

var _ msgpack.CustomDecoder = (*Envelope)(nil)

// DecodeMsgpack deserializes the payload, which is expected to conform to the
// Fluent Message event mode format.
//
//	[
//		tag<string>,
//		time<EventTime | uint>,
//		record<map[string]any>,
//		option<optional map[string]any>
//	]
func (m *Envelope) DecodeMsgpack(dec *msgpack.Decoder) error {

	n, err := dec.DecodeArrayLen()
	if err != nil {
		return fmt.Errorf("failed to decode outer message array length: %w", err)
	}
	if n != 3 && n != 4 {
		return fmt.Errorf("failed to decode message: array length %d, expected 3 or 4", n)
	}

	// decode the tag
	m.Tag, err = dec.DecodeString()
	if err != nil {
		return fmt.Errorf("failed to decode tag field: %w", err)
	}

	// decode the timestamp
	typeCode, err := dec.PeekCode()
	if err != nil {
		return fmt.Errorf("failed to read type code for the time field: %w", err)
	}
	switch {
	case typeCode == msgpcode.FixExt8:
		m.RawTime, err = readEventTime(dec)
		if err != nil {
			return fmt.Errorf("failed to decode the time field: %w", err)
		}
		secs, nsecs := UnpackEventTime(m.RawTime)
		m.Time = time.Unix(int64(secs), int64(nsecs)).UTC()
		m.TimeMode = EventTimeMode
	case isIntCode(typeCode):
		unix, err := dec.DecodeInt64()
		if err != nil {
			return fmt.Errorf("failed to decode the time field: %w", err)
		}
		m.Time = time.Unix(unix, 0).UTC()
		m.TimeMode = IntegerTimeMode
	default:
		return fmt.Errorf("failed to decode the time field: unexpected type code %X", typeCode)
	}

	// decode the record
	m.Record, err = DecodeMap(dec)
	if err != nil {
		return fmt.Errorf("failed to decode the record field: %w", err)
	}

	if n == 4 {
		m.Option, err = DecodeMap(dec)
		if err != nil {
			return fmt.Errorf("failed to decode the option field: %w", err)
		}
	}
	return nil
}

// DecodeMap reads a msgpack map with string keys.
func DecodeMap(dec *msgpack.Decoder) (Map, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}
	if !isMapCode(c) {
		return nil, fmt.Errorf("%w: got code %X", ErrMapHeaderExpected, c)
	}
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	return decodeEntries(dec, n)
}

// DecodeValue reads the next value. It peeks at the next code to decide
// whether a map, an array, or a scalar follows, and recurses into maps and
// arrays. Integers that fit an int64 decode as KindInt.
func DecodeValue(dec *msgpack.Decoder) (Value, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return Value{}, err
	}

	switch {
	case c == msgpcode.Nil:
		return Null(), dec.DecodeNil()
	case c == msgpcode.True || c == msgpcode.False:
		b, err := dec.DecodeBool()
		return Bool(b), err
	case isUintCode(c):
		u, err := dec.DecodeUint64()
		return Uint(u), err
	case isIntCode(c):
		i, err := dec.DecodeInt64()
		return Int(i), err
	case c == msgpcode.Float || c == msgpcode.Double:
		f, err := dec.DecodeFloat64()
		return Float(f), err
	case msgpcode.IsString(c):
		s, err := dec.DecodeString()
		return String(s), err
	case msgpcode.IsBin(c):
		b, err := dec.DecodeBytes()
		if b == nil {
			b = []byte{}
		}
		return Bytes(b), err
	case isMapCode(c):
		n, err := dec.DecodeMapLen()
		if err != nil {
			return Value{}, err
		}
		m, err := decodeEntries(dec, n)
		return MapOf(m...), err
	case isArrayCode(c):
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return Value{}, err
		}
		seq, err := decodeElements(dec, n)
		return SeqOf(seq...), err
	}

	return Value{}, fmt.Errorf("%w: type code %X", ErrUnsupportedKind, c)
}

func decodeEntries(dec *msgpack.Decoder, n int) (Map, error) {
	if n < 0 {
		return nil, nil
	}
	m := make(Map, 0, n)
	for i := 0; i < n; i++ {
		c, err := dec.PeekCode()
		if err != nil {
			return m, err
		}
		if !msgpcode.IsString(c) {
			return m, fmt.Errorf("%w: got code %X", ErrStringKeyExpected, c)
		}
		k, err := dec.DecodeString()
		if err != nil {
			return m, err
		}
		v, err := DecodeValue(dec)
		if err != nil {
			return m, fmt.Errorf("failed to decode value for key %q: %w", k, err)
		}
		m = append(m, F(k, v))
	}
	return m, nil
}

func decodeElements(dec *msgpack.Decoder, n int) ([]Value, error) {
	if n < 0 {
		return nil, nil
	}
	seq := make([]Value, 0, n)
	for i := 0; i < n; i++ {
		v, err := DecodeValue(dec)
		if err != nil {
			return seq, fmt.Errorf("failed to decode element %d: %w", i, err)
		}
		seq = append(seq, v)
	}
	return seq, nil
}

func isUintCode(c byte) bool {
	return c <= msgpcode.PosFixedNumHigh ||
		c == msgpcode.Uint8 || c == msgpcode.Uint16 || c == msgpcode.Uint32 || c == msgpcode.Uint64
}

func isIntCode(c byte) bool {
	return isUintCode(c) || c >= msgpcode.NegFixedNumLow ||
		c == msgpcode.Int8 || c == msgpcode.Int16 || c == msgpcode.Int32 || c == msgpcode.Int64
}

func isMapCode(c byte) bool {
	return msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32
}

func isArrayCode(c byte) bool {
	return msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32
}
