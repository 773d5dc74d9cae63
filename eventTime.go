package fluentfwd

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Fluent does not use the predefined (type -1) msgpack Time serialization
// format for sub-second precision, but instead defines a unique serialization
// format, assigning extension type 0.
//
// +-------+----+----+----+----+----+----+----+----+----+
// |     1 |  2 |  3 |  4 |  5 |  6 |  7 |  8 |  9 | 10 |
// +-------+----+----+----+----+----+----+----+----+----+
// |    D7 | 00 | second from epoch |     nanosecond    |
// +-------+----+----+----+----+----+----+----+----+----+
// |fixext8|type| 32bits integer BE | 32bits integer BE |
// +-------+----+----+----+----+----+----+----+----+----+
//
//   ref: https://github.com/fluent/fluentd/wiki/Forward-Protocol-Specification-v1#eventtime-ext-format
//
// The nanosecond half is derived from the millisecond fraction of the time
// (millis * 1e6). Collectors paired with this forwarder expect exactly that
// value, so sub-millisecond precision is dropped rather than sent.

type EventTime time.Time

// compile-time check for msgpack Custom[En|De]coder conformance
var _ msgpack.CustomEncoder = (*EventTime)(nil)
var _ msgpack.CustomDecoder = (*EventTime)(nil)

const (
	TimeExtType = 0
	TimeLen     = 8
)

// PackEventTime returns the 8 byte EventTime payload for t: the Unix seconds
// in the upper 32 bits and the millisecond-derived nanoseconds in the lower
// 32 bits of one 64-bit value, in network (big-endian) byte order.
func PackEventTime(t time.Time) [TimeLen]byte {
	utc := t.UTC()

	// NB: 64bit -> 32bit => constrained to 1970-2106
	secs := uint64(uint32(utc.Unix()))
	nsecs := uint64(utc.Nanosecond()/int(time.Millisecond)) * uint64(time.Millisecond)

	var b [TimeLen]byte
	binary.BigEndian.PutUint64(b[:], secs<<32|nsecs)
	return b
}

// UnpackEventTime splits an EventTime payload into its components.
func UnpackEventTime(b [TimeLen]byte) (secs, nsecs uint32) {
	v := binary.BigEndian.Uint64(b[:])
	return uint32(v >> 32), uint32(v)
}

// EncodeMsgpack serializes *EventTime values to the custom msgpack format
// defined in the Fluent protocol specification.
func (t *EventTime) EncodeMsgpack(enc *msgpack.Encoder) error {
	err := enc.EncodeExtHeader(TimeExtType, TimeLen)
	if err != nil {
		return fmt.Errorf("failed to encode EventTime header: %w", err)
	}

	b := PackEventTime(time.Time(*t))
	if _, err = enc.Writer().Write(b[:]); err != nil {
		return fmt.Errorf("failed to encode EventTime payload: %w", err)
	}

	return nil
}

// DecodeMsgpack deserializes *EventTime values from the custom msgpack format
// defined in the Fluent protocol specification.
func (t *EventTime) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := readEventTime(dec)
	if err != nil {
		return err
	}

	// convert back to a valid time.Time value wrapped as an EventTime
	secs, nsecs := UnpackEventTime(b)
	*t = EventTime(time.Unix(int64(secs), int64(nsecs)).UTC())

	return nil
}

// readEventTime reads one fixext8 type 0 value and returns its payload.
func readEventTime(dec *msgpack.Decoder) (b [TimeLen]byte, err error) {

	buf := make([]byte, 2+TimeLen)

	// read out the 10 bytes for the serialized EventTime
	if err = dec.ReadFull(buf); err != nil {
		return b, fmt.Errorf("failed to decode EventTime: %w", err)
	}

	// validate header
	if buf[0] != 0xD7 {
		return b, fmt.Errorf("failed to decode EventTime: byte[0] = %X, expected: 0xD7 (fixext8)", buf[0])
	}
	if buf[1] != TimeExtType {
		return b, fmt.Errorf("failed to decode EventTime: byte[1] = %X, expected: 0x00 (custom type 0)", buf[1])
	}

	copy(b[:], buf[2:])
	return b, nil
}
