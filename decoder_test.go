package fluentfwd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestEnvelope_DecodeOptionElement(t *testing.T) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	require.NoError(t, enc.EncodeArrayLen(4))
	require.NoError(t, enc.EncodeString("tag.a"))
	require.NoError(t, enc.EncodeUint(1609459200))
	require.NoError(t, enc.EncodeMapLen(1))
	require.NoError(t, enc.EncodeString("k"))
	require.NoError(t, enc.EncodeString("v"))
	require.NoError(t, enc.EncodeMapLen(1))
	require.NoError(t, enc.EncodeString("chunk"))
	require.NoError(t, enc.EncodeString("abc"))

	var env Envelope
	require.NoError(t, msgpack.NewDecoder(&buf).Decode(&env))

	assert.Equal(t, "tag.a", env.Tag)
	assert.Equal(t, IntegerTimeMode, env.TimeMode)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), env.Time)
	assert.True(t, EqualMaps(Map{F("k", String("v"))}, env.Record))
	assert.True(t, EqualMaps(Map{F("chunk", String("abc"))}, env.Option))
}

func TestEnvelope_DecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(enc *msgpack.Encoder)
	}{
		{"wrong array length", func(enc *msgpack.Encoder) {
			_ = enc.EncodeArrayLen(2)
			_ = enc.EncodeString("tag")
			_ = enc.EncodeUint(1)
		}},
		{"string time", func(enc *msgpack.Encoder) {
			_ = enc.EncodeArrayLen(3)
			_ = enc.EncodeString("tag")
			_ = enc.EncodeString("now")
			_ = enc.EncodeMapLen(0)
		}},
		{"record is not a map", func(enc *msgpack.Encoder) {
			_ = enc.EncodeArrayLen(3)
			_ = enc.EncodeString("tag")
			_ = enc.EncodeUint(1)
			_ = enc.EncodeArrayLen(0)
		}},
		{"non-string key", func(enc *msgpack.Encoder) {
			_ = enc.EncodeArrayLen(3)
			_ = enc.EncodeString("tag")
			_ = enc.EncodeUint(1)
			_ = enc.EncodeMapLen(1)
			_ = enc.EncodeInt(1)
			_ = enc.EncodeInt(2)
		}},
	}
	for i := 0; i < len(tests); i++ {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.build(msgpack.NewEncoder(&buf))
			var env Envelope
			assert.Error(t, msgpack.NewDecoder(&buf).Decode(&env))
		})
	}
}

func TestDecodeMap_KeyError(t *testing.T) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	require.NoError(t, enc.EncodeMapLen(1))
	require.NoError(t, enc.EncodeInt(1))
	require.NoError(t, enc.EncodeInt(2))

	_, err := DecodeMap(msgpack.NewDecoder(&buf))
	assert.ErrorIs(t, err, ErrStringKeyExpected)
}

func TestDecodeMap_HeaderError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, msgpack.NewEncoder(&buf).EncodeString("x"))

	_, err := DecodeMap(msgpack.NewDecoder(&buf))
	assert.ErrorIs(t, err, ErrMapHeaderExpected)
}
