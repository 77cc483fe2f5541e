package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeValueStringLiteralSendsRawBytes(t *testing.T) {
	e := New("k", "hello")
	e.StringLiteral = true
	raw, err := EncodeValue(e)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(raw))
}

func TestEncodeDecodeRoundTripBinary(t *testing.T) {
	e := New("k", map[string]interface{}{"a": 1})
	e.DestinationTopic = "out"
	raw, err := EncodeValue(e)
	assert.NoError(t, err)

	// map keys in Go's binary payload are not UTF-8 plain text, so
	// DecodeRaw must take the msgpack branch.
	got, err := DecodeRaw(raw)
	assert.NoError(t, err)
	assert.Equal(t, "out", got.DestinationTopic)
}

func TestDecodeRawValidUTF8IsPlainText(t *testing.T) {
	got, err := DecodeRaw([]byte("plain text"))
	assert.NoError(t, err)
	assert.Equal(t, "plain text", got.Value)
	assert.True(t, got.StringLiteral)
}

func TestEncodeKeyStringIsUTF8Bytes(t *testing.T) {
	raw, err := EncodeKey("partition-key")
	assert.NoError(t, err)
	assert.Equal(t, "partition-key", string(raw))
}

func TestEncodeKeyNilIsNil(t *testing.T) {
	raw, err := EncodeKey(nil)
	assert.NoError(t, err)
	assert.Nil(t, raw)
}

func TestEncodeKeyDeterministicForEqualMaps(t *testing.T) {
	a := map[string]interface{}{"z": 1, "a": 2, "m": 3}
	b := map[string]interface{}{"a": 2, "m": 3, "z": 1}

	rawA, err := EncodeKey(a)
	assert.NoError(t, err)
	rawB, err := EncodeKey(b)
	assert.NoError(t, err)
	assert.Equal(t, rawA, rawB)
}
