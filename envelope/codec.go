package envelope

import (
	"bytes"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
)

// marshalDeterministic encodes v to msgpack with map keys sorted, so
// that two equal values (in particular two equal map-typed keys)
// always encode to identical bytes regardless of Go's randomized map
// iteration order.
func marshalDeterministic(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wireEnvelope is the self-describing binary projection of an envelope
// used on the wire. msgpack is self-describing (the decoder can tell a
// map from a string from a nested map without an external schema),
// which is what §4.6 step 2(b) requires of the binary payload format.
type wireEnvelope struct {
	Key           interface{} `msgpack:"key,omitempty"`
	Value         interface{} `msgpack:"value"`
	Destination   string      `msgpack:"destination,omitempty"`
	StringLiteral bool        `msgpack:"string_literal,omitempty"`
	IsEnvelope    bool        `msgpack:"is_envelope,omitempty"`
}

// EncodeValue serializes an envelope's sendable projection for
// publication. If literal is set and v is already a string, the string
// bytes are sent as-is (§4.4 step 3); otherwise the value is wrapped in
// the self-describing binary envelope projection.
func EncodeValue(e *Envelope) ([]byte, error) {
	if e.StringLiteral {
		if s, ok := e.Value.(string); ok {
			return []byte(s), nil
		}
	}
	w := wireEnvelope{
		Key:           e.Key,
		Value:         e.Value,
		Destination:   e.DestinationTopic,
		StringLiteral: e.StringLiteral,
		IsEnvelope:    true,
	}
	return marshalDeterministic(&w)
}

// DecodeRaw turns a raw bus message value into an Envelope, per §4.6
// step 2. It accepts raw bytes only; there is no pass-through path for
// an already-decoded Envelope.
//
//	(a) valid UTF-8 bytes produce a plain-text envelope (StringLiteral
//	    set);
//	(b) otherwise the bytes are deserialized as the self-describing
//	    binary envelope projection written by EncodeValue;
//	(c) total failure returns an error for the caller to log and drop.
func DecodeRaw(raw []byte) (*Envelope, error) {
	if utf8.Valid(raw) {
		return &Envelope{Value: string(raw), StringLiteral: true}, nil
	}
	var w wireEnvelope
	if err := msgpack.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &Envelope{
		Key:              w.Key,
		Value:            w.Value,
		DestinationTopic: w.Destination,
		StringLiteral:    w.StringLiteral,
	}, nil
}

// EncodeKey produces the partition key bytes for an envelope key. A
// string key is sent as its UTF-8 bytes verbatim (testable property 3);
// any other value is run through the same deterministic binary
// encoding used for values, so that equal keys always produce equal
// bytes.
func EncodeKey(key interface{}) ([]byte, error) {
	if key == nil {
		return nil, nil
	}
	if s, ok := key.(string); ok {
		return []byte(s), nil
	}
	return marshalDeterministic(key)
}
