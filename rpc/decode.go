package rpc

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// DecodePayload converts an envelope's decoded value — a
// map[string]interface{} once it has round-tripped through msgpack,
// since the self-describing encoding does not preserve Go struct types
// across the wire — into a typed Payload and Context. It works by
// re-marshaling the generic value and unmarshaling it into the target
// structs, which msgpack supports for any self-describing value.
func DecodePayload(value interface{}) (Payload, Context, error) {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return Payload{}, Context{}, fmt.Errorf("rpc: re-encode payload: %w", err)
	}

	var body struct {
		Method  string                 `msgpack:"method"`
		Context map[string]string      `msgpack:"context"`
		Args    []interface{}          `msgpack:"args"`
		Kwargs  map[string]interface{} `msgpack:"kwargs"`
	}
	if err := msgpack.Unmarshal(raw, &body); err != nil {
		return Payload{}, Context{}, fmt.Errorf("rpc: decode payload: %w", err)
	}
	if body.Method == "" {
		return Payload{}, Context{}, fmt.Errorf("rpc: payload missing method field")
	}

	ctx := Context{Group: body.Context["group"], UID: body.Context["uid"]}
	return Payload{Method: body.Method, Args: body.Args, Kwargs: body.Kwargs}, ctx, nil
}
