package rpc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchMethodNotFound(t *testing.T) {
	reg := NewRegistry()
	reg.Freeze()

	_, rpcErr := Dispatch(reg, Context{}, Payload{Method: "missing"})
	require.NotNil(t, rpcErr)
	assert.Equal(t, CodeMethodNotFound, rpcErr.Code)
}

func TestDispatchInternalErrorOnHandlerFailure(t *testing.T) {
	reg := NewRegistry()
	reg.Register("boom", func(ctx Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return nil, fmt.Errorf("boom")
	})
	reg.Freeze()

	_, rpcErr := Dispatch(reg, Context{}, Payload{Method: "boom"})
	require.NotNil(t, rpcErr)
	assert.Equal(t, CodeInternalError, rpcErr.Code)
}

func TestDispatchRecoversPanic(t *testing.T) {
	reg := NewRegistry()
	reg.Register("panics", func(ctx Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		panic("kaboom")
	})
	reg.Freeze()

	_, rpcErr := Dispatch(reg, Context{}, Payload{Method: "panics"})
	require.NotNil(t, rpcErr)
	assert.Equal(t, CodeInternalError, rpcErr.Code)
}

func TestDispatchSuccess(t *testing.T) {
	reg := NewRegistry()
	reg.Register("echo", func(ctx Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return args[0], nil
	})
	reg.Freeze()

	result, rpcErr := Dispatch(reg, Context{}, Payload{Method: "echo", Args: []interface{}{"hi"}})
	require.Nil(t, rpcErr)
	assert.Equal(t, "hi", result)
}

func TestPeerRegistrySymmetry(t *testing.T) {
	peers := NewPeerRegistry()
	for i := 0; i < 5; i++ {
		peers.Add(Peer{UID: fmt.Sprintf("uid-%d", i), Group: "workers", Host: "h", Port: "1"})
	}
	assert.Equal(t, 5, peers.Len())
	group := peers.ByGroup("workers")
	assert.Len(t, group, 5)
	for _, p := range group {
		_, ok := peers.ByUID(p.UID)
		assert.True(t, ok)
	}
}

func TestDiscoverySelfRegistrationSkip(t *testing.T) {
	peers := NewPeerRegistry()
	client := NewDirectClient(peers)
	d := NewDiscovery(peers, client, "self-host", "9999")

	result, err := d.handleAddToStore(Context{UID: "x", Group: "g"}, nil, map[string]interface{}{
		"host": "self-host", "port": "9999", "scheme": "http",
	})
	require.NoError(t, err)
	assert.Equal(t, false, result)
	assert.Equal(t, 0, peers.Len())
}

func TestDecodePayloadRoundTrip(t *testing.T) {
	value := map[string]interface{}{
		"method": "add_to_store",
		"context": map[string]interface{}{
			"group": "g", "uid": "u",
		},
		"kwargs": map[string]interface{}{"host": "h", "port": "1", "scheme": "http"},
	}
	payload, ctx, err := DecodePayload(value)
	require.NoError(t, err)
	assert.Equal(t, "add_to_store", payload.Method)
	assert.Equal(t, "g", ctx.Group)
	assert.Equal(t, "u", ctx.UID)
	assert.Equal(t, "h", payload.Kwargs["host"])
}
