package rpc

import (
	"fmt"

	"github.com/catenae-go/catenae/bus"
	"github.com/catenae-go/catenae/envelope"
)

// BroadcastTarget is the `to` value that addresses the fan-out topic
// rpc_broadcast (see Topic).
const BroadcastTarget = "broadcast"

// Topic builds the well-known topic name for a given RPC target, per
// §6: `rpc_<uid>` for an instance, `rpc_<classname-lowercased>` for a
// group, `rpc_broadcast` for fan-out (to is literally "broadcast").
func Topic(to string) string {
	return "rpc_" + to
}

// Caller publishes bus-RPC invocations (§4.7 Bus RPC). Delivery always
// uses the sync producer path, matching "Delivery uses the sync
// producer path."
type Caller struct {
	producer *bus.Producer
	self     Context
}

// NewCaller binds a Caller to the link's own producer and identity
// (used to fill the {group, uid} context on every outgoing call).
func NewCaller(producer *bus.Producer, self Context) *Caller {
	return &Caller{producer: producer, self: self}
}

// busRPCBody is the wire body of a bus-RPC envelope (§4.7): method plus
// context plus args/kwargs.
type busRPCBody struct {
	Method  string                 `msgpack:"method"`
	Context map[string]string      `msgpack:"context"`
	Args    []interface{}          `msgpack:"args,omitempty"`
	Kwargs  map[string]interface{} `msgpack:"kwargs,omitempty"`
}

// Call publishes an envelope to rpc_<to> carrying
// {method, context: {group, uid}, args, kwargs}, per §4.7.
func (c *Caller) Call(to, method string, args []interface{}, kwargs map[string]interface{}) error {
	body := busRPCBody{
		Method:  method,
		Context: map[string]string{"group": c.self.Group, "uid": c.self.UID},
		Args:    args,
		Kwargs:  kwargs,
	}
	e := envelope.New(nil, body)
	e.DestinationTopic = Topic(to)

	if err := c.producer.Publish(e, bus.Options{Sync: true}); err != nil {
		return fmt.Errorf("rpc: bus call %s.%s: %w", to, method, err)
	}
	return nil
}
