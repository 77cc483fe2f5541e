// Package rpc implements the method registry and the two invocation
// paths (bus RPC and direct RPC) described in spec §4.7: a set of
// remotely callable methods, a JSON-RPC 2.0 HTTP server/client for
// point-to-point calls, and a bus-topic based broadcast/unicast path
// for invocation over Kafka itself.
package rpc

import "fmt"

// Context is the {group, uid, topic} dict prefixed onto every RPC
// method invocation (§4.6 RPC worker, §4.7 Bus RPC).
type Context struct {
	Group string
	UID   string
	Topic string
}

// Handler is a registered remotely callable method. args/kwargs mirror
// the Python original's positional/keyword split; a handler typically
// only uses one of the two, decided by how its caller packed the
// payload (§4.7 Bus RPC format, §6 Direct-RPC wire format).
type Handler func(ctx Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error)

// Registry is the method registry of §4.7/§3: the set of method names
// callable over bus RPC and direct RPC. Go has no runtime decorator
// equivalent, so registration happens explicitly at construction
// (§9 Design Notes). Each Link builds its own Registry in New; a
// Registry is not shared between Link instances, even of the same
// class.
//
// Registry is read-only once Freeze is called, matching the invariant
// in §3 ("populated only at component initialization and is read-only
// thereafter").
type Registry struct {
	methods map[string]Handler
	frozen  bool
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]Handler)}
}

// Register adds a method. Panics if called after Freeze — a
// programmer error (registration is meant to happen once, at
// construction), not a runtime condition to recover from.
func (r *Registry) Register(name string, h Handler) {
	if r.frozen {
		panic(fmt.Sprintf("rpc: Register(%q) called after Freeze", name))
	}
	r.methods[name] = h
}

// Freeze marks the registry read-only.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Lookup returns the handler for name, if registered.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.methods[name]
	return h, ok
}
