package rpc

import "fmt"

// Discovery wires the two peer-discovery handlers of §4.7: broadcasting
// this link's own endpoint on startup, and accepting other links'
// broadcasts into the local peer registry after verifying they are not
// a self-announcement and that the announcer's direct-RPC server
// actually answers.
type Discovery struct {
	peers  *PeerRegistry
	client *DirectClient

	selfHost string
	selfPort string
}

// NewDiscovery binds a Discovery to the peer registry and direct-RPC
// client it mutates/uses, and to the link's own {host, port} (from
// JSONRPC_HOST/JSONRPC_PORT, §6) for the self-registration skip.
func NewDiscovery(peers *PeerRegistry, client *DirectClient, selfHost, selfPort string) *Discovery {
	return &Discovery{peers: peers, client: client, selfHost: selfHost, selfPort: selfPort}
}

// RegisterHandlers adds "add_to_store" and "available" to registry,
// per §4.7 Peer discovery and §9's "explicit registration table
// populated in the component constructor."
func (d *Discovery) RegisterHandlers(registry *Registry) {
	registry.Register("add_to_store", d.handleAddToStore)
	registry.Register("available", d.handleAvailable)
}

// handleAvailable is the probe a peer uses to confirm this link's
// direct-RPC server is reachable before registering it (§4.7: "an
// `available` probe over direct RPC returns true before inserting into
// the registry").
func (d *Discovery) handleAvailable(ctx Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	return true, nil
}

// handleAddToStore implements §4.7's two-step acceptance: skip
// self-announcements (testable property 8), then probe the announcer
// over direct RPC and only register on a true response (testable
// property 5's sibling, property 7: registry symmetry).
func (d *Discovery) handleAddToStore(ctx Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	host, _ := kwargs["host"].(string)
	port, _ := kwargs["port"].(string)
	scheme, _ := kwargs["scheme"].(string)
	if host == "" || port == "" {
		return nil, fmt.Errorf("rpc: add_to_store missing host/port")
	}

	if host == d.selfHost && port == d.selfPort {
		return false, nil // self-registration skip, property 8
	}

	ok, err := d.client.CallAt(scheme, host, port, "available", nil, nil)
	if err != nil {
		return false, nil // unreachable peer, do not register
	}
	available, _ := ok.(bool)
	if !available {
		return false, nil
	}

	d.peers.Add(Peer{UID: ctx.UID, Group: ctx.Group, Host: host, Port: port, Scheme: scheme})
	return true, nil
}

// BroadcastSelf announces this link's own endpoint to rpc_broadcast, so
// peers can discover and probe it (§4.7: "On startup every link
// broadcasts an add_to_store RPC with its own {host, port, scheme}").
func BroadcastSelf(caller *Caller, host, port, scheme string) error {
	return caller.Call(BroadcastTarget, "add_to_store", nil, map[string]interface{}{
		"host": host, "port": port, "scheme": scheme,
	})
}
