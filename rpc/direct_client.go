package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// directClientTimeout is the 5 second outbound direct-RPC call timeout
// from §5/§6.
const directClientTimeout = 5 * time.Second

// DirectClient is the outbound direct-RPC client of §4.7: "Given a peer
// UID, look up its {scheme, host, port} in the peer registry, build a
// JSON-RPC request, POST it with a 5-second timeout, parse `result`."
type DirectClient struct {
	peers *PeerRegistry
	http  *http.Client
	idSeq int
}

// NewDirectClient binds a client to a peer registry.
func NewDirectClient(peers *PeerRegistry) *DirectClient {
	return &DirectClient{peers: peers, http: &http.Client{Timeout: directClientTimeout}}
}

// Call invokes method on the peer identified by uid, looking up its
// endpoint in the bound peer registry. HTTP errors are logged but the
// body is still parsed where possible, matching §4.7's "HTTP errors are
// logged but the body is still parsed."
func (c *DirectClient) Call(uid, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	peer, ok := c.peers.ByUID(uid)
	if !ok {
		return nil, fmt.Errorf("rpc: no peer registered for uid %q", uid)
	}
	return c.CallAt(peer.Scheme, peer.Host, peer.Port, method, args, kwargs)
}

// CallAt invokes method at an explicit {scheme, host, port}, bypassing
// the peer registry. Used by discovery's "available" probe (§4.7),
// which must reach an announcer before that announcer is registered.
func (c *DirectClient) CallAt(scheme, host, port, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	c.idSeq++
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      c.idSeq,
		Method:  method,
		Params:  requestParams{Args: args, Kwargs: kwargs},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode request: %w", err)
	}

	url := fmt.Sprintf("%s://%s:%s/", scheme, host, port)
	resp, err := c.http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[ERROR] rpc: direct call to %s failed: %v", url, err)
		return nil, fmt.Errorf("rpc: direct call to %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		log.Printf("[ERROR] rpc: direct call to %s returned HTTP %d", url, resp.StatusCode)
	}

	var parsed jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("rpc: decode response from %s: %w", url, err)
	}
	if parsed.Error != nil {
		return nil, &Error{Code: parsed.Error.Code, Message: parsed.Error.Message}
	}
	return parsed.Result, nil
}
