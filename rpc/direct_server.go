package rpc

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
)

// jsonRPCRequest and jsonRPCResponse are the wire shapes of §6's
// Direct-RPC format.
type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id,omitempty"`
	Method  string        `json:"method"`
	Params  requestParams `json:"params"`
}

// requestParams accepts either a positional list or a named map,
// mirroring Payload's args/kwargs split.
type requestParams struct {
	Args   []interface{}          `json:"args,omitempty"`
	Kwargs map[string]interface{} `json:"kwargs,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id,omitempty"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
}

// DirectServer is the minimal JSON-RPC 2.0 HTTP server of §4.7 Direct
// RPC. Realized as an in-process goroutine rather than a subprocess
// talking over a pipe, per §9 Design Notes' allowance: "may be realized
// as an in-process cooperative task if the target runtime supports
// non-blocking HTTP without GIL-like serialization" — which an
// http.Server backed by goroutines does.
type DirectServer struct {
	registry *Registry
	mu       *sync.Mutex // the global RPC mutex, shared with the transform dispatcher
	self     Context

	srv *http.Server
}

// NewDirectServer builds a server bound to addr (host:port). The
// listener serves plain HTTP; it takes no scheme, and TLS termination,
// if any, is external to this core.
func NewDirectServer(addr string, registry *Registry, mu *sync.Mutex, self Context) *DirectServer {
	s := &DirectServer{registry: registry, mu: mu, self: self}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Serve blocks until the server is closed via Close. Caller runs it in
// its own goroutine, per the lifecycle's "launch all threads" step.
func (s *DirectServer) Serve() error {
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("rpc: direct server: %w", err)
	}
	return nil
}

// Close shuts the server down.
func (s *DirectServer) Close() error {
	return s.srv.Close()
}

func (s *DirectServer) handle(w http.ResponseWriter, r *http.Request) {
	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, jsonRPCResponse{JSONRPC: "2.0", Error: &jsonRPCError{Code: CodeInternalError, Message: "invalid request"}})
		return
	}

	notification := req.ID == nil
	payload := Payload{Method: req.Method, Args: req.Params.Args, Kwargs: req.Params.Kwargs}

	s.mu.Lock()
	result, rpcErr := Dispatch(s.registry, s.self, payload)
	s.mu.Unlock()

	if notification {
		// "unless the request was a notification (no id), in which case
		// nothing is returned" (§4.7).
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := jsonRPCResponse{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = &jsonRPCError{Code: rpcErr.Code, Message: rpcErr.Message}
	} else {
		resp.Result = result
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, resp jsonRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[ERROR] rpc: write response: %v", err)
	}
}
