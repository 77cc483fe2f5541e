package rpc

import "sync"

// Peer is one entry in the peer registry (§3 Data model: "a mapping
// from peer UID to {host, port, scheme, group}").
type Peer struct {
	UID    string
	Group  string
	Host   string
	Port   string
	Scheme string
}

// PeerRegistry is the process-wide peer store of §4.7 Peer discovery
// and §3's invariant: "an entry exists in the by-group index iff it
// exists in the by-uid index." Mutated only from RPC handlers, which
// already hold the global RPC mutex (§5), so PeerRegistry's own mutex
// exists for read safety against concurrent direct-RPC client lookups
// rather than to serialize writers against each other.
type PeerRegistry struct {
	mu      sync.RWMutex
	byUID   map[string]Peer
	byGroup map[string]map[string]Peer // group -> uid -> Peer
}

// NewPeerRegistry returns an empty registry.
func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{
		byUID:   make(map[string]Peer),
		byGroup: make(map[string]map[string]Peer),
	}
}

// Add inserts p into both indices, satisfying testable property 7
// (registry symmetry).
func (r *PeerRegistry) Add(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUID[p.UID] = p
	group, ok := r.byGroup[p.Group]
	if !ok {
		group = make(map[string]Peer)
		r.byGroup[p.Group] = group
	}
	group[p.UID] = p
}

// ByUID looks up a single peer.
func (r *PeerRegistry) ByUID(uid string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byUID[uid]
	return p, ok
}

// ByGroup returns every peer registered under group.
func (r *PeerRegistry) ByGroup(group string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.byGroup[group]
	peers := make([]Peer, 0, len(entries))
	for _, p := range entries {
		peers = append(peers, p)
	}
	return peers
}

// Len reports the number of distinct UIDs registered.
func (r *PeerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUID)
}
