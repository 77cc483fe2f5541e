package store

import "log"

// Connect implements §4.8's store-initialization step: "initialize
// optional store connectors (a missing endpoint leaves the attribute
// unset, never an error)." A non-empty endpoint that fails to connect
// is logged, not fatal — the link starts without that store rather
// than refusing to start.
func Connect(kvAddr, docAddr, docDBName string) (kv KVStore, doc DocStore) {
	if kvAddr != "" {
		s, err := NewRedisStore(kvAddr)
		if err != nil {
			log.Printf("[ERROR] store: kv connector unavailable at %s: %v", kvAddr, err)
		} else {
			kv = s
		}
	}
	if docAddr != "" {
		s, err := NewMongoStore(docAddr, docDBName)
		if err != nil {
			log.Printf("[ERROR] store: document connector unavailable at %s: %v", docAddr, err)
		} else {
			doc = s
		}
	}
	return kv, doc
}
