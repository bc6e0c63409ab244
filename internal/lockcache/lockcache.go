// Package lockcache implements the Lock-Key Cache: an in-memory
// mapping from collection name to its currently held unlock key, plus
// an analogous map for standalone secrets.
//
// Exclusively owned by the Request Processor's actor goroutine —
// never locked internally. The cached keys are wrapped in
// secretbuf.Buffer so zeroisation on eviction is automatic, and the
// type has no serialisation path at all: keys never survive a daemon
// restart.
package lockcache

import "github.com/sealbox/secretsd/internal/secretbuf"

// Cache holds unlock keys currently held for collections and standalone
// secrets. It is not safe for concurrent use — the actor that owns the
// Request Processor is the only caller.
type Cache struct {
	collections map[string]*secretbuf.Buffer
	standalone  map[string]*secretbuf.Buffer
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		collections: make(map[string]*secretbuf.Buffer),
		standalone:  make(map[string]*secretbuf.Buffer),
	}
}

// GetCollectionKey returns the cached key for collection, if any.
func (c *Cache) GetCollectionKey(collection string) (*secretbuf.Buffer, bool) {
	k, ok := c.collections[collection]
	return k, ok
}

// SetCollectionKey caches key for collection, taking ownership of it.
// Any previously cached key for the same collection is zeroised first.
func (c *Cache) SetCollectionKey(collection string, key *secretbuf.Buffer) {
	if old, ok := c.collections[collection]; ok {
		old.Zeroise()
	}
	c.collections[collection] = key
}

// EvictCollectionKey removes and zeroises the cached key for
// collection, if one exists. Called by the relock scheduler on timer
// fire, by DeleteCollection, and on a failed unlock attempt.
func (c *Cache) EvictCollectionKey(collection string) {
	if k, ok := c.collections[collection]; ok {
		k.Zeroise()
		delete(c.collections, collection)
	}
}

// HasCollectionKey reports whether a key is currently cached for
// collection, without returning it.
func (c *Cache) HasCollectionKey(collection string) bool {
	_, ok := c.collections[collection]
	return ok
}

// GetStandaloneKey, SetStandaloneKey and EvictStandaloneKey mirror the
// collection-keyed operations above for standalone secrets, keyed by
// hashed secret name.
func (c *Cache) GetStandaloneKey(hashedName string) (*secretbuf.Buffer, bool) {
	k, ok := c.standalone[hashedName]
	return k, ok
}

func (c *Cache) SetStandaloneKey(hashedName string, key *secretbuf.Buffer) {
	if old, ok := c.standalone[hashedName]; ok {
		old.Zeroise()
	}
	c.standalone[hashedName] = key
}

func (c *Cache) EvictStandaloneKey(hashedName string) {
	if k, ok := c.standalone[hashedName]; ok {
		k.Zeroise()
		delete(c.standalone, hashedName)
	}
}

// HasStandaloneKey reports whether a key is currently cached for the
// standalone secret named by hashedName, without returning it.
func (c *Cache) HasStandaloneKey(hashedName string) bool {
	_, ok := c.standalone[hashedName]
	return ok
}
