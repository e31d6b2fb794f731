package dce

import (
	"sync"
	"time"
)

// dedup collapses triggers that derive the same execution hash within a TTL
// window to the execution they already produced. It is safe for concurrent
// use.
type dedup struct {
	mu   sync.Mutex
	seen map[string]dedupEntry // execution hash -> entry
	ttl  time.Duration
}

type dedupEntry struct {
	executionID string
	at          time.Time
}

func newDedup(ttl time.Duration) *dedup {
	return &dedup{
		seen: make(map[string]dedupEntry),
		ttl:  ttl,
	}
}

// lookup returns the execution ID previously recorded for hash, if it is
// still inside the TTL window.
func (d *dedup) lookup(hash string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.seen[hash]
	if !ok || time.Since(entry.at) >= d.ttl {
		return "", false
	}
	return entry.executionID, true
}

// record remembers the execution ID produced for hash.
func (d *dedup) record(hash, executionID string) {
	d.mu.Lock()
	d.seen[hash] = dedupEntry{executionID: executionID, at: time.Now()}
	d.mu.Unlock()
}

// cleanup removes expired entries. Called periodically by the engine to
// prevent unbounded growth.
func (d *dedup) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for hash, entry := range d.seen {
		if now.Sub(entry.at) >= d.ttl {
			delete(d.seen, hash)
		}
	}
}
