// Package index holds the in-memory map from each live key to the on-disk
// location of its most recent record. The index is the single source of truth
// for liveness: a key absent here is logically deleted or never written, no
// matter how many obsolete records for it remain on disk.
package index

import "sync"

// Location is where a key's latest record lives on disk.
type Location struct {
	SegmentID uint64
	Offset    int64
	Length    uint32
}

// Index is a point-lookup map guarded by a read-write mutex. Mutations come
// only from the writer and the compactor's repoint step; lookups copy out a
// single entry under a brief read lock.
type Index struct {
	mu        sync.RWMutex
	entries   map[string]Location
	liveBytes int64
}

// New returns an empty index.
func New() *Index {
	return &Index{entries: make(map[string]Location)}
}

// Lookup returns the location of key's latest record, if the key is live.
func (ix *Index) Lookup(key []byte) (Location, bool) {
	ix.mu.RLock()
	loc, ok := ix.entries[string(key)]
	ix.mu.RUnlock()
	return loc, ok
}

// Insert points key at loc, replacing any previous entry.
func (ix *Index) Insert(key []byte, loc Location) {
	ix.mu.Lock()
	if old, ok := ix.entries[string(key)]; ok {
		ix.liveBytes -= int64(old.Length)
	}
	ix.entries[string(key)] = loc
	ix.liveBytes += int64(loc.Length)
	ix.mu.Unlock()
}

// Remove deletes key's entry and reports whether it existed.
func (ix *Index) Remove(key []byte) bool {
	ix.mu.Lock()
	old, ok := ix.entries[string(key)]
	if ok {
		ix.liveBytes -= int64(old.Length)
		delete(ix.entries, string(key))
	}
	ix.mu.Unlock()
	return ok
}

// Repoint moves key from expected to loc, but only if the entry still equals
// expected. The compactor uses this so a concurrent put always wins: if the
// writer has already moved the key, the stale compacted copy is left
// unreferenced and dies with its segment.
func (ix *Index) Repoint(key string, expected, loc Location) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	cur, ok := ix.entries[key]
	if !ok || cur != expected {
		return false
	}
	ix.entries[key] = loc
	ix.liveBytes += int64(loc.Length) - int64(expected.Length)
	return true
}

// Snapshot returns a point-in-time copy of all entries.
func (ix *Index) Snapshot() map[string]Location {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make(map[string]Location, len(ix.entries))
	for k, v := range ix.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of live keys.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// LiveBytes returns the total on-disk size of all referenced records.
func (ix *Index) LiveBytes() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.liveBytes
}
