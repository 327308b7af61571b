package store

import "sync/atomic"

// engineCounters tracks operation totals with lock-free atomics so the hot
// paths never contend on a statistics lock.
type engineCounters struct {
	puts        atomic.Int64
	gets        atomic.Int64
	deletes     atomic.Int64
	compactions atomic.Int64
	tornTails   atomic.Int64
}

// Stats is a point-in-time snapshot of the store's state.
type Stats struct {
	Keys           int
	Segments       int
	ActiveSegment  uint64
	DiskUsageBytes int64
	LiveBytes      int64

	Puts           int64
	Gets           int64
	Deletes        int64
	Compactions    int64
	TruncatedTails int64
}

// Stats returns a consistent snapshot of store statistics.
func (s *Store) Stats() Stats {
	s.writeMu.Lock()
	segments := len(s.manager.Sealed()) + 1
	activeID := s.active.ID()
	disk := s.manager.SealedBytes() + s.active.Size()
	s.writeMu.Unlock()

	return Stats{
		Keys:           s.idx.Len(),
		Segments:       segments,
		ActiveSegment:  activeID,
		DiskUsageBytes: disk,
		LiveBytes:      s.idx.LiveBytes(),
		Puts:           s.counters.puts.Load(),
		Gets:           s.counters.gets.Load(),
		Deletes:        s.counters.deletes.Load(),
		Compactions:    s.counters.compactions.Load(),
		TruncatedTails: s.counters.tornTails.Load(),
	}
}
