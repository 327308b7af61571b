package store

import (
	"fmt"
	"time"

	"github.com/dd0wney/caskdb/pkg/record"
)

// Get returns the value stored under key. The second return reports whether
// the key is live; a missing key is (nil, false, nil), never an error. Reads
// block only for their own disk I/O and run concurrently with the writer and
// with each other.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	start := time.Now()

	value, found, err := s.get(key)
	if err != nil {
		s.mreg.RecordOperation("get", "error", time.Since(start))
		return nil, false, err
	}

	s.counters.gets.Add(1)
	s.mreg.RecordOperation("get", "success", time.Since(start))
	return value, found, nil
}

func (s *Store) get(key []byte) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	if s.closed.Load() {
		return nil, false, ErrStoreClosed
	}

	// A read can race with the compactor retiring the exact segment the
	// lookup returned. The repoint happens before the retire, so one
	// re-lookup always lands on a live segment.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		loc, ok := s.idx.Lookup(key)
		if !ok {
			return nil, false, nil
		}

		buf, err := s.manager.ReadAt(loc.SegmentID, loc.Offset, loc.Length)
		if err != nil {
			lastErr = err
			continue
		}

		rec, err := record.Decode(buf)
		if err != nil {
			return nil, false, keyError("get", key, fmt.Errorf("%w: segment %d offset %d: %v",
				ErrCorruptSegment, loc.SegmentID, loc.Offset, err))
		}
		if rec.IsTombstone() {
			// The index never points at a tombstone; this is a bug in the
			// engine, not a normal miss.
			return nil, false, keyError("get", key, fmt.Errorf("index entry resolves to a tombstone at segment %d offset %d",
				loc.SegmentID, loc.Offset))
		}

		value, err := s.decompressValue(rec.Value)
		if err != nil {
			return nil, false, keyError("get", key, err)
		}
		return value, true, nil
	}

	return nil, false, keyError("get", key, lastErr)
}
