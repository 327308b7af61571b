package store

import (
	"time"

	"github.com/dd0wney/caskdb/pkg/index"
	"github.com/dd0wney/caskdb/pkg/logging"
	"github.com/dd0wney/caskdb/pkg/record"
)

// Put durably stores value under key. The index is updated only after the
// append reaches the configured durability level, so the index never points
// at un-persisted data. An I/O error leaves the index untouched and the
// operation may be retried.
func (s *Store) Put(key, value []byte) error {
	start := time.Now()

	err := s.put(key, value)
	if err != nil {
		s.mreg.RecordOperation("put", "error", time.Since(start))
		return err
	}

	s.counters.puts.Add(1)
	s.mreg.RecordOperation("put", "success", time.Since(start))
	return nil
}

func (s *Store) put(key, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateStoredValue(len(value)); err != nil {
		return keyError("put", key, err)
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}

	// Snappy can expand incompressible input, so the length that actually
	// goes on disk is validated separately from the raw length.
	stored := s.compressValue(value)
	if err := validateStoredValue(len(stored)); err != nil {
		return keyError("put", key, err)
	}
	rec := record.NewValue(key, stored, uint64(time.Now().UnixNano()))
	buf := record.Encode(rec)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return ErrStoreClosed
	}

	loc, err := s.append(buf)
	if err != nil {
		return keyError("put", key, err)
	}

	s.idx.Insert(key, loc)
	return nil
}

// Delete removes key by appending a tombstone. The tombstone is a durable,
// append-only fact: it is what lets recovery forget the key instead of
// resurrecting a stale value from an older segment. Deleting an absent key
// is not an error.
func (s *Store) Delete(key []byte) error {
	start := time.Now()

	err := s.delete(key)
	if err != nil {
		s.mreg.RecordOperation("delete", "error", time.Since(start))
		return err
	}

	s.counters.deletes.Add(1)
	s.mreg.RecordOperation("delete", "success", time.Since(start))
	return nil
}

func (s *Store) delete(key []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}

	rec := record.NewTombstone(key, uint64(time.Now().UnixNano()))
	buf := record.Encode(rec)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return ErrStoreClosed
	}

	if _, err := s.append(buf); err != nil {
		return keyError("delete", key, err)
	}

	s.idx.Remove(key)
	return nil
}

// append writes one encoded record to the active segment and makes it
// durable per the sync policy. Must be called with writeMu held. The record
// never straddles a segment boundary: rollover happens before the append.
func (s *Store) append(buf []byte) (index.Location, error) {
	if err := s.maybeRollover(int64(len(buf))); err != nil {
		return index.Location{}, err
	}

	offset, err := s.active.Append(buf)
	if err != nil {
		return index.Location{}, err
	}

	// Flush always, so readers and a clean restart see the record; fsync
	// per policy. This is the documented latency/durability tradeoff.
	if s.cfg.Sync == SyncEveryWrite {
		if err := s.active.Sync(); err != nil {
			return index.Location{}, err
		}
	} else {
		if err := s.active.Flush(); err != nil {
			return index.Location{}, err
		}
	}

	return index.Location{
		SegmentID: s.active.ID(),
		Offset:    offset,
		Length:    uint32(len(buf)),
	}, nil
}

// maybeRollover seals the active segment and switches to a fresh one when
// the next append would push it past the size threshold. Must be called with
// writeMu held.
func (s *Store) maybeRollover(next int64) error {
	if s.active.Size() == 0 || s.active.Size()+next <= s.cfg.SegmentSizeThreshold {
		return nil
	}

	sealed, err := s.active.Seal()
	if err != nil {
		return segmentError("seal", s.active.ID(), err)
	}
	s.manager.AdoptSealed(sealed)

	active, err := s.manager.CreateActive()
	if err != nil {
		return opError("rollover", err)
	}
	s.active = active

	s.log.Info("segment rolled over",
		logging.SegmentID(sealed.ID()),
		logging.Bytes(sealed.Size()),
		logging.Uint64("next_segment_id", active.ID()))
	s.publishGauges()

	s.maybeScheduleCompaction()
	return nil
}

// maybeScheduleCompaction kicks off a background compaction after a rollover
// if the live-ratio trigger is configured and the sealed set has decayed
// below the threshold. Must be called with writeMu held.
func (s *Store) maybeScheduleCompaction() {
	if s.cfg.Compaction != TriggerLiveRatio || s.compacting.Load() {
		return
	}

	sealedBytes := s.manager.SealedBytes()
	if sealedBytes == 0 {
		return
	}

	activeID := s.active.ID()
	var liveSealed int64
	for _, loc := range s.idx.Snapshot() {
		if loc.SegmentID != activeID {
			liveSealed += int64(loc.Length)
		}
	}

	ratio := float64(liveSealed) / float64(sealedBytes)
	if ratio >= s.cfg.LiveRatioThreshold {
		return
	}

	s.log.Info("scheduling compaction",
		logging.Float64("live_ratio", ratio),
		logging.Float64("threshold", s.cfg.LiveRatioThreshold))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Compact(); err != nil {
			s.log.Error("background compaction failed", logging.Error(err))
		}
	}()
}

// validateKey enforces the key contract shared by all operations.
func validateKey(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(key) > record.MaxKeySize {
		return ErrKeyTooLarge
	}
	return nil
}

// validateStoredValue enforces the on-disk value size limit. It is applied to
// the raw length before compression and to the stored length after, since the
// codec rejects any record whose value field exceeds the limit.
func validateStoredValue(n int) error {
	if n > record.MaxValueSize {
		return ErrValueTooLarge
	}
	return nil
}
