package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/caskdb/pkg/index"
	"github.com/dd0wney/caskdb/pkg/logging"
	"github.com/dd0wney/caskdb/pkg/record"
	"github.com/dd0wney/caskdb/pkg/segment"
)

// CompactionStats reports the outcome of one compaction run.
type CompactionStats struct {
	RunID             string
	SegmentsCompacted int
	RecordsCopied     int
	BytesReclaimed    int64
	OutputSegment     uint64 // 0 when nothing was live in the eligible set
	Duration          time.Duration
}

// move records one key's relocation from a snapshot location to its copy in
// the output segment.
type move struct {
	key  string
	from index.Location
	to   index.Location
}

// Compact rewrites the live contents of all sealed segments into one dense
// segment and retires the originals. Live data stays readable throughout:
// the bulk of the work runs without the write lock, re-entering it only for
// the snapshot and for the brief repoint-and-retire step.
//
// Two mechanisms carry the crash-safety argument. The output is written
// under a scratch name and renamed into place only after it is sealed, so
// recovery never sees a partial output; a crash before the commit leaves only
// a stale scratch file, swept at the next open. And the output id is
// allocated before the writer is rolled to a fresh active segment, so every
// record appended concurrently with the run lands in a segment younger than
// the output. If the process dies after the commit but before the originals
// are deleted, replay order alone guarantees the live write beats the
// compacted copy; at worst space reclamation is retried.
func (s *Store) Compact() (CompactionStats, error) {
	if s.closed.Load() {
		return CompactionStats{}, ErrStoreClosed
	}
	if !s.compacting.CompareAndSwap(false, true) {
		return CompactionStats{}, ErrCompactionInProgress
	}
	defer s.compacting.Store(false)

	start := time.Now()
	runID := uuid.NewString()
	log := s.log.With(logging.Component("compactor"), logging.String("run_id", runID))

	stats, err := s.compact(log, runID)
	stats.RunID = runID
	stats.Duration = time.Since(start)

	if err != nil {
		s.mreg.RecordCompaction("error", stats.Duration, 0)
		log.Error("compaction failed", logging.Error(err))
		return stats, err
	}

	s.counters.compactions.Add(1)
	s.mreg.RecordCompaction("success", stats.Duration, stats.BytesReclaimed)
	log.Info("compaction complete",
		logging.Int("segments_compacted", stats.SegmentsCompacted),
		logging.Records(stats.RecordsCopied),
		logging.Bytes(stats.BytesReclaimed),
		logging.Latency(stats.Duration))
	return stats, nil
}

func (s *Store) compact(log logging.Logger, runID string) (CompactionStats, error) {
	var stats CompactionStats

	// Phase 1 (exclusive): seal the writer's segment, allocate the output,
	// roll to a fresh active segment, and snapshot the index.
	s.writeMu.Lock()
	if s.closed.Load() {
		s.writeMu.Unlock()
		return stats, ErrStoreClosed
	}

	sealed, err := s.active.Seal()
	if err != nil {
		s.writeMu.Unlock()
		return stats, segmentError("compact", s.active.ID(), err)
	}
	s.manager.AdoptSealed(sealed)

	// The output lives under a scratch name until it is complete; recovery
	// never sees a partially written output segment.
	output, err := s.manager.CreateScratch()
	if err != nil {
		s.writeMu.Unlock()
		return stats, opError("compact", err)
	}

	active, err := s.manager.CreateActive()
	if err != nil {
		s.writeMu.Unlock()
		return stats, opError("compact", err)
	}
	s.active = active

	snapshot := s.idx.Snapshot()
	eligible := make(map[uint64]*segment.Sealed)
	var eligibleBytes int64
	for _, seg := range s.manager.Sealed() {
		if seg.ID() < output.ID() {
			eligible[seg.ID()] = seg
			eligibleBytes += seg.Size()
		}
	}
	s.writeMu.Unlock()

	stats.SegmentsCompacted = len(eligible)
	if len(eligible) == 0 {
		return stats, s.discardOutput(output)
	}

	// Phase 2 (concurrent): copy the latest record of every key whose
	// snapshot location falls in an eligible segment. Concurrent puts are
	// harmless: they land in younger segments, and the repoint below skips
	// any key the writer has moved since the snapshot.
	moves := make([]move, 0, len(snapshot))
	for key, loc := range snapshot {
		if _, ok := eligible[loc.SegmentID]; !ok {
			continue
		}
		if s.closed.Load() {
			s.discardOutput(output)
			return stats, ErrStoreClosed
		}

		buf, err := s.manager.ReadAt(loc.SegmentID, loc.Offset, loc.Length)
		if err != nil {
			s.discardOutput(output)
			return stats, segmentError("compact", loc.SegmentID, err)
		}
		rec, err := record.Decode(buf)
		if err != nil {
			s.discardOutput(output)
			return stats, segmentError("compact", loc.SegmentID,
				fmt.Errorf("%w: offset %d: %v", ErrCorruptSegment, loc.Offset, err))
		}
		if rec.IsTombstone() {
			s.discardOutput(output)
			return stats, segmentError("compact", loc.SegmentID,
				fmt.Errorf("index entry for %q resolves to a tombstone", key))
		}

		encoded := record.Encode(rec)
		offset, err := output.Append(encoded)
		if err != nil {
			s.discardOutput(output)
			return stats, segmentError("compact", output.ID(), err)
		}

		moves = append(moves, move{
			key:  key,
			from: loc,
			to: index.Location{
				SegmentID: output.ID(),
				Offset:    offset,
				Length:    uint32(len(encoded)),
			},
		})
	}

	if len(moves) == 0 {
		// Nothing live in the eligible set; retire it without an output.
		if err := s.discardOutput(output); err != nil {
			return stats, err
		}
		reclaimed, err := s.retire(log, eligible)
		stats.BytesReclaimed = reclaimed
		return stats, err
	}

	// The output must be durable and committed under its final name before
	// any index entry points into it.
	outputSealed, err := output.Seal()
	if err != nil {
		s.discardOutput(output)
		return stats, segmentError("compact", output.ID(), err)
	}
	if err := s.manager.CommitScratch(outputSealed); err != nil {
		return stats, segmentError("compact", output.ID(), err)
	}
	stats.OutputSegment = outputSealed.ID()
	stats.RecordsCopied = len(moves)

	// Phase 3 (exclusive): repoint, then retire. Repoint is conditional per
	// key, so the writer's critical section is strictly ordered against it.
	s.writeMu.Lock()
	if s.closed.Load() {
		s.writeMu.Unlock()
		return stats, ErrStoreClosed
	}
	repointed := 0
	for _, mv := range moves {
		if s.idx.Repoint(mv.key, mv.from, mv.to) {
			repointed++
		}
	}
	s.writeMu.Unlock()

	log.Debug("index repointed",
		logging.Keys(repointed),
		logging.Int("skipped", len(moves)-repointed),
		logging.SegmentID(outputSealed.ID()))

	reclaimed, err := s.retire(log, eligible)
	stats.BytesReclaimed = reclaimed - outputSealed.Size()
	if err != nil {
		return stats, err
	}

	s.writeMu.Lock()
	s.publishGauges()
	s.writeMu.Unlock()
	return stats, nil
}

// retire deletes the compacted segment files. No index entry references them
// once repoint has run.
func (s *Store) retire(log logging.Logger, eligible map[uint64]*segment.Sealed) (int64, error) {
	var reclaimed int64
	for id, seg := range eligible {
		if err := s.manager.Remove(id); err != nil {
			return reclaimed, segmentError("compact", id, err)
		}
		reclaimed += seg.Size()
		log.Debug("segment retired", logging.SegmentID(id), logging.Bytes(seg.Size()))
	}
	return reclaimed, nil
}

// discardOutput abandons an uncommitted compaction output. No index entry
// ever pointed at it.
func (s *Store) discardOutput(output *segment.Active) error {
	if err := s.manager.DiscardScratch(output); err != nil {
		return segmentError("compact", output.ID(), err)
	}
	return nil
}
