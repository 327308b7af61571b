package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dd0wney/caskdb/pkg/index"
	"github.com/dd0wney/caskdb/pkg/logging"
	"github.com/dd0wney/caskdb/pkg/record"
	"github.com/dd0wney/caskdb/pkg/segment"
)

// recover rebuilds the index by replaying every segment oldest to newest,
// then positions the writer at the end of the youngest segment's last valid
// record.
//
// A checksum failure can legitimately occur only at the tail of the youngest
// segment, where a crash may have torn the last append; those bytes are
// discarded and the file truncated. The same failure anywhere else means the
// data was damaged after it was acknowledged, and recovery refuses to
// proceed over it.
func (s *Store) recover() error {
	files := s.manager.Files()

	for i, f := range files {
		youngest := i == len(files)-1

		validSize, replayed, err := s.replaySegment(f, youngest)
		if err != nil {
			return err
		}

		if youngest {
			active, err := s.manager.ReopenActive(f, validSize)
			if err != nil {
				return segmentError("recover", f.ID, err)
			}
			s.active = active
		} else {
			s.manager.AdoptFile(f, validSize)
		}

		s.log.Debug("segment replayed",
			logging.SegmentID(f.ID),
			logging.Records(replayed),
			logging.Bytes(validSize))
	}

	if s.active == nil {
		active, err := s.manager.CreateActive()
		if err != nil {
			return opError("recover", err)
		}
		s.active = active
	}

	s.log.Info("recovery complete",
		logging.Keys(s.idx.Len()),
		logging.Int("segments", len(files)),
		logging.SegmentID(s.active.ID()))
	return nil
}

// replaySegment decodes records from the start of one segment file, applying
// each to the index exactly as a live put/delete would. It returns the byte
// length of the valid prefix and the number of records replayed.
func (s *Store) replaySegment(f segment.File, youngest bool) (int64, int, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return 0, 0, segmentError("recover", f.ID, err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var offset int64
	replayed := 0

	for {
		rec, n, err := record.Read(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			if !youngest || !errors.Is(err, record.ErrCorruptRecord) {
				return 0, 0, segmentError("recover", f.ID,
					fmt.Errorf("%w: record at offset %d: %v", ErrCorruptSegment, offset, err))
			}
			// Torn tail of the youngest segment: trust everything before
			// it, discard everything from here on.
			if terr := os.Truncate(f.Path, offset); terr != nil {
				return 0, 0, segmentError("recover", f.ID,
					fmt.Errorf("failed to truncate torn tail: %w", terr))
			}
			s.counters.tornTails.Add(1)
			s.mreg.RecoveryTruncatedTails.Inc()
			s.log.Warn("discarded torn segment tail",
				logging.SegmentID(f.ID),
				logging.Offset(offset),
				logging.Bytes(f.Size-offset),
				logging.Error(err))
			break
		}

		if rec.IsTombstone() {
			s.idx.Remove(rec.Key)
		} else {
			s.idx.Insert(rec.Key, index.Location{
				SegmentID: f.ID,
				Offset:    offset,
				Length:    uint32(n),
			})
		}

		offset += int64(n)
		replayed++
	}

	s.mreg.RecoveryRecordsReplayed.Add(float64(replayed))
	return offset, replayed, nil
}
