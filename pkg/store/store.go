// Package store implements the embedded log-structured key-value engine:
// an append-only segment log, an in-memory index over the latest record per
// key, crash recovery, and background compaction.
//
// One Store instance owns one on-disk directory. The engine supports a single
// writer at a time (Put/Delete/Compact serialize on an internal mutex) and
// any number of concurrent readers.
package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/caskdb/pkg/index"
	"github.com/dd0wney/caskdb/pkg/logging"
	"github.com/dd0wney/caskdb/pkg/metrics"
	"github.com/dd0wney/caskdb/pkg/segment"
)

// Store is the public façade over the segment manager, the index, the writer
// and the compactor.
type Store struct {
	cfg  Config
	log  logging.Logger
	mreg *metrics.Registry

	// writeMu serializes all mutations: appends, rollover, and the
	// compactor's repoint step. Readers never take it.
	writeMu sync.Mutex
	manager *segment.Manager
	idx     *index.Index
	active  *segment.Active

	closed     atomic.Bool
	compacting atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup

	counters engineCounters

	// Compression statistics (snappy mode)
	compWrites atomic.Uint64
	compIn     atomic.Uint64
	compOut    atomic.Uint64
}

// Open opens (creating if needed) the store at dir, runs recovery, and
// returns a store ready for traffic. Recovery completes before Open returns;
// no operation observes a partially built index.
func Open(dir string, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	manager, err := segment.NewManager(dir)
	if err != nil {
		return nil, opError("open", err)
	}

	s := &Store{
		cfg:     cfg,
		log:     cfg.Logger.With(logging.Component("store"), logging.Path(dir)),
		mreg:    cfg.Metrics,
		manager: manager,
		idx:     index.New(),
		stopCh:  make(chan struct{}),
	}

	timer := logging.StartTimer(s.log, "store opened")
	if err := s.recover(); err != nil {
		manager.Close()
		return nil, err
	}
	timer.End()

	if cfg.Sync == SyncInterval {
		s.wg.Add(1)
		go s.syncLoop()
	}

	s.publishGauges()
	return s, nil
}

// Sync forces buffered appends to stable storage. Useful for callers that
// batch under the interval sync policy.
func (s *Store) Sync() error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := s.active.Sync(); err != nil {
		return opError("sync", err)
	}
	return nil
}

// Close flushes the active segment and releases every file handle. The store
// must not be used afterwards. Safe to call once; concurrent operations
// observe ErrStoreClosed.
func (s *Store) Close() error {
	// The closed flag flips under writeMu so no writer can schedule new
	// background work once it is set; wg.Wait below is then race-free.
	s.writeMu.Lock()
	if !s.closed.CompareAndSwap(false, true) {
		s.writeMu.Unlock()
		return ErrStoreClosed
	}
	s.writeMu.Unlock()

	// Stop the background syncer and wait out any in-flight compaction.
	close(s.stopCh)
	s.wg.Wait()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var firstErr error
	if err := s.active.Close(); err != nil {
		firstErr = opError("close", err)
	}
	if err := s.manager.Close(); err != nil && firstErr == nil {
		firstErr = opError("close", err)
	}

	s.log.Info("store closed", logging.Keys(s.idx.Len()))
	return firstErr
}

// syncLoop periodically fsyncs the active segment under the interval policy.
func (s *Store) syncLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.syncInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			if !s.closed.Load() {
				if err := s.active.Sync(); err != nil {
					s.log.Error("interval sync failed", logging.Error(err),
						logging.SegmentID(s.active.ID()))
				}
			}
			s.writeMu.Unlock()
		}
	}
}

// publishGauges refreshes the store-level metrics gauges. Called at open,
// rollover and compaction boundaries rather than per operation.
func (s *Store) publishGauges() {
	sealed := s.manager.SealedBytes()
	s.mreg.UpdateStoreMetrics(
		s.idx.Len(),
		len(s.manager.Sealed())+1,
		sealed+s.active.Size(),
		s.idx.LiveBytes(),
	)
}
