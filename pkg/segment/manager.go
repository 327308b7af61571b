package segment

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// segmentFilePattern matches segment file names: a zero-padded ordinal so
// lexicographic and numeric ordering coincide.
var segmentFilePattern = regexp.MustCompile(`^(\d{9})\.seg$`)

// scratchSuffix marks a segment still being written outside the scan
// namespace. A scratch file must never match segmentFilePattern.
const scratchSuffix = ".new"

// ErrUnknownSegment reports a read against a segment id the manager does not
// own. An index entry pointing at an unknown segment is a bug in the caller,
// not an environmental condition.
var ErrUnknownSegment = errors.New("unknown segment")

// File describes one segment file found on disk during the directory scan,
// before recovery decides what to do with it.
type File struct {
	ID   uint64
	Path string
	Size int64
}

// Manager owns the segment files of one store directory: id allocation,
// creation, the sealed set, pooled read handles, and retirement.
type Manager struct {
	dir string

	mu      sync.Mutex
	nextID  uint64
	sealed  map[uint64]*Sealed
	handles map[uint64]*os.File

	scanned []File
}

// NewManager opens (creating if needed) the store directory and scans it for
// existing segment files. It does not open or interpret their contents; that
// is recovery's job.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	m := &Manager{
		dir:     dir,
		nextID:  1,
		sealed:  make(map[uint64]*Sealed),
		handles: make(map[uint64]*os.File),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), scratchSuffix) {
			// Output of a compaction that died before commit. Nothing
			// references it; the run will be retried.
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				return nil, fmt.Errorf("failed to remove stale scratch file %s: %w", entry.Name(), err)
			}
			continue
		}
		match := segmentFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		id, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil || id == 0 {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat segment file %s: %w", entry.Name(), err)
		}
		m.scanned = append(m.scanned, File{
			ID:   id,
			Path: filepath.Join(dir, entry.Name()),
			Size: info.Size(),
		})
		if id >= m.nextID {
			m.nextID = id + 1
		}
	}

	sort.Slice(m.scanned, func(i, j int) bool { return m.scanned[i].ID < m.scanned[j].ID })
	return m, nil
}

// Dir returns the store directory.
func (m *Manager) Dir() string { return m.dir }

// Files returns the segment files found at open time, ordered oldest first.
// The returned slice is a copy; callers cannot disturb the scan state.
func (m *Manager) Files() []File {
	out := make([]File, len(m.scanned))
	copy(out, m.scanned)
	return out
}

// pathFor builds the deterministic file name for a segment id.
func (m *Manager) pathFor(id uint64) string {
	return filepath.Join(m.dir, fmt.Sprintf("%09d.seg", id))
}

// CreateActive allocates the next segment id and creates its file for
// exclusive append.
func (m *Manager) CreateActive() (*Active, error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.mu.Unlock()

	return create(m.pathFor(id), id)
}

// ReopenActive reopens an existing segment for append at the given size.
func (m *Manager) ReopenActive(f File, size int64) (*Active, error) {
	return reopen(f.Path, f.ID, size)
}

// CreateScratch allocates the next segment id and creates its file under a
// scratch name the recovery scan never matches. A crash leaves at worst a
// stale scratch file, removed at the next open; the segment enters the scan
// namespace only through CommitScratch, after it is complete and durable.
func (m *Manager) CreateScratch() (*Active, error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.mu.Unlock()

	return create(m.pathFor(id)+scratchSuffix, id)
}

// CommitScratch renames a sealed scratch segment to its final name and
// registers it. The rename is atomic, and the directory is fsynced so the
// segment is durably visible before any caller deletes the data it replaces.
func (m *Manager) CommitScratch(s *Sealed) error {
	final := m.pathFor(s.id)
	if err := os.Rename(s.path, final); err != nil {
		return fmt.Errorf("failed to commit segment %d: %w", s.id, err)
	}
	s.path = final
	if err := syncDir(m.dir); err != nil {
		return fmt.Errorf("failed to commit segment %d: %w", s.id, err)
	}
	m.AdoptSealed(s)
	return nil
}

// DiscardScratch abandons an uncommitted scratch segment: the write handle is
// closed and the file deleted. Buffered bytes are dropped on the floor.
func (m *Manager) DiscardScratch(a *Active) error {
	a.file.Close()
	if err := os.Remove(a.path); err != nil {
		return fmt.Errorf("failed to discard scratch segment %d: %w", a.id, err)
	}
	return nil
}

// syncDir fsyncs a directory so a completed rename survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// AdoptFile registers a segment file found at open time as sealed, with the
// given valid size (recovery may have trimmed a torn tail).
func (m *Manager) AdoptFile(f File, size int64) *Sealed {
	s := &Sealed{id: f.ID, path: f.Path, size: size}
	m.AdoptSealed(s)
	return s
}

// AdoptSealed registers a sealed segment with the manager.
func (m *Manager) AdoptSealed(s *Sealed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sealed[s.id] = s
}

// Sealed returns the sealed segments, oldest first.
func (m *Manager) Sealed() []*Sealed {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Sealed, 0, len(m.sealed))
	for _, s := range m.sealed {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// SealedBytes returns the total on-disk size of all sealed segments.
func (m *Manager) SealedBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	for _, s := range m.sealed {
		total += s.size
	}
	return total
}

// ReadAt reads length bytes at offset from the given segment. Reads use a
// pooled read-only handle per segment and positional I/O, so any number of
// readers proceed concurrently with each other and with appends to the
// active segment. Callers never ask for bytes beyond the length recorded in
// the index at lookup time.
func (m *Manager) ReadAt(id uint64, offset int64, length uint32) ([]byte, error) {
	handle, err := m.handle(id)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	if _, err := handle.ReadAt(buf, offset); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("segment %d: read of %d bytes at offset %d past end of file", id, length, offset)
		}
		return nil, fmt.Errorf("segment %d: read failed: %w", id, err)
	}
	return buf, nil
}

// handle returns the pooled read-only handle for a segment, opening it on
// first use.
func (m *Manager) handle(id uint64) (*os.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.handles[id]; ok {
		return h, nil
	}

	h, err := os.Open(m.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownSegment, id)
		}
		return nil, fmt.Errorf("failed to open segment %d for read: %w", id, err)
	}
	m.handles[id] = h
	return h, nil
}

// Remove retires a sealed segment: the pooled handle is closed and the file
// is deleted. Only legal once no index entry references the segment.
func (m *Manager) Remove(id uint64) error {
	m.mu.Lock()
	if h, ok := m.handles[id]; ok {
		h.Close()
		delete(m.handles, id)
	}
	s, ok := m.sealed[id]
	delete(m.sealed, id)
	m.mu.Unlock()

	path := m.pathFor(id)
	if ok {
		path = s.path
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove segment %d: %w", id, err)
	}
	return nil
}

// Close releases every pooled read handle. The active segment's write handle
// is owned by the store, not the manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, h := range m.handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.handles, id)
	}
	return firstErr
}
