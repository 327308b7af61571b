// Package segment provides the append-only segment file abstraction and the
// manager that owns the set of segment files in a store directory.
//
// A segment is a two-state machine: it starts Active (exclusively appendable
// by one writer) and is sealed exactly once, after which it is read-only for
// the rest of its life. The two states are two distinct types, so an append
// to a sealed segment is not expressible.
package segment

import (
	"bufio"
	"fmt"
	"os"
)

// Active is the single writable segment of a store. Appends are buffered;
// Flush makes them visible to readers of the underlying file, Sync forces
// them to stable storage. Callers serialize access (single-writer discipline).
type Active struct {
	id   uint64
	path string
	file *os.File
	w    *bufio.Writer
	size int64
}

// create opens a brand new segment file for exclusive append.
func create(path string, id uint64) (*Active, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment %d: %w", id, err)
	}
	return &Active{
		id:   id,
		path: path,
		file: file,
		w:    bufio.NewWriter(file),
	}, nil
}

// reopen opens an existing segment file for append, positioned at size.
// Recovery calls this on the youngest segment after trimming any torn tail.
func reopen(path string, id uint64, size int64) (*Active, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen segment %d: %w", id, err)
	}
	return &Active{
		id:   id,
		path: path,
		file: file,
		w:    bufio.NewWriter(file),
		size: size,
	}, nil
}

// ID returns the segment identifier.
func (a *Active) ID() uint64 { return a.id }

// Size returns the number of bytes appended so far, including buffered bytes.
func (a *Active) Size() int64 { return a.size }

// Append writes buf at the end of the segment and returns the offset it
// landed at.
func (a *Active) Append(buf []byte) (int64, error) {
	offset := a.size
	if _, err := a.w.Write(buf); err != nil {
		return 0, fmt.Errorf("failed to append to segment %d: %w", a.id, err)
	}
	a.size += int64(len(buf))
	return offset, nil
}

// Flush empties the write buffer into the file, making appended bytes
// visible to concurrent readers of the segment file.
func (a *Active) Flush() error {
	if err := a.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush segment %d: %w", a.id, err)
	}
	return nil
}

// Sync flushes and forces the file contents to stable storage.
func (a *Active) Sync() error {
	if err := a.Flush(); err != nil {
		return err
	}
	if err := a.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync segment %d: %w", a.id, err)
	}
	return nil
}

// Seal flushes, syncs, closes the write handle, and returns the read-only
// form of the segment. The Active must not be used afterwards; sealing is
// one-way and happens exactly once.
func (a *Active) Seal() (*Sealed, error) {
	if err := a.Sync(); err != nil {
		return nil, err
	}
	if err := a.file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close segment %d: %w", a.id, err)
	}
	return &Sealed{id: a.id, path: a.path, size: a.size}, nil
}

// Close releases the write handle without sealing, for shutdown of the
// still-active segment. Buffered bytes are flushed and synced first.
func (a *Active) Close() error {
	if err := a.Sync(); err != nil {
		a.file.Close()
		return err
	}
	return a.file.Close()
}

// Sealed is an immutable segment. It holds no open handle of its own; random
// access reads go through the Manager's pooled read handles.
type Sealed struct {
	id   uint64
	path string
	size int64
}

// ID returns the segment identifier.
func (s *Sealed) ID() uint64 { return s.id }

// Size returns the on-disk size in bytes.
func (s *Sealed) Size() int64 { return s.size }

// Path returns the segment's file path.
func (s *Sealed) Path() string { return s.path }
