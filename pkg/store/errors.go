package store

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrStoreClosed reports an operation against a closed store.
	ErrStoreClosed = errors.New("store is closed")
	// ErrEmptyKey reports a put/get/delete with a zero-length key.
	ErrEmptyKey = errors.New("key must not be empty")
	// ErrKeyTooLarge reports a key exceeding the codec's key size limit.
	ErrKeyTooLarge = errors.New("key exceeds maximum size")
	// ErrValueTooLarge reports a value exceeding the codec's value size limit.
	ErrValueTooLarge = errors.New("value exceeds maximum size")
	// ErrCorruptSegment reports a checksum failure anywhere other than the
	// tail of the youngest segment. Recovery refuses to proceed over it:
	// silent data loss in a sealed segment must never be masked.
	ErrCorruptSegment = errors.New("corrupt segment")
	// ErrCompactionInProgress reports a Compact call while another run is
	// still rewriting. The running compaction is unaffected.
	ErrCompactionInProgress = errors.New("compaction already in progress")
)

// StoreError provides structured error information for store operations.
type StoreError struct {
	Op      string // Operation that failed (e.g. "put", "compact", "recover")
	Segment uint64 // Segment id, if one is implicated
	Key     string // Key, for per-key operations
	Cause   error  // Underlying error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	switch {
	case e.Segment != 0 && e.Key != "":
		return fmt.Sprintf("%s key %q (segment %d): %v", e.Op, e.Key, e.Segment, e.Cause)
	case e.Segment != 0:
		return fmt.Sprintf("%s segment %d: %v", e.Op, e.Segment, e.Cause)
	case e.Key != "":
		return fmt.Sprintf("%s key %q: %v", e.Op, e.Key, e.Cause)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
}

// Unwrap returns the underlying cause for error chain support.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// opError wraps cause with the failing operation.
func opError(op string, cause error) error {
	return &StoreError{Op: op, Cause: cause}
}

// segmentError wraps cause with the failing operation and segment.
func segmentError(op string, segment uint64, cause error) error {
	return &StoreError{Op: op, Segment: segment, Cause: cause}
}

// keyError wraps cause with the failing operation and key.
func keyError(op string, key []byte, cause error) error {
	return &StoreError{Op: op, Key: string(key), Cause: cause}
}

// IsCorruption returns true if the error reports unrecoverable corruption.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruptSegment)
}
