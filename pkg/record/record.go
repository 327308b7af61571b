// Package record defines the on-disk framing of a single log entry and its
// encode/decode contract. Every durable fact in the store - a write or a
// tombstone - is one Record.
package record

// Kind discriminates the two record variants.
type Kind uint8

const (
	// KindValue is a normal write carrying value bytes.
	KindValue Kind = iota
	// KindTombstone marks a key as deleted. Tombstones carry no value bytes
	// on disk; the reserved value-length sentinel encodes the variant.
	KindTombstone
)

// TombstoneLen is the reserved value-length sentinel that marks a tombstone.
// A real value can never be this long.
const TombstoneLen = ^uint32(0)

// Size limits. Length prefixes beyond these are treated as corruption rather
// than honored, so a damaged length field cannot drive a giant allocation
// during recovery.
const (
	MaxKeySize   = 64 * 1024
	MaxValueSize = 1 << 30
)

// Record is a single log entry. Kind tells whether Value is meaningful:
// a tombstone has Kind == KindTombstone and a nil Value.
type Record struct {
	Key       []byte
	Value     []byte
	Timestamp uint64
	Kind      Kind
}

// NewValue builds a write record for key/value.
func NewValue(key, value []byte, timestamp uint64) Record {
	return Record{Key: key, Value: value, Timestamp: timestamp, Kind: KindValue}
}

// NewTombstone builds a deletion record for key.
func NewTombstone(key []byte, timestamp uint64) Record {
	return Record{Key: key, Timestamp: timestamp, Kind: KindTombstone}
}

// IsTombstone reports whether the record marks a deletion.
func (r Record) IsTombstone() bool {
	return r.Kind == KindTombstone
}

// EncodedSize returns the number of bytes Encode will produce for r.
func (r Record) EncodedSize() int {
	n := headerKeyLen + len(r.Key) + headerValLen + trailerLen
	if r.Kind == KindValue {
		n += len(r.Value)
	}
	return n
}
