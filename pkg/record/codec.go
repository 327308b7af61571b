package record

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Wire format (little-endian, checksum last):
//
//	[KeyLen:4][Key:N][ValLen:4][Val:M][Timestamp:8][Checksum:4]
//
// ValLen == TombstoneLen marks a tombstone and no value bytes follow.
// The checksum is CRC32-IEEE over every preceding byte of the record.
const (
	headerKeyLen = 4
	headerValLen = 4
	trailerLen   = 8 + 4 // timestamp + checksum
)

// MinEncodedSize is the smallest possible encoded record: a tombstone with a
// one-byte key.
const MinEncodedSize = headerKeyLen + 1 + headerValLen + trailerLen

var (
	// ErrCorruptRecord reports a checksum mismatch or a structurally invalid
	// record (bad length prefix, empty key).
	ErrCorruptRecord = errors.New("corrupt record")
)

// Encode serializes r into a fresh buffer.
func Encode(r Record) []byte {
	buf := make([]byte, 0, r.EncodedSize())
	return AppendEncode(buf, r)
}

// AppendEncode serializes r, appending to buf, and returns the extended slice.
func AppendEncode(buf []byte, r Record) []byte {
	start := len(buf)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Key)))
	buf = append(buf, r.Key...)

	if r.Kind == KindTombstone {
		buf = binary.LittleEndian.AppendUint32(buf, TombstoneLen)
	} else {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Value)))
		buf = append(buf, r.Value...)
	}

	buf = binary.LittleEndian.AppendUint64(buf, r.Timestamp)

	sum := crc32.ChecksumIEEE(buf[start:])
	buf = binary.LittleEndian.AppendUint32(buf, sum)
	return buf
}

// Decode parses exactly one record from buf. The slice must hold the complete
// record and nothing else; a point read hands the codec the exact byte range
// recorded in the index. The checksum is verified before any field is trusted.
func Decode(buf []byte) (Record, error) {
	if len(buf) < MinEncodedSize {
		return Record{}, fmt.Errorf("%w: %d bytes is below minimum record size", ErrCorruptRecord, len(buf))
	}

	body := buf[:len(buf)-4]
	want := binary.LittleEndian.Uint32(buf[len(buf)-4:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return Record{}, fmt.Errorf("%w: checksum mismatch (computed %08x, stored %08x)", ErrCorruptRecord, got, want)
	}

	keyLen := binary.LittleEndian.Uint32(buf[0:4])
	if keyLen == 0 || keyLen > MaxKeySize {
		return Record{}, fmt.Errorf("%w: key length %d out of range", ErrCorruptRecord, keyLen)
	}
	pos := uint64(headerKeyLen)
	if pos+uint64(keyLen)+headerValLen > uint64(len(body)) {
		return Record{}, fmt.Errorf("%w: key length %d exceeds record bounds", ErrCorruptRecord, keyLen)
	}
	key := buf[pos : pos+uint64(keyLen)]
	pos += uint64(keyLen)

	valLen := binary.LittleEndian.Uint32(buf[pos : pos+4])
	pos += headerValLen

	rec := Record{Key: key, Kind: KindValue}
	switch {
	case valLen == TombstoneLen:
		rec.Kind = KindTombstone
	case valLen > MaxValueSize:
		return Record{}, fmt.Errorf("%w: value length %d out of range", ErrCorruptRecord, valLen)
	default:
		if pos+uint64(valLen) > uint64(len(body)) {
			return Record{}, fmt.Errorf("%w: value length %d exceeds record bounds", ErrCorruptRecord, valLen)
		}
		rec.Value = buf[pos : pos+uint64(valLen)]
		pos += uint64(valLen)
	}

	if pos+8 != uint64(len(body)) {
		return Record{}, fmt.Errorf("%w: %d trailing bytes", ErrCorruptRecord, uint64(len(body))-pos-8)
	}
	rec.Timestamp = binary.LittleEndian.Uint64(buf[pos : pos+8])

	return rec, nil
}

// Read decodes the next record from a sequential reader, returning the record
// and the number of bytes it occupied on disk. At a clean end of input it
// returns io.EOF with zero bytes consumed. Any torn or damaged record -
// including a short read partway through - is reported as ErrCorruptRecord so
// the caller can apply its tail-truncation policy.
func Read(r *bufio.Reader) (Record, int, error) {
	var header [headerKeyLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Record{}, 0, io.EOF
		}
		return Record{}, 0, fmt.Errorf("%w: truncated key length: %v", ErrCorruptRecord, err)
	}

	keyLen := binary.LittleEndian.Uint32(header[:])
	if keyLen == 0 || keyLen > MaxKeySize {
		return Record{}, 0, fmt.Errorf("%w: key length %d out of range", ErrCorruptRecord, keyLen)
	}

	buf := make([]byte, 0, headerKeyLen+int(keyLen)+headerValLen+trailerLen)
	buf = append(buf, header[:]...)

	buf, err := readExactly(r, buf, int(keyLen)+headerValLen)
	if err != nil {
		return Record{}, 0, err
	}

	valLen := binary.LittleEndian.Uint32(buf[headerKeyLen+keyLen:])
	valBytes := 0
	if valLen != TombstoneLen {
		if valLen > MaxValueSize {
			return Record{}, 0, fmt.Errorf("%w: value length %d out of range", ErrCorruptRecord, valLen)
		}
		valBytes = int(valLen)
	}

	buf, err = readExactly(r, buf, valBytes+trailerLen)
	if err != nil {
		return Record{}, 0, err
	}

	rec, err := Decode(buf)
	if err != nil {
		return Record{}, 0, err
	}
	return rec, len(buf), nil
}

// readExactly grows buf by n bytes read from r, mapping any shortfall to
// ErrCorruptRecord.
func readExactly(r *bufio.Reader, buf []byte, n int) ([]byte, error) {
	off := len(buf)
	buf = append(buf, make([]byte, n)...)
	if _, err := io.ReadFull(r, buf[off:]); err != nil {
		return nil, fmt.Errorf("%w: truncated record body: %v", ErrCorruptRecord, err)
	}
	return buf, nil
}
