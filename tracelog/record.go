package tracelog

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// RecordSize is the on-disk size of one record.
const RecordSize = 64

// Tag identifies what kind of call a record describes.
type Tag uint8

// Record tags.
const (
	TagCall Tag = iota + 1
	TagNativeCall
	TagBlock
)

func (t Tag) String() string {
	switch t {
	case TagCall:
		return "call"
	case TagNativeCall:
		return "native-call"
	case TagBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Record flags.
const (
	// FlagSingleton marks a call to a singleton (class-level) method.
	FlagSingleton uint8 = 1 << iota
	// FlagIncluded marks a method defined in a module mixed into another type.
	FlagIncluded
)

// StrRef addresses a string in the heap by logical offset and length.
// The zero StrRef is the empty string.
type StrRef struct {
	Offset uint64
	Len    uint32
}

// Location is a source position whose file name lives in the heap.
type Location struct {
	File StrRef
	Line uint32
}

// Record is one leaf call. Records are immutable once written.
type Record struct {
	Name      StrRef
	Caller    Location
	Callee    Location
	Timestamp int64 // unix nanoseconds
	Context   uint64
	Depth     uint16
	Tag       Tag
	Flags     uint8
}

// wireRecord is the exact on-disk layout, little endian, no padding.
type wireRecord struct {
	Tag        uint8
	Flags      uint8
	Depth      uint16
	NameLen    uint32
	NameOff    uint64
	CallerOff  uint64
	CallerLen  uint32
	CallerLine uint32
	CalleeOff  uint64
	CalleeLen  uint32
	CalleeLine uint32
	Timestamp  int64
	Context    uint64
}

// ValidateLayout reports an error if the encoded record does not occupy
// exactly RecordSize bytes. Writers call it before creating any file.
func ValidateLayout() error {
	if n := binary.Size(wireRecord{}); n != RecordSize {
		return errors.Newf("tracelog: record layout is %d bytes, want %d", n, RecordSize)
	}
	return nil
}

func (r *Record) wire() wireRecord {
	return wireRecord{
		Tag:        uint8(r.Tag),
		Flags:      r.Flags,
		Depth:      r.Depth,
		NameLen:    r.Name.Len,
		NameOff:    r.Name.Offset,
		CallerOff:  r.Caller.File.Offset,
		CallerLen:  r.Caller.File.Len,
		CallerLine: r.Caller.Line,
		CalleeOff:  r.Callee.File.Offset,
		CalleeLen:  r.Callee.File.Len,
		CalleeLine: r.Callee.Line,
		Timestamp:  r.Timestamp,
		Context:    r.Context,
	}
}

func (w *wireRecord) record() Record {
	return Record{
		Tag:       Tag(w.Tag),
		Flags:     w.Flags,
		Depth:     w.Depth,
		Name:      StrRef{Offset: w.NameOff, Len: w.NameLen},
		Caller:    Location{File: StrRef{Offset: w.CallerOff, Len: w.CallerLen}, Line: w.CallerLine},
		Callee:    Location{File: StrRef{Offset: w.CalleeOff, Len: w.CalleeLen}, Line: w.CalleeLine},
		Timestamp: w.Timestamp,
		Context:   w.Context,
	}
}

// encodeTo writes r into b, which must hold at least RecordSize bytes.
func (r *Record) encodeTo(b []byte) error {
	_, err := binary.Encode(b, binary.LittleEndian, r.wire())
	return err
}

func decodeRecord(b []byte) (Record, error) {
	var w wireRecord
	if _, err := binary.Decode(b, binary.LittleEndian, &w); err != nil {
		return Record{}, errors.Wrap(err, "decode record")
	}
	return w.record(), nil
}
