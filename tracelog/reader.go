package tracelog

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/edsrzf/mmap-go"
)

// Reader decodes a finalized log. It needs nothing but the two files.
type Reader struct {
	records []byte
	heap    []byte
	maps    []mmap.MMap
}

// Open maps the record and heap files of the log at base read-only.
func Open(base string) (*Reader, error) {
	r := &Reader{}

	records, err := r.mapFile(base)
	if err != nil {
		return nil, errors.CombineErrors(err, r.Close())
	}
	if len(records)%RecordSize != 0 {
		err := errors.Mark(
			errors.Newf("record file %s is %d bytes, not a multiple of %d", base, len(records), RecordSize),
			ErrCorruptLog,
		)
		return nil, errors.CombineErrors(err, r.Close())
	}

	heap, err := r.mapFile(HeapPath(base))
	if err != nil {
		return nil, errors.CombineErrors(err, r.Close())
	}

	r.records = records
	r.heap = heap
	return r, nil
}

func (r *Reader) mapFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	// Empty files cannot be mapped.
	if fi.Size() == 0 {
		return nil, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "map %s", path)
	}
	adviseSequential(m)
	r.maps = append(r.maps, m)
	return m, nil
}

// Len returns the number of records in the log.
func (r *Reader) Len() int {
	return len(r.records) / RecordSize
}

// Record decodes the i'th record.
func (r *Reader) Record(i int) (Record, error) {
	if i < 0 || i >= r.Len() {
		return Record{}, errors.Newf("record %d out of range [0, %d)", i, r.Len())
	}
	off := i * RecordSize
	return decodeRecord(r.records[off : off+RecordSize])
}

// Each calls fn for every record in file order, stopping at the first error.
func (r *Reader) Each(fn func(i int, rec Record) error) error {
	for i := 0; i < r.Len(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return err
		}
		if err := fn(i, rec); err != nil {
			return err
		}
	}
	return nil
}

// String resolves ref against the heap. The result is a copy and stays valid
// after Close.
func (r *Reader) String(ref StrRef) (string, error) {
	if ref.Len == 0 {
		return "", nil
	}
	end := ref.Offset + uint64(ref.Len)
	if end < ref.Offset || end > uint64(len(r.heap)) {
		return "", errors.Mark(
			errors.Newf("reference [%d, %d) exceeds heap of %d bytes", ref.Offset, end, len(r.heap)),
			ErrBadRef,
		)
	}
	return string(r.heap[ref.Offset:end]), nil
}

// Close unmaps both files.
func (r *Reader) Close() error {
	var err error
	for _, m := range r.maps {
		err = errors.CombineErrors(err, m.Unmap())
	}
	r.maps = nil
	r.records = nil
	r.heap = nil
	return err
}
