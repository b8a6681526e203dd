package tracelog

import (
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// HeapSuffix is appended to the base name to form the heap file name.
const HeapSuffix = ".strings"

// HeapPath returns the heap file that accompanies the record file at base.
func HeapPath(base string) string {
	return base + HeapSuffix
}

// Writer appends fixed-size records to the record file and owns the heap
// their string references point into.
type Writer struct {
	records *window
	heap    *HeapWriter
	log     zerolog.Logger
	mapFn   MapFunc
	base    string
	count   int64
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger used for remap and close events.
func WithLogger(log zerolog.Logger) Option {
	return func(w *Writer) {
		w.log = log
	}
}

// WithMapFunc replaces the function that maps both files. Used to inject
// mapping failures.
func WithMapFunc(fn MapFunc) Option {
	return func(w *Writer) {
		w.mapFn = fn
	}
}

// Create validates the record layout and creates (or truncates) both files
// of the log at base. Each file starts mapped to a single page.
func Create(base string, opts ...Option) (*Writer, error) {
	if err := ValidateLayout(); err != nil {
		return nil, err
	}

	w := &Writer{
		base: base,
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	records, err := openWindow(base, w.mapFn)
	if err != nil {
		return nil, err
	}
	heap, err := createHeap(HeapPath(base), w.mapFn)
	if err != nil {
		return nil, errors.CombineErrors(err, records.close())
	}

	w.records = records
	w.heap = heap
	records.onRemap = w.remapLogger("records")
	heap.w.onRemap = w.remapLogger("heap")
	return w, nil
}

func (w *Writer) remapLogger(file string) func(base, size int64) {
	return func(base, size int64) {
		w.log.Debug().
			Str("file", file).
			Int64("offset", base).
			Int64("length", size).
			Msg("tracelog window remapped")
	}
}

// Heap returns the heap backing this log.
func (w *Writer) Heap() *HeapWriter {
	return w.heap
}

// Append encodes r in place at the end of the record file.
func (w *Writer) Append(r Record) error {
	b, _, err := w.records.reserve(RecordSize)
	if err != nil {
		return err
	}
	if err := r.encodeTo(b); err != nil {
		return err
	}
	w.count++
	return nil
}

// Len returns the number of records appended.
func (w *Writer) Len() int64 {
	return w.count
}

// Size returns the logical size of the record file in bytes.
func (w *Writer) Size() int64 {
	return w.records.cursor
}

// Remaps returns the total number of window growths across both files.
func (w *Writer) Remaps() int {
	return w.records.remaps + w.heap.Remaps()
}

// Close finalizes both files. It always attempts both, so a failure in one
// never leaves the other untruncated.
func (w *Writer) Close() error {
	records, heap := w.records.cursor, w.heap.Size()
	err := errors.CombineErrors(w.records.close(), w.heap.Close())
	w.log.Debug().
		Str("base", w.base).
		Int64("records", w.count).
		Int64("record_bytes", records).
		Int64("heap_bytes", heap).
		Err(err).
		Msg("tracelog closed")
	return err
}
