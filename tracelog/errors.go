package tracelog

import "github.com/cockroachdb/errors"

var (
	// ErrRemap marks a failure to grow a mapped window mid-run. Data written
	// before the failure is intact and is preserved by Close.
	ErrRemap = errors.New("tracelog: remap failed")

	// ErrCorruptLog is returned by Open when the record file is not a whole
	// number of records.
	ErrCorruptLog = errors.New("tracelog: corrupt log")

	// ErrBadRef is returned when a string reference points outside the heap.
	ErrBadRef = errors.New("tracelog: string reference out of range")

	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("tracelog: closed")
)
