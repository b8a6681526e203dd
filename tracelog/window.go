package tracelog

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/edsrzf/mmap-go"
)

// MapFunc maps length bytes of f starting at offset. mmap.MapRegion is the
// default.
type MapFunc func(f *os.File, length int, prot, flags int, offset int64) (mmap.MMap, error)

// window is an append-only file written through a growable shared mapping.
//
// The mapping covers [base, base+len(m)) of the file. base is always page
// aligned; cursor is the logical number of bytes written and is the only
// value that ever leaves this type as an offset.
type window struct {
	f        *os.File
	m        mmap.MMap
	onRemap  func(base, size int64)
	mapFn    MapFunc
	failed   error
	base     int64
	cursor   int64
	pageSize int64
	remaps   int
}

func openWindow(path string, mapFn MapFunc) (*window, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	w := &window{
		f:        f,
		pageSize: int64(os.Getpagesize()),
		mapFn:    mapFn,
	}
	if err := w.mapAt(0, w.pageSize); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// mapAt extends the file to cover the requested region and maps it.
// Writing past EOF of a shared mapping faults, so the file is sized first.
func (w *window) mapAt(base, size int64) error {
	if err := w.f.Truncate(base + size); err != nil {
		return errors.Wrapf(err, "extend %s to %d bytes", w.f.Name(), base+size)
	}
	mapFn := w.mapFn
	if mapFn == nil {
		mapFn = mmap.MapRegion
	}
	m, err := mapFn(w.f, int(size), mmap.RDWR, 0, base)
	if err != nil {
		return errors.Wrapf(err, "map %s at offset %d", w.f.Name(), base)
	}
	adviseSequential(m)
	w.m = m
	w.base = base
	return nil
}

// reserve returns the n bytes at the cursor, growing the window first when
// they do not fit, and advances the cursor past them. The returned offset is
// the logical file offset of the first byte.
func (w *window) reserve(n int) ([]byte, int64, error) {
	if w.failed != nil {
		return nil, 0, w.failed
	}
	if w.f == nil {
		return nil, 0, ErrClosed
	}

	end := w.cursor + int64(n)
	if w.m == nil || end > w.base+int64(len(w.m)) {
		if err := w.grow(n); err != nil {
			w.failed = err
			return nil, 0, err
		}
	}

	start := w.cursor - w.base
	off := w.cursor
	w.cursor = end
	return w.m[start : start+int64(n) : start+int64(n)], off, nil
}

// grow moves the window to start at the cursor (rounded down to a page) and
// doubles its size until n more bytes fit.
func (w *window) grow(n int) error {
	size := int64(len(w.m)) * 2
	if size < w.pageSize {
		size = w.pageSize
	}
	base := w.cursor - w.cursor%w.pageSize
	for base+size < w.cursor+int64(n) {
		size *= 2
	}

	if w.m != nil {
		if err := w.m.Unmap(); err != nil {
			return errors.Mark(errors.Wrapf(err, "unmap %s", w.f.Name()), ErrRemap)
		}
		w.m = nil
	}
	if err := w.mapAt(base, size); err != nil {
		return errors.Mark(err, ErrRemap)
	}

	w.remaps++
	if w.onRemap != nil {
		w.onRemap(base, size)
	}
	return nil
}

// close unmaps the window and truncates the file to the bytes actually
// written, dropping any capacity left over from doubling.
func (w *window) close() error {
	if w.f == nil {
		return nil
	}

	var err error
	if w.m != nil {
		if ferr := w.m.Flush(); ferr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(ferr, "flush %s", w.f.Name()))
		}
		if uerr := w.m.Unmap(); uerr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(uerr, "unmap %s", w.f.Name()))
		}
		w.m = nil
	}
	if terr := w.f.Truncate(w.cursor); terr != nil {
		err = errors.CombineErrors(err, errors.Wrapf(terr, "truncate %s", w.f.Name()))
	}
	if cerr := w.f.Close(); cerr != nil {
		err = errors.CombineErrors(err, errors.Wrapf(cerr, "close %s", w.f.Name()))
	}
	w.f = nil
	return err
}
