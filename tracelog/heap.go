package tracelog

import (
	"math"

	"github.com/cockroachdb/errors"
)

// HeapWriter appends strings to the heap file and hands back references to
// them. A string is either committed whole or not at all: if it does not fit
// the current window, the window grows and the write is retried.
type HeapWriter struct {
	w        *window
	interned map[string]StrRef
}

// CreateHeap creates (or truncates) the heap file at path.
func CreateHeap(path string) (*HeapWriter, error) {
	return createHeap(path, nil)
}

func createHeap(path string, mapFn MapFunc) (*HeapWriter, error) {
	w, err := openWindow(path, mapFn)
	if err != nil {
		return nil, err
	}
	return &HeapWriter{
		w:        w,
		interned: make(map[string]StrRef),
	}, nil
}

// Write appends s and returns its reference. Offsets of successive non-empty
// writes are strictly increasing and never overlap. The empty string is not
// stored and always yields the zero StrRef, whose zero length keeps it
// distinct from every stored string.
func (h *HeapWriter) Write(s string) (StrRef, error) {
	if s == "" {
		return StrRef{}, nil
	}
	if uint64(len(s)) > math.MaxUint32 {
		return StrRef{}, errors.Newf("tracelog: %d byte string exceeds reference width", len(s))
	}

	b, off, err := h.w.reserve(len(s))
	if err != nil {
		return StrRef{}, err
	}
	copy(b, s)
	return StrRef{Offset: uint64(off), Len: uint32(len(s))}, nil
}

// Intern returns the reference of an earlier write of s, writing it first if
// this heap has not seen it.
func (h *HeapWriter) Intern(s string) (StrRef, error) {
	if ref, ok := h.interned[s]; ok {
		return ref, nil
	}
	ref, err := h.Write(s)
	if err != nil {
		return StrRef{}, err
	}
	h.interned[s] = ref
	return ref, nil
}

// Size returns the number of bytes written so far.
func (h *HeapWriter) Size() int64 {
	return h.w.cursor
}

// Remaps returns how many times the heap window has grown.
func (h *HeapWriter) Remaps() int {
	return h.w.remaps
}

// Close unmaps the heap and truncates the file to Size bytes.
func (h *HeapWriter) Close() error {
	h.interned = nil
	return h.w.close()
}
