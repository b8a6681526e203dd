// Package tracelog implements the record/heap split log used to persist leaf calls.
//
// A log is two companion files sharing a base name:
//
//	<base>          flat array of fixed 64-byte records
//	<base>.strings  append-only string heap
//
// Records never embed strings. Every identifier is written once to the heap and
// referenced from records by its logical (offset, length) pair, so a reader can
// scan records sequentially and resolve names without any live process state.
//
// Both files are written through a memory-mapped window that starts at one page
// and doubles whenever a write would not fit. Offsets handed back to callers are
// always logical offsets from the start of the file, never pointers into the
// current mapping, so they stay valid across remaps.
//
// Writers are not safe for concurrent use. The tracer that owns them serializes
// access.
package tracelog
