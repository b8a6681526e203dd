// Package factstore provides unique-pair stores for facts observed by the tracer,
// such as "this method returned this type" or "this local held this type".
//
// A fact is a (key, value) pair. InsertUnique is idempotent: inserting a pair
// that is already present is a no-op that reports false.
//
// Two implementations are provided:
//   - Memory: an in-process set, for tests and short-lived traces.
//   - Pebble: a durable store on top of cockroachdb/pebble.
//
// Both keep a bloom filter in front of the exact set. A filter miss is
// definitive and skips the exact lookup.
package factstore

import (
	"github.com/bits-and-blooms/bloom/v3"
)

// Store is a set of unique (key, value) facts.
type Store interface {
	// InsertUnique records the pair and reports whether it was new.
	InsertUnique(key, value string) (bool, error)
	Close() error
}

const (
	defaultExpected = 1 << 16
	defaultFPRate   = 0.01
)

// pairKey joins key and value with a separator that cannot occur in either
// identifiers or type names produced by the tracer.
func pairKey(key, value string) string {
	return key + "\x00" + value
}

func newFilter(expected uint, fp float64) *bloom.BloomFilter {
	if expected == 0 {
		expected = defaultExpected
	}
	if fp <= 0 || fp >= 1 {
		fp = defaultFPRate
	}
	return bloom.NewWithEstimates(expected, fp)
}
