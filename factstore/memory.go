package factstore

import (
	"sort"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Memory is an in-process fact store. Safe for concurrent use.
type Memory struct {
	filter *bloom.BloomFilter
	facts  map[string]map[string]struct{}
	mu     sync.RWMutex
	count  int
}

// NewMemory creates an empty store sized for roughly expected pairs.
func NewMemory(expected uint) *Memory {
	return &Memory{
		filter: newFilter(expected, defaultFPRate),
		facts:  make(map[string]map[string]struct{}),
	}
}

// InsertUnique records the pair and reports whether it was new.
func (m *Memory) InsertUnique(key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A filter miss means the pair is certainly new.
	if m.filter.TestOrAddString(pairKey(key, value)) {
		if _, ok := m.facts[key][value]; ok {
			return false, nil
		}
	}

	values, ok := m.facts[key]
	if !ok {
		values = make(map[string]struct{}, 1)
		m.facts[key] = values
	}
	values[value] = struct{}{}
	m.count++
	return true, nil
}

// Values returns the sorted values recorded for key.
func (m *Memory) Values(key string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values := m.facts[key]
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for v := range values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Keys returns the sorted keys that have at least one fact.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.facts))
	for k := range m.facts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of unique pairs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Close is a no-op; it exists to satisfy Store.
func (*Memory) Close() error {
	return nil
}
