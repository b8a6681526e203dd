package leafz

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRetention is how many leaves a Collector keeps unless told otherwise.
const DefaultRetention = 1024

// Collector keeps the most recent leaves of a trace in memory and counts how
// often each leaf key was seen. Hosts attach it with WithCollector to inspect
// leaves without reading the log back.
//
// By default Collect is synchronous. WithCollectorQueue moves buffering to a
// goroutine behind a bounded queue; a full queue drops the leaf.
// Safe for concurrent use.
//
//nolint:govet // Field order groups the ring state under mu
type Collector struct {
	name  string
	queue chan Leaf
	stop  chan struct{}
	done  chan struct{}

	mu   sync.Mutex
	ring []Leaf
	head int // oldest retained leaf
	size int
	hits map[string]uint64

	dropped atomic.Uint64
	evicted atomic.Uint64
	closed  atomic.Bool
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithCollectorRetention keeps the n most recent leaves. n <= 0 keeps the
// default.
func WithCollectorRetention(n int) CollectorOption {
	return func(c *Collector) {
		if n > 0 {
			c.ring = make([]Leaf, n)
		}
	}
}

// WithCollectorQueue buffers leaves on a goroutine behind a queue of n.
func WithCollectorQueue(n int) CollectorOption {
	return func(c *Collector) {
		if n > 0 {
			c.queue = make(chan Leaf, n)
		}
	}
}

// KeyCount is a leaf key and how many times it was collected.
type KeyCount struct {
	Key   string
	Count uint64
}

// NewCollector creates a collector. It runs a goroutine only when queued.
func NewCollector(name string, opts ...CollectorOption) *Collector {
	c := &Collector{
		name: name,
		ring: make([]Leaf, DefaultRetention),
		hits: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.queue != nil {
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.run()
	}
	return c
}

// Name returns the name the collector was created with.
func (c *Collector) Name() string {
	return c.name
}

func (c *Collector) run() {
	defer close(c.done)
	for {
		select {
		case l := <-c.queue:
			c.record(l)
		case <-c.stop:
			for {
				select {
				case l := <-c.queue:
					c.record(l)
				default:
					return
				}
			}
		}
	}
}

// Collect takes a copy of leaf. It never blocks; leaves arriving after Close
// or on a full queue are dropped and counted. Collect is a LeafHandler.
func (c *Collector) Collect(leaf Leaf) {
	if c.closed.Load() {
		c.dropped.Add(1)
		return
	}
	leaf = leaf.clone()
	if c.queue == nil {
		c.record(leaf)
		return
	}
	select {
	case c.queue <- leaf:
	default:
		c.dropped.Add(1)
	}
}

// record stores l, overwriting the oldest leaf when the ring is full.
func (c *Collector) record(l Leaf) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits[l.Key]++
	if c.size < len(c.ring) {
		c.ring[(c.head+c.size)%len(c.ring)] = l
		c.size++
		return
	}
	c.ring[c.head] = l
	c.head = (c.head + 1) % len(c.ring)
	c.evicted.Add(1)
}

// Export returns the retained leaves oldest first and empties the ring.
// Key counts are kept.
func (c *Collector) Export() []Leaf {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size == 0 {
		return nil
	}
	out := make([]Leaf, c.size)
	for i := range out {
		j := (c.head + i) % len(c.ring)
		out[i] = c.ring[j]
		c.ring[j] = Leaf{}
	}
	c.head, c.size = 0, 0
	return out
}

// ByContext returns copies of the retained leaves grouped by context, each
// group oldest first. The ring is left as is.
func (c *Collector) ByContext() map[ContextID][]Leaf {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[ContextID][]Leaf)
	for i := 0; i < c.size; i++ {
		l := c.ring[(c.head+i)%len(c.ring)]
		out[l.Context] = append(out[l.Context], l.clone())
	}
	return out
}

// Hot returns the n most collected keys, most frequent first, ties by key.
// n <= 0 returns every key.
func (c *Collector) Hot(n int) []KeyCount {
	c.mu.Lock()
	out := make([]KeyCount, 0, len(c.hits))
	for k, v := range c.hits {
		out = append(out, KeyCount{Key: k, Count: v})
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b KeyCount) int {
		if a.Count != b.Count {
			return cmp.Compare(b.Count, a.Count)
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Len returns the number of retained leaves.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Dropped counts leaves refused on a full queue or after Close.
func (c *Collector) Dropped() uint64 {
	return c.dropped.Load()
}

// Evicted counts leaves overwritten by newer ones.
func (c *Collector) Evicted() uint64 {
	return c.evicted.Load()
}

// Reset forgets retained leaves, key counts, and drop counters.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.ring)
	clear(c.hits)
	c.head, c.size = 0, 0
	c.dropped.Store(0)
	c.evicted.Store(0)
}

// Close stops collection. A queued collector drains its queue first,
// waiting at most 100ms. Retained leaves stay available. Close is
// idempotent.
func (c *Collector) Close() {
	if c.closed.Swap(true) || c.queue == nil {
		return
	}
	close(c.stop)
	select {
	case <-c.done:
	case <-time.After(100 * time.Millisecond):
	}
}
