package leafz

import (
	"sync"
)

// StackPool keeps call stacks ready for new contexts so that the first
// event of a context rarely allocates. Stacks of torn down contexts are
// recycled.
type StackPool struct {
	stacks   chan *CallStack
	stopCh   chan struct{}
	capacity int
	mu       sync.Mutex
	closed   bool
}

// NewStackPool creates a pool holding up to size stacks of the given frame
// capacity. A size of zero disables pooling; Get then always allocates.
func NewStackPool(size, capacity int) *StackPool {
	pool := &StackPool{
		stacks:   make(chan *CallStack, size),
		stopCh:   make(chan struct{}),
		capacity: capacity,
	}
	if size > 0 {
		go pool.refill()
	}
	return pool
}

// Get returns an empty stack.
func (p *StackPool) Get() *CallStack {
	select {
	case s := <-p.stacks:
		return s
	default:
		return NewCallStack(p.capacity)
	}
}

// Put returns s to the pool. Stacks that do not fit are left to the
// garbage collector.
func (p *StackPool) Put(s *CallStack) {
	if s == nil || s.capacity != p.capacity {
		return
	}
	s.reset()
	select {
	case p.stacks <- s:
	default:
	}
}

// refill keeps the pool full in the background.
func (p *StackPool) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		default:
			select {
			case p.stacks <- NewCallStack(p.capacity):
			case <-p.stopCh:
				return
			}
		}
	}
}

// Close stops the refill goroutine. Get keeps working.
func (p *StackPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}
