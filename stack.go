package leafz

// FrameKind distinguishes how a frame was opened.
type FrameKind uint8

// Frame kinds.
const (
	FrameCall FrameKind = iota
	FrameNative
	FrameBlock
	// FrameSynthetic is the root frame created by a LINE event on an empty
	// stack. It is never a leaf.
	FrameSynthetic
)

func (k FrameKind) String() string {
	switch k {
	case FrameCall:
		return "call"
	case FrameNative:
		return "native"
	case FrameBlock:
		return "block"
	case FrameSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

// Frame is one open call on a context's stack. All strings are owned by the
// tracer.
type Frame struct {
	Key           string
	DefiningType  string
	IncludingType string
	Method        string
	// CallerFile and CallerLine locate the call site.
	CallerFile string
	// File and Line are the current location inside the call, updated by
	// LINE events while this frame is on top.
	File       string
	CallerLine int
	Line       int
	// Nested counts in-root calls made while this frame was open.
	Nested    int
	InRoot    bool
	Singleton bool
	Kind      FrameKind
}

// CallStack is a bounded stack of frames for one context. Pushes beyond
// capacity are dropped and remembered so that their returns can be matched.
type CallStack struct {
	frames []Frame
	// current location of the context, the caller location of the next push.
	curFile    string
	curLine    int
	capacity   int
	dropped    int
	overflowed bool
}

const initialFrames = 32

// NewCallStack returns an empty stack holding at most capacity frames.
func NewCallStack(capacity int) *CallStack {
	n := initialFrames
	if capacity < n {
		n = capacity
	}
	return &CallStack{
		frames:   make([]Frame, 0, n),
		capacity: capacity,
	}
}

// Depth returns the number of frames on the stack.
func (s *CallStack) Depth() int {
	return len(s.frames)
}

// Dropped returns the number of pushes dropped at capacity and not yet
// matched by a return.
func (s *CallStack) Dropped() int {
	return s.dropped
}

// Capacity returns the maximum depth.
func (s *CallStack) Capacity() int {
	return s.capacity
}

// Top returns the innermost frame, or nil when the stack is empty.
func (s *CallStack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return &s.frames[len(s.frames)-1]
}

// push adds f and reports whether it fit. A dropped push is remembered.
func (s *CallStack) push(f Frame) bool {
	if len(s.frames) >= s.capacity {
		s.dropped++
		return false
	}
	s.frames = append(s.frames, f)
	return true
}

// pop removes the innermost frame. ok is false on an empty stack.
func (s *CallStack) pop() (f Frame, ok bool) {
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	last := len(s.frames) - 1
	f = s.frames[last]
	s.frames[last] = Frame{}
	s.frames = s.frames[:last]
	return f, true
}

// countCall marks every open frame as having made an in-root call.
func (s *CallStack) countCall() {
	for i := range s.frames {
		s.frames[i].Nested++
	}
}

func (s *CallStack) setLocation(file string, line int) {
	s.curFile, s.curLine = file, line
	if top := s.Top(); top != nil && s.dropped == 0 {
		top.File, top.Line = file, line
	}
}

// reset empties the stack and returns the number of frames abandoned,
// including dropped pushes. The backing array is kept.
func (s *CallStack) reset() int {
	n := len(s.frames) + s.dropped
	clear(s.frames)
	s.frames = s.frames[:0]
	s.dropped = 0
	s.overflowed = false
	s.curFile, s.curLine = "", 0
	return n
}
