package leafz

import (
	"math"
)

// leafSink receives what trackers detect. The tracer is the only
// production sink.
type leafSink interface {
	emitLeaf(l *Leaf)
	overflow(ctx ContextID, capacity int)
}

// trackerEnv is the configuration and shared state every tracker of one
// tracer reads.
type trackerEnv struct {
	scope *scope
	sink  leafSink
	stats *counters
	cfg   Config
}

// admits reports whether events of kind k take part in tracking at all.
func (e *trackerEnv) admits(k EventKind) bool {
	if k.isNative() && e.cfg.NativePolicy == NativeIgnored {
		return false
	}
	if k.isBlock() && !e.cfg.TrackBlocks {
		return false
	}
	return true
}

// CallStackTracker follows the call stack of one context and detects leaf
// calls. It is not safe for concurrent use; each context has its own.
type CallStackTracker struct {
	stack *CallStack
	env   *trackerEnv
	ctx   ContextID
}

func newTracker(ctx ContextID, stack *CallStack, env *trackerEnv) *CallStackTracker {
	return &CallStackTracker{stack: stack, env: env, ctx: ctx}
}

// Context returns the context this tracker follows.
func (t *CallStackTracker) Context() ContextID {
	return t.ctx
}

// Stack exposes the tracked stack for inspection.
func (t *CallStackTracker) Stack() *CallStack {
	return t.stack
}

// Handle applies one event to the stack. It never blocks and never panics
// on out-of-order input; anomalies are counted.
func (t *CallStackTracker) Handle(ev Event) {
	switch {
	case ev.Kind == KindLine:
		t.line(ev)
	case ev.Kind == KindContextEnd:
		t.Teardown()
	case ev.Kind.isCall():
		if !t.env.admits(ev.Kind) {
			t.env.stats.ignored.Add(1)
			return
		}
		t.call(ev)
	case ev.Kind.isReturn():
		if !t.env.admits(ev.Kind) {
			t.env.stats.ignored.Add(1)
			return
		}
		t.ret(ev)
	default:
		t.env.stats.malformed.Add(1)
	}
}

func (t *CallStackTracker) line(ev Event) {
	s := t.stack
	if s.Depth() == 0 && s.dropped == 0 {
		// Tracing began mid-call: stand in for the frames we never saw.
		s.push(Frame{
			Key:    QualifiedKey(ev.DefiningType, ev.Method, ev.Singleton, false),
			File:   ev.SourceFile,
			Line:   ev.SourceLine,
			InRoot: t.env.scope.inRoot(ev.DefiningType, ev.SourceFile, true),
			Kind:   FrameSynthetic,
		})
	}
	s.setLocation(ev.SourceFile, ev.SourceLine)
}

func (t *CallStackTracker) call(ev Event) {
	s := t.stack
	inRoot := t.env.scope.inRoot(ev.DefiningType, ev.SourceFile, false)
	if inRoot {
		s.countCall()
	}

	f := Frame{
		Key:           QualifiedKey(ev.DefiningType, ev.Method, ev.Singleton, ev.Kind == KindBlockCall),
		DefiningType:  ev.DefiningType,
		IncludingType: ev.IncludingType,
		Method:        ev.Method,
		CallerFile:    s.curFile,
		CallerLine:    s.curLine,
		File:          ev.SourceFile,
		Line:          ev.SourceLine,
		InRoot:        inRoot,
		Singleton:     ev.Singleton,
		Kind:          frameKind(ev.Kind),
	}
	if !s.push(f) {
		t.env.stats.droppedPushes.Add(1)
		if !s.overflowed {
			s.overflowed = true
			t.env.stats.overflows.Add(1)
			t.env.sink.overflow(t.ctx, s.capacity)
		}
	}
	s.setLocation(ev.SourceFile, ev.SourceLine)
}

func (t *CallStackTracker) ret(ev Event) {
	s := t.stack
	if s.dropped > 0 {
		s.dropped--
		return
	}

	depth := s.Depth()
	f, ok := s.pop()
	if !ok {
		t.env.stats.unmatched.Add(1)
		return
	}
	s.curFile, s.curLine = f.CallerFile, f.CallerLine

	if !t.isLeaf(&f) {
		return
	}
	if t.env.scope.blocked(f.File) {
		t.env.stats.blocked.Add(1)
		return
	}

	l := Leaf{
		Timestamp:     ev.Timestamp,
		Key:           f.Key,
		DefiningType:  f.DefiningType,
		IncludingType: f.IncludingType,
		Method:        f.Method,
		ReturnType:    ev.ReturnType,
		CallerFile:    f.CallerFile,
		CallerLine:    f.CallerLine,
		File:          f.File,
		Line:          f.Line,
		Context:       t.ctx,
		Depth:         depth,
		Kind:          f.Kind,
		Singleton:     f.Singleton,
	}
	if t.env.cfg.CaptureLocals && len(ev.Locals) > 0 {
		l.Locals = append([]Local(nil), ev.Locals...)
	}
	t.env.stats.leaves.Add(1)
	t.env.sink.emitLeaf(&l)
}

func (t *CallStackTracker) isLeaf(f *Frame) bool {
	if f.Nested != 0 || !f.InRoot {
		return false
	}
	switch f.Kind {
	case FrameSynthetic:
		return false
	case FrameNative:
		return t.env.cfg.NativePolicy == NativeAsInterpreted
	}
	return true
}

// Teardown abandons every open frame. None of them is reported as a leaf.
func (t *CallStackTracker) Teardown() {
	if n := t.stack.reset(); n > 0 {
		t.env.stats.abandoned.Add(uint64(n))
	}
}

func frameKind(k EventKind) FrameKind {
	switch k {
	case KindNativeCall:
		return FrameNative
	case KindBlockCall:
		return FrameBlock
	default:
		return FrameCall
	}
}

func clampDepth(d int) uint16 {
	if d > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(d)
}
