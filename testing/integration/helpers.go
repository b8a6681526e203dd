package integration

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/zoobzio/leafz"
)

// Call is one method invocation of a simulated host program. Children run
// between the call and its return.
//
//nolint:govet // Field alignment optimized for test helper readability
type Call struct {
	Type      string
	Including string
	Method    string
	File      string
	Returns   string
	Locals    []leafz.Local
	Children  []Call
	Line      int
	Singleton bool
	Native    bool
	Block     bool
}

// Key is the key the tracer records the call under.
func (c Call) Key() string {
	return leafz.QualifiedKey(c.Type, c.Method, c.Singleton, c.Block)
}

// Events flattens the call tree into the event stream a host would emit.
func (c Call) Events(ctx leafz.ContextID) []leafz.Event {
	var events []leafz.Event
	c.appendEvents(ctx, &events)
	return events
}

func (c Call) appendEvents(ctx leafz.ContextID, events *[]leafz.Event) {
	callKind, returnKind := leafz.KindCall, leafz.KindReturn
	switch {
	case c.Native:
		callKind, returnKind = leafz.KindNativeCall, leafz.KindNativeReturn
	case c.Block:
		callKind, returnKind = leafz.KindBlockCall, leafz.KindBlockReturn
	}

	*events = append(*events, leafz.Event{
		Kind:          callKind,
		Context:       ctx,
		DefiningType:  c.Type,
		IncludingType: c.Including,
		Method:        c.Method,
		Singleton:     c.Singleton,
		SourceFile:    c.File,
		SourceLine:    c.Line,
	})
	if !c.Native {
		*events = append(*events, leafz.Event{Kind: leafz.KindLine, Context: ctx, SourceFile: c.File, SourceLine: c.Line + 1})
	}
	for _, child := range c.Children {
		child.appendEvents(ctx, events)
		if !c.Native {
			*events = append(*events, leafz.Event{Kind: leafz.KindLine, Context: ctx, SourceFile: c.File, SourceLine: c.Line + 2})
		}
	}
	*events = append(*events, leafz.Event{
		Kind:         returnKind,
		Context:      ctx,
		DefiningType: c.Type,
		Method:       c.Method,
		ReturnType:   c.Returns,
		Locals:       c.Locals,
	})
}

// ExpectedLeaves computes, without the tracer, the keys of the calls that
// are leaves in return order: in root, not native, and with no in-root
// call anywhere beneath them.
func ExpectedLeaves(root string, calls ...Call) []string {
	var out []string
	for _, c := range calls {
		out = appendExpected(out, root, c)
	}
	return out
}

func appendExpected(out []string, root string, c Call) []string {
	for _, child := range c.Children {
		out = appendExpected(out, root, child)
	}
	if !c.Native && inRoot(root, c) && !anyInRoot(root, c.Children) {
		out = append(out, c.Key())
	}
	return out
}

func anyInRoot(root string, calls []Call) bool {
	for _, c := range calls {
		if inRoot(root, c) || anyInRoot(root, c.Children) {
			return true
		}
	}
	return false
}

func inRoot(root string, c Call) bool {
	switch c.Type {
	case "Module", "Class", "BasicObject":
		return false
	}
	if c.File == "" || strings.HasPrefix(c.File, "<") || strings.HasPrefix(c.File, "(") {
		return false
	}
	if root == "" {
		return true
	}
	if !filepath.IsAbs(c.File) {
		return false
	}
	return c.File == root || strings.HasPrefix(c.File, root+"/")
}

// RandomProgram builds a call tree of at most maxDepth levels. About half
// of the calls live under root.
func RandomProgram(rng *rand.Rand, root string, maxDepth int) Call {
	files := []string{
		root + "/app/models/user.rb",
		root + "/app/services/billing.rb",
		root + "/lib/util.rb",
		"/gems/activerecord/lib/base.rb",
		"/gems/json/lib/json.rb",
		"<internal:kernel>",
	}
	var build func(depth int) Call
	build = func(depth int) Call {
		c := Call{
			Type:    fmt.Sprintf("T%d", rng.Intn(6)),
			Method:  fmt.Sprintf("m%d", rng.Intn(20)),
			File:    files[rng.Intn(len(files))],
			Line:    1 + rng.Intn(200),
			Returns: []string{"String", "Integer", "NilClass", "Array"}[rng.Intn(4)],
		}
		if depth < maxDepth {
			for i := rng.Intn(4); i > 0; i-- {
				c.Children = append(c.Children, build(depth+1))
			}
		}
		return c
	}
	return build(0)
}

// Replay delivers events and fails the test on the first error.
func Replay(t *testing.T, tracer *leafz.Tracer, events []leafz.Event) {
	t.Helper()
	for i, ev := range events {
		if err := tracer.OnEvent(ev); err != nil {
			t.Fatalf("event %d (%s %s#%s): %v", i, ev.Kind, ev.DefiningType, ev.Method, err)
		}
	}
}

// LeafRecorder is a synchronous leaf handler that remembers every leaf.
type LeafRecorder struct {
	leaves []leafz.Leaf
	mu     sync.Mutex
}

// Handle implements leafz.LeafHandler.
func (r *LeafRecorder) Handle(l leafz.Leaf) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves = append(r.leaves, l)
}

// Keys returns the recorded leaf keys in arrival order, or nil when no leaf
// was recorded.
func (r *LeafRecorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.leaves) == 0 {
		return nil
	}
	keys := make([]string, len(r.leaves))
	for i, l := range r.leaves {
		keys[i] = l.Key
	}
	return keys
}

// ByContext returns the recorded leaf keys of one context.
func (r *LeafRecorder) ByContext(ctx leafz.ContextID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for _, l := range r.leaves {
		if l.Context == ctx {
			keys = append(keys, l.Key)
		}
	}
	return keys
}
