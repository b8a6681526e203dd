package leafz

import (
	"strconv"
	"time"
)

// ContextID identifies a concurrency context (a thread, fiber, or goroutine of
// the traced host). It must be stable for the context's lifetime.
type ContextID uint64

// EventKind is the kind of an instrumentation event.
type EventKind uint8

// Event kinds.
const (
	KindLine EventKind = iota + 1
	KindCall
	KindReturn
	KindNativeCall
	KindNativeReturn
	KindBlockCall
	KindBlockReturn
	// KindContextEnd reports that the context terminated. Open frames are
	// abandoned.
	KindContextEnd
)

var kindNames = [...]string{
	KindLine:         "line",
	KindCall:         "call",
	KindReturn:       "return",
	KindNativeCall:   "native-call",
	KindNativeReturn: "native-return",
	KindBlockCall:    "block-call",
	KindBlockReturn:  "block-return",
	KindContextEnd:   "context-end",
}

func (k EventKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

func (k EventKind) isCall() bool {
	return k == KindCall || k == KindNativeCall || k == KindBlockCall
}

func (k EventKind) isReturn() bool {
	return k == KindReturn || k == KindNativeReturn || k == KindBlockReturn
}

func (k EventKind) isNative() bool {
	return k == KindNativeCall || k == KindNativeReturn
}

func (k EventKind) isBlock() bool {
	return k == KindBlockCall || k == KindBlockReturn
}

// Local is a local variable observed at a return, by name and type name.
type Local struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Event is one instrumentation event delivered by the host.
//
// The tracer never retains the Locals slice passed in; it copies what it keeps.
type Event struct {
	Timestamp    time.Time // zero means "now" on the tracer clock
	DefiningType string
	// IncludingType is set when DefiningType is a module mixed into this type.
	IncludingType string
	Method        string
	SourceFile    string
	ReturnType    string // on returns, when known
	Locals        []Local
	Context       ContextID
	SourceLine    int
	Kind          EventKind
	Singleton     bool
}
