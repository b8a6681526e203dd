package leafz

import (
	"time"
)

const (
	globalTypeName = "[global]"
	noMethodName   = "<none>"
	blockSuffix    = "{}"
	localSeparator = "%"
)

// QualifiedKey builds the key a method is recorded under: Type#method for
// instance methods, Type.method for singleton methods. Block keys carry a
// trailing "{}".
func QualifiedKey(typeName, method string, singleton, block bool) string {
	if typeName == "" {
		typeName = globalTypeName
	}
	if method == "" {
		method = noMethodName
	}
	sep := "#"
	if singleton {
		sep = "."
	}
	key := typeName + sep + method
	if block {
		key += blockSuffix
	}
	return key
}

// LocalKey is the fact key for a local variable observed in the method
// recorded under key.
func LocalKey(key, local string) string {
	return key + localSeparator + local
}

// Leaf is a completed call that made no in-root calls of its own.
// Leaves are values; handlers may keep them.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Leaf struct {
	Timestamp     time.Time `json:"timestamp"`
	Key           string    `json:"key"`
	DefiningType  string    `json:"defining_type"`
	IncludingType string    `json:"including_type,omitempty"`
	Method        string    `json:"method"`
	ReturnType    string    `json:"return_type,omitempty"`
	CallerFile    string    `json:"caller_file,omitempty"`
	CallerLine    int       `json:"caller_line,omitempty"`
	File          string    `json:"file"`
	Line          int       `json:"line"`
	Locals        []Local   `json:"locals,omitempty"`
	Context       ContextID `json:"context"`
	Depth         int       `json:"depth"`
	Kind          FrameKind `json:"kind"`
	Singleton     bool      `json:"singleton,omitempty"`
}

// FactKeys returns the keys facts about this leaf are recorded under: the
// defining type, and the including type for instance calls to a method
// mixed in from a module.
func (l *Leaf) FactKeys() []string {
	block := l.Kind == FrameBlock
	keys := make([]string, 1, 2)
	keys[0] = QualifiedKey(l.DefiningType, l.Method, l.Singleton, block)
	if l.IncludingType != "" && !l.Singleton {
		keys = append(keys, QualifiedKey(l.IncludingType, l.Method, false, block))
	}
	return keys
}

// clone returns a copy that shares no slices with l.
func (l *Leaf) clone() Leaf {
	c := *l
	if l.Locals != nil {
		c.Locals = append([]Local(nil), l.Locals...)
	}
	return c
}
