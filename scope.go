package leafz

import (
	"os"
	"path/filepath"
	"strings"
)

// scope classifies source locations as first-party (in root) or not, and
// applies the blocklist.
type scope struct {
	nonRoot    map[string]struct{}
	root       string
	rootPrefix string
	blocklist  []string
}

func newScope(c Config) *scope {
	s := &scope{
		root:      c.Root,
		blocklist: c.Blocklist,
		nonRoot:   make(map[string]struct{}, len(c.NonRootTypes)),
	}
	if s.root != "" {
		s.rootPrefix = s.root
		if !strings.HasSuffix(s.rootPrefix, string(os.PathSeparator)) {
			s.rootPrefix += string(os.PathSeparator)
		}
	}
	for _, t := range c.NonRootTypes {
		s.nonRoot[t] = struct{}{}
	}
	return s
}

// inRoot reports whether a call to a method of definingType whose source is
// path belongs to the project. With a root configured, a relative path is in
// root only when it comes from a line event.
func (s *scope) inRoot(definingType, path string, fromLine bool) bool {
	if _, ok := s.nonRoot[definingType]; ok {
		return false
	}
	if path == "" {
		return false
	}
	// eval, -e, and other synthetic sources.
	if path[0] == '<' || path[0] == '(' {
		return false
	}
	if s.root == "" {
		return true
	}
	if !filepath.IsAbs(path) {
		return fromLine
	}
	return path == s.root || strings.HasPrefix(path, s.rootPrefix)
}

// blocked reports whether leaves from path are suppressed. With a blocklist
// configured, an unknown path is blocked.
func (s *scope) blocked(path string) bool {
	if len(s.blocklist) == 0 {
		return false
	}
	if path == "" {
		return true
	}
	for _, b := range s.blocklist {
		if strings.Contains(path, b) {
			return true
		}
	}
	return false
}
