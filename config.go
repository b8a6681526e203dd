package leafz

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultStackCapacity is the number of frames each context can hold.
const DefaultStackCapacity = 4096

// NativePolicy decides how native (non-interpreted) calls take part in leaf
// detection.
type NativePolicy uint8

const (
	// NativeCountOnly pushes frames for native calls and counts them against
	// in-root ancestors, but never reports a native call as a leaf.
	NativeCountOnly NativePolicy = iota
	// NativeAsInterpreted treats native calls exactly like interpreted ones.
	NativeAsInterpreted
	// NativeIgnored drops native call and return events.
	NativeIgnored
)

func (p NativePolicy) String() string {
	switch p {
	case NativeCountOnly:
		return "count-only"
	case NativeAsInterpreted:
		return "interpreted"
	case NativeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// ParseNativePolicy parses the String form of a policy.
func ParseNativePolicy(s string) (NativePolicy, error) {
	switch s {
	case "count-only", "":
		return NativeCountOnly, nil
	case "interpreted":
		return NativeAsInterpreted, nil
	case "ignored":
		return NativeIgnored, nil
	}
	return 0, errors.Newf("unknown native policy %q", s)
}

// FactFilter reports whether facts may be recorded for a leaf call.
type FactFilter func(definingType, method string, singleton bool) bool

// DefaultFactFilter rejects class-level allocators. Their return type is
// whatever class was allocated, which would give one key an unbounded set
// of values.
func DefaultFactFilter(_, method string, singleton bool) bool {
	return !singleton || (method != "new" && method != "allocate")
}

// Config holds tracer settings. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	FactFilter FactFilter
	// Root is the project directory. Calls whose source lies outside it are
	// not in root. Empty means every call with a real path is in root.
	Root string
	// LogPath is the base name of the record log. Empty disables the log.
	LogPath string
	// Blocklist suppresses leaves whose source path contains any entry.
	Blocklist []string
	// NonRootTypes are defining types whose methods are never in root.
	NonRootTypes       []string
	StackCapacity      int
	NativePolicy       NativePolicy
	CaptureLocals      bool
	TrackBlocks        bool
	SerializedDelivery bool
}

// DefaultConfig returns the settings New starts from.
func DefaultConfig() Config {
	return Config{
		FactFilter:    DefaultFactFilter,
		NonRootTypes:  []string{"Module", "Class", "BasicObject"},
		StackCapacity: DefaultStackCapacity,
		NativePolicy:  NativeCountOnly,
		TrackBlocks:   true,
	}
}

// normalize validates c and returns a copy with an absolute, clean root and
// private copies of its slices.
func (c Config) normalize() (Config, error) {
	if c.StackCapacity <= 0 {
		return c, errors.Mark(errors.Newf("stack capacity must be > 0, got %d", c.StackCapacity), ErrStartupConfig)
	}
	if c.NativePolicy > NativeIgnored {
		return c, errors.Mark(errors.Newf("unknown native policy %d", c.NativePolicy), ErrStartupConfig)
	}
	if c.FactFilter == nil {
		c.FactFilter = DefaultFactFilter
	}

	if c.Root != "" {
		abs, err := filepath.Abs(c.Root)
		if err != nil {
			return c, startupError(err, "resolve root %q", c.Root)
		}
		c.Root = filepath.Clean(abs)
	}

	blocklist := make([]string, 0, len(c.Blocklist))
	for _, b := range c.Blocklist {
		if b == "" {
			// An empty entry would match every path.
			return c, errors.Mark(errors.New("blocklist entries must be non-empty"), ErrStartupConfig)
		}
		blocklist = append(blocklist, b)
	}
	c.Blocklist = blocklist
	c.NonRootTypes = append([]string(nil), c.NonRootTypes...)
	return c, nil
}

// Environment variables read by ConfigFromEnv.
const (
	EnvRoot          = "LEAFZ_ROOT"
	EnvBlocklist     = "LEAFZ_BLOCKLIST"
	EnvCaptureLocals = "LEAFZ_CAPTURE_LOCALS"
	EnvLogPath       = "LEAFZ_LOG"
	EnvStackCapacity = "LEAFZ_STACK_CAPACITY"
	EnvNativePolicy  = "LEAFZ_NATIVE"
	EnvTrackBlocks   = "LEAFZ_TRACK_BLOCKS"
)

// ConfigFromEnv returns DefaultConfig overridden by LEAFZ_* variables.
// LEAFZ_BLOCKLIST is comma separated. LEAFZ_ROOT=. means the working
// directory.
func ConfigFromEnv() (Config, error) {
	c := DefaultConfig()

	c.Root = os.Getenv(EnvRoot)
	if c.Root == "." {
		wd, err := os.Getwd()
		if err != nil {
			return c, startupError(err, "resolve %s", EnvRoot)
		}
		c.Root = wd
	}
	c.LogPath = os.Getenv(EnvLogPath)

	if v := os.Getenv(EnvBlocklist); v != "" {
		for _, entry := range strings.Split(v, ",") {
			if entry = strings.TrimSpace(entry); entry != "" {
				c.Blocklist = append(c.Blocklist, entry)
			}
		}
	}

	var err error
	if c.CaptureLocals, err = parseBoolEnv(EnvCaptureLocals, c.CaptureLocals); err != nil {
		return c, err
	}
	if c.TrackBlocks, err = parseBoolEnv(EnvTrackBlocks, c.TrackBlocks); err != nil {
		return c, err
	}
	if v := os.Getenv(EnvStackCapacity); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, startupError(err, "parse %s", EnvStackCapacity)
		}
		c.StackCapacity = n
	}
	if v := os.Getenv(EnvNativePolicy); v != "" {
		p, err := ParseNativePolicy(v)
		if err != nil {
			return c, startupError(err, "parse %s", EnvNativePolicy)
		}
		c.NativePolicy = p
	}
	return c, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, startupError(err, "parse %s", key)
	}
	return b, nil
}
