package leafz

import (
	"github.com/rs/zerolog"

	"github.com/zoobzio/leafz/tracelog"
)

// Option configures a Tracer at construction.
type Option func(*Tracer)

// WithConfig replaces the whole configuration. Options after it still apply.
func WithConfig(c Config) Option {
	return func(t *Tracer) {
		t.cfg = c
	}
}

// WithRoot sets the project root directory.
func WithRoot(root string) Option {
	return func(t *Tracer) {
		t.cfg.Root = root
	}
}

// WithBlocklist sets the path substrings whose leaves are suppressed.
func WithBlocklist(entries ...string) Option {
	return func(t *Tracer) {
		t.cfg.Blocklist = entries
	}
}

// WithCaptureLocals records local variable types as facts.
func WithCaptureLocals(capture bool) Option {
	return func(t *Tracer) {
		t.cfg.CaptureLocals = capture
	}
}

// WithLogPath writes records to base and strings to base.strings.
func WithLogPath(base string) Option {
	return func(t *Tracer) {
		t.cfg.LogPath = base
	}
}

// WithStackCapacity bounds each context's stack.
func WithStackCapacity(n int) Option {
	return func(t *Tracer) {
		t.cfg.StackCapacity = n
	}
}

// WithNativePolicy sets how native calls take part in leaf detection.
func WithNativePolicy(p NativePolicy) Option {
	return func(t *Tracer) {
		t.cfg.NativePolicy = p
	}
}

// WithBlockTracking turns block call/return tracking on or off.
func WithBlockTracking(track bool) Option {
	return func(t *Tracer) {
		t.cfg.TrackBlocks = track
	}
}

// WithNonRootTypes sets the defining types that are never in root.
func WithNonRootTypes(types ...string) Option {
	return func(t *Tracer) {
		t.cfg.NonRootTypes = types
	}
}

// WithFactFilter replaces DefaultFactFilter.
func WithFactFilter(f FactFilter) Option {
	return func(t *Tracer) {
		t.cfg.FactFilter = f
	}
}

// WithFactStore sends facts about leaves to s. The tracer does not close it.
func WithFactStore(s FactStore) Option {
	return func(t *Tracer) {
		t.store = s
	}
}

// WithCollector feeds every leaf to c. Close closes c; its retained leaves
// stay readable.
func WithCollector(c *Collector) Option {
	return func(t *Tracer) {
		t.collectors = append(t.collectors, c)
	}
}

// WithLogger sets the logger. The tracer adds a session field.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Tracer) {
		t.baseLog = log
	}
}

// WithSerializedDelivery guards event delivery with a mutex, for hosts that
// deliver from more than one OS thread.
func WithSerializedDelivery() Option {
	return func(t *Tracer) {
		t.cfg.SerializedDelivery = true
	}
}

// WithStackPool keeps n stacks ready for new contexts.
func WithStackPool(n int) Option {
	return func(t *Tracer) {
		t.poolSize = n
	}
}

// WithLogOptions passes options through to tracelog.Create.
func WithLogOptions(opts ...tracelog.Option) Option {
	return func(t *Tracer) {
		t.logOpts = append(t.logOpts, opts...)
	}
}
