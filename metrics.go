package leafz

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// counters are the tracer's internal tallies. Anomalies that are never
// surfaced as errors end up here.
type counters struct {
	events           atomic.Uint64
	ignored          atomic.Uint64
	malformed        atomic.Uint64
	leaves           atomic.Uint64
	blocked          atomic.Uint64
	records          atomic.Uint64
	facts            atomic.Uint64
	factErrors       atomic.Uint64
	unmatched        atomic.Uint64
	droppedPushes    atomic.Uint64
	overflows        atomic.Uint64
	abandoned        atomic.Uint64
	droppedCallbacks atomic.Uint64
	contextsSeen     atomic.Uint64
	contexts         atomic.Int64
	recordBytes      atomic.Int64
	heapBytes        atomic.Int64
	remaps           atomic.Int64
}

// Stats is a snapshot of the tracer's counters.
type Stats struct {
	// Events routed to a tracker.
	Events uint64
	// Ignored counts events dropped by policy or delivered while stopped.
	Ignored uint64
	// Malformed counts events of unknown kind.
	Malformed uint64
	Leaves    uint64
	// Blocked counts leaves suppressed by the blocklist.
	Blocked uint64
	Records uint64
	// Facts counts fact pairs that were new to the store.
	Facts      uint64
	FactErrors uint64
	// UnmatchedReturns counts returns on an empty stack.
	UnmatchedReturns uint64
	// DroppedPushes counts calls that did not fit on a full stack.
	DroppedPushes uint64
	// Overflows counts contexts whose stack filled up, once per context.
	Overflows uint64
	// AbandonedFrames counts frames discarded by context teardown.
	AbandonedFrames uint64
	// DroppedCallbacks counts async leaf handlers dropped on a full queue.
	DroppedCallbacks uint64
	ContextsSeen     uint64
	Contexts         int64
	RecordBytes      int64
	HeapBytes        int64
	Remaps           int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Events:           c.events.Load(),
		Ignored:          c.ignored.Load(),
		Malformed:        c.malformed.Load(),
		Leaves:           c.leaves.Load(),
		Blocked:          c.blocked.Load(),
		Records:          c.records.Load(),
		Facts:            c.facts.Load(),
		FactErrors:       c.factErrors.Load(),
		UnmatchedReturns: c.unmatched.Load(),
		DroppedPushes:    c.droppedPushes.Load(),
		Overflows:        c.overflows.Load(),
		AbandonedFrames:  c.abandoned.Load(),
		DroppedCallbacks: c.droppedCallbacks.Load(),
		ContextsSeen:     c.contextsSeen.Load(),
		Contexts:         c.contexts.Load(),
		RecordBytes:      c.recordBytes.Load(),
		HeapBytes:        c.heapBytes.Load(),
		Remaps:           c.remaps.Load(),
	}
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(Stats) float64
	kind  prometheus.ValueType
}

// metricsCollector exports a tracer's counters. Each scrape takes one
// snapshot.
type metricsCollector struct {
	stats *counters
	descs []counterDesc
}

func newMetricsCollector(stats *counters, session string) *metricsCollector {
	labels := prometheus.Labels{"session": session}
	counter := func(name, help string, value func(Stats) float64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc("leafz_"+name, help, nil, labels),
			value: value,
			kind:  prometheus.CounterValue,
		}
	}
	gauge := func(name, help string, value func(Stats) float64) counterDesc {
		d := counter(name, help, value)
		d.kind = prometheus.GaugeValue
		return d
	}

	return &metricsCollector{
		stats: stats,
		descs: []counterDesc{
			counter("events_total", "Events routed to a context tracker.",
				func(s Stats) float64 { return float64(s.Events) }),
			counter("ignored_events_total", "Events dropped by native or block policy, or delivered while stopped.",
				func(s Stats) float64 { return float64(s.Ignored) }),
			counter("malformed_events_total", "Events of unknown kind.",
				func(s Stats) float64 { return float64(s.Malformed) }),
			counter("leaves_total", "Leaf calls detected.",
				func(s Stats) float64 { return float64(s.Leaves) }),
			counter("blocked_leaves_total", "Leaf calls suppressed by the blocklist.",
				func(s Stats) float64 { return float64(s.Blocked) }),
			counter("records_total", "Records appended to the log.",
				func(s Stats) float64 { return float64(s.Records) }),
			counter("facts_inserted_total", "Fact pairs new to the fact store.",
				func(s Stats) float64 { return float64(s.Facts) }),
			counter("fact_errors_total", "Fact store insertions that failed.",
				func(s Stats) float64 { return float64(s.FactErrors) }),
			counter("unmatched_returns_total", "Returns delivered to an empty stack.",
				func(s Stats) float64 { return float64(s.UnmatchedReturns) }),
			counter("dropped_pushes_total", "Calls that did not fit on a full stack.",
				func(s Stats) float64 { return float64(s.DroppedPushes) }),
			counter("stack_overflows_total", "Contexts whose stack reached capacity.",
				func(s Stats) float64 { return float64(s.Overflows) }),
			counter("abandoned_frames_total", "Frames discarded by context teardown.",
				func(s Stats) float64 { return float64(s.AbandonedFrames) }),
			counter("dropped_callbacks_total", "Async leaf handlers dropped on a full worker queue.",
				func(s Stats) float64 { return float64(s.DroppedCallbacks) }),
			counter("contexts_seen_total", "Contexts created.",
				func(s Stats) float64 { return float64(s.ContextsSeen) }),
			gauge("contexts", "Live contexts.",
				func(s Stats) float64 { return float64(s.Contexts) }),
			gauge("log_record_bytes", "Logical size of the record file.",
				func(s Stats) float64 { return float64(s.RecordBytes) }),
			gauge("log_heap_bytes", "Logical size of the string heap.",
				func(s Stats) float64 { return float64(s.HeapBytes) }),
			counter("log_remaps_total", "Log window growths.",
				func(s Stats) float64 { return float64(s.Remaps) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (m *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range m.descs {
		ch <- d.desc
	}
}

// Collect implements prometheus.Collector.
func (m *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	s := m.stats.snapshot()
	for _, d := range m.descs {
		ch <- prometheus.MustNewConstMetric(d.desc, d.kind, d.value(s))
	}
}
