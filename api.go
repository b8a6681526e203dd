// Package leafz records leaf calls from a live stream of call, return, and
// line events emitted by an instrumented host.
//
// A leaf is a call that made no further in-root call before it returned.
// "In root" means the callee's source lives under the configured project
// root. Leaves are written to a memory-mapped record log (see package
// tracelog), inserted as facts into an optional FactStore, and handed to
// leaf handlers.
//
// Core Components:
//   - Tracer: owns the context table, the log, and the handlers.
//   - EventRouter: maps a context id to its CallStackTracker.
//   - CallStackTracker: follows one context's stack and detects leaves.
//   - Collector: keeps recent leaves and per-key counts in memory.
//
// Basic Usage:
//
//	tracer := leafz.New(
//		leafz.WithRoot("/srv/app"),
//		leafz.WithLogPath("/tmp/app.trace"),
//		leafz.WithFactStore(factstore.NewMemory(0)),
//	)
//	defer tracer.Close()
//
//	if err := tracer.Start(); err != nil {
//		return err
//	}
//	// For every instrumentation event:
//	if err := tracer.OnEvent(ev); err != nil {
//		// The log could not grow. Recording has halted.
//	}
//	err := tracer.Stop()
//
// Concurrency:
//
// Delivery is synchronous and, by default, from one thread at a time. Hosts
// delivering from several OS threads use WithSerializedDelivery. Per-context
// order is the delivery order.
//
// Degraded Operation:
//
// Stack overflow, unmatched returns, and abandoned frames never fail the
// tracer. They are counted in Stats and exported through Metrics.
package leafz
