package leafz

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/leafz/tracelog"
)

// FactStore deduplicates (key, value) facts. InsertUnique reports whether
// the pair was new; repeating a pair is a no-op.
type FactStore interface {
	InsertUnique(key, value string) (bool, error)
}

// LeafHandler is called for every detected leaf.
type LeafHandler func(leaf Leaf)

type handlerEntry struct {
	handler LeafHandler
	id      uint64
	async   bool
}

// Tracer turns a stream of call events into leaf records, facts, and
// handler callbacks.
//
// Event delivery (OnEvent, Start, Stop) assumes a single delivering thread
// unless WithSerializedDelivery is set. Handler registration and Stats are
// safe from any goroutine.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers     []handlerEntry
	panicHook    func(handlerID uint64, r interface{})
	overflowHook func(ctx ContextID)
	workers      *workerPool
	router       *EventRouter
	env          *trackerEnv
	writer       *tracelog.Writer
	runRemaps    int // writer remaps already added to stats
	logOpts      []tracelog.Option
	store        FactStore
	collectors   []*Collector
	pool         *StackPool
	metrics      *metricsCollector
	clock        clockz.Clock
	failure      error
	baseLog      zerolog.Logger
	log          zerolog.Logger
	session      string
	cfg          Config
	stats        counters
	poolSize     int
	handlersLock sync.RWMutex
	deliveryLock sync.Mutex
	nextID       atomic.Uint64
	started      atomic.Bool
}

// New creates a stopped tracer. Configuration errors surface from Start.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		handlers: make([]handlerEntry, 0),
		clock:    clockz.RealClock,
		cfg:      DefaultConfig(),
		baseLog:  zerolog.Nop(),
		poolSize: runtime.NumCPU(),
		session:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.baseLog.With().Str("session", t.session).Logger()
	t.metrics = newMetricsCollector(&t.stats, t.session)
	return t
}

// WithClock sets the clock used to stamp events that carry no timestamp.
// Enables clock injection for deterministic testing.
func (t *Tracer) WithClock(clock clockz.Clock) *Tracer {
	t.clock = clock
	return t
}

// Session returns the id that tags this tracer's logs and metrics.
func (t *Tracer) Session() string {
	return t.session
}

// Configure sets the project root, the blocklist, and local capture. It is
// only allowed before Start.
func (t *Tracer) Configure(root string, blocklist []string, captureLocals bool) error {
	if t.started.Load() {
		return ErrAlreadyStarted
	}
	c := t.cfg
	c.Root = root
	c.Blocklist = blocklist
	c.CaptureLocals = captureLocals
	if _, err := c.normalize(); err != nil {
		return err
	}
	t.cfg = c
	return nil
}

// Start validates the configuration and opens the log. Events delivered
// before Start are ignored.
func (t *Tracer) Start() error {
	if t.cfg.SerializedDelivery {
		t.deliveryLock.Lock()
		defer t.deliveryLock.Unlock()
	}
	if t.started.Load() {
		return ErrAlreadyStarted
	}

	cfg, err := t.cfg.normalize()
	if err != nil {
		return err
	}
	if err := tracelog.ValidateLayout(); err != nil {
		return startupError(err, "validate record layout")
	}

	var writer *tracelog.Writer
	if cfg.LogPath != "" {
		opts := append([]tracelog.Option{tracelog.WithLogger(t.log)}, t.logOpts...)
		writer, err = tracelog.Create(cfg.LogPath, opts...)
		if err != nil {
			return startupError(err, "create log %s", cfg.LogPath)
		}
	}

	if t.pool != nil && t.pool.capacity != cfg.StackCapacity {
		t.pool.Close()
		t.pool = nil
	}
	if t.pool == nil {
		t.pool = NewStackPool(t.poolSize, cfg.StackCapacity)
	}
	env := &trackerEnv{
		scope: newScope(cfg),
		sink:  t,
		stats: &t.stats,
		cfg:   cfg,
	}
	t.env = env
	t.router = newEventRouter(env, t.pool)
	t.writer = writer
	t.runRemaps = 0
	t.failure = nil
	t.started.Store(true)

	t.log.Info().
		Str("root", cfg.Root).
		Str("log", cfg.LogPath).
		Strs("blocklist", cfg.Blocklist).
		Bool("capture_locals", cfg.CaptureLocals).
		Bool("track_blocks", cfg.TrackBlocks).
		Stringer("native_policy", cfg.NativePolicy).
		Int("stack_capacity", cfg.StackCapacity).
		Msg("tracer started")
	return nil
}

// OnEvent delivers one event. It returns an error only once the log has
// failed to grow; from then on events are dropped until Stop.
func (t *Tracer) OnEvent(ev Event) error {
	if t.cfg.SerializedDelivery {
		t.deliveryLock.Lock()
		defer t.deliveryLock.Unlock()
	}
	if !t.started.Load() {
		t.stats.ignored.Add(1)
		return nil
	}
	if t.failure != nil {
		return t.failure
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = t.clock.Now()
	}
	t.stats.events.Add(1)
	t.router.Route(ev)
	return t.failure
}

// TeardownContext abandons the open frames of ctx, as a KindContextEnd
// event would.
func (t *Tracer) TeardownContext(ctx ContextID) {
	if t.cfg.SerializedDelivery {
		t.deliveryLock.Lock()
		defer t.deliveryLock.Unlock()
	}
	if t.started.Load() {
		t.router.Teardown(ctx)
	}
}

// Depth returns the stack depth of ctx, or 0 for an unknown context.
// Like OnEvent, it must not race with delivery.
func (t *Tracer) Depth(ctx ContextID) int {
	if t.router == nil {
		return 0
	}
	tr := t.router.Tracker(ctx)
	if tr == nil {
		return 0
	}
	return tr.stack.Depth()
}

// Stop tears down every context and finalizes the log. The log is
// finalized even after a growth failure; that failure is returned.
func (t *Tracer) Stop() error {
	if t.cfg.SerializedDelivery {
		t.deliveryLock.Lock()
		defer t.deliveryLock.Unlock()
	}
	if !t.started.Load() {
		return ErrNotStarted
	}

	t.router.Close()
	err := t.failure

	if t.writer != nil {
		t.countRemaps()
		records, heap, n := t.writer.Size(), t.writer.Heap().Size(), t.writer.Len()
		if cerr := t.writer.Close(); cerr != nil {
			err = errors.CombineErrors(err, errors.Wrap(cerr, "finalize log"))
		}
		t.writer = nil
		t.stats.recordBytes.Store(records)
		t.stats.heapBytes.Store(heap)

		t.log.Info().
			Str("log", t.cfg.LogPath).
			Str("records", humanize.Comma(n)).
			Str("record_bytes", humanize.IBytes(uint64(records))).
			Str("heap_bytes", humanize.IBytes(uint64(heap))).
			Msg("log finalized")
	}

	t.started.Store(false)
	s := t.stats.snapshot()
	t.log.Info().
		Uint64("events", s.Events).
		Uint64("leaves", s.Leaves).
		Uint64("facts", s.Facts).
		Uint64("unmatched_returns", s.UnmatchedReturns).
		Uint64("abandoned_frames", s.AbandonedFrames).
		Err(err).
		Msg("tracer stopped")
	return err
}

// emitLeaf writes the record, the facts, the collectors, and the handler
// callbacks of one leaf.
func (t *Tracer) emitLeaf(l *Leaf) {
	if t.writer != nil {
		if err := t.writeRecord(l); err != nil {
			t.halt(err)
			return
		}
	}
	if t.store != nil {
		t.recordFacts(l)
	}
	for _, c := range t.collectors {
		c.Collect(*l)
	}
	t.executeHandlers(l)
}

func (t *Tracer) writeRecord(l *Leaf) error {
	h := t.writer.Heap()
	name, err := h.Intern(l.Key)
	if err != nil {
		return err
	}
	caller, err := h.Intern(l.CallerFile)
	if err != nil {
		return err
	}
	callee, err := h.Intern(l.File)
	if err != nil {
		return err
	}

	rec := tracelog.Record{
		Name:      name,
		Caller:    tracelog.Location{File: caller, Line: uint32(max(l.CallerLine, 0))},
		Callee:    tracelog.Location{File: callee, Line: uint32(max(l.Line, 0))},
		Timestamp: l.Timestamp.UnixNano(),
		Context:   uint64(l.Context),
		Depth:     clampDepth(l.Depth),
		Tag:       recordTag(l.Kind),
	}
	if l.Singleton {
		rec.Flags |= tracelog.FlagSingleton
	}
	if l.IncludingType != "" {
		rec.Flags |= tracelog.FlagIncluded
	}
	if err := t.writer.Append(rec); err != nil {
		return err
	}

	t.stats.records.Add(1)
	t.stats.recordBytes.Store(t.writer.Size())
	t.stats.heapBytes.Store(h.Size())
	t.countRemaps()
	return nil
}

// countRemaps adds the writer's remaps since the last call to the counter,
// which spans runs.
func (t *Tracer) countRemaps() {
	n := t.writer.Remaps()
	t.stats.remaps.Add(int64(n - t.runRemaps))
	t.runRemaps = n
}

// halt stops recording after a log failure. Stop still finalizes the log.
func (t *Tracer) halt(err error) {
	t.failure = corruptionError(err)
	t.log.Error().Err(err).Msg("log write failed, recording halted")
}

func (t *Tracer) recordFacts(l *Leaf) {
	if !t.env.cfg.FactFilter(l.DefiningType, l.Method, l.Singleton) {
		return
	}
	for _, key := range l.FactKeys() {
		if l.ReturnType != "" {
			t.insertFact(key, l.ReturnType)
		}
		for _, local := range l.Locals {
			if local.Type != "" {
				t.insertFact(LocalKey(key, local.Name), local.Type)
			}
		}
	}
}

func (t *Tracer) insertFact(key, value string) {
	inserted, err := t.store.InsertUnique(key, value)
	if err != nil {
		t.stats.factErrors.Add(1)
		t.log.Debug().Err(err).Str("key", key).Msg("fact insert failed")
		return
	}
	if inserted {
		t.stats.facts.Add(1)
	}
}

func (t *Tracer) overflow(ctx ContextID, capacity int) {
	t.log.Warn().
		Uint64("context", uint64(ctx)).
		Int("capacity", capacity).
		Msg("call stack full, leaf detection degraded for context")
	if hook := t.overflowHook; hook != nil {
		hook(ctx)
	}
}

// OnOverflow registers a hook called the first time a context's stack
// fills up. It runs on the delivering thread.
func (t *Tracer) OnOverflow(hook func(ctx ContextID)) {
	t.overflowHook = hook
}

// OnLeaf registers a synchronous handler called for every leaf.
func (t *Tracer) OnLeaf(handler LeafHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnLeafAsync registers an asynchronous handler called for every leaf.
func (t *Tracer) OnLeafAsync(handler LeafHandler) uint64 {
	return t.registerHandler(handler, true)
}

func (t *Tracer) registerHandler(handler LeafHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.panicHook = hook
}

// executeHandlers calls all registered handlers with the leaf.
func (t *Tracer) executeHandlers(l *Leaf) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		// Each handler gets its own copy of Locals.
		leaf := l.clone()
		if h.async {
			entry := h
			if t.workers != nil {
				t.workers.submit(func() {
					t.safeCall(entry, leaf)
				})
			} else {
				go t.safeCall(entry, leaf)
			}
		} else {
			t.safeCall(h, leaf)
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, leaf Leaf) {
	defer func() {
		if r := recover(); r != nil {
			if t.panicHook != nil {
				t.panicHook(entry.id, r)
			}
		}
	}()
	entry.handler(leaf)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	if t.workers != nil {
		return errors.New("worker pool already enabled")
	}
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	t.workers = &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &t.stats.droppedCallbacks,
	}

	t.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go t.workers.run()
	}

	return nil
}

// Stats returns a snapshot of the tracer's counters.
func (t *Tracer) Stats() Stats {
	return t.stats.snapshot()
}

// Metrics returns a collector exporting Stats, labeled with the session.
func (t *Tracer) Metrics() prometheus.Collector {
	return t.metrics
}

// Close stops the tracer if it is running and releases its workers.
// This should be called when the tracer is no longer needed.
func (t *Tracer) Close() {
	if t.started.Load() {
		if err := t.Stop(); err != nil {
			t.log.Error().Err(err).Msg("stop on close")
		}
	}

	// Stop new handler executions
	t.handlersLock.Lock()
	t.handlers = nil
	t.handlersLock.Unlock()

	// Wait for in-flight async tasks
	if t.workers != nil {
		t.workers.shutdown()
		t.workers = nil
	}

	for _, c := range t.collectors {
		c.Close()
	}

	if t.pool != nil {
		t.pool.Close()
	}
}

func recordTag(k FrameKind) tracelog.Tag {
	switch k {
	case FrameNative:
		return tracelog.TagNativeCall
	case FrameBlock:
		return tracelog.TagBlock
	default:
		return tracelog.TagCall
	}
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	wg      sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			return
		}
	}
}

func (w *workerPool) submit(task func()) {
	select {
	case w.tasks <- task:
	default:
		w.dropped.Add(1)
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
