package leafz

// EventRouter hands each event to the tracker of its context, creating
// trackers on first sight. Not safe for concurrent use.
type EventRouter struct {
	trackers map[ContextID]*CallStackTracker
	pool     *StackPool
	env      *trackerEnv
}

func newEventRouter(env *trackerEnv, pool *StackPool) *EventRouter {
	return &EventRouter{
		trackers: make(map[ContextID]*CallStackTracker),
		pool:     pool,
		env:      env,
	}
}

// Route delivers ev to its context's tracker. A context end tears the
// context down.
func (r *EventRouter) Route(ev Event) {
	if ev.Kind == KindContextEnd {
		r.Teardown(ev.Context)
		return
	}
	r.tracker(ev.Context).Handle(ev)
}

func (r *EventRouter) tracker(ctx ContextID) *CallStackTracker {
	if t, ok := r.trackers[ctx]; ok {
		return t
	}
	t := newTracker(ctx, r.pool.Get(), r.env)
	r.trackers[ctx] = t
	r.env.stats.contexts.Add(1)
	r.env.stats.contextsSeen.Add(1)
	return t
}

// Tracker returns the tracker of ctx, or nil if the context is unknown.
func (r *EventRouter) Tracker(ctx ContextID) *CallStackTracker {
	return r.trackers[ctx]
}

// Teardown abandons the open frames of ctx and forgets it. It reports
// whether the context was known.
func (r *EventRouter) Teardown(ctx ContextID) bool {
	t, ok := r.trackers[ctx]
	if !ok {
		return false
	}
	t.Teardown()
	delete(r.trackers, ctx)
	r.env.stats.contexts.Add(-1)
	r.pool.Put(t.stack)
	return true
}

// Close tears down every context.
func (r *EventRouter) Close() {
	for ctx := range r.trackers {
		r.Teardown(ctx)
	}
}

// Len returns the number of live contexts.
func (r *EventRouter) Len() int {
	return len(r.trackers)
}
