package reliability

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/leafz"
)

// Stack overflow tests - verify bounded stacks degrade by counting instead of
// growing, and recover once the runaway recursion unwinds.

func TestStackOverflow(t *testing.T) {
	config := getReliabilityConfig()

	switch config.Level {
	case "basic":
		t.Run("runaway_recursion", func(t *testing.T) { testRunawayRecursion(t, config) })
		t.Run("unmatched_return_flood", testUnmatchedReturnFlood)
	case "stress":
		t.Run("overflow_storm", func(t *testing.T) { testOverflowStorm(t, config) })
	default:
		t.Skip("LEAFZ_RELIABILITY_LEVEL not set, skipping reliability tests")
	}
}

func recurse(tracer *leafz.Tracer, ctx leafz.ContextID, depth int) error {
	for i := 0; i < depth; i++ {
		if err := tracer.OnEvent(leafz.Event{
			Kind: leafz.KindCall, Context: ctx,
			DefiningType: "Parser", Method: "descend",
			SourceFile: "/app/parser.rb", SourceLine: 12,
		}); err != nil {
			return err
		}
	}
	// The innermost call is a leaf only if it was kept on the stack.
	for i := 0; i < depth; i++ {
		if err := tracer.OnEvent(leafz.Event{
			Kind: leafz.KindReturn, Context: ctx,
			DefiningType: "Parser", Method: "descend", ReturnType: "Node",
		}); err != nil {
			return err
		}
	}
	return nil
}

// testRunawayRecursion drives one context far past its capacity.
func testRunawayRecursion(t *testing.T, config ReliabilityConfig) {
	capacity := config.StackCapacity
	depth := capacity * 50

	var hooks atomic.Int64
	tracer := leafz.New(leafz.WithRoot("/app"), leafz.WithStackCapacity(capacity))
	defer tracer.Close()
	tracer.OnOverflow(func(leafz.ContextID) { hooks.Add(1) })
	if err := tracer.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Three rounds on the same context: the overflow signal fires once.
	for round := 0; round < 3; round++ {
		if err := recurse(tracer, 1, depth); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		if d := tracer.Depth(1); d != 0 {
			t.Fatalf("round %d: expected empty stack after unwinding, depth %d", round, d)
		}
	}

	stats := tracer.Stats()
	if hooks.Load() != 1 || stats.Overflows != 1 {
		t.Errorf("Expected one overflow signal, hook %d stat %d", hooks.Load(), stats.Overflows)
	}
	if want := uint64(3 * (depth - capacity)); stats.DroppedPushes != want {
		t.Errorf("Expected %d dropped pushes, got %d", want, stats.DroppedPushes)
	}
	if stats.UnmatchedReturns != 0 {
		t.Errorf("Dropped pushes must absorb their returns, %d unmatched", stats.UnmatchedReturns)
	}
	if stats.Leaves != 0 {
		t.Errorf("A recursion with in-root children has no leaves, got %d", stats.Leaves)
	}
}

// testUnmatchedReturnFlood delivers returns with no calls at all.
func testUnmatchedReturnFlood(t *testing.T) {
	tracer := leafz.New(leafz.WithRoot("/app"))
	defer tracer.Close()
	if err := tracer.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 100000; i++ {
		if err := tracer.OnEvent(leafz.Event{Kind: leafz.KindReturn, Context: 2, Method: "gone"}); err != nil {
			t.Fatalf("return %d: %v", i, err)
		}
	}
	if got := tracer.Stats().UnmatchedReturns; got != 100000 {
		t.Errorf("Expected 100000 unmatched returns, got %d", got)
	}

	// The context still tracks normally afterwards.
	_ = tracer.OnEvent(leafz.Event{Kind: leafz.KindCall, Context: 2, DefiningType: "A", Method: "a", SourceFile: "/app/a.rb"})
	_ = tracer.OnEvent(leafz.Event{Kind: leafz.KindReturn, Context: 2, DefiningType: "A", Method: "a"})
	if got := tracer.Stats().Leaves; got != 1 {
		t.Errorf("Expected 1 leaf after the flood, got %d", got)
	}
}

// testOverflowStorm overflows many contexts at once until the duration
// expires.
func testOverflowStorm(t *testing.T, config ReliabilityConfig) {
	tracer := leafz.New(
		leafz.WithRoot("/app"),
		leafz.WithStackCapacity(config.StackCapacity),
		leafz.WithSerializedDelivery(),
		leafz.WithStackPool(config.MaxContexts),
	)
	defer tracer.Close()
	if err := tracer.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(config.Duration)
	var wg sync.WaitGroup
	var rounds atomic.Int64
	for c := 1; c <= config.MaxContexts; c++ {
		wg.Add(1)
		go func(ctx leafz.ContextID) {
			defer wg.Done()
			for time.Now().Before(deadline) {
				if err := recurse(tracer, ctx, config.StackCapacity*4); err != nil {
					t.Errorf("context %d: %v", ctx, err)
					return
				}
				tracer.TeardownContext(ctx)
				rounds.Add(1)
			}
		}(leafz.ContextID(c))
	}
	wg.Wait()

	stats := tracer.Stats()
	t.Logf("%d rounds, %d overflows, %d dropped pushes", rounds.Load(), stats.Overflows, stats.DroppedPushes)

	// Teardown releases the context, so every round overflows afresh.
	if stats.Overflows != uint64(rounds.Load()) {
		t.Errorf("Expected one overflow per round (%d), got %d", rounds.Load(), stats.Overflows)
	}
	if stats.Contexts != 0 {
		t.Errorf("Expected no live contexts after teardown, got %d", stats.Contexts)
	}
	if stats.UnmatchedReturns != 0 || stats.AbandonedFrames != 0 {
		t.Errorf("Balanced rounds left %d unmatched returns and %d abandoned frames",
			stats.UnmatchedReturns, stats.AbandonedFrames)
	}
}
