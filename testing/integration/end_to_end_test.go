package integration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/leafz"
	"github.com/zoobzio/leafz/factstore"
	"github.com/zoobzio/leafz/tracelog"
)

// checkout is a small web request: a controller action that loads a cart
// through an ORM and formats a total.
func checkout(root string) Call {
	return Call{
		Type: "CheckoutController", Method: "show", File: root + "/app/controllers/checkout.rb", Line: 10,
		Returns: "String",
		Children: []Call{
			{
				Type: "Cart", Method: "find", Singleton: true, File: root + "/app/models/cart.rb", Line: 3,
				Returns: "Cart",
				Children: []Call{
					{Type: "ActiveRecord::Base", Method: "where", Singleton: true, File: "/gems/activerecord/lib/base.rb", Line: 88, Returns: "Relation"},
				},
			},
			{
				Type: "Cart", Method: "total", File: root + "/app/models/cart.rb", Line: 20,
				Returns: "Integer",
				Locals:  []leafz.Local{{Name: "sum", Type: "Integer"}},
				Children: []Call{
					{Type: "Array", Method: "sum", Native: true, Returns: "Integer"},
				},
			},
			{
				Type: "Formatting", Including: "CheckoutController", Method: "currency", File: root + "/app/helpers/formatting.rb", Line: 5,
				Returns: "String",
			},
			{Type: "Cart", Method: "new", Singleton: true, File: root + "/app/models/cart.rb", Line: 1, Returns: "Cart"},
		},
	}
}

func TestEndToEndLogAndPebbleFacts(t *testing.T) {
	dir := t.TempDir()
	root := "/srv/shop"
	base := filepath.Join(dir, "shop.trace")

	store, err := factstore.OpenPebble(filepath.Join(dir, "facts"), factstore.PebbleOptions{})
	require.NoError(t, err)

	recorder := &LeafRecorder{}
	tracer := leafz.New(leafz.WithLogPath(base), leafz.WithFactStore(store))
	defer tracer.Close()
	tracer.OnLeaf(recorder.Handle)
	require.NoError(t, tracer.Configure(root, nil, true))
	require.NoError(t, tracer.Start())

	program := checkout(root)
	Replay(t, tracer, program.Events(1))
	require.NoError(t, tracer.Stop())

	want := ExpectedLeaves(root, program)
	assert.Equal(t, []string{"Cart.find", "Cart#total", "Formatting#currency", "Cart.new"}, want)
	assert.Equal(t, want, recorder.Keys())

	r, err := tracelog.Open(base)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, len(want), r.Len())

	var names []string
	require.NoError(t, r.Each(func(_ int, rec tracelog.Record) error {
		name, err := r.String(rec.Name)
		if err != nil {
			return err
		}
		names = append(names, name)
		callee, err := r.String(rec.Callee.File)
		if err != nil {
			return err
		}
		assert.True(t, strings.HasPrefix(callee, root), "callee %s outside root", callee)
		assert.Equal(t, uint64(1), rec.Context)
		return nil
	}))
	assert.Equal(t, want, names)

	first, err := r.Record(0)
	require.NoError(t, err)
	assert.NotZero(t, first.Flags&tracelog.FlagSingleton)
	third, err := r.Record(2)
	require.NoError(t, err)
	assert.NotZero(t, third.Flags&tracelog.FlagIncluded)

	facts := map[string][]string{
		"Cart.find":                       {"Cart"},
		"Cart#total":                      {"Integer"},
		"Cart#total%sum":                  {"Integer"},
		"Formatting#currency":             {"String"},
		"CheckoutController#currency":     {"String"},
		"ActiveRecord::Base.where":        nil,
		"Cart.new":                        nil,
		"CheckoutController#show":         nil,
	}
	for key, values := range facts {
		got, err := store.Values(key)
		require.NoError(t, err)
		assert.Equal(t, values, got, key)
	}

	// Facts survive a reopen and stay deduplicated.
	require.NoError(t, store.Close())
	store, err = factstore.OpenPebble(filepath.Join(dir, "facts"), factstore.PebbleOptions{})
	require.NoError(t, err)
	defer store.Close()
	inserted, err := store.InsertUnique("Cart#total", "Integer")
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestEndToEndLargeStringsAcrossRemaps(t *testing.T) {
	base := filepath.Join(t.TempDir(), "trace")
	tracer := leafz.New(leafz.WithRoot("/app"), leafz.WithLogPath(base))
	defer tracer.Close()
	require.NoError(t, tracer.Start())

	// Method names far larger than a page force the heap to grow several
	// times in one write.
	var calls []Call
	for i, n := range []int{10, 5000, 20000, 3, 70000} {
		calls = append(calls, Call{
			Type:   "Generated",
			Method: strings.Repeat(string(rune('a'+i)), n),
			File:   "/app/generated.rb",
			Line:   i + 1,
		})
	}
	for _, c := range calls {
		Replay(t, tracer, c.Events(3))
	}
	stats := tracer.Stats()
	require.NoError(t, tracer.Stop())
	assert.Positive(t, stats.Remaps)

	r, err := tracelog.Open(base)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, len(calls), r.Len())

	for i, c := range calls {
		rec, err := r.Record(i)
		require.NoError(t, err)
		name, err := r.String(rec.Name)
		require.NoError(t, err)
		assert.Equal(t, c.Key(), name, "record %d", i)
	}

	hi, err := os.Stat(tracelog.HeapPath(base))
	require.NoError(t, err)
	assert.Equal(t, tracer.Stats().HeapBytes, hi.Size())
}

func TestEndToEndBlocklist(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "trace")
	store := factstore.NewMemory(0)

	tracer := leafz.New(leafz.WithLogPath(base), leafz.WithFactStore(store))
	defer tracer.Close()
	require.NoError(t, tracer.Configure("/app", []string{"/app/vendor/", "_test.rb"}, false))
	require.NoError(t, tracer.Start())

	program := Call{
		Type: "Main", Method: "run", File: "/app/main.rb", Line: 1,
		Children: []Call{
			{Type: "Vendored", Method: "call", File: "/app/vendor/lib.rb", Returns: "String"},
			{Type: "Spec", Method: "check", File: "/app/user_test.rb", Returns: "TrueClass"},
			{Type: "User", Method: "name", File: "/app/user.rb", Returns: "String"},
		},
	}
	Replay(t, tracer, program.Events(1))
	require.NoError(t, tracer.Stop())

	assert.Equal(t, []string{"User#name"}, store.Keys())
	r, err := tracelog.Open(base)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, uint64(2), tracer.Stats().Blocked)
}
