package factstore

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"
)

// PebbleOptions configures a Pebble store.
type PebbleOptions struct {
	// FS overrides the filesystem, e.g. vfs.NewMem() in tests.
	FS vfs.FS
	// Logger receives pebble's own log output. Defaults to zerolog.Nop().
	Logger *zerolog.Logger
	// ExpectedFacts sizes the bloom filter.
	ExpectedFacts uint
	// Sync makes every insert durable before it returns.
	Sync bool
}

// Pebble is a durable fact store. Each pair is one pebble key; values are empty.
// Safe for concurrent use.
type Pebble struct {
	db        *pebble.DB
	filter    *bloom.BloomFilter
	writeOpts *pebble.WriteOptions
	mu        sync.Mutex
}

// OpenPebble opens (or creates) a store in dir. Pairs already present are
// loaded into the filter so that reopened stores stay idempotent.
func OpenPebble(dir string, opts PebbleOptions) (*Pebble, error) {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	o := &pebble.Options{
		Logger: pebbleLogger{log: log},
	}
	if opts.FS != nil {
		o.FS = opts.FS
	}

	db, err := pebble.Open(dir, o)
	if err != nil {
		return nil, errors.Wrapf(err, "open fact store %s", dir)
	}

	p := &Pebble{
		db:        db,
		filter:    newFilter(opts.ExpectedFacts, defaultFPRate),
		writeOpts: pebble.NoSync,
	}
	if opts.Sync {
		p.writeOpts = pebble.Sync
	}

	if err := p.warm(); err != nil {
		return nil, errors.CombineErrors(err, db.Close())
	}
	return p, nil
}

func (p *Pebble) warm() error {
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return errors.Wrap(err, "scan fact store")
	}
	for iter.First(); iter.Valid(); iter.Next() {
		p.filter.Add(iter.Key())
	}
	return iter.Close()
}

// InsertUnique records the pair and reports whether it was new.
func (p *Pebble) InsertUnique(key, value string) (bool, error) {
	k := []byte(pairKey(key, value))

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.filter.TestOrAdd(k) {
		_, closer, err := p.db.Get(k)
		if err == nil {
			return false, closer.Close()
		}
		if !errors.Is(err, pebble.ErrNotFound) {
			return false, errors.Wrapf(err, "lookup fact %q", key)
		}
	}

	if err := p.db.Set(k, nil, p.writeOpts); err != nil {
		return false, errors.Wrapf(err, "insert fact %q", key)
	}
	return true, nil
}

// Values returns the values recorded for key in byte order.
func (p *Pebble) Values(key string) ([]string, error) {
	lower := []byte(key + "\x00")
	upper := []byte(key + "\x01")

	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, errors.Wrapf(err, "scan facts for %q", key)
	}

	var out []string
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, string(iter.Key()[len(lower):]))
	}
	return out, iter.Close()
}

// Flush persists buffered inserts.
func (p *Pebble) Flush() error {
	return p.db.Flush()
}

// Close closes the underlying database.
func (p *Pebble) Close() error {
	return p.db.Close()
}

// pebbleLogger routes pebble's logging through zerolog.
type pebbleLogger struct {
	log zerolog.Logger
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Str("component", "pebble").Msg(fmt.Sprintf(format, args...))
}

func (l pebbleLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Str("component", "pebble").Msg(fmt.Sprintf(format, args...))
}

func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.log.Fatal().Str("component", "pebble").Msg(fmt.Sprintf(format, args...))
}
