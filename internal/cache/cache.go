// Package cache implements a read-through cache over a store.Collection.
//
// Entries are fresh for TTL after their last write; staleness is decided at
// read time. After every write the engine trims the collection back to
// MaxEntries by deleting the oldest entries. The engine holds no lock and
// no in-memory copy of the data: same-key writers race through the store's
// atomic upsert, so the last write wins.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/rs/zerolog"

	"github.com/leonardcser/readthrough/internal/metrics"
	"github.com/leonardcser/readthrough/internal/store"
)

// Defaults applied by New for zero options.
const (
	DefaultCollection = "cache"
	DefaultMaxEntries = 100
	DefaultTTL        = time.Hour
)

type Options struct {
	// Collection is the name of the backing collection.
	Collection string
	// MaxEntries bounds the number of entries kept after a write.
	MaxEntries int
	// TTL is how long an entry stays fresh after its last write.
	TTL time.Duration
	// Timeout bounds each individual store call. Zero leaves only the
	// caller's deadline.
	Timeout time.Duration
	// Values generates the value written on a miss. Nil uses RandomValue.
	Values ValueFactory
	// Logger receives operation logs. Nil disables logging.
	Logger *zerolog.Logger
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Now is the clock used for write timestamps and freshness.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Collection == "" {
		o.Collection = DefaultCollection
	}
	if o.MaxEntries <= 0 {
		o.MaxEntries = DefaultMaxEntries
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Values == nil {
		o.Values = RandomValue
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Engine is the cache. It is safe for concurrent use by multiple goroutines.
type Engine struct {
	driver store.Driver
	opts   Options
	log    zerolog.Logger

	once sync.Once
	coll store.Collection
	err  error
}

var _ API = (*Engine)(nil)

// New builds an engine and resolves its collection: an existing one is
// reused, otherwise it is created. Failing both is an initialization error.
func New(ctx context.Context, driver store.Driver, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	e := &Engine{
		driver: driver,
		opts:   opts,
		log:    log.With().Str("component", "cache").Str("collection", opts.Collection).Logger(),
	}
	if _, err := e.collection(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// collection returns the memoized handle. Once resolution has failed every
// later call fails with the same error.
func (e *Engine) collection(ctx context.Context) (store.Collection, error) {
	e.once.Do(func() {
		e.coll, e.err = e.resolve(ctx)
	})
	return e.coll, e.err
}

func (e *Engine) resolve(ctx context.Context) (store.Collection, error) {
	name := e.opts.Collection
	e.log.Info().Msg("getting collection")

	sctx, cancel := e.storeContext(ctx)
	coll, err := e.driver.Collection(sctx, name)
	cancel()
	if err == nil {
		e.log.Info().Msg("got collection")
		return coll, nil
	}
	e.log.Warn().Err(err).Msg("couldn't get collection, creating it")

	sctx, cancel = e.storeContext(ctx)
	coll, err = e.driver.CreateCollection(sctx, name)
	cancel()
	if err != nil {
		e.log.Error().Err(err).Msg("failed creating collection")
		return nil, errors.WrapWithContext(err, CodeInitialization, "failed to resolve collection",
			map[string]interface{}{"collection": name})
	}
	e.log.Info().Msg("created collection")
	return coll, nil
}

// storeContext bounds a single store call by the configured timeout.
func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.Timeout > 0 {
		return context.WithTimeout(ctx, e.opts.Timeout)
	}
	return ctx, func() {}
}

func (e *Engine) fresh(updated time.Time) bool {
	return e.opts.Now().Sub(updated) <= e.opts.TTL
}

// GetKey returns the fresh entry for key, or regenerates it.
func (e *Engine) GetKey(ctx context.Context, key string) (entry Entry, err error) {
	defer e.observe("get", time.Now(), &err)

	entry, ok, err := e.Lookup(ctx, key)
	if err != nil || ok {
		return entry, err
	}
	return e.Regenerate(ctx, key)
}

// Lookup reads key without side effects on the store. ok is false when the
// entry is absent or stale; a stale entry is still returned.
func (e *Engine) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	if key == "" {
		return Entry{}, false, invalidKey()
	}
	coll, err := e.collection(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	log := e.log.With().Str("key", key).Logger()
	log.Info().Msg("getting key")

	sctx, cancel := e.storeContext(ctx)
	doc, found, err := coll.FindByKey(sctx, key)
	cancel()
	if err != nil {
		return Entry{}, false, storeError("find", err)
	}
	if !found {
		log.Warn().Msg("cache miss")
		e.opts.Metrics.RecordMiss(metrics.MissAbsent)
		return Entry{}, false, nil
	}
	entry := fromDocument(doc)
	if !e.fresh(doc.Updated) {
		log.Warn().Time("updated", doc.Updated).Msg("cache entry is stale")
		e.opts.Metrics.RecordMiss(metrics.MissStale)
		return entry, false, nil
	}
	log.Info().Msg("cache hit")
	e.opts.Metrics.RecordHit()
	return entry, true, nil
}

// Regenerate produces a new value for key and writes it through SetKey.
func (e *Engine) Regenerate(ctx context.Context, key string) (Entry, error) {
	if key == "" {
		return Entry{}, invalidKey()
	}
	value, err := e.opts.Values.Value(ctx, key)
	if err != nil {
		e.log.Error().Err(err).Str("key", key).Msg("failed generating value")
		return Entry{}, errors.WithContext(errors.Wrap(err, CodeValueGeneration, "failed to generate value"), "key", key)
	}
	return e.SetKey(ctx, key, value)
}

// SetKey upserts key, then evicts the oldest entries beyond MaxEntries.
// Eviction problems are logged and never fail the call.
func (e *Engine) SetKey(ctx context.Context, key, value string) (entry Entry, err error) {
	defer e.observe("set", time.Now(), &err)

	if key == "" {
		return Entry{}, invalidKey()
	}
	coll, err := e.collection(ctx)
	if err != nil {
		return Entry{}, err
	}
	e.log.Info().Str("key", key).Int("size", len(value)).Msg("setting key")

	now := e.opts.Now().UTC()
	sctx, cancel := e.storeContext(ctx)
	err = coll.UpsertByKey(sctx, key, value, now)
	cancel()
	if err != nil {
		return Entry{}, storeError("upsert", err)
	}

	e.evict(ctx, coll, key)
	return Entry{Key: key, Value: value, Updated: now}, nil
}

// evict trims the collection to MaxEntries, never removing keep.
func (e *Engine) evict(ctx context.Context, coll store.Collection, keep string) {
	sctx, cancel := e.storeContext(ctx)
	count, err := coll.CountAll(sctx)
	cancel()
	if err != nil {
		e.evictionWarning(err, "count")
		return
	}
	excess := count - e.opts.MaxEntries
	if excess <= 0 {
		return
	}

	// One extra candidate so the entry just written can be skipped when it
	// ties with the oldest ones.
	sctx, cancel = e.storeContext(ctx)
	oldest, err := coll.FindOldestN(sctx, excess+1)
	cancel()
	if err != nil {
		e.evictionWarning(err, "find oldest")
		return
	}

	removed := 0
	defer func() { e.opts.Metrics.RecordEvictions(removed) }()
	for _, doc := range oldest {
		if removed == excess {
			break
		}
		if doc.Key == keep {
			continue
		}
		sctx, cancel := e.storeContext(ctx)
		_, found, err := coll.DeleteByKey(sctx, doc.Key)
		cancel()
		if err != nil {
			e.evictionWarning(err, "delete")
			return
		}
		if found {
			removed++
		}
	}
	e.log.Info().Int("evicted", removed).Int("count", count).Int("max", e.opts.MaxEntries).Msg("evicted oldest entries")
}

func (e *Engine) evictionWarning(err error, step string) {
	e.opts.Metrics.RecordEvictionFailure()
	e.log.Warn().Err(err).Str("step", step).Msg("eviction failed, entry bound may be exceeded")
}

// DeleteKey removes key. A missing key yields found == false and no error.
func (e *Engine) DeleteKey(ctx context.Context, key string) (entry Entry, found bool, err error) {
	defer e.observe("delete", time.Now(), &err)

	if key == "" {
		return Entry{}, false, invalidKey()
	}
	coll, err := e.collection(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	e.log.Info().Str("key", key).Msg("deleting key")

	sctx, cancel := e.storeContext(ctx)
	doc, found, err := coll.DeleteByKey(sctx, key)
	cancel()
	if err != nil {
		return Entry{}, false, storeError("delete", err)
	}
	if !found {
		return Entry{}, false, nil
	}
	return fromDocument(doc), true, nil
}

// GetKeys returns all keys in store order. TTL is not applied.
func (e *Engine) GetKeys(ctx context.Context) (keys []string, err error) {
	defer e.observe("keys", time.Now(), &err)

	coll, err := e.collection(ctx)
	if err != nil {
		return nil, err
	}
	e.log.Info().Msg("getting all keys")

	sctx, cancel := e.storeContext(ctx)
	docs, err := coll.ListAll(sctx)
	cancel()
	if err != nil {
		return nil, storeError("list", err)
	}
	keys = make([]string, 0, len(docs))
	for _, doc := range docs {
		keys = append(keys, doc.Key)
	}
	return keys, nil
}

// PurgeCache deletes every entry.
func (e *Engine) PurgeCache(ctx context.Context) (n int, err error) {
	defer e.observe("purge", time.Now(), &err)

	coll, err := e.collection(ctx)
	if err != nil {
		return 0, err
	}
	e.log.Info().Msg("deleting all keys")

	sctx, cancel := e.storeContext(ctx)
	n, err = coll.DeleteAll(sctx)
	cancel()
	if err != nil {
		return 0, storeError("purge", err)
	}
	return n, nil
}

func (e *Engine) observe(op string, start time.Time, err *error) {
	e.opts.Metrics.ObserveOperation(op, start, *err)
}

func fromDocument(doc store.Document) Entry {
	return Entry{Key: doc.Key, Value: doc.Value, Updated: doc.Updated}
}
