// Package loader is the id-keyed read cache in front of the phone service.
// Loads collapse concurrent requests for the same id, optionally consult a
// Redis view cache, and fall through to a single batched store fetch. Writes
// must Clear every id they touch before their effects are considered visible.
package loader

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"phones/internal/phone/metrics"
	"phones/internal/phone/models"
)

const keyPrefix = "phones:view:"

// Fetcher loads views from the source of truth. The phone service satisfies
// this.
type Fetcher interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.PhoneView, error)
}

// Loader batches and caches view loads. The Redis client may be nil, in which
// case every load falls through to the fetcher (still single-flight per id).
type Loader struct {
	fetch   Fetcher
	cache   redis.UniversalClient
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
}

type Option func(*Loader)

// WithCache attaches the Redis view cache.
func WithCache(client redis.UniversalClient, ttl time.Duration) Option {
	return func(l *Loader) {
		l.cache = client
		l.ttl = ttl
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

// New constructs a Loader over the given fetcher.
func New(fetch Fetcher, opts ...Option) *Loader {
	l := &Loader{
		fetch:  fetch,
		ttl:    10 * time.Minute,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches one view. Absence is reported through the boolean. Concurrent
// loads for the same id share a single fetch.
func (l *Loader) Load(ctx context.Context, id uuid.UUID) (models.PhoneView, bool, error) {
	type loaded struct {
		view models.PhoneView
		ok   bool
	}
	v, err, _ := l.group.Do(id.String(), func() (any, error) {
		if view, ok := l.cacheGet(ctx, id); ok {
			l.metrics.RecordCacheHit()
			return loaded{view: view, ok: true}, nil
		}
		l.metrics.RecordCacheMiss()
		views, err := l.fetch.GetByIDs(ctx, []uuid.UUID{id})
		if err != nil {
			return nil, err
		}
		if len(views) == 0 {
			return loaded{}, nil
		}
		l.cacheSet(ctx, views)
		return loaded{view: views[0], ok: true}, nil
	})
	if err != nil {
		return models.PhoneView{}, false, err
	}
	res := v.(loaded)
	return res.view, res.ok, nil
}

// LoadMany fetches views for the given ids in one pass: cached entries are
// served from Redis, the misses from a single batched fetch. The result keeps
// the order of ids; absent ids are skipped.
func (l *Loader) LoadMany(ctx context.Context, ids []uuid.UUID) ([]models.PhoneView, error) {
	if len(ids) == 0 {
		return []models.PhoneView{}, nil
	}

	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	byID := make(map[uuid.UUID]models.PhoneView, len(unique))
	misses := make([]uuid.UUID, 0, len(unique))
	for _, id := range unique {
		if view, ok := l.cacheGet(ctx, id); ok {
			l.metrics.RecordCacheHit()
			byID[id] = view
			continue
		}
		l.metrics.RecordCacheMiss()
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		views, err := l.fetch.GetByIDs(ctx, misses)
		if err != nil {
			return nil, err
		}
		l.cacheSet(ctx, views)
		for _, view := range views {
			byID[view.ID] = view
		}
	}

	out := make([]models.PhoneView, 0, len(ids))
	for _, id := range ids {
		if view, ok := byID[id]; ok {
			out = append(out, view)
		}
	}
	return out, nil
}

// Clear drops the cached views for every given id. Write paths call this for
// each id they touched before reporting success.
func (l *Loader) Clear(ctx context.Context, ids ...uuid.UUID) {
	if l.cache == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id.String()
	}
	if err := l.cache.Del(ctx, keys...).Err(); err != nil {
		l.logger.ErrorContext(ctx, "clear cached phone views", "error", err, "keys", len(keys))
	}
}

// PrimeMany seeds the cache from views already in hand, typically a list
// page, so the follow-up per-id loads are free.
func (l *Loader) PrimeMany(ctx context.Context, views []models.PhoneView) {
	l.cacheSet(ctx, views)
}

func (l *Loader) cacheGet(ctx context.Context, id uuid.UUID) (models.PhoneView, bool) {
	if l.cache == nil {
		return models.PhoneView{}, false
	}
	raw, err := l.cache.Get(ctx, keyPrefix+id.String()).Bytes()
	if err != nil {
		if err != redis.Nil {
			l.logger.WarnContext(ctx, "read cached phone view", "error", err, "phone_id", id)
		}
		return models.PhoneView{}, false
	}
	var view models.PhoneView
	if err := json.Unmarshal(raw, &view); err != nil {
		l.logger.WarnContext(ctx, "decode cached phone view", "error", err, "phone_id", id)
		return models.PhoneView{}, false
	}
	return view, true
}

func (l *Loader) cacheSet(ctx context.Context, views []models.PhoneView) {
	if l.cache == nil || len(views) == 0 {
		return
	}
	pipe := l.cache.Pipeline()
	for _, view := range views {
		payload, err := json.Marshal(view)
		if err != nil {
			l.logger.WarnContext(ctx, "encode phone view for cache", "error", err, "phone_id", view.ID)
			continue
		}
		pipe.Set(ctx, keyPrefix+view.ID.String(), payload, l.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.WarnContext(ctx, "prime phone view cache", "error", err)
	}
}
