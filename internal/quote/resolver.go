package quote

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"twstock-portfolio/internal/models"
	"twstock-portfolio/internal/store"
)

// ErrPriceNotAvailable indicates every resolution tier failed and no
// cached quote exists. Callers must omit the instrument rather than
// invent a price.
var ErrPriceNotAvailable = errors.New("quote: price not available from any source")

// DefaultFreshness is the cache freshness window. A cached quote
// younger than this is returned verbatim without touching the network.
const DefaultFreshness = 5 * time.Minute

// Source resolves one instrument from one upstream feed.
type Source interface {
	Name() string
	Lookup(ctx context.Context, code string) (*models.Quote, error)
}

// Resolver produces one authoritative quote per instrument per request
// by walking an ordered chain of sources with the cache as fast path
// and final fallback.
type Resolver struct {
	cache     store.PriceCacheStore
	sources   []Source
	freshness time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewResolver creates a resolver over the given sources, tried in
// order.
func NewResolver(cache store.PriceCacheStore, logger zerolog.Logger, sources ...Source) *Resolver {
	return &Resolver{
		cache:     cache,
		sources:   sources,
		freshness: DefaultFreshness,
		logger:    logger.With().Str("component", "resolver").Logger(),
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// SetFreshness overrides the cache freshness window.
func (r *Resolver) SetFreshness(d time.Duration) {
	if d > 0 {
		r.freshness = d
	}
}

// lockFor returns the per-instrument mutex, creating it on first use.
// The full read-fetch-write sequence for one instrument must serialize
// to keep the cache monotonic; distinct instruments resolve in parallel.
func (r *Resolver) lockFor(code string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[code]
	if !ok {
		l = &sync.Mutex{}
		r.locks[code] = l
	}
	return l
}

// Resolve returns an authoritative quote for the instrument.
//
// Fallback order: fresh cache (unless forceRefresh), then each source
// in order, then the cache entry regardless of age with IsStale set.
// A cache entry is written only after a successful source lookup.
func (r *Resolver) Resolve(ctx context.Context, code string, forceRefresh bool) (*models.Quote, error) {
	lock := r.lockFor(code)
	lock.Lock()
	defer lock.Unlock()

	// The entry is read even when forcing refresh; it stays around as
	// the final fallback tier.
	entry, err := r.cache.GetCacheEntry(ctx, code)
	if err != nil {
		r.logger.Warn().Err(err).Str("code", code).Msg("cache read failed, treating as miss")
		entry = nil
	}

	if !forceRefresh && entry != nil && r.now().Sub(entry.UpdatedAt) < r.freshness {
		return entry.Quote(false), nil
	}

	for _, src := range r.sources {
		q, err := src.Lookup(ctx, code)
		if err != nil {
			if !errors.Is(err, ErrTokenRequired) {
				r.logger.Debug().Err(err).
					Str("code", code).
					Str("source", src.Name()).
					Msg("source lookup failed, falling through")
			}
			continue
		}

		q.IsStale = false
		if q.ResolvedAt.IsZero() {
			q.ResolvedAt = r.now()
		}
		if err := r.cache.UpsertCacheEntry(ctx, q.CacheEntry()); err != nil {
			r.logger.Warn().Err(err).Str("code", code).Msg("cache write failed")
		}
		return q, nil
	}

	if entry != nil {
		r.logger.Info().Str("code", code).Msg("all sources failed, serving stale cache")
		return entry.Quote(true), nil
	}
	return nil, ErrPriceNotAvailable
}

// Invalidate drops the cached quote for one instrument.
func (r *Resolver) Invalidate(ctx context.Context, code string) error {
	lock := r.lockFor(code)
	lock.Lock()
	defer lock.Unlock()
	return r.cache.DeleteCacheEntry(ctx, code)
}

// InvalidateAll drops every cached quote.
func (r *Resolver) InvalidateAll(ctx context.Context) error {
	return r.cache.ClearCache(ctx)
}
