// Package enrichment implements the ANI-keyed caller cache: TTL staleness per
// field group, gateway refresh of only what is stale, and delta tracking.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/casefile/internal/logging"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/keylock"
	"github.com/aretw0/casefile/pkg/observability"
	"github.com/aretw0/casefile/pkg/ports"
)

// TTLs are the maximum ages of each field group.
type TTLs struct {
	Address  time.Duration
	Email    time.Duration
	LineType time.Duration
}

// DefaultTTLs is 90 days for addresses and 180 days for emails and line types.
var DefaultTTLs = TTLs{
	Address:  90 * 24 * time.Hour,
	Email:    180 * 24 * time.Hour,
	LineType: 180 * 24 * time.Hour,
}

func (t TTLs) of(g domain.FieldGroup) time.Duration {
	switch g {
	case domain.GroupAddress:
		return t.Address
	case domain.GroupEmail:
		return t.Email
	case domain.GroupLineType:
		return t.LineType
	}
	return 0
}

// ErrRefreshFailed wraps a reverse-phone failure. The stored record is left as it was.
var ErrRefreshFailed = errors.New("caller refresh failed")

// Refresher is the slice of the Validation Gateway the cache needs.
type Refresher interface {
	ports.ReversePhoneLookup
	ports.Geocoder
	ports.DeliverabilityChecker
}

// Lookup is the outcome of a cache read.
type Lookup struct {
	Record    domain.CallerRecord
	Found     bool
	Staleness domain.Staleness
}

// Cache is the enrichment cache.
type Cache struct {
	store   ports.CallerStore
	gw      Refresher
	locks   *keylock.Locks
	ttl     TTLs
	now     func() time.Time
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures the Cache.
type Option func(*Cache)

// WithTTLs overrides DefaultTTLs.
func WithTTLs(ttl TTLs) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithLocks shares a keyed lock, typically one backed by a distributed locker.
func WithLocks(l *keylock.Locks) Option {
	return func(c *Cache) {
		c.locks = l
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithMetrics records lookups by source.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates a cache over store, refreshing through gw.
func New(store ports.CallerStore, gw Refresher, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		gw:     gw,
		ttl:    DefaultTTLs,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.locks == nil {
		c.locks = keylock.New(keylock.WithPrefix("caller:"), keylock.WithLogger(c.logger))
	}
	return c
}

// Staleness computes the freshness of every group of rec at the current time.
func (c *Cache) Staleness(rec domain.CallerRecord, found bool) domain.Staleness {
	now := c.now()
	s := make(domain.Staleness, len(domain.FieldGroups))
	for _, g := range domain.FieldGroups {
		at := rec.ValidatedAt(g)
		switch {
		case !found || at.IsZero():
			s[g] = domain.Absent
		case now.Sub(at) >= c.ttl.of(g):
			s[g] = domain.Stale
		default:
			s[g] = domain.Fresh
		}
	}
	return s
}

// Lookup reads the record for ani without blocking writers.
func (c *Cache) Lookup(ctx context.Context, ani string) (Lookup, error) {
	rec, err := c.store.Get(ctx, ani)
	switch {
	case errors.Is(err, domain.ErrCallerNotFound):
		return Lookup{Record: domain.CallerRecord{ANI: ani}, Staleness: c.Staleness(domain.CallerRecord{}, false)}, nil
	case err != nil:
		return Lookup{}, fmt.Errorf("failed to read caller %s: %w", ani, err)
	}
	return Lookup{Record: rec, Found: true, Staleness: c.Staleness(rec, true)}, nil
}

// Prepare returns the pre-call record, refreshing only when something is
// absent or stale. A fully fresh record performs zero gateway calls.
func (c *Cache) Prepare(ctx context.Context, ani string) (domain.CallerRecord, domain.RecordSource, error) {
	lk, err := c.Lookup(ctx, ani)
	if err != nil {
		return domain.CallerRecord{}, "", err
	}
	if lk.Found && lk.Staleness.AllFresh() {
		c.metrics.CacheLookup(string(domain.SourceReturning))
		return lk.Record, domain.SourceReturning, nil
	}

	rec, err := c.Refresh(ctx, ani, lk.Staleness)
	if err != nil {
		// The call proceeds on whatever we already had.
		c.logger.Warn("Caller refresh failed, using stored record",
			"ani", ani,
			"found", lk.Found,
			"err", err,
		)
		source := domain.SourceNew
		if lk.Found {
			source = domain.SourceReturning
		}
		c.metrics.CacheLookup(string(source))
		return lk.Record, source, nil
	}

	source := domain.SourceRefreshed
	if !lk.Found {
		source = domain.SourceNew
	}
	c.metrics.CacheLookup(string(source))
	return rec, source, nil
}

// Refresh fetches the groups marked absent or stale in want. It re-reads the
// record under the per-ANI lock and skips groups another writer already refreshed.
func (c *Cache) Refresh(ctx context.Context, ani string, want domain.Staleness) (domain.CallerRecord, error) {
	var out domain.CallerRecord
	err := c.locks.With(ctx, ani, func(ctx context.Context) error {
		lk, err := c.Lookup(ctx, ani)
		if err != nil {
			return err
		}

		need := make(map[domain.FieldGroup]bool, len(domain.FieldGroups))
		for _, g := range domain.FieldGroups {
			if want.Needs(g) && lk.Staleness.Needs(g) {
				need[g] = true
			}
		}
		if len(need) == 0 {
			out = lk.Record
			return nil
		}

		patch, err := c.fetch(ctx, ani, lk.Record, need)
		if err != nil {
			out = lk.Record
			return err
		}
		source := domain.SourceRefreshed
		if !lk.Found {
			source = domain.SourceNew
		}
		patch.RecordSource = &source

		out, err = c.commit(ctx, ani, patch)
		return err
	})
	return out, err
}

// fetch builds a patch from one reverse-phone lookup plus, for the address
// group, one geocode and one deliverability check.
func (c *Cache) fetch(ctx context.Context, ani string, cur domain.CallerRecord, need map[domain.FieldGroup]bool) (domain.CallerPatch, error) {
	res, err := c.gw.ReversePhone(ctx, ani)
	if err != nil {
		return domain.CallerPatch{}, fmt.Errorf("%w: reverse phone: %v", ErrRefreshFailed, err)
	}

	now := c.now()
	var p domain.CallerPatch
	if res.OwnerName != "" {
		p.OwnerName = domain.Ptr(res.OwnerName)
	}
	if !res.Extras.Empty() {
		p.Extras = domain.Ptr(res.Extras)
	}
	if need[domain.GroupEmail] {
		p.CandidateEmail = domain.Ptr(res.Email)
		p.EmailValidatedAt = domain.Ptr(now)
	}
	if need[domain.GroupLineType] {
		p.LineType = domain.Ptr(res.LineType)
		p.LineTypeValidatedAt = domain.Ptr(now)
	}
	if need[domain.GroupAddress] {
		raw := res.Address
		if raw == "" {
			raw = cur.CandidateAddressRaw
		}
		p.CandidateAddressRaw = domain.Ptr(raw)
		if raw == "" {
			p.AddressValidatedAt = domain.Ptr(now)
			return p, nil
		}

		geo, err := c.gw.Geocode(ctx, raw)
		if err != nil {
			// Keep the raw address; the group stays stale so the next call retries.
			c.logger.Warn("Geocode failed during refresh", "ani", ani, "err", err)
			return p, nil
		}
		p.CandidateAddressNormalized = domain.Ptr(geo.Normalized)
		p.GeocodeLat = domain.Ptr(geo.Lat)
		p.GeocodeLng = domain.Ptr(geo.Lng)
		p.GeocodeConfidence = domain.Ptr(geo.Confidence)
		p.AddressValidatedAt = domain.Ptr(now)

		code, err := c.gw.Deliverability(ctx, geo.Normalized)
		if err != nil {
			c.logger.Warn("Deliverability check failed during refresh", "ani", ani, "err", err)
			return p, nil
		}
		p.DPVMatchCode = domain.Ptr(code)
	}
	return p, nil
}

// Upsert folds the final values of a call into the record. Applying the same
// patch twice leaves the stored record, version included, unchanged.
func (c *Cache) Upsert(ctx context.Context, ani string, patch domain.CallerPatch) (domain.CallerRecord, error) {
	var out domain.CallerRecord
	err := c.locks.With(ctx, ani, func(ctx context.Context) error {
		var err error
		out, err = c.commit(ctx, ani, patch)
		return err
	})
	return out, err
}

// commit reads, merges and writes with optimistic versioning. On a version
// conflict it re-reads, recomputes the delta and tries once more.
// Must be called with the ANI lock held.
func (c *Cache) commit(ctx context.Context, ani string, patch domain.CallerPatch) (domain.CallerRecord, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		cur, err := c.store.Get(ctx, ani)
		switch {
		case errors.Is(err, domain.ErrCallerNotFound):
			cur = domain.CallerRecord{ANI: ani}
		case err != nil:
			return domain.CallerRecord{}, fmt.Errorf("failed to read caller %s: %w", ani, err)
		}

		next, changed := merge(cur, patch, c.now())
		if !changed {
			return cur, nil
		}

		stored, err := c.store.Put(ctx, next, cur.Version)
		if err == nil {
			return stored, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return domain.CallerRecord{}, fmt.Errorf("failed to write caller %s: %w", ani, err)
		}
		c.logger.Info("Caller write conflict, retrying", "ani", ani, "attempt", attempt+1)
		lastErr = err
	}
	return domain.CallerRecord{}, fmt.Errorf("failed to write caller %s: %w", ani, lastErr)
}
