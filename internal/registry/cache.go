package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var (
	// ErrRefreshFailed wraps store errors raised while refreshing.
	ErrRefreshFailed = errors.New("registry refresh failed")

	// ErrSpecialistNotFound is returned for ids absent from the cache or store.
	ErrSpecialistNotFound = errors.New("specialist not found")
)

// Defaults.
const (
	DefaultTTL             = 5 * time.Minute
	DefaultPromptCacheSize = 256
	DefaultRefreshTimeout  = 30 * time.Second
)

// Store is the persistence layer the cache reads through.
type Store interface {
	// ListSpecialists returns every stored definition.
	ListSpecialists(ctx context.Context) ([]Record, error)

	// GetSpecialist returns one definition, or nil, nil when absent.
	GetSpecialist(ctx context.Context, id string) (*Record, error)
}

// Cache serves specialist definitions from an atomically swapped snapshot.
type Cache struct {
	store          Store
	ttl            time.Duration
	refreshTimeout time.Duration
	promptSize     int
	logger         *zap.Logger
	now            func() time.Time

	snap atomic.Pointer[snapshot]

	// mu serializes Refresh and HotReload. Readers never take it.
	mu         sync.Mutex
	refreshing atomic.Bool

	prompts *lru.Cache[string, *CompiledPrompt]

	hits            atomic.Int64
	misses          atomic.Int64
	refreshes       atomic.Int64
	refreshFailures atomic.Int64
	hotReloads      atomic.Int64
	lastErr         atomic.Pointer[string]
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long a snapshot counts as fresh.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPromptCacheSize bounds the compiled prompt LRU.
func WithPromptCacheSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.promptSize = n
		}
	}
}

// WithRefreshTimeout bounds background refreshes.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates an empty cache over store. The first Refresh populates it.
func New(store Store, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, errors.New("registry store is required")
	}

	c := &Cache{
		store:          store,
		ttl:            DefaultTTL,
		refreshTimeout: DefaultRefreshTimeout,
		promptSize:     DefaultPromptCacheSize,
		logger:         zap.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	prompts, err := lru.New[string, *CompiledPrompt](c.promptSize)
	if err != nil {
		return nil, fmt.Errorf("creating prompt cache: %w", err)
	}
	c.prompts = prompts
	c.snap.Store(newSnapshot(map[string]*Specialist{}, time.Time{}))

	return c, nil
}

func (c *Cache) current() *snapshot {
	return c.snap.Load()
}

// Get returns the named specialist from the current snapshot.
func (c *Cache) Get(name string) (Specialist, bool) {
	s, ok := c.current().entries[name]
	if !ok {
		c.misses.Add(1)
		return Specialist{}, false
	}
	c.hits.Add(1)
	return s.Clone(), true
}

// GetAll returns a copy of every cached specialist keyed by id.
func (c *Cache) GetAll() map[string]Specialist {
	sn := c.current()
	out := make(map[string]Specialist, len(sn.entries))
	for id, s := range sn.entries {
		out[id] = s.Clone()
	}
	return out
}

// GetByKeywords returns specialists with at least one matching keyword,
// ordered by specialization score desc, match count desc, then id.
func (c *Cache) GetByKeywords(keywords []string) []Specialist {
	return cloneAll(c.current().byKeywords(keywords))
}

// GetByDomain returns specialists in domain ordered by specialization.
func (c *Cache) GetByDomain(domain string) []Specialist {
	return cloneAll(c.current().byDomain(domain))
}

func cloneAll(in []*Specialist) []Specialist {
	out := make([]Specialist, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

// Stale reports whether the snapshot is older than the TTL or was never
// loaded.
func (c *Cache) Stale() bool {
	return c.stale(c.current())
}

func (c *Cache) stale(sn *snapshot) bool {
	return sn.loadedAt.IsZero() || c.now().Sub(sn.loadedAt) >= c.ttl
}

// Refresh reloads the full set when force is set or the snapshot is stale.
//
// Entries whose definition is unchanged keep their previous value. Changed
// and removed entries lose their compiled prompt. On failure the current
// snapshot stays in place and the error wraps ErrRefreshFailed.
func (c *Cache) Refresh(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.current()
	if !force && !c.stale(prev) {
		return nil
	}

	records, err := c.store.ListSpecialists(ctx)
	if err != nil {
		return c.fail(err)
	}

	entries := make(map[string]*Specialist, len(records))
	var reused, changed int
	for _, r := range records {
		s, err := Normalize(r)
		if err != nil {
			c.logger.Warn("specialist record rejected", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		if _, dup := entries[s.ID]; dup {
			c.logger.Warn("duplicate specialist id ignored", zap.String("id", s.ID))
			continue
		}
		if old, ok := prev.entries[s.ID]; ok {
			if sameDefinition(old, s) {
				entries[s.ID] = old
				reused++
				continue
			}
			c.prompts.Remove(s.ID)
			changed++
		}
		entries[s.ID] = s
	}

	var removed int
	for id := range prev.entries {
		if _, ok := entries[id]; !ok {
			c.prompts.Remove(id)
			removed++
		}
	}

	c.snap.Store(newSnapshot(entries, c.now()))
	c.refreshes.Add(1)
	c.lastErr.Store(nil)

	c.logger.Info("registry refreshed",
		zap.Int("entries", len(entries)),
		zap.Int("reused", reused),
		zap.Int("changed", changed),
		zap.Int("removed", removed),
		zap.Bool("forced", force),
	)
	return nil
}

// RefreshAsync starts a background refresh when the snapshot is stale. It
// never blocks and does nothing while another background refresh runs.
func (c *Cache) RefreshAsync(ctx context.Context) {
	if !c.Stale() {
		return
	}
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer c.refreshing.Store(false)

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()

		if err := c.Refresh(rctx, false); err != nil {
			c.logger.Warn("background registry refresh failed", zap.Error(err))
		}
	}()
}

// HotReload fetches one definition and publishes a snapshot that differs
// only in that entry. When the store no longer has it, the entry is removed
// and ErrSpecialistNotFound is returned.
func (c *Cache) HotReload(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.store.GetSpecialist(ctx, id)
	if err != nil {
		return c.fail(err)
	}

	prev := c.current()
	c.prompts.Remove(id)

	if rec == nil {
		if _, ok := prev.entries[id]; ok {
			c.snap.Store(prev.with(id, nil))
			c.logger.Info("specialist removed on hot reload", zap.String("id", id))
		}
		return fmt.Errorf("%w: %s", ErrSpecialistNotFound, id)
	}

	s, err := Normalize(*rec)
	if err != nil {
		return fmt.Errorf("hot reload %s: %w", id, err)
	}
	if s.ID != id {
		return fmt.Errorf("hot reload %s: store returned id %q: %w", id, s.ID, ErrInvalidRecord)
	}

	c.snap.Store(prev.with(id, s))
	c.hotReloads.Add(1)
	c.logger.Info("specialist hot reloaded", zap.String("id", id))
	return nil
}

// Invalidate drops the compiled prompt of one specialist. The definition
// stays cached.
func (c *Cache) Invalidate(name string) {
	c.prompts.Remove(name)
}

func (c *Cache) fail(err error) error {
	c.refreshFailures.Add(1)
	msg := err.Error()
	c.lastErr.Store(&msg)
	return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
}

// Start runs a refresher loop until ctx ends. The returned channel closes
// when the loop exits. Refresh failures are logged and retried on the next
// tick.
func (c *Cache) Start(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = c.ttl
	}
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Refresh(ctx, false); err != nil && ctx.Err() == nil {
					c.logger.Warn("scheduled registry refresh failed", zap.Error(err))
				}
			}
		}
	}()

	return done
}

// Stats describes the cache.
type Stats struct {
	Entries         int           `json:"entries"`
	LoadedAt        time.Time     `json:"loaded_at"`
	Age             time.Duration `json:"-"`
	AgeSeconds      float64       `json:"age_seconds"`
	Fresh           bool          `json:"fresh"`
	Hits            int64         `json:"hits"`
	Misses          int64         `json:"misses"`
	Refreshes       int64         `json:"refreshes"`
	RefreshFailures int64         `json:"refresh_failures"`
	HotReloads      int64         `json:"hot_reloads"`
	PromptCacheSize int           `json:"prompt_cache_size"`
	LastError       string        `json:"last_error,omitempty"`
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	sn := c.current()
	st := Stats{
		Entries:         len(sn.entries),
		LoadedAt:        sn.loadedAt,
		Fresh:           !c.stale(sn),
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Refreshes:       c.refreshes.Load(),
		RefreshFailures: c.refreshFailures.Load(),
		HotReloads:      c.hotReloads.Load(),
		PromptCacheSize: c.prompts.Len(),
	}
	if !sn.loadedAt.IsZero() {
		st.Age = c.now().Sub(sn.loadedAt)
		st.AgeSeconds = st.Age.Seconds()
	}
	if p := c.lastErr.Load(); p != nil {
		st.LastError = *p
	}
	return st
}
