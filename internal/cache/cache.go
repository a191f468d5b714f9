// Package cache provides the namespaced in-memory cache used by the admin
// API and content services. Each namespace is a patrickmn/go-cache store
// with its own default TTL and hit/miss counters.
//
// Expired entries are treated as absent on read, and each store's janitor
// purges them periodically.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/lane711/sonicjs/pkg/constants"
	"github.com/lane711/sonicjs/pkg/errors"
)

// SourceCache is reported by GetWithSource on a hit.
const SourceCache = "cache"

// NamespaceConfig describes one namespace.
type NamespaceConfig struct {
	Name        string        `json:"name" yaml:"name"`
	TTL         time.Duration `json:"-" yaml:"ttl"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
}

// MarshalJSON reports TTL in seconds.
func (c NamespaceConfig) MarshalJSON() ([]byte, error) {
	type alias NamespaceConfig
	return json.Marshal(struct {
		alias
		TTL float64 `json:"ttl"`
	}{alias(c), c.TTL.Seconds()})
}

// DefaultNamespaces returns the namespaces every deployment starts with.
func DefaultNamespaces() []NamespaceConfig {
	return []NamespaceConfig{
		{Name: "content", TTL: constants.ContentCacheTTL, Description: "Published content items"},
		{Name: "collections", TTL: constants.CollectionsCacheTTL, Description: "Collection schemas and listings"},
		{Name: "media", TTL: constants.MediaCacheTTL, Description: "Media metadata"},
		{Name: "user", TTL: constants.UserCacheTTL, Description: "User profiles and permissions"},
		{Name: "config", TTL: constants.ConfigCacheTTL, Description: "Site configuration"},
		{Name: "plugin", TTL: constants.PluginCacheTTL, Description: "Plugin data"},
		{Name: "api", TTL: constants.APICacheTTL, Description: "API responses"},
		{Name: "session", TTL: constants.SessionCacheTTL, Description: "Session data"},
	}
}

// entry is the value stored in go-cache.
type entry struct {
	value      any
	size       int
	insertedAt time.Time
	expiresAt  time.Time // zero when the entry never expires
	hits       atomic.Int64
}

type namespace struct {
	store *gocache.Cache

	// mu guards cfg and the counters, and serializes writes with Clear.
	mu     sync.Mutex
	cfg    NamespaceConfig
	hits   int64
	misses int64
}

func newNamespace(cfg NamespaceConfig) *namespace {
	cleanup := 2 * cfg.TTL
	if cfg.TTL <= 0 {
		cleanup = 2 * constants.DefaultCacheTTL
	}
	return &namespace{
		store: gocache.New(expiration(cfg.TTL), cleanup),
		cfg:   cfg,
	}
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (n *namespace) config() NamespaceConfig {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cfg
}

// get looks key up and counts the hit or miss in the same critical
// section as Clear's flush and reset.
func (n *namespace) get(key string) (*entry, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	e, ok := n.lookup(key)
	if ok {
		n.hits++
	} else {
		n.misses++
	}
	return e, ok
}

func (n *namespace) lookup(key string) (*entry, bool) {
	v, ok := n.store.Get(key)
	if !ok {
		return nil, false
	}
	e, ok := v.(*entry)
	return e, ok
}

// Cache is the namespaced cache facade.
type Cache struct {
	namespaces map[string]*namespace
	names      []string
	logger     *zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for invalidation and warm-up messages.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New creates a cache with the given namespaces, or DefaultNamespaces when
// none are given.
func New(namespaces []NamespaceConfig, opts ...Option) *Cache {
	if len(namespaces) == 0 {
		namespaces = DefaultNamespaces()
	}

	nop := zerolog.Nop()
	c := &Cache{
		namespaces: make(map[string]*namespace, len(namespaces)),
		logger:     &nop,
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, cfg := range namespaces {
		if _, dup := c.namespaces[cfg.Name]; dup {
			continue
		}
		c.namespaces[cfg.Name] = newNamespace(cfg)
		c.names = append(c.names, cfg.Name)
	}
	sort.Strings(c.names)
	return c
}

func (c *Cache) namespace(name string) (*namespace, error) {
	ns, ok := c.namespaces[name]
	if !ok {
		return nil, errors.NewNotFoundError("namespace", name)
	}
	return ns, nil
}

// Namespaces returns the configured namespace names, sorted.
func (c *Cache) Namespaces() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Config returns the configuration of a namespace.
func (c *Cache) Config(ns string) (NamespaceConfig, error) {
	n, err := c.namespace(ns)
	if err != nil {
		return NamespaceConfig{}, err
	}
	return n.config(), nil
}

// SetDefaultTTL changes the TTL applied to future writes in ns.
func (c *Cache) SetDefaultTTL(ns string, ttl time.Duration) error {
	n, err := c.namespace(ns)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.cfg.TTL = ttl
	n.mu.Unlock()
	return nil
}

// Get returns the value stored under key and whether it was a hit.
func (c *Cache) Get(ns, key string) (any, bool, error) {
	n, err := c.namespace(ns)
	if err != nil {
		return nil, false, err
	}
	e, ok := n.get(key)
	if !ok {
		return nil, false, nil
	}
	e.hits.Add(1)
	return e.value, true, nil
}

// Result is returned by GetWithSource.
type Result struct {
	Hit    bool     `json:"hit"`
	Data   any      `json:"data"`
	Source string   `json:"source,omitempty"`
	TTL    *float64 `json:"ttl"`
}

// GetWithSource is Get with the origin of the value and its remaining TTL
// in seconds. TTL is nil on a miss or for entries that never expire.
func (c *Cache) GetWithSource(ns, key string) (Result, error) {
	n, err := c.namespace(ns)
	if err != nil {
		return Result{}, err
	}
	e, ok := n.get(key)
	if !ok {
		return Result{}, nil
	}
	e.hits.Add(1)

	res := Result{Hit: true, Data: e.value, Source: SourceCache}
	if !e.expiresAt.IsZero() {
		remaining := time.Until(e.expiresAt).Seconds()
		if remaining < 0 {
			remaining = 0
		}
		res.TTL = &remaining
	}
	return res, nil
}

// Has reports whether key is present without touching the counters.
func (c *Cache) Has(ns, key string) (bool, error) {
	n, err := c.namespace(ns)
	if err != nil {
		return false, err
	}
	_, ok := n.lookup(key)
	return ok, nil
}

// Set stores value under key. Without ttl the namespace default applies.
// An explicit ttl <= 0 makes the entry immediately expired, so any
// existing value is removed and nothing is stored.
func (c *Cache) Set(ns, key string, value any, ttl ...time.Duration) error {
	n, err := c.namespace(ns)
	if err != nil {
		return err
	}

	size := estimateSize(value)

	n.mu.Lock()
	defer n.mu.Unlock()

	d := n.cfg.TTL
	if len(ttl) > 0 {
		d = ttl[0]
		if d <= 0 {
			n.store.Delete(key)
			return nil
		}
	}

	now := time.Now()
	e := &entry{value: value, size: size, insertedAt: now}
	if d > 0 {
		e.expiresAt = now.Add(d)
	}
	n.store.Set(key, e, expiration(d))
	return nil
}

// Delete removes key. Removing an absent key is not an error.
func (c *Cache) Delete(ns, key string) error {
	n, err := c.namespace(ns)
	if err != nil {
		return err
	}
	n.store.Delete(key)
	return nil
}

// Clear removes every entry of ns, resets its counters and returns how
// many live entries were removed.
func (c *Cache) Clear(ns string) (int, error) {
	n, err := c.namespace(ns)
	if err != nil {
		return 0, err
	}
	n.mu.Lock()
	count := len(n.store.Items())
	n.store.Flush()
	n.hits, n.misses = 0, 0
	n.mu.Unlock()

	c.logger.Info().Str("namespace", ns).Int("cleared", count).Msg("Cache namespace cleared")
	return count, nil
}

// ClearAll clears every namespace and resets all counters.
func (c *Cache) ClearAll() int {
	total := 0
	for _, name := range c.names {
		n, _ := c.Clear(name)
		total += n
	}
	return total
}

// GetOrSet returns the cached value or stores the result of fetch.
func (c *Cache) GetOrSet(ctx context.Context, ns, key string, fetch func(context.Context) (any, error), ttl ...time.Duration) (any, error) {
	v, ok, err := c.Get(ns, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}

	v, err = fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Set(ns, key, v, ttl...); err != nil {
		return nil, err
	}
	return v, nil
}

// GetMany returns the hits among keys.
func (c *Cache) GetMany(ns string, keys []string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		v, ok, err := c.Get(ns, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = v
		}
	}
	return out, nil
}

// SetMany stores every entry with the same ttl rules as Set.
func (c *Cache) SetMany(ns string, entries map[string]any, ttl ...time.Duration) error {
	if _, err := c.namespace(ns); err != nil {
		return err
	}
	for key, v := range entries {
		if err := c.Set(ns, key, v, ttl...); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMany removes keys from ns.
func (c *Cache) DeleteMany(ns string, keys []string) error {
	n, err := c.namespace(ns)
	if err != nil {
		return err
	}
	for _, key := range keys {
		n.store.Delete(key)
	}
	return nil
}

// WarmEntry is one entry passed to Warm.
type WarmEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	// TTL in seconds; zero uses the namespace default.
	TTL int `json:"ttl,omitempty"`
}

// Warm bulk-loads entries into ns and returns how many were stored.
// A nil slice is rejected; an empty one warms nothing.
func (c *Cache) Warm(ns string, entries []WarmEntry) (int, error) {
	if entries == nil {
		return 0, errors.NewValidationError("entries", nil, "Entries array is required")
	}
	if _, err := c.namespace(ns); err != nil {
		return 0, err
	}

	count := 0
	for _, we := range entries {
		if we.Key == "" {
			continue
		}
		var err error
		if we.TTL > 0 {
			err = c.Set(ns, we.Key, we.Value, time.Duration(we.TTL)*time.Second)
		} else {
			err = c.Set(ns, we.Key, we.Value)
		}
		if err != nil {
			return count, err
		}
		count++
	}

	c.logger.Info().Str("namespace", ns).Int("count", count).Msg("Cache warmed")
	return count, nil
}

// Restore stores value with an absolute expiry, as read back from a
// snapshot. Entries already past expiresAt are skipped.
func (c *Cache) Restore(ns, key string, value any, expiresAt time.Time) (bool, error) {
	if expiresAt.IsZero() {
		n, err := c.namespace(ns)
		if err != nil {
			return false, err
		}
		e := &entry{value: value, size: estimateSize(value), insertedAt: time.Now()}
		n.mu.Lock()
		n.store.Set(key, e, gocache.NoExpiration)
		n.mu.Unlock()
		return true, nil
	}

	remaining := time.Until(expiresAt)
	if remaining <= 0 {
		if _, err := c.namespace(ns); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, c.Set(ns, key, value, remaining)
}

func estimateSize(v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return len(x)
	case []byte:
		return len(x)
	case json.RawMessage:
		return len(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return len(fmt.Sprintf("%v", v))
	}
	return len(b)
}
