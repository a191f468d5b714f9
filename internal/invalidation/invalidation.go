// Package invalidation keeps the cache consistent with content changes by
// subscribing to domain events and invalidating the affected namespaces.
package invalidation

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lane711/sonicjs/internal/analytics"
	"github.com/lane711/sonicjs/internal/cache"
	"github.com/lane711/sonicjs/internal/hooks"
	"github.com/lane711/sonicjs/pkg/constants"
)

// Owner is the owner id the subscriptions are registered under.
const Owner = "cache"

// Target is what one event invalidates in a namespace: the keys matching
// Pattern, or, when ID is set, the keys of that single entity.
type Target struct {
	Namespace string
	Pattern   string
	ID        string
}

func (t Target) String() string {
	if t.ID != "" {
		return fmt.Sprintf("%s:*:%s:*", t.Namespace, t.ID)
	}
	return t.Pattern
}

// Rule maps an event to the targets it invalidates.
type Rule struct {
	Event   string
	Targets func(e hooks.Event) []Target
}

func namespace(ns string) Target {
	return Target{Namespace: ns, Pattern: ns + ":*"}
}

func static(targets ...Target) func(hooks.Event) []Target {
	return func(hooks.Event) []Target { return targets }
}

// item targets the keys of a single entity in ns, or the whole namespace
// when the payload carries no id.
func item(ns string) func(hooks.Event) []Target {
	return func(e hooks.Event) []Target {
		id := PayloadID(e.Payload)
		if id == "" {
			return []Target{{Namespace: ns, Pattern: ns + ":*"}}
		}
		return []Target{{Namespace: ns, ID: id}}
	}
}

func combine(fns ...func(hooks.Event) []Target) func(hooks.Event) []Target {
	return func(e hooks.Event) []Target {
		var out []Target
		for _, fn := range fns {
			out = append(out, fn(e)...)
		}
		return out
	}
}

var (
	contentTargets    = static(namespace("content"), namespace("api"))
	collectionTargets = static(namespace("collections"))
	mediaTargets      = static(namespace("media"))
	configTargets     = static(namespace("config"))
	pluginTargets     = static(namespace("config"), namespace("plugin"))
)

// DefaultRules are the subscriptions Start installs.
func DefaultRules() []Rule {
	return []Rule{
		{hooks.ContentCreated, contentTargets},
		{hooks.ContentUpdated, contentTargets},
		{hooks.ContentDeleted, contentTargets},
		{hooks.ContentPublished, contentTargets},

		{hooks.CollectionCreated, collectionTargets},
		{hooks.CollectionUpdated, combine(collectionTargets, static(namespace("api")))},
		{hooks.CollectionDeleted, collectionTargets},

		{hooks.MediaUploaded, mediaTargets},
		{hooks.MediaUpdated, mediaTargets},
		{hooks.MediaDeleted, mediaTargets},

		{hooks.UserUpdated, combine(item("user"), item("session"))},
		{hooks.UserDeleted, combine(item("user"), item("session"))},
		{hooks.AuthLogout, item("session")},

		{hooks.ConfigUpdated, configTargets},

		{hooks.PluginActivated, pluginTargets},
		{hooks.PluginDeactivated, pluginTargets},
		{hooks.PluginSettingsUpdated, pluginTargets},
	}
}

// PayloadID extracts the entity id from an event payload.
func PayloadID(payload any) string {
	switch p := payload.(type) {
	case hooks.EntityPayload:
		return p.ID
	case *hooks.EntityPayload:
		if p != nil {
			return p.ID
		}
	case hooks.PluginPayload:
		return p.ID
	case map[string]any:
		if id, ok := p["id"]; ok && id != nil {
			return fmt.Sprint(id)
		}
	}
	return ""
}

// Service subscribes to events and records every invalidation it performs.
type Service struct {
	cache    *cache.Cache
	registry *hooks.Registry
	rules    []Rule
	logger   *zerolog.Logger

	mu          sync.Mutex
	scope       *hooks.Scope
	records     []analytics.InvalidationRecord
	total       int
	removed     int
	byEvent     map[string]int
	byNamespace map[string]int
}

// New creates a service with DefaultRules. Call Start to subscribe.
func New(c *cache.Cache, registry *hooks.Registry, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		cache:       c,
		registry:    registry,
		rules:       DefaultRules(),
		logger:      logger,
		byEvent:     make(map[string]int),
		byNamespace: make(map[string]int),
	}
}

// Start registers the subscriptions. Calling it twice is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scope != nil {
		return
	}

	s.scope = s.registry.Scope(Owner)
	for _, rule := range s.rules {
		s.scope.On(rule.Event, s.handler(rule))
	}
	s.logger.Debug().Int("rules", len(s.rules)).Msg("Cache invalidation subscribed")
}

// Stop removes the subscriptions.
func (s *Service) Stop() {
	s.mu.Lock()
	scope := s.scope
	s.scope = nil
	s.mu.Unlock()

	if scope != nil {
		scope.Close()
	}
}

func (s *Service) handler(rule Rule) hooks.Handler {
	return func(_ context.Context, e hooks.Event) error {
		for _, t := range rule.Targets(e) {
			var (
				n   int
				err error
			)
			if t.ID != "" {
				n, err = s.cache.InvalidateEntity(t.Namespace, t.ID)
			} else {
				n, err = s.cache.Invalidate(t.Pattern, t.Namespace)
			}
			if err != nil {
				return fmt.Errorf("invalidate %s in %s: %w", t, t.Namespace, err)
			}
			s.record(analytics.InvalidationRecord{
				Event:     e.Name,
				Namespace: t.Namespace,
				Pattern:   t.String(),
				Count:     n,
				At:        time.Now().UTC(),
			})
			s.logger.Debug().
				Str("event", e.Name).
				Str("namespace", t.Namespace).
				Stringer("target", t).
				Int("invalidated", n).
				Msg("Cache invalidated by event")
		}
		return nil
	}
}

func (s *Service) record(r analytics.InvalidationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.removed += r.Count
	s.byEvent[r.Event]++
	s.byNamespace[r.Namespace]++
	s.records = append(s.records, r)
	if over := len(s.records) - constants.InvalidationLogSize; over > 0 {
		s.records = append(s.records[:0:0], s.records[over:]...)
	}
}

// Summary implements analytics.InvalidationSource. Recent holds up to
// limit records, newest first.
func (s *Service) Summary(limit int) analytics.InvalidationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	recent := make([]analytics.InvalidationRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, s.records[i])
	}

	return analytics.InvalidationSummary{
		Total:       s.total,
		Removed:     s.removed,
		ByEvent:     maps.Clone(s.byEvent),
		ByNamespace: maps.Clone(s.byNamespace),
		Recent:      recent,
	}
}

// Reset clears the recorded history.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.total, s.removed = 0, 0
	s.byEvent = make(map[string]int)
	s.byNamespace = make(map[string]int)
}
