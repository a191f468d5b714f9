// Package hooks implements the in-process event registry that plugins and
// core services use to react to domain events such as content updates or
// plugin lifecycle transitions.
//
// Subscribers for the same event run sequentially in (priority, registration)
// order. A failing subscriber is logged and counted but never stops the ones
// after it, and Emit never reports subscriber failures to the emitter.
package hooks

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lane711/sonicjs/pkg/constants"
	"github.com/lane711/sonicjs/pkg/errors"
)

// Wildcard subscribers receive every emitted event.
const Wildcard = "*"

// Event is what a subscriber receives.
type Event struct {
	Name      string    `json:"event"`
	Payload   any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler reacts to an event. A returned error is logged by the registry.
type Handler func(ctx context.Context, e Event) error

// Handle identifies a single subscription for Unregister.
type Handle struct {
	event string
	id    uint64
}

// Event returns the event name the subscription listens to.
func (h Handle) Event() string { return h.event }

// Valid reports whether the handle refers to a subscription.
func (h Handle) Valid() bool { return h.id != 0 }

type subscription struct {
	id       uint64
	owner    string
	priority int
	handler  Handler
}

// Option configures a subscription.
type Option func(*subscription)

// WithOwner tags the subscription with the id of the plugin that created it.
func WithOwner(owner string) Option {
	return func(s *subscription) { s.owner = owner }
}

// WithPriority sets the run order; lower runs first.
func WithPriority(priority int) Option {
	return func(s *subscription) { s.priority = priority }
}

// LogEntry records one emission.
type LogEntry struct {
	Event       string    `json:"event"`
	Timestamp   time.Time `json:"timestamp"`
	Subscribers int       `json:"subscribers"`
	Failures    int       `json:"failures"`
	Duration    string    `json:"duration"`
}

// Stats summarizes the registry contents.
type Stats struct {
	TotalEvents        int              `json:"totalEvents"`
	TotalSubscriptions int              `json:"totalSubscriptions"`
	EventCounts        map[string]int   `json:"eventCounts"`
	Emissions          map[string]int64 `json:"emissions"`
	Failures           int64            `json:"failures"`
}

// Registry is the event registry. The zero value is not usable; use New.
type Registry struct {
	mu        sync.RWMutex
	subs      map[string][]*subscription
	nextID    uint64
	emissions map[string]int64
	failures  int64
	log       []LogEntry
	logSize   int
	logger    *zerolog.Logger
}

// New creates an empty registry logging to logger.
func New(logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		subs:      make(map[string][]*subscription),
		emissions: make(map[string]int64),
		logSize:   constants.EventLogSize,
		logger:    logger,
	}
}

// Register appends handler to the subscribers of name and returns a handle
// that can later be passed to Unregister.
func (r *Registry) Register(name string, handler Handler, opts ...Option) Handle {
	s := &subscription{priority: constants.DefaultHookPriority, handler: handler}
	for _, opt := range opts {
		opt(s)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	s.id = r.nextID

	list := r.subs[name]
	// insert after every subscriber with priority <= s.priority
	idx := sort.Search(len(list), func(i int) bool { return list[i].priority > s.priority })
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = s
	r.subs[name] = list

	r.logger.Debug().
		Str("event", name).
		Str("owner", s.owner).
		Int("priority", s.priority).
		Msg("Hook registered")

	return Handle{event: name, id: s.id}
}

// Unregister removes a single subscription. It reports whether one was removed.
func (r *Registry) Unregister(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.subs[h.event]
	for i, s := range list {
		if s.id == h.id {
			r.setList(h.event, append(list[:i:i], list[i+1:]...))
			return true
		}
	}
	return false
}

// RemoveOwner removes every subscription created by owner and returns how
// many were removed.
func (r *Registry) RemoveOwner(owner string) int {
	if owner == "" {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for name, list := range r.subs {
		kept := make([]*subscription, 0, len(list))
		for _, s := range list {
			if s.owner == owner {
				removed++
				continue
			}
			kept = append(kept, s)
		}
		r.setList(name, kept)
	}

	if removed > 0 {
		r.logger.Debug().Str("owner", owner).Int("removed", removed).Msg("Owner hooks removed")
	}
	return removed
}

// Off removes all subscribers of name.
func (r *Registry) Off(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, name)
}

// Reset empties the registry, including counters and the emission log.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string][]*subscription)
	r.emissions = make(map[string]int64)
	r.failures = 0
	r.log = nil
}

// setList must be called with mu held.
func (r *Registry) setList(name string, list []*subscription) {
	if len(list) == 0 {
		delete(r.subs, name)
		return
	}
	r.subs[name] = list
}

// Emit delivers payload to the subscribers of name, then to wildcard
// subscribers. Subscriber errors and panics are logged and swallowed.
// An event re-emitted from within one of its own subscribers is dropped.
func (r *Registry) Emit(ctx context.Context, name string, payload any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if emitting(ctx, name) {
		r.logger.Warn().Str("event", name).Msg("Hook recursion detected")
		return
	}
	ctx = withEmitting(ctx, name)

	r.mu.RLock()
	subs := make([]*subscription, 0, len(r.subs[name])+len(r.subs[Wildcard]))
	subs = append(subs, r.subs[name]...)
	if name != Wildcard {
		subs = append(subs, r.subs[Wildcard]...)
	}
	r.mu.RUnlock()

	start := time.Now()
	e := Event{Name: name, Payload: payload, Timestamp: start.UTC()}

	failures := 0
	for i, s := range subs {
		if err := r.invoke(ctx, s, e); err != nil {
			failures++
			serr := &errors.SubscriberError{Event: name, Index: i, Owner: s.owner, Err: err}
			r.logger.Warn().
				Err(serr).
				Str("event", name).
				Int("index", i).
				Str("owner", s.owner).
				Msg("Hook subscriber failed")
		}
	}

	r.mu.Lock()
	r.emissions[name]++
	r.failures += int64(failures)
	r.log = append(r.log, LogEntry{
		Event:       name,
		Timestamp:   e.Timestamp,
		Subscribers: len(subs),
		Failures:    failures,
		Duration:    time.Since(start).String(),
	})
	if over := len(r.log) - r.logSize; over > 0 {
		r.log = append(r.log[:0:0], r.log[over:]...)
	}
	r.mu.Unlock()
}

func (r *Registry) invoke(ctx context.Context, s *subscription, e Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Debug().Str("stack", string(debug.Stack())).Msg("Hook subscriber panic")
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return s.handler(ctx, e)
}

// Events returns the names that have at least one subscriber, sorted.
func (r *Registry) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.subs))
	for name := range r.subs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SubscriberCount returns the number of subscribers of name.
func (r *Registry) SubscriberCount(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[name])
}

// Stats returns a snapshot of registry counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{
		TotalEvents: len(r.subs),
		EventCounts: make(map[string]int, len(r.subs)),
		Emissions:   make(map[string]int64, len(r.emissions)),
		Failures:    r.failures,
	}
	for name, list := range r.subs {
		st.EventCounts[name] = len(list)
		st.TotalSubscriptions += len(list)
	}
	for name, n := range r.emissions {
		st.Emissions[name] = n
	}
	return st
}

// Log returns the most recent emissions, oldest first. A limit <= 0
// returns the whole retained log.
func (r *Registry) Log(limit int) []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.log
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	out := make([]LogEntry, len(entries))
	copy(out, entries)
	return out
}

// ClearLog drops the emission log.
func (r *Registry) ClearLog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = nil
}

type emittingKey struct{}

type emittingSet struct {
	name   string
	parent *emittingSet
}

func emitting(ctx context.Context, name string) bool {
	set, _ := ctx.Value(emittingKey{}).(*emittingSet)
	for ; set != nil; set = set.parent {
		if set.name == name {
			return true
		}
	}
	return false
}

func withEmitting(ctx context.Context, name string) context.Context {
	parent, _ := ctx.Value(emittingKey{}).(*emittingSet)
	return context.WithValue(ctx, emittingKey{}, &emittingSet{name: name, parent: parent})
}
