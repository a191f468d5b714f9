package hooks

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lane711/sonicjs/pkg/errors"
)

func newTestRegistry() *Registry {
	logger := zerolog.Nop()
	return New(&logger)
}

func recorder(calls *[]string, label string) Handler {
	return func(_ context.Context, _ Event) error {
		*calls = append(*calls, label)
		return nil
	}
}

func TestEmitRunsInRegistrationOrder(t *testing.T) {
	r := newTestRegistry()
	var calls []string

	r.Register("content:updated", recorder(&calls, "a"))
	r.Register("content:updated", recorder(&calls, "b"))
	r.Register("content:updated", recorder(&calls, "c"))

	r.Emit(context.Background(), "content:updated", nil)

	assert.Equal(t, []string{"a", "b", "c"}, calls)
}

func TestEmitHonoursPriority(t *testing.T) {
	r := newTestRegistry()
	var calls []string

	r.Register("e", recorder(&calls, "default-1"))
	r.Register("e", recorder(&calls, "late"), WithPriority(20))
	r.Register("e", recorder(&calls, "early"), WithPriority(1))
	r.Register("e", recorder(&calls, "default-2"))

	r.Emit(context.Background(), "e", nil)

	assert.Equal(t, []string{"early", "default-1", "default-2", "late"}, calls)
}

func TestEmitIsolatesFailures(t *testing.T) {
	tests := []struct {
		name    string
		failing Handler
	}{
		{
			name:    "error",
			failing: func(context.Context, Event) error { return fmt.Errorf("boom") },
		},
		{
			name:    "panic",
			failing: func(context.Context, Event) error { panic("kaboom") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry()
			var calls []string

			r.Register("e", recorder(&calls, "first"))
			r.Register("e", tt.failing)
			r.Register("e", recorder(&calls, "third"))

			assert.NotPanics(t, func() { r.Emit(context.Background(), "e", nil) })
			assert.Equal(t, []string{"first", "third"}, calls)
			assert.Equal(t, int64(1), r.Stats().Failures)

			log := r.Log(0)
			require.Len(t, log, 1)
			assert.Equal(t, 1, log[0].Failures)
			assert.Equal(t, 3, log[0].Subscribers)
		})
	}
}

func TestEmitWithoutSubscribers(t *testing.T) {
	r := newTestRegistry()
	assert.NotPanics(t, func() { r.Emit(context.Background(), "nobody:listens", 42) })
	assert.Equal(t, int64(1), r.Stats().Emissions["nobody:listens"])
}

func TestEmitDeliversPayload(t *testing.T) {
	r := newTestRegistry()
	var got Event
	r.Register(PluginActivated, func(_ context.Context, e Event) error {
		got = e
		return nil
	})

	r.Emit(context.Background(), PluginActivated, PluginPayload{ID: "email"})

	assert.Equal(t, PluginActivated, got.Name)
	assert.Equal(t, PluginPayload{ID: "email"}, got.Payload)
	assert.False(t, got.Timestamp.IsZero())
}

func TestWildcardReceivesEveryEvent(t *testing.T) {
	r := newTestRegistry()
	var order []string

	r.Register(Wildcard, func(_ context.Context, e Event) error {
		order = append(order, "*:"+e.Name)
		return nil
	})
	r.Register("a", recorder(&order, "a"))

	r.Emit(context.Background(), "a", nil)
	r.Emit(context.Background(), "b", nil)

	assert.Equal(t, []string{"a", "*:a", "*:b"}, order)
}

func TestUnregister(t *testing.T) {
	r := newTestRegistry()
	var calls []string

	h := r.Register("e", recorder(&calls, "gone"))
	r.Register("e", recorder(&calls, "kept"))

	assert.True(t, r.Unregister(h))
	assert.False(t, r.Unregister(h))
	assert.Equal(t, 1, r.SubscriberCount("e"))

	r.Emit(context.Background(), "e", nil)
	assert.Equal(t, []string{"kept"}, calls)
}

func TestRemoveOwnerAndScope(t *testing.T) {
	r := newTestRegistry()
	var calls []string

	scope := r.Scope("email")
	scope.On("content:created", recorder(&calls, "email-created"))
	scope.On("content:updated", recorder(&calls, "email-updated"))
	r.Register("content:created", recorder(&calls, "core"))

	assert.Equal(t, "email", scope.Owner())
	assert.Equal(t, 0, r.RemoveOwner(""))
	assert.Equal(t, 2, scope.Close())
	assert.Equal(t, 0, r.SubscriberCount("content:updated"))
	assert.NotContains(t, r.Events(), "content:updated")

	r.Emit(context.Background(), "content:created", nil)
	assert.Equal(t, []string{"core"}, calls)
}

func TestOffAndReset(t *testing.T) {
	r := newTestRegistry()
	r.Register("a", func(context.Context, Event) error { return nil })
	r.Register("b", func(context.Context, Event) error { return nil })
	r.Emit(context.Background(), "a", nil)

	r.Off("a")
	assert.Equal(t, []string{"b"}, r.Events())

	r.Reset()
	stats := r.Stats()
	assert.Zero(t, stats.TotalEvents)
	assert.Zero(t, stats.TotalSubscriptions)
	assert.Empty(t, stats.Emissions)
	assert.Empty(t, r.Log(0))
}

func TestStats(t *testing.T) {
	r := newTestRegistry()
	noop := func(context.Context, Event) error { return nil }
	r.Register("a", noop)
	r.Register("a", noop)
	r.Register("b", noop)

	stats := r.Stats()
	assert.Equal(t, 2, stats.TotalEvents)
	assert.Equal(t, 3, stats.TotalSubscriptions)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, stats.EventCounts)
}

func TestLogIsBounded(t *testing.T) {
	r := newTestRegistry()
	for i := 0; i < 150; i++ {
		r.Emit(context.Background(), fmt.Sprintf("e%d", i), nil)
	}

	log := r.Log(0)
	require.Len(t, log, 100)
	assert.Equal(t, "e50", log[0].Event)
	assert.Equal(t, "e149", log[99].Event)

	last := r.Log(3)
	require.Len(t, last, 3)
	assert.Equal(t, "e147", last[0].Event)

	r.ClearLog()
	assert.Empty(t, r.Log(10))
}

func TestRecursiveEmitIsDropped(t *testing.T) {
	r := newTestRegistry()
	count := 0
	r.Register("loop", func(ctx context.Context, e Event) error {
		count++
		r.Emit(ctx, "loop", nil)
		return nil
	})

	r.Emit(context.Background(), "loop", nil)
	assert.Equal(t, 1, count)
}

func TestNestedDifferentEventRuns(t *testing.T) {
	r := newTestRegistry()
	var calls []string
	r.Register("outer", func(ctx context.Context, e Event) error {
		r.Emit(ctx, "inner", nil)
		return nil
	})
	r.Register("inner", recorder(&calls, "inner"))

	r.Emit(context.Background(), "outer", nil)
	assert.Equal(t, []string{"inner"}, calls)
}

func TestSubscriberCanRegisterDuringEmit(t *testing.T) {
	r := newTestRegistry()
	var calls []string
	r.Register("e", func(context.Context, Event) error {
		r.Register("e", recorder(&calls, "added"))
		return nil
	})

	r.Emit(context.Background(), "e", nil)
	assert.Empty(t, calls)

	r.Emit(context.Background(), "e", nil)
	assert.Equal(t, []string{"added"}, calls)
}

func TestSubscriberErrorType(t *testing.T) {
	serr := &errors.SubscriberError{Event: "e", Index: 2, Err: fmt.Errorf("x")}
	assert.ErrorIs(t, serr, errors.ErrSubscriber)
}

func TestConcurrentEmit(t *testing.T) {
	r := newTestRegistry()
	var mu sync.Mutex
	total := 0
	r.Register("e", func(context.Context, Event) error {
		mu.Lock()
		total++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Emit(context.Background(), "e", nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, total)
	assert.Equal(t, int64(20), r.Stats().Emissions["e"])
}
