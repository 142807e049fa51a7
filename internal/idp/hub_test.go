package idp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/internal/auth"
	"wayfarer/internal/session"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newTestHub(t *testing.T) (*Hub, *session.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := session.NewRedisStore(client)
	return NewHub(store, time.Hour), store, mr
}

func mustSignIn(t *testing.T, hub *Hub, ctx context.Context, identity auth.Identity) session.Session {
	t.Helper()
	s, err := hub.SignIn(ctx, identity)
	require.NoError(t, err)
	return s
}

func TestHub_InitialInvocation(t *testing.T) {
	hub, _, _ := newTestHub(t)

	var rec recorder
	unsubscribe := hub.OnSessionChange(rec.listen)
	defer unsubscribe()

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Identity)
	assert.False(t, events[0].Closed)
}

func TestHub_SignInSignOutOrdering(t *testing.T) {
	hub, _, _ := newTestHub(t)
	ctx := context.Background()

	var rec recorder
	defer hub.OnSessionChange(rec.listen)()

	mustSignIn(t, hub, ctx, auth.Identity{ID: "a"})
	mustSignIn(t, hub, ctx, auth.Identity{ID: "b"})
	require.NoError(t, hub.SignOut(ctx))

	events := rec.snapshot()
	require.Len(t, events, 4)
	assert.Nil(t, events[0].Identity)
	assert.Equal(t, "a", events[1].Identity.ID)
	assert.Equal(t, "b", events[2].Identity.ID)
	assert.Nil(t, events[3].Identity)
	assert.Nil(t, hub.Current())
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	hub, _, _ := newTestHub(t)

	var rec recorder
	unsubscribe := hub.OnSessionChange(rec.listen)
	unsubscribe()
	unsubscribe()

	mustSignIn(t, hub, context.Background(), auth.Identity{ID: "a"})
	assert.Len(t, rec.snapshot(), 1)
}

func TestHub_PanickingListenerDoesNotBlockOthers(t *testing.T) {
	hub, _, _ := newTestHub(t)

	calls := 0
	defer hub.OnSessionChange(func(ev Event) {
		calls++
		if ev.Identity != nil {
			panic("boom")
		}
	})()
	var rec recorder
	defer hub.OnSessionChange(rec.listen)()

	mustSignIn(t, hub, context.Background(), auth.Identity{ID: "a"})
	mustSignIn(t, hub, context.Background(), auth.Identity{ID: "b"})

	assert.Equal(t, 3, calls)
	assert.Len(t, rec.snapshot(), 3)
}

func TestHub_RestoreFromStore(t *testing.T) {
	hub, store, _ := newTestHub(t)
	ctx := context.Background()
	mustSignIn(t, hub, ctx, auth.Identity{ID: "u1", Email: "a@b.com"})

	restarted := NewHub(store, time.Hour)
	require.NoError(t, restarted.Restore(ctx))

	var rec recorder
	defer restarted.OnSessionChange(rec.listen)()

	events := rec.snapshot()
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Identity)
	assert.Equal(t, "a@b.com", events[0].Identity.Email)
}

func TestHub_CloseEndsStream(t *testing.T) {
	hub, _, _ := newTestHub(t)

	var rec recorder
	hub.OnSessionChange(rec.listen)
	hub.Close()
	hub.Close()

	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.True(t, events[1].Closed)

	_, err := hub.SignIn(context.Background(), auth.Identity{ID: "a"})
	assert.ErrorIs(t, err, ErrClosed)

	var late recorder
	hub.OnSessionChange(late.listen)
	require.Len(t, late.snapshot(), 1)
	assert.True(t, late.snapshot()[0].Closed)
}

func TestHub_CheckExpiresSession(t *testing.T) {
	hub, _, _ := newTestHub(t)
	ctx := context.Background()
	mustSignIn(t, hub, ctx, auth.Identity{ID: "a"})

	var rec recorder
	defer hub.OnSessionChange(rec.listen)()

	hub.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	hub.check(ctx)

	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.Nil(t, events[1].Identity)
	assert.Nil(t, hub.Current())
}

func TestHub_CheckReportsStoreFailure(t *testing.T) {
	hub, _, mr := newTestHub(t)
	ctx := context.Background()
	mustSignIn(t, hub, ctx, auth.Identity{ID: "a"})

	var rec recorder
	defer hub.OnSessionChange(rec.listen)()

	mr.Close()
	hub.check(ctx)

	events := rec.snapshot()
	require.Len(t, events, 2)
	var subErr *ProviderSubscriptionError
	assert.True(t, errors.As(events[1].Err, &subErr))
	assert.NotNil(t, hub.Current(), "identity retained on delivery failure")
}

func TestHub_CheckDetectsRevokedSession(t *testing.T) {
	hub, _, mr := newTestHub(t)
	ctx := context.Background()
	mustSignIn(t, hub, ctx, auth.Identity{ID: "a"})

	mr.FlushAll()
	hub.check(ctx)

	assert.Nil(t, hub.Current())
}

func TestHub_Owns(t *testing.T) {
	hub, _, _ := newTestHub(t)
	ctx := context.Background()

	assert.False(t, hub.Owns(""))

	first := mustSignIn(t, hub, ctx, auth.Identity{ID: "a"})
	assert.True(t, hub.Owns(first.SessionID))
	assert.False(t, hub.Owns("someone-else"))

	second := mustSignIn(t, hub, ctx, auth.Identity{ID: "b"})
	assert.False(t, hub.Owns(first.SessionID), "replaced session no longer binds")
	assert.True(t, hub.Owns(second.SessionID))

	hub.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.False(t, hub.Owns(second.SessionID), "expired session no longer binds")

	hub.now = time.Now
	require.NoError(t, hub.SignOut(ctx))
	assert.False(t, hub.Owns(second.SessionID))
}

func TestHub_ConcurrentSignInsSettleOnLastDelivered(t *testing.T) {
	hub, _, mr := newTestHub(t)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		last *auth.Identity
	)
	defer hub.OnSessionChange(func(ev Event) {
		mu.Lock()
		last = ev.Identity
		mu.Unlock()
	})()

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := hub.SignIn(ctx, auth.Identity{ID: fmt.Sprintf("u%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	current := hub.Current()
	require.NotNil(t, current)
	mu.Lock()
	require.NotNil(t, last)
	assert.Equal(t, current.ID, last.ID)
	mu.Unlock()

	var stored []string
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "session:") && k != "session:active" {
			stored = append(stored, k)
		}
	}
	assert.Len(t, stored, 1, "replaced sessions are deleted")
}

func TestHub_CheckLeavesNewerSessionAlone(t *testing.T) {
	hub, _, _ := newTestHub(t)
	ctx := context.Background()
	old := mustSignIn(t, hub, ctx, auth.Identity{ID: "a"})
	mustSignIn(t, hub, ctx, auth.Identity{ID: "b"})

	ended, err := hub.endSession(ctx, old.SessionID)
	require.NoError(t, err)
	assert.False(t, ended)
	require.NotNil(t, hub.Current())
	assert.Equal(t, "b", hub.Current().ID)
}

func TestHub_WatchToleratesNonPositiveInterval(t *testing.T) {
	hub, _, _ := newTestHub(t)

	for _, interval := range []time.Duration{0, -time.Second} {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			hub.Watch(ctx, interval)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("Watch(%s) did not return", interval)
		}
	}
}

func TestHub_DeliveryOrderSurvivesChurn(t *testing.T) {
	hub, _, _ := newTestHub(t)

	for i := 0; i < 1000; i++ {
		hub.OnSessionChange(func(Event) {})()
	}

	var order []string
	defer hub.OnSessionChange(func(Event) { order = append(order, "first") })()
	cancel := hub.OnSessionChange(func(Event) { order = append(order, "dropped") })
	defer hub.OnSessionChange(func(Event) { order = append(order, "last") })()
	cancel()
	order = nil

	mustSignIn(t, hub, context.Background(), auth.Identity{ID: "a"})

	assert.Equal(t, []string{"first", "last"}, order)
	assert.Len(t, hub.listeners, 2, "unsubscribed listeners are released")
}
