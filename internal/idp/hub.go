// Package idp is the in-process identity provider. Sign-in flows push
// identities into the Hub; the rest of the application observes session
// changes through OnSessionChange.
package idp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"wayfarer/internal/auth"
	"wayfarer/internal/logger"
	"wayfarer/internal/session"
)

const (
	DefaultSessionTTL    = 24 * time.Hour
	DefaultCheckInterval = 30 * time.Second
)

var ErrClosed = errors.New("idp: hub closed")

// Event is a single session change pushed to listeners.
type Event struct {
	Identity *auth.Identity // nil when signed out
	Err      error          // delivery failure; Identity is meaningless
	Closed   bool           // the stream has ended permanently
}

// ProviderSubscriptionError reports that the provider could not determine
// the current session. Listeners should keep their previous identity.
type ProviderSubscriptionError struct {
	Err error
}

func (e *ProviderSubscriptionError) Error() string {
	return fmt.Sprintf("idp: session stream delivery failed: %v", e.Err)
}

func (e *ProviderSubscriptionError) Unwrap() error { return e.Err }

type listener struct {
	id uint64
	fn func(Event)
}

// Hub owns the single active session of this process.
//
// Listeners are invoked serially in emission order. A listener must not
// call SignIn, SignOut, OnSessionChange or Close synchronously.
type Hub struct {
	store session.Store
	ttl   time.Duration
	now   func() time.Time

	// transition is held from reading the previous session until listeners
	// have been told about the new one. Lock order: transition, deliver, mu.
	transition sync.Mutex
	deliver    sync.Mutex

	mu        sync.Mutex
	listeners []listener // registration order
	nextID    uint64
	current   *session.Session
	closed    bool
}

func NewHub(store session.Store, ttl time.Duration) *Hub {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Hub{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Restore loads the active session persisted by a previous process.
func (h *Hub) Restore(ctx context.Context) error {
	s, err := h.store.Active(ctx)
	if err != nil {
		return fmt.Errorf("idp: restore: %w", err)
	}
	if s != nil && s.Expired(h.now()) {
		s = nil
	}

	h.mu.Lock()
	h.current = s
	h.mu.Unlock()

	if s != nil {
		logger.Info("session restored", map[string]any{
			"user_id":    s.Identity.ID,
			"expires_at": s.ExpiresAt,
		})
	}
	return nil
}

// OnSessionChange registers fn and invokes it once immediately with the
// current session. The returned func unregisters fn; extra calls are no-ops.
func (h *Hub) OnSessionChange(fn func(Event)) (unsubscribe func()) {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		invoke(fn, Event{Closed: true})
		return func() {}
	}
	id := h.nextID
	h.nextID++
	h.listeners = append(h.listeners, listener{id: id, fn: fn})
	initial := Event{Identity: identityOf(h.current)}
	h.mu.Unlock()

	invoke(fn, initial)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			for i, l := range h.listeners {
				if l.id == id {
					h.listeners = append(h.listeners[:i:i], h.listeners[i+1:]...)
					break
				}
			}
			h.mu.Unlock()
		})
	}
}

// Current returns the identity of the active session, or nil.
func (h *Hub) Current() *auth.Identity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return identityOf(h.current)
}

// Owns reports whether sessionID is the id of the active, unexpired
// session.
func (h *Hub) Owns(sessionID string) bool {
	if sessionID == "" {
		return false
	}

	h.mu.Lock()
	current := h.current
	h.mu.Unlock()

	if current == nil || current.Expired(h.now()) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(current.SessionID), []byte(sessionID)) == 1
}

// SignIn replaces the active session with a new one for identity and
// returns it. The session id is what binds a browser to the session.
func (h *Hub) SignIn(ctx context.Context, identity auth.Identity) (session.Session, error) {
	if identity.ID == "" {
		return session.Session{}, errors.New("idp: identity id is required")
	}

	h.transition.Lock()
	defer h.transition.Unlock()

	h.mu.Lock()
	closed := h.closed
	previous := h.current
	h.mu.Unlock()
	if closed {
		return session.Session{}, ErrClosed
	}

	sessionID, err := session.GenerateID()
	if err != nil {
		return session.Session{}, err
	}

	now := h.now()
	s := session.Session{
		SessionID: sessionID,
		Identity:  identity,
		CreatedAt: now,
		ExpiresAt: now.Add(h.ttl),
	}

	if err := h.store.Create(ctx, s); err != nil {
		return session.Session{}, fmt.Errorf("idp: persist session: %w", err)
	}
	if err := h.store.SetActive(ctx, s.SessionID, s.ExpiresAt); err != nil {
		_ = h.store.Delete(ctx, s.SessionID)
		return session.Session{}, fmt.Errorf("idp: activate session: %w", err)
	}
	if previous != nil {
		// best-effort
		_ = h.store.Delete(ctx, previous.SessionID)
	}

	h.mu.Lock()
	h.current = &s
	h.mu.Unlock()

	h.emit(Event{Identity: identityOf(&s)})
	return s, nil
}

// SignOut clears the active session. Signing out while signed out still
// notifies listeners.
func (h *Hub) SignOut(ctx context.Context) error {
	_, err := h.endSession(ctx, "")
	return err
}

// endSession signs out. A non-empty expect only ends the session with that
// id, so a session started since the caller looked is left alone.
func (h *Hub) endSession(ctx context.Context, expect string) (bool, error) {
	h.transition.Lock()
	defer h.transition.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false, ErrClosed
	}
	previous := h.current
	if expect != "" && (previous == nil || previous.SessionID != expect) {
		h.mu.Unlock()
		return false, nil
	}
	h.current = nil
	h.mu.Unlock()

	var errs []error
	if err := h.store.ClearActive(ctx); err != nil {
		errs = append(errs, err)
	}
	if previous != nil {
		if err := h.store.Delete(ctx, previous.SessionID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("session cleanup failed", map[string]any{
			"error": err.Error(),
		})
	}

	h.emit(Event{})
	return true, nil
}

// Watch expires the active session once it passes its absolute expiry and
// reports store failures to listeners. It returns when ctx is done.
func (h *Hub) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		logger.Warn("invalid session check interval, using default", map[string]any{
			"interval": interval.String(),
			"default":  DefaultCheckInterval.String(),
		})
		interval = DefaultCheckInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

func (h *Hub) check(ctx context.Context) {
	h.mu.Lock()
	current := h.current
	h.mu.Unlock()
	if current == nil {
		return
	}

	if current.Expired(h.now()) {
		if ended, _ := h.endSession(ctx, current.SessionID); ended {
			logger.Info("session expired", map[string]any{"user_id": current.Identity.ID})
		}
		return
	}

	stored, err := h.store.Get(ctx, current.SessionID)
	if err != nil {
		h.emit(Event{Err: &ProviderSubscriptionError{Err: err}})
		return
	}
	if stored == nil {
		if ended, _ := h.endSession(ctx, current.SessionID); ended {
			logger.Info("session revoked", map[string]any{"user_id": current.Identity.ID})
		}
	}
}

// Close ends the stream permanently. Listeners receive a final Closed
// event and are dropped.
func (h *Hub) Close() {
	h.transition.Lock()
	defer h.transition.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.emit(Event{Closed: true})

	h.mu.Lock()
	h.listeners = nil
	h.mu.Unlock()
}

func (h *Hub) emit(ev Event) {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.Lock()
	if h.closed && !ev.Closed {
		h.mu.Unlock()
		return
	}
	fns := make([]func(Event), 0, len(h.listeners))
	for _, l := range h.listeners {
		fns = append(fns, l.fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		invoke(fn, copyEvent(ev))
	}
}

func invoke(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session listener panicked", map[string]any{
				"panic": fmt.Sprint(r),
			})
		}
	}()
	fn(ev)
}

func identityOf(s *session.Session) *auth.Identity {
	if s == nil {
		return nil
	}
	id := s.Identity
	return &id
}

func copyEvent(ev Event) Event {
	if ev.Identity != nil {
		id := *ev.Identity
		ev.Identity = &id
	}
	return ev
}
