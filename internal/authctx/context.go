// Package authctx publishes the process-wide session state.
//
// A Context composes the session observer, the profile resolver and the
// authorization gate. It is created once at the composition root and passed
// to every consumer that needs it.
//
// States (IsLoading x identity presence):
//
//	Init       {loading, no identity}             initial
//	SignedOut  {settled, no identity}             provider reported nil
//	Resolving  {settled, identity, no profile}    provider reported X
//	SignedIn   {settled, identity, profile}       resolution for X succeeded
//
// A resolution only applies while the identity change that started it is
// still the latest one.
package authctx

import (
	"context"
	"fmt"
	"sync"

	"wayfarer/internal/auth"
	"wayfarer/internal/gate"
	"wayfarer/internal/logger"
)

// IdentitySource delivers identity changes in provider order.
type IdentitySource interface {
	Subscribe(fn func(*auth.Identity)) (cancel func())
	Start()
	Stop()
}

// ProfileResolver fetches the extended profile of an identity.
type ProfileResolver interface {
	Resolve(ctx context.Context, identity auth.Identity) (*auth.Profile, error)
}

type subscriber struct {
	id uint64
	fn func(auth.SessionState)
}

type Context struct {
	source    IdentitySource
	resolver  ProfileResolver
	allowlist gate.Allowlist

	// publish serializes state transitions with their notifications so
	// subscribers observe them in order.
	publish sync.Mutex

	mu           sync.Mutex
	state        auth.SessionState
	generation   uint64
	subscribers  []subscriber // subscription order
	nextSub      uint64
	cancelSource func()
	started      bool
	closed       bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(source IdentitySource, resolver ProfileResolver, allowlist gate.Allowlist) *Context {
	ctx, cancel := context.WithCancel(context.Background())
	return &Context{
		source:    source,
		resolver:  resolver,
		allowlist: allowlist,
		state:     auth.InitialState(),
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the identity source. It is a no-op after the first
// call or after Close.
func (c *Context) Start() {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	cancel := c.source.Subscribe(c.onIdentity)

	c.mu.Lock()
	c.cancelSource = cancel
	c.mu.Unlock()

	c.source.Start()
}

// Close unsubscribes from the source and waits for in-flight resolutions
// to be discarded. It must not be called from a subscriber.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancelSource := c.cancelSource
	started := c.started
	c.mu.Unlock()

	if cancelSource != nil {
		cancelSource()
	}
	if started {
		c.source.Stop()
	}
	c.cancel()
	c.wg.Wait()
}

// State returns a snapshot of the current session state.
func (c *Context) State() auth.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Level classifies the current identity against the allowlist.
func (c *Context) Level() gate.Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gate.Classify(c.state.Identity, c.allowlist)
}

// Allowlist returns the privileged-identity rules this context was built
// with.
func (c *Context) Allowlist() gate.Allowlist {
	return c.allowlist
}

// Subscribe calls fn with the current state and then with every change,
// in order. fn runs while transitions are held back, so it must not call
// Subscribe, Wait or Close; State, Level and Allowlist are safe.
func (c *Context) Subscribe(fn func(auth.SessionState)) (cancel func()) {
	c.publish.Lock()
	defer c.publish.Unlock()

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers = append(c.subscribers, subscriber{id: id, fn: fn})
	snapshot := c.state.Clone()
	c.mu.Unlock()

	notifyOne(fn, snapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			for i, sub := range c.subscribers {
				if sub.id == id {
					c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)
					break
				}
			}
			c.mu.Unlock()
		})
	}
}

// Wait blocks until a published state satisfies pred or ctx is done. Like
// Subscribe, it must not be called from a subscriber.
func (c *Context) Wait(ctx context.Context, pred func(auth.SessionState) bool) (auth.SessionState, error) {
	found := make(chan auth.SessionState, 1)
	cancel := c.Subscribe(func(s auth.SessionState) {
		if pred(s) {
			select {
			case found <- s:
			default:
			}
		}
	})
	defer cancel()

	select {
	case s := <-found:
		return s, nil
	case <-ctx.Done():
		return auth.SessionState{}, ctx.Err()
	}
}

// Settled is a Wait predicate for "loading has finished".
func Settled(s auth.SessionState) bool {
	return !s.IsLoading
}

func (c *Context) onIdentity(identity *auth.Identity) {
	c.publish.Lock()
	defer c.publish.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.generation++
	gen := c.generation
	c.state = auth.SessionState{Identity: identity, IsLoading: false}
	if identity != nil {
		c.wg.Add(1)
	}
	snapshot, subs := c.snapshotLocked()
	c.mu.Unlock()

	if identity != nil {
		logger.Debug("resolving profile", map[string]any{
			"user_id":    identity.ID,
			"generation": gen,
		})
		go c.resolve(gen, *identity)
	} else {
		logger.Info("signed out", nil)
	}

	notifyAll(subs, snapshot)
}

func (c *Context) resolve(gen uint64, identity auth.Identity) {
	defer c.wg.Done()

	p, err := c.resolver.Resolve(c.baseCtx, identity)

	c.publish.Lock()
	defer c.publish.Unlock()

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		logger.Debug("discarding stale profile resolution", map[string]any{
			"user_id":    identity.ID,
			"generation": gen,
		})
		return
	}
	if err != nil {
		c.mu.Unlock()
		logger.Warn("profile resolution failed", map[string]any{
			"user_id": identity.ID,
			"error":   err.Error(),
		})
		return
	}
	if p == nil {
		c.mu.Unlock()
		return
	}
	c.state.Profile = p
	snapshot, subs := c.snapshotLocked()
	c.mu.Unlock()

	notifyAll(subs, snapshot)
}

func (c *Context) snapshotLocked() (auth.SessionState, []func(auth.SessionState)) {
	subs := make([]func(auth.SessionState), 0, len(c.subscribers))
	for _, sub := range c.subscribers {
		subs = append(subs, sub.fn)
	}
	return c.state.Clone(), subs
}

func notifyAll(subs []func(auth.SessionState), s auth.SessionState) {
	for _, fn := range subs {
		notifyOne(fn, s.Clone())
	}
}

func notifyOne(fn func(auth.SessionState), s auth.SessionState) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session subscriber panicked", map[string]any{
				"panic": fmt.Sprint(r),
			})
		}
	}()
	fn(s)
}
