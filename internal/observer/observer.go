package observer

import (
	"fmt"
	"sync"

	"wayfarer/internal/auth"
	"wayfarer/internal/idp"
	"wayfarer/internal/logger"
)

// Source is the identity provider's session-change stream. It must invoke
// the listener once immediately with the current session.
type Source interface {
	OnSessionChange(fn func(idp.Event)) (unsubscribe func())
}

type subscriber struct {
	id uint64
	fn func(*auth.Identity)
}

// Observer republishes the provider's current identity to subscribers.
type Observer struct {
	source Source

	mu          sync.Mutex
	subscribers []subscriber // subscription order
	nextID      uint64
	current     *auth.Identity
	unsubscribe func()
	started     bool
	stopped     bool
}

func New(source Source) *Observer {
	return &Observer{source: source}
}

// Subscribe adds fn to the set of identity consumers. Subscribers added
// before Start see the provider's initial callback.
func (o *Observer) Subscribe(fn func(*auth.Identity)) (cancel func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subscribers = append(o.subscribers, subscriber{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			for i, sub := range o.subscribers {
				if sub.id == id {
					o.subscribers = append(o.subscribers[:i:i], o.subscribers[i+1:]...)
					break
				}
			}
			o.mu.Unlock()
		})
	}
}

// Start registers the single provider listener. Calling Start again, or
// after Stop, does nothing.
func (o *Observer) Start() {
	o.mu.Lock()
	if o.started || o.stopped {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.mu.Unlock()

	unsubscribe := o.source.OnSessionChange(o.handle)

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		unsubscribe()
		return
	}
	o.unsubscribe = unsubscribe
	o.mu.Unlock()
}

// Stop unregisters the provider listener exactly once.
func (o *Observer) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	o.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Current returns the last identity forwarded, or nil.
func (o *Observer) Current() *auth.Identity {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyIdentity(o.current)
}

func (o *Observer) handle(ev idp.Event) {
	switch {
	case ev.Closed:
		logger.Warn("identity provider stream ended", nil)
		o.forward(nil)
	case ev.Err != nil:
		logger.Error("identity provider delivery failed", map[string]any{
			"error": ev.Err.Error(),
		})
	default:
		o.forward(ev.Identity)
	}
}

func (o *Observer) forward(identity *auth.Identity) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.current = copyIdentity(identity)
	fns := make([]func(*auth.Identity), 0, len(o.subscribers))
	for _, sub := range o.subscribers {
		fns = append(fns, sub.fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		deliver(fn, copyIdentity(identity))
	}
}

func deliver(fn func(*auth.Identity), identity *auth.Identity) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("identity subscriber panicked", map[string]any{
				"panic": fmt.Sprint(r),
			})
		}
	}()
	fn(identity)
}

func copyIdentity(identity *auth.Identity) *auth.Identity {
	if identity == nil {
		return nil
	}
	c := *identity
	return &c
}
