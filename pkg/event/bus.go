// Package event dispatches inbound push events to one-shot subscribers keyed
// by topic. Session adapters feed pushes in through Emit.
package event

import "sync"

// Handler receives the payload of one push event.
type Handler func(payload []byte)

// Bus is a keyed table of one-shot handlers. The zero value is ready to use.
type Bus struct {
    mu   sync.Mutex
    subs map[string][]Handler
}

// SubscribeOnce registers fn to run for the next event on key. It is removed
// before it runs.
func (b *Bus) SubscribeOnce(key string, fn func(payload []byte)) {
    if fn == nil { return }
    b.mu.Lock()
    if b.subs == nil { b.subs = make(map[string][]Handler) }
    b.subs[key] = append(b.subs[key], fn)
    b.mu.Unlock()
}

// UnsubscribeAll drops every handler registered for key.
func (b *Bus) UnsubscribeAll(key string) {
    b.mu.Lock()
    delete(b.subs, key)
    b.mu.Unlock()
}

// Emit delivers payload to the handlers registered for key and returns how
// many ran. Handlers run on the caller's goroutine, outside the lock.
func (b *Bus) Emit(key string, payload []byte) int {
    b.mu.Lock()
    list := b.subs[key]
    delete(b.subs, key)
    b.mu.Unlock()
    for _, fn := range list { fn(payload) }
    return len(list)
}

// Pending returns the number of handlers waiting on key.
func (b *Bus) Pending(key string) int {
    b.mu.Lock()
    defer b.mu.Unlock()
    return len(b.subs[key])
}

// Keys returns the number of keys with at least one handler.
func (b *Bus) Keys() int {
    b.mu.Lock()
    defer b.mu.Unlock()
    return len(b.subs)
}
