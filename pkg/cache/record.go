package cache

import "sync"

// Record is a mutex-guarded cached value. A record may carry one attached
// handle; the registry uses it to keep handle identity tied to the record.
type Record[T any] struct {
    mu    sync.Mutex
    v     T
    bound any
}

// NewRecord returns a record holding v.
func NewRecord[T any](v T) *Record[T] { return &Record[T]{v: v} }

// Snapshot returns a copy of the current value.
func (r *Record[T]) Snapshot() T {
    r.mu.Lock()
    defer r.mu.Unlock()
    return r.v
}

// Update runs fn on the value under the record lock.
func (r *Record[T]) Update(fn func(*T)) {
    r.mu.Lock()
    fn(&r.v)
    r.mu.Unlock()
}

// Bound returns the attached handle, or nil.
func (r *Record[T]) Bound() any {
    r.mu.Lock()
    defer r.mu.Unlock()
    return r.bound
}

// bind attaches w unless a handle is already attached, and returns the
// attached one.
func (r *Record[T]) bind(w any) any {
    r.mu.Lock()
    defer r.mu.Unlock()
    if r.bound == nil { r.bound = w }
    return r.bound
}
