package cache

import (
    "runtime"
    "sync"
    "weak"
)

// Registry hands out one handle of type W per key. A handle attached to a
// cached record lives as long as that record; a handle for an uncached key
// is remembered only weakly, so it is reused while the caller still holds
// it and forgotten once it is collected. The registry never references
// records.
type Registry[K comparable, T any, W any] struct {
    mu    sync.Mutex
    loose map[K]weak.Pointer[W]
}

// NewRegistry returns an empty registry.
func NewRegistry[K comparable, T any, W any]() *Registry[K, T, W] {
    return &Registry[K, T, W]{loose: make(map[K]weak.Pointer[W])}
}

// Acquire returns the handle for key. rec is the cached record for key, or
// nil when the key is not cached; build creates a new handle.
func (r *Registry[K, T, W]) Acquire(key K, rec *Record[T], build func() *W) *W {
    if rec != nil {
        if w, ok := rec.Bound().(*W); ok { return w }
    }
    r.mu.Lock()
    defer r.mu.Unlock()
    if wp, ok := r.loose[key]; ok {
        if w := wp.Value(); w != nil {
            if rec == nil { return w }
            delete(r.loose, key)
            return rec.bind(w).(*W)
        }
        delete(r.loose, key)
    }
    w := build()
    if rec != nil { return rec.bind(w).(*W) }
    r.remember(key, w)
    return w
}

// Keep remembers w weakly for key unless key already has a live loose
// handle. It is used when a handle holds a record that no store caches.
func (r *Registry[K, T, W]) Keep(key K, w *W) {
    r.mu.Lock()
    defer r.mu.Unlock()
    if wp, ok := r.loose[key]; ok && wp.Value() != nil { return }
    r.remember(key, w)
}

func (r *Registry[K, T, W]) remember(key K, w *W) {
    wp := weak.Make(w)
    r.loose[key] = wp
    runtime.AddCleanup(w, r.prune, looseEntry[K, W]{key: key, wp: wp})
}

// Bind attaches w to rec if rec has no handle yet and drops any loose
// entry for key. It returns the handle now attached to rec.
func (r *Registry[K, T, W]) Bind(key K, rec *Record[T], w *W) *W {
    got := rec.bind(w).(*W)
    r.Forget(key)
    return got
}

// Forget drops the loose entry for key.
func (r *Registry[K, T, W]) Forget(key K) {
    r.mu.Lock()
    delete(r.loose, key)
    r.mu.Unlock()
}

// Loose returns the number of weakly remembered handles.
func (r *Registry[K, T, W]) Loose() int {
    r.mu.Lock()
    defer r.mu.Unlock()
    return len(r.loose)
}

type looseEntry[K comparable, W any] struct {
    key K
    wp  weak.Pointer[W]
}

func (r *Registry[K, T, W]) prune(e looseEntry[K, W]) {
    r.mu.Lock()
    if cur, ok := r.loose[e.key]; ok && cur == e.wp { delete(r.loose, e.key) }
    r.mu.Unlock()
}
