// Package workerpool runs detached best-effort tasks on a fixed set of
// goroutines.
package workerpool

import (
    "context"
    "log"
    "sync"
    "sync/atomic"

    "github.com/amirimatin/go-groupchat/pkg/internal/logutil"
)

// Task is one unit of detached work.
type Task func(ctx context.Context)

// Pool is a fixed-size worker pool with a bounded queue.
type Pool struct {
    workers int
    queue   chan Task
    wg      sync.WaitGroup
    ctx     context.Context
    cancel  context.CancelFunc
    logger  *log.Logger

    mu      sync.RWMutex
    closed  bool
    pending atomic.Int64
}

// New starts a pool with the given number of workers and queue capacity.
func New(workers, queueSize int, logger *log.Logger) *Pool {
    if workers <= 0 { workers = 4 }
    if queueSize <= 0 { queueSize = 256 }
    if logger == nil { logger = log.Default() }
    ctx, cancel := context.WithCancel(context.Background())
    p := &Pool{
        workers: workers,
        queue:   make(chan Task, queueSize),
        ctx:     ctx,
        cancel:  cancel,
        logger:  logger,
    }
    for i := 0; i < workers; i++ {
        p.wg.Add(1)
        go p.worker(i)
    }
    return p
}

func (p *Pool) worker(id int) {
    defer p.wg.Done()
    for task := range p.queue {
        p.run(id, task)
    }
}

func (p *Pool) run(id int, task Task) {
    defer p.pending.Add(-1)
    defer func() {
        if r := recover(); r != nil {
            logutil.Errorf(p.logger, "workerpool: task panic recovered worker=%d panic=%v", id, r)
        }
    }()
    task(p.ctx)
}

// TrySubmit queues task without blocking. It returns false when the queue is
// full or the pool is shut down.
func (p *Pool) TrySubmit(task Task) bool {
    p.mu.RLock()
    defer p.mu.RUnlock()
    if p.closed { return false }
    p.pending.Add(1)
    select {
    case p.queue <- task:
        return true
    default:
        p.pending.Add(-1)
        return false
    }
}

// Pending returns queued plus running tasks.
func (p *Pool) Pending() int64 { return p.pending.Load() }

// Shutdown stops accepting tasks, lets queued tasks finish and waits for the
// workers. The task context is cancelled once the queue is drained.
func (p *Pool) Shutdown() {
    p.mu.Lock()
    if p.closed { p.mu.Unlock(); return }
    p.closed = true
    close(p.queue)
    p.mu.Unlock()
    p.wg.Wait()
    p.cancel()
}
