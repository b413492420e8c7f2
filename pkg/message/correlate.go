package message

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/amirimatin/go-groupchat/pkg/transport"
)

var ErrTimeout = errors.New("message: confirmation timed out")

// PushKey is the push topic that confirms a group send with the given rand.
func PushKey(gid int64, rand uint32) string { return fmt.Sprintf("internal.%d.%d", gid, rand) }

// Waiter is a one-shot subscription for a send confirmation. It must be
// installed before the request is sent and released afterwards.
type Waiter struct {
    src  transport.EventSource
    key  string
    ch   chan []byte
    once sync.Once
}

// Await subscribes to key.
func Await(src transport.EventSource, key string) *Waiter {
    w := &Waiter{src: src, key: key, ch: make(chan []byte, 1)}
    src.SubscribeOnce(key, func(payload []byte) {
        select {
        case w.ch <- payload:
        default:
        }
    })
    return w
}

func (w *Waiter) Key() string { return w.key }

// Wait blocks until the confirmation arrives, timeout elapses or ctx ends.
// A confirmation that arrived earlier is returned immediately.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) ([]byte, error) {
    select {
    case p := <-w.ch:
        return p, nil
    default:
    }
    t := time.NewTimer(timeout)
    defer t.Stop()
    select {
    case p := <-w.ch:
        return p, nil
    case <-t.C:
        return nil, ErrTimeout
    case <-ctx.Done():
        return nil, ctx.Err()
    }
}

// Release drops every subscriber on the key. Safe to call more than once.
func (w *Waiter) Release() {
    w.once.Do(func() { w.src.UnsubscribeAll(w.key) })
}
