package client

import (
    "context"
    "sync"
    "time"

    "github.com/amirimatin/go-groupchat/pkg/cache"
    "github.com/amirimatin/go-groupchat/pkg/observability/metrics"
)

type EventType string

const (
    EventGroupAdmin    EventType = "notice.group.admin"
    EventGroupDecrease EventType = "notice.group.decrease"
)

// Event is a domain notice raised by the client's own actions. Only the
// fields relevant to the type are populated.
type Event struct {
    Type       EventType         `json:"type"`
    At         time.Time         `json:"time"`
    GroupID    int64             `json:"group_id"`
    UserID     int64             `json:"user_id"`
    OperatorID int64             `json:"operator_id,omitempty"`
    Set        bool              `json:"set,omitempty"`
    Dismiss    bool              `json:"dismiss,omitempty"`
    Member     *cache.MemberInfo `json:"member,omitempty"`
}

// Subscribe returns a channel of events. The returned channel is buffered and
// closed automatically when ctx is done. Events may be dropped if the consumer
// is too slow (best-effort delivery).
func (c *Client) Subscribe(ctx context.Context) <-chan Event {
    ch := make(chan Event, 64)
    c.eb.add(ch)
    go func() {
        <-ctx.Done()
        c.eb.remove(ch)
        close(ch)
    }()
    return ch
}

func (c *Client) emit(ev Event) {
    if ev.At.IsZero() { ev.At = c.opts.Now() }
    metrics.DomainEvents.WithLabelValues(string(ev.Type)).Inc()
    c.eb.publish(ev)
}

// internal event bus
type eventBus struct {
    mu   sync.Mutex
    subs map[chan Event]struct{}
}

func (e *eventBus) add(ch chan Event) {
    e.mu.Lock()
    if e.subs == nil { e.subs = make(map[chan Event]struct{}) }
    e.subs[ch] = struct{}{}
    e.mu.Unlock()
}

func (e *eventBus) remove(ch chan Event) {
    e.mu.Lock()
    if e.subs != nil { delete(e.subs, ch) }
    e.mu.Unlock()
}

func (e *eventBus) len() int {
    e.mu.Lock()
    defer e.mu.Unlock()
    return len(e.subs)
}

func (e *eventBus) publish(ev Event) {
    e.mu.Lock()
    for ch := range e.subs {
        select {
        case ch <- ev:
        default:
            // drop if receiver is slow
        }
    }
    e.mu.Unlock()
}
