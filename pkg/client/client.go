// Package client is the group-chat facade: it wires the session, codecs,
// entity cache, identity registry and worker pool, and hands out Group,
// GroupMember and Discuss handles.
package client

import (
    "context"
    "crypto/rand"
    "encoding/binary"
    "io"
    "strconv"
    "sync"
    "time"

    "golang.org/x/sync/singleflight"

    "github.com/amirimatin/go-groupchat/pkg/cache"
    "github.com/amirimatin/go-groupchat/pkg/internal/logutil"
    "github.com/amirimatin/go-groupchat/pkg/internal/workerpool"
    "github.com/amirimatin/go-groupchat/pkg/observability/metrics"
    "github.com/amirimatin/go-groupchat/pkg/rpc"
)

// refreshTimeout bounds one background refresh.
const refreshTimeout = 30 * time.Second

type memberKey struct{ gid, uid int64 }

// Client is the concrete facade. It is safe for concurrent use.
type Client struct {
    opts   Options
    caller *rpc.Caller

    groups    *cache.GroupStore
    members   *cache.MemberStore
    groupReg  *cache.Registry[int64, cache.GroupInfo, Group]
    memberReg *cache.Registry[memberKey, cache.MemberInfo, GroupMember]

    rosterSF   singleflight.Group
    rosterBusy sync.Map
    refreshing sync.Map
    pool       *workerpool.Pool
    eb         eventBus

    mu     sync.RWMutex
    closed bool
}

// New constructs a Client from validated options. It performs no network
// activity.
func New(ctx context.Context, opts Options) (*Client, error) {
    if err := opts.Validate(); err != nil { return nil, err }
    opts = opts.withDefaults()
    caller, err := rpc.New(opts.Session, opts.Codec, opts.StructCodec)
    if err != nil { return nil, err }
    if opts.Version != "" { caller.Version = opts.Version }
    groups, err := cache.NewGroupStore(opts.GroupCacheSize, opts.Observer)
    if err != nil { return nil, err }
    members, err := cache.NewMemberStore(opts.RosterCacheSize, opts.Observer)
    if err != nil { return nil, err }
    c := &Client{
        opts:      opts,
        caller:    caller,
        groups:    groups,
        members:   members,
        groupReg:  cache.NewRegistry[int64, cache.GroupInfo, Group](),
        memberReg: cache.NewRegistry[memberKey, cache.MemberInfo, GroupMember](),
        pool:      workerpool.New(opts.Workers, opts.QueueSize, opts.Logger),
    }
    logutil.Debugf(opts.Logger, "groupchat: client ready uin=%d", opts.Session.Uin())
    return c, nil
}

// Uin is the account the client acts as.
func (c *Client) Uin() int64 { return c.opts.Session.Uin() }

// Caller exposes the request helpers bound to the session.
func (c *Client) Caller() *rpc.Caller { return c.caller }

// Group returns the handle for gid. While the group is cached the same
// handle is returned every time.
func (c *Client) Group(gid int64) *Group {
    rec := c.groups.Get(gid)
    return c.groupReg.Acquire(gid, rec, func() *Group { return newGroup(c, gid, rec) })
}

// Member returns the handle for uid in gid. While the member is cached the
// same handle is returned every time.
func (c *Client) Member(gid, uid int64) *GroupMember {
    rec := c.members.Member(gid, uid)
    m := c.memberReg.Acquire(memberKey{gid, uid}, rec, func() *GroupMember { return newMember(c, gid, uid, rec) })
    // a loose handle promoted to a cached record follows that record
    if rec != nil && m.record() != rec { m.setRecord(rec) }
    return m
}

// Discuss returns a handle for a discussion group.
func (c *Client) Discuss(gid int64) *Discuss { return &Discuss{c: c, gid: gid} }

// Status is a JSON-serializable snapshot of client state.
type Status struct {
    Uin          int64   `json:"uin"`
    Groups       []int64 `json:"groups"`
    Rosters      int     `json:"rosters"`
    PendingTasks int64   `json:"pending_tasks"`
    LooseHandles int     `json:"loose_handles"`
    Subscribers  int     `json:"subscribers"`
    Closed       bool    `json:"closed"`
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
    c.mu.RLock()
    closed := c.closed
    c.mu.RUnlock()
    return &Status{
        Uin:          c.Uin(),
        Groups:       c.groups.Keys(),
        Rosters:      c.members.Len(),
        PendingTasks: c.pool.Pending(),
        LooseHandles: c.groupReg.Loose() + c.memberReg.Loose(),
        Subscribers:  c.eb.len(),
        Closed:       closed,
    }, nil
}

// Close drains detached tasks and closes the session, then the cache
// observer when it is an io.Closer. It is idempotent.
func (c *Client) Close() error {
    c.mu.Lock()
    if c.closed { c.mu.Unlock(); return nil }
    c.closed = true
    c.mu.Unlock()
    c.pool.Shutdown()
    err := c.opts.Session.Close()
    if cl, ok := c.opts.Observer.(io.Closer); ok {
        if cerr := cl.Close(); err == nil { err = cerr }
    }
    return err
}

func (c *Client) isClosed() bool {
    c.mu.RLock()
    defer c.mu.RUnlock()
    return c.closed
}

func (c *Client) now() int64 { return c.opts.Now().Unix() }

// detach schedules fn on the worker pool. Scheduled, not completed: callers
// get no ordering guarantee.
func (c *Client) detach(name string, fn func(ctx context.Context)) bool {
    if c.isClosed() || !c.pool.TrySubmit(fn) {
        metrics.PoolDropped.Inc()
        logutil.Warnf(c.opts.Logger, "groupchat: dropped detached task %s", name)
        return false
    }
    return true
}

// refresh schedules a swallowed background refresh, at most one per key.
func (c *Client) refresh(kind, key string, fn func(ctx context.Context) error) {
    if _, busy := c.refreshing.LoadOrStore(key, struct{}{}); busy { return }
    ok := c.detach("refresh "+key, func(ctx context.Context) {
        defer c.refreshing.Delete(key)
        ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
        defer cancel()
        err := fn(ctx)
        metrics.BackgroundRefreshes.WithLabelValues(kind, metrics.Result(err)).Inc()
        if err != nil { logutil.Warnf(c.opts.Logger, "groupchat: background refresh %s: %v", key, err) }
    })
    if !ok { c.refreshing.Delete(key) }
}

func (c *Client) stale(updated int64) bool {
    return c.now()-updated >= int64(c.opts.RefreshAfter/time.Second)
}

func (c *Client) rosterKey(gid int64) string {
    return strconv.FormatInt(c.Uin(), 10) + "-" + strconv.FormatInt(gid, 10)
}

func rand32() uint32 {
    var b [4]byte
    _, _ = rand.Read(b[:])
    return binary.BigEndian.Uint32(b[:])
}

func rand16() uint16 {
    var b [2]byte
    _, _ = rand.Read(b[:])
    return binary.BigEndian.Uint16(b[:])
}
