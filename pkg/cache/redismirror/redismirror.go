// Package redismirror mirrors cached group and roster snapshots into redis
// so other processes can read them. It implements cache.Observer; writes are
// queued and flushed in pipelines by a background goroutine.
package redismirror

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "strconv"
    "sync"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/amirimatin/go-groupchat/pkg/cache"
    "github.com/amirimatin/go-groupchat/pkg/internal/logutil"
)

var ErrNoAddr = errors.New("redismirror: empty address")

const (
    defaultQueue = 1024
    maxBatch     = 128
    writeTimeout = 3 * time.Second
)

// Options configure a Mirror.
type Options struct {
    Addr     string
    Password string
    DB       int
    // Uin namespaces keys per account.
    Uin int64
    // TTL is applied to every written hash. Zero keeps keys forever.
    TTL       time.Duration
    QueueSize int
    Logger    *log.Logger
}

func (o Options) Validate() error {
    if o.Addr == "" { return ErrNoAddr }
    return nil
}

type opKind int

const (
    opGroup opKind = iota
    opGroupDel
    opMembers
    opMemberDel
    opRosterDel
)

type op struct {
    kind    opKind
    gid     int64
    uid     int64
    group   cache.GroupInfo
    members []cache.MemberInfo
}

// Mirror is a cache.Observer backed by redis.
type Mirror struct {
    rdb    *redis.Client
    uin    int64
    ttl    time.Duration
    logger *log.Logger

    ops       chan op
    stop      chan struct{}
    done      chan struct{}
    closeOnce sync.Once
}

var _ cache.Observer = (*Mirror)(nil)

// New dials redis and starts the flush loop.
func New(opts Options) (*Mirror, error) {
    if err := opts.Validate(); err != nil { return nil, err }
    rdb := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
    return NewWithClient(rdb, opts), nil
}

// NewWithClient starts a mirror on an existing client.
func NewWithClient(rdb *redis.Client, opts Options) *Mirror {
    m := newMirror(rdb, opts)
    go m.loop()
    return m
}

func newMirror(rdb *redis.Client, opts Options) *Mirror {
    if opts.QueueSize <= 0 { opts.QueueSize = defaultQueue }
    if opts.Logger == nil { opts.Logger = log.Default() }
    return &Mirror{
        rdb:    rdb,
        uin:    opts.Uin,
        ttl:    opts.TTL,
        logger: opts.Logger,
        ops:    make(chan op, opts.QueueSize),
        stop:   make(chan struct{}),
        done:   make(chan struct{}),
    }
}

// Ping checks connectivity.
func (m *Mirror) Ping(ctx context.Context) error { return m.rdb.Ping(ctx).Err() }

func (m *Mirror) GroupStored(info cache.GroupInfo) { m.enqueue(op{kind: opGroup, gid: info.GroupID, group: info}) }
func (m *Mirror) GroupRemoved(gid int64)           { m.enqueue(op{kind: opGroupDel, gid: gid}) }
func (m *Mirror) MemberRemoved(gid, uid int64)     { m.enqueue(op{kind: opMemberDel, gid: gid, uid: uid}) }
func (m *Mirror) RosterRemoved(gid int64)          { m.enqueue(op{kind: opRosterDel, gid: gid}) }

func (m *Mirror) MembersStored(gid int64, members []cache.MemberInfo) {
    if len(members) == 0 { return }
    m.enqueue(op{kind: opMembers, gid: gid, members: members})
}

func (m *Mirror) enqueue(o op) {
    select {
    case <-m.stop:
        return
    default:
    }
    select {
    case m.ops <- o:
    default:
        logutil.Warnf(m.logger, "redismirror: queue full, dropping update for group %d", o.gid)
    }
}

func (m *Mirror) loop() {
    defer close(m.done)
    for {
        select {
        case o := <-m.ops:
            m.flush(m.batch(o))
        case <-m.stop:
            // Drain what is already queued.
            for {
                select {
                case o := <-m.ops:
                    m.flush(m.batch(o))
                default:
                    return
                }
            }
        }
    }
}

func (m *Mirror) batch(first op) []op {
    out := []op{first}
    for len(out) < maxBatch {
        select {
        case o := <-m.ops:
            out = append(out, o)
        default:
            return out
        }
    }
    return out
}

func (m *Mirror) flush(ops []op) {
    ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
    defer cancel()
    pipe := m.rdb.Pipeline()
    for _, o := range ops {
        if err := m.apply(ctx, pipe, o); err != nil {
            logutil.Warnf(m.logger, "redismirror: encode group %d: %v", o.gid, err)
        }
    }
    if _, err := pipe.Exec(ctx); err != nil {
        logutil.Warnf(m.logger, "redismirror: flush %d ops: %v", len(ops), err)
    }
}

func (m *Mirror) apply(ctx context.Context, pipe redis.Pipeliner, o op) error {
    switch o.kind {
    case opGroup:
        b, err := json.Marshal(o.group)
        if err != nil { return err }
        key := GroupKey(m.uin, o.gid)
        pipe.HSet(ctx, key, "info", b, "update_time", o.group.UpdateTime)
        m.expire(ctx, pipe, key)
    case opGroupDel:
        pipe.Del(ctx, GroupKey(m.uin, o.gid))
    case opMembers:
        key := RosterKey(m.uin, o.gid)
        values := make([]any, 0, 2*len(o.members))
        for _, mi := range o.members {
            b, err := json.Marshal(mi)
            if err != nil { return err }
            values = append(values, strconv.FormatInt(mi.UserID, 10), b)
        }
        pipe.HSet(ctx, key, values...)
        m.expire(ctx, pipe, key)
    case opMemberDel:
        pipe.HDel(ctx, RosterKey(m.uin, o.gid), strconv.FormatInt(o.uid, 10))
    case opRosterDel:
        pipe.Del(ctx, RosterKey(m.uin, o.gid))
    }
    return nil
}

func (m *Mirror) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
    if m.ttl > 0 { pipe.Expire(ctx, key, m.ttl) }
}

// Close flushes queued updates and closes the redis client.
func (m *Mirror) Close() error {
    var err error
    m.closeOnce.Do(func() {
        close(m.stop)
        <-m.done
        err = m.rdb.Close()
    })
    return err
}

// GroupKey is the hash holding one group snapshot.
func GroupKey(uin, gid int64) string { return fmt.Sprintf("gchat:%d:group:%d", uin, gid) }

// RosterKey is the hash holding one group's members, keyed by uid.
func RosterKey(uin, gid int64) string { return fmt.Sprintf("gchat:%d:roster:%d", uin, gid) }
