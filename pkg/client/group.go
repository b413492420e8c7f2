package client

import (
    "context"
    "strconv"
    "sync"

    "github.com/amirimatin/go-groupchat/pkg/cache"
    "github.com/amirimatin/go-groupchat/pkg/codec"
    "github.com/amirimatin/go-groupchat/pkg/errcode"
    "github.com/amirimatin/go-groupchat/pkg/gfs"
)

// Group is the handle of one group. Obtain it with Client.Group.
type Group struct {
    c   *Client
    gid int64
    fs  *gfs.FS

    mu  sync.Mutex
    rec *cache.Record[cache.GroupInfo]
}

func newGroup(c *Client, gid int64, rec *cache.Record[cache.GroupInfo]) *Group {
    return &Group{c: c, gid: gid, rec: rec, fs: gfs.New(c.caller, gid, c.opts.Logger)}
}

func (g *Group) GroupID() int64 { return g.gid }

// FS returns the group's file store.
func (g *Group) FS() *gfs.FS { return g.fs }

// AcquireMember returns the handle of a member of this group.
func (g *Group) AcquireMember(uid int64) *GroupMember { return g.c.Member(g.gid, uid) }

func (g *Group) record() *cache.Record[cache.GroupInfo] {
    g.mu.Lock()
    defer g.mu.Unlock()
    return g.rec
}

func (g *Group) setRecord(rec *cache.Record[cache.GroupInfo]) {
    g.mu.Lock()
    g.rec = rec
    g.mu.Unlock()
}

// Info returns the known profile without blocking. When it is missing or
// older than RefreshAfter a background refresh is scheduled; refresh errors
// are logged, never returned.
func (g *Group) Info() (cache.GroupInfo, bool) {
    rec := g.record()
    var info cache.GroupInfo
    if rec != nil { info = rec.Snapshot() }
    if rec == nil || g.c.stale(info.UpdateTime) {
        g.c.refresh("group", "group-"+strconv.FormatInt(g.gid, 10), func(ctx context.Context) error {
            _, err := g.FetchInfo(ctx)
            return err
        })
    }
    return info, rec != nil
}

// FetchInfo fetches the profile and merges it into the cache.
func (g *Group) FetchInfo(ctx context.Context) (cache.GroupInfo, error) {
    c := g.c
    if rec := g.record(); rec != nil {
        now := c.now()
        rec.Update(func(i *cache.GroupInfo) { i.UpdateTime = now })
    }
    rsp, err := c.caller.Oidb(ctx, "OidbSvc.0x88d_0", codec.Tree{
        1: c.opts.Session.SubID(),
        2: codec.Tree{1: g.gid, 2: groupInfoRequest},
    })
    if err != nil { return cache.GroupInfo{}, err }
    proto := rsp.Sub(4).Sub(1).Sub(3)
    if proto == nil {
        c.groups.Delete(g.gid)
        c.members.Delete(g.gid)
        return cache.GroupInfo{}, errcode.New(errcode.GroupNotJoined)
    }
    patch := groupPatch(proto, c.now())
    rec := c.groups.Get(g.gid)
    if rec == nil { rec = g.record() }
    if rec == nil { rec = cache.NewRecord(cache.GroupInfo{GroupID: g.gid}) }
    rec.Update(patch.Apply)
    c.groups.Put(g.gid, rec)
    g.setRecord(rec)
    c.groupReg.Bind(g.gid, rec, g)
    return rec.Snapshot(), nil
}

// ownerID returns the cached owner of gid, or 0.
func (c *Client) ownerID(gid int64) int64 {
    if rec := c.groups.Get(gid); rec != nil { return rec.Snapshot().OwnerID }
    return 0
}
