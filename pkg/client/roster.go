package client

import (
    "context"
    "maps"
    "time"

    "golang.org/x/sync/singleflight"

    "github.com/amirimatin/go-groupchat/pkg/cache"
    "github.com/amirimatin/go-groupchat/pkg/codec"
    "github.com/amirimatin/go-groupchat/pkg/observability/metrics"
    "github.com/amirimatin/go-groupchat/pkg/observability/tracing"
)

const (
    friendListServant = "mqq.IMService.FriendListServiceServantObj"
    rosterTimeout     = 10 * time.Second

    // rosterFetchTimeout bounds one shared roster fetch across all pages.
    rosterFetchTimeout = 6 * rosterTimeout
)

// GetMemberList returns the group roster. A fetch already in flight for the
// same account and group is shared; otherwise the cached roster is returned
// unless force is set, caching is off or nothing is cached. The shared fetch
// is detached from any one caller's ctx; a caller whose ctx ends stops
// waiting without cancelling it for the others. The result is a copy;
// mutating it does not touch the cache.
func (g *Group) GetMemberList(ctx context.Context, force bool) (map[int64]cache.MemberInfo, error) {
    c := g.c
    key := c.rosterKey(g.gid)
    if _, busy := c.rosterBusy.Load(key); !busy && !force && c.opts.CacheGroupMember {
        if r := c.members.Get(g.gid); r != nil { return r.Snapshot(), nil }
    }
    ch := c.rosterSF.DoChan(key, func() (any, error) {
        c.rosterBusy.Store(key, struct{}{})
        defer c.rosterBusy.Delete(key)
        fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rosterFetchTimeout)
        defer cancel()
        return g.fetchMemberList(fctx)
    })
    var res singleflight.Result
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case res = <-ch:
    }
    if res.Err != nil { return nil, res.Err }
    m := res.Val.(map[int64]cache.MemberInfo)
    if res.Shared {
        metrics.RosterShared.Inc()
        m = maps.Clone(m)
    }
    return m, nil
}

func (g *Group) fetchMemberList(ctx context.Context) (map[int64]cache.MemberInfo, error) {
    c := g.c
    metrics.RosterFetches.Inc()
    roster := c.members.Get(g.gid)
    if roster == nil { roster = cache.NewRoster() }
    uin := c.Uin()
    var next int64
    for {
        pctx, end := tracing.StartSpan(ctx, "roster.page")
        rsp, err := c.caller.Legacy(pctx, "friendlist.GetTroopMemberListReq", friendListServant, "GetTroopMemberListReq", "GTML",
            codec.Struct{uin, g.gid, next, Code2Uin(g.gid), 2, 0, 0, 0}, rosterTimeout)
        end()
        if err != nil { return nil, err }
        metrics.RosterPages.Inc()
        now, owner := c.now(), c.ownerID(g.gid)
        for _, v := range rsp.Subs(3) {
            uid := v.Int(0)
            roster.Merge(g.gid, uid, rosterPatch(v, now), owner)
        }
        next = rsp.Int(4)
        if next == 0 { break }
    }
    if roster.Len() == 0 || !c.opts.CacheGroupMember {
        c.members.Delete(g.gid)
    } else {
        c.members.Put(g.gid, roster)
    }
    return roster.Snapshot(), nil
}
