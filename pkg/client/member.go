package client

import (
    "context"
    "fmt"
    "sync"

    "github.com/amirimatin/go-groupchat/pkg/cache"
    "github.com/amirimatin/go-groupchat/pkg/codec"
    "github.com/amirimatin/go-groupchat/pkg/errcode"
)

// GroupMember is the handle of one member of a group. Obtain it with
// Client.Member or Group.AcquireMember.
type GroupMember struct {
    c        *Client
    gid, uid int64

    mu  sync.Mutex
    rec *cache.Record[cache.MemberInfo]
}

func newMember(c *Client, gid, uid int64, rec *cache.Record[cache.MemberInfo]) *GroupMember {
    return &GroupMember{c: c, gid: gid, uid: uid, rec: rec}
}

func (m *GroupMember) GroupID() int64 { return m.gid }
func (m *GroupMember) UserID() int64  { return m.uid }

// AcquireGroup returns the handle of the member's group.
func (m *GroupMember) AcquireGroup() *Group { return m.c.Group(m.gid) }

func (m *GroupMember) record() *cache.Record[cache.MemberInfo] {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.rec
}

func (m *GroupMember) setRecord(rec *cache.Record[cache.MemberInfo]) {
    m.mu.Lock()
    m.rec = rec
    m.mu.Unlock()
}

// Info returns the known profile without blocking. With member caching on,
// a missing or stale profile schedules a background refresh.
func (m *GroupMember) Info() (cache.MemberInfo, bool) {
    rec := m.record()
    var info cache.MemberInfo
    if rec != nil { info = rec.Snapshot() }
    if !m.c.opts.CacheGroupMember { return info, rec != nil }
    if rec == nil || m.c.stale(info.UpdateTime) {
        m.c.refresh("member", fmt.Sprintf("member-%d-%d", m.gid, m.uid), func(ctx context.Context) error {
            _, err := m.FetchInfo(ctx)
            return err
        })
    }
    return info, rec != nil
}

// FetchInfo fetches the member card and merges it into the cache.
func (m *GroupMember) FetchInfo(ctx context.Context) (cache.MemberInfo, error) {
    c := m.c
    if c.opts.CacheGroupMember && !c.members.Has(m.gid) {
        g := c.Group(m.gid)
        c.refresh("roster", c.rosterKey(m.gid), func(ctx context.Context) error {
            _, err := g.GetMemberList(ctx, false)
            return err
        })
    }
    rsp, err := c.caller.Uni(ctx, "group_member_card.get_group_member_card_info", codec.Tree{1: m.gid, 2: m.uid, 3: 1, 4: 1, 5: 1}, 0)
    if err != nil { return cache.MemberInfo{}, err }
    proto := rsp.Sub(3)
    if !proto.Truthy(27) {
        c.members.RemoveMember(m.gid, m.uid)
        return cache.MemberInfo{}, errcode.New(errcode.MemberNotExists)
    }
    cached := c.members.Member(m.gid, m.uid)
    var shutup int64
    if cached != nil { shutup = cached.Snapshot().ShutupTime }
    patch := cardPatch(c.opts.Codec, proto, c.now(), shutup)
    owner := c.ownerID(m.gid)

    rec := cached
    if rec == nil { rec = m.record() }
    if rec == nil { rec = cache.NewRecord(cache.MemberInfo{GroupID: m.gid, UserID: m.uid}) }
    rec.Update(func(i *cache.MemberInfo) {
        patch.Apply(i)
        if owner != 0 && i.UserID == owner { i.Role = cache.Owner }
    })
    m.setRecord(rec)
    key := memberKey{m.gid, m.uid}
    if roster := c.members.Get(m.gid); roster != nil {
        roster.Set(m.uid, rec)
        c.members.Changed(m.gid, rec)
        c.memberReg.Bind(key, rec, m)
    } else {
        c.memberReg.Keep(key, m)
    }
    return rec.Snapshot(), nil
}
