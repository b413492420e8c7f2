package client

import (
    "context"
    "encoding/binary"

    "github.com/amirimatin/go-groupchat/pkg/cache"
    "github.com/amirimatin/go-groupchat/pkg/codec"
)

const (
    // DefaultMuteSeconds is the member mute duration used by the CLI.
    DefaultMuteSeconds = 1800
    // DefaultGroupMuteSeconds is the customary Group.MuteMember duration.
    DefaultGroupMuteSeconds = 600
    // MaxMuteSeconds caps a mute; out-of-range values are clamped to it.
    MaxMuteSeconds = 2592000
)

// SetAdmin grants or revokes admin. On success the cached role is updated
// and notice.group.admin is emitted by a detached task: scheduled, not
// completed, when SetAdmin returns.
func (m *GroupMember) SetAdmin(ctx context.Context, yes bool) (bool, error) {
    c := m.c
    buf := make([]byte, 9)
    binary.BigEndian.PutUint32(buf, uint32(m.gid))
    binary.BigEndian.PutUint32(buf[4:], uint32(m.uid))
    if yes { buf[8] = 1 }
    rsp, err := c.caller.Oidb(ctx, "OidbSvc.0x55c_1", buf)
    if err != nil { return false, err }
    if !rsp.Eq(3, 0) { return false, nil }
    c.detach("set-admin", func(context.Context) {
        rec := c.members.Member(m.gid, m.uid)
        if rec == nil { return }
        role := cache.Member
        if yes { role = cache.Admin }
        changed := false
        rec.Update(func(i *cache.MemberInfo) {
            if i.Role == "" || i.Role == cache.Owner || i.Role == role { return }
            i.Role = role
            changed = true
        })
        if !changed { return }
        c.members.Changed(m.gid, rec)
        c.emit(Event{Type: EventGroupAdmin, GroupID: m.gid, UserID: m.uid, Set: yes})
    })
    return true, nil
}

// SetSpecialTitle sets the member's title. A non-positive duration never
// expires.
func (m *GroupMember) SetSpecialTitle(ctx context.Context, title string, duration int64) (bool, error) {
    if duration <= 0 { duration = -1 }
    rsp, err := m.c.caller.Oidb(ctx, "OidbSvc.0x8fc_2", codec.Tree{
        1: m.gid,
        3: codec.Tree{1: m.uid, 7: title, 5: title, 6: duration},
    })
    if err != nil { return false, err }
    return rsp.Eq(3, 0), nil
}

// SetCard changes the member's group card.
func (m *GroupMember) SetCard(ctx context.Context, card string) (bool, error) {
    req := codec.Struct{0, m.gid, 0, []any{codec.Struct{m.uid, 31, card, 0, "", "", ""}}}
    rsp, err := m.c.caller.Legacy(ctx, "friendlist.ModifyGroupCardReq", friendListServant, "ModifyGroupCardReq", "MGCREQ", req, 0)
    if err != nil { return false, err }
    return len(rsp.List(3)) > 0, nil
}

// Kick removes the member, optionally blocking rejoin requests. On success a
// detached task drops the cached member and emits notice.group.decrease if
// it was cached.
func (m *GroupMember) Kick(ctx context.Context, block bool) (bool, error) {
    c := m.c
    flag := 0
    if block { flag = 1 }
    rsp, err := c.caller.Oidb(ctx, "OidbSvc.0x8a0_0", codec.Tree{
        1: m.gid,
        2: codec.Tree{1: 5, 2: m.uid, 3: flag},
    })
    if err != nil { return false, err }
    if !rsp.Sub(4).Sub(2).Eq(1, 0) { return false, nil }
    c.detach("kick", func(context.Context) {
        rec, ok := c.members.RemoveMember(m.gid, m.uid)
        if !ok { return }
        info := rec.Snapshot()
        c.emit(Event{
            Type:       EventGroupDecrease,
            GroupID:    m.gid,
            UserID:     m.uid,
            OperatorID: c.Uin(),
            Member:     &info,
        })
    })
    return true, nil
}

// Mute silences the member for seconds; 0 lifts the mute. Values below 0 or
// above MaxMuteSeconds become MaxMuteSeconds.
func (m *GroupMember) Mute(ctx context.Context, seconds int64) (bool, error) {
    if seconds > MaxMuteSeconds || seconds < 0 { seconds = MaxMuteSeconds }
    buf := make([]byte, 15)
    binary.BigEndian.PutUint32(buf, uint32(m.gid))
    buf[4] = 32
    binary.BigEndian.PutUint16(buf[5:], 1)
    binary.BigEndian.PutUint32(buf[7:], uint32(m.uid))
    binary.BigEndian.PutUint32(buf[11:], uint32(seconds))
    rsp, err := m.c.caller.Oidb(ctx, "OidbSvc.0x570_8", buf)
    if err != nil { return false, err }
    return rsp.Eq(3, 0), nil
}

// Poke nudges the member.
func (m *GroupMember) Poke(ctx context.Context) (bool, error) {
    rsp, err := m.c.caller.Oidb(ctx, "OidbSvc.0xed3", codec.Tree{1: m.uid, 2: m.gid})
    if err != nil { return false, err }
    return rsp.Eq(3, 0), nil
}

func (g *Group) SetAdmin(ctx context.Context, uid int64, yes bool) (bool, error) {
    return g.AcquireMember(uid).SetAdmin(ctx, yes)
}

func (g *Group) SetSpecialTitle(ctx context.Context, uid int64, title string, duration int64) (bool, error) {
    return g.AcquireMember(uid).SetSpecialTitle(ctx, title, duration)
}

func (g *Group) SetCard(ctx context.Context, uid int64, card string) (bool, error) {
    return g.AcquireMember(uid).SetCard(ctx, card)
}

func (g *Group) KickMember(ctx context.Context, uid int64, block bool) (bool, error) {
    return g.AcquireMember(uid).Kick(ctx, block)
}

func (g *Group) MuteMember(ctx context.Context, uid int64, seconds int64) (bool, error) {
    return g.AcquireMember(uid).Mute(ctx, seconds)
}

func (g *Group) PokeMember(ctx context.Context, uid int64) (bool, error) {
    return g.AcquireMember(uid).Poke(ctx)
}
