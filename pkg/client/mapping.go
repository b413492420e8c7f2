package client

import (
    "strings"

    "github.com/amirimatin/go-groupchat/pkg/cache"
    "github.com/amirimatin/go-groupchat/pkg/codec"
)

// groupInfoRequest selects the group profile fields returned by 0x88d.
var groupInfoRequest = codec.Tree{
    1: 0, 2: 0, 5: 0, 6: 0, 15: "", 29: 0, 36: 0, 37: 0,
    45: 0, 46: 0, 49: 0, 54: 0, 89: "",
}

// pbContent is the fixed content header of a send.
func pbContent() codec.Tree { return codec.Tree{1: 1, 2: 0, 3: 0} }

func int64At(t codec.Tree, tag int) *int64 {
    v, ok := t.Lookup(tag)
    if !ok { return nil }
    return &v
}

func intAt(t codec.Tree, tag int) *int {
    v, ok := t.Lookup(tag)
    if !ok { return nil }
    n := int(v)
    return &n
}

func stringAt(t codec.Tree, tag int) *string {
    if !t.Has(tag) { return nil }
    return cache.Some(t.String(tag))
}

func groupPatch(p codec.Tree, now int64) cache.GroupPatch {
    g := cache.GroupPatch{
        MemberCount:       intAt(p, 6),
        MaxMemberCount:    intAt(p, 5),
        OwnerID:           int64At(p, 1),
        LastJoinTime:      int64At(p, 49),
        LastSentTime:      int64At(p, 54),
        CreateTime:        int64At(p, 2),
        Grade:             intAt(p, 36),
        MaxAdminCount:     intAt(p, 29),
        ActiveMemberCount: intAt(p, 37),
        UpdateTime:        cache.Some(now),
    }
    if p.Truthy(89) {
        g.Name = cache.Some(p.String(89))
    } else {
        g.Name = stringAt(p, 15)
    }
    whole := int64(0)
    if p.Truthy(45) { whole = 0xffffffff }
    g.ShutupTimeWhole = &whole
    me := p.Int(46)
    if me <= now { me = 0 }
    g.ShutupTimeMe = &me
    return g
}

// cardPatch maps a member card response.
func cardPatch(c codec.Codec, p codec.Tree, now, shutup int64) cache.MemberPatch {
    m := cache.MemberPatch{
        Nickname:     stringAt(p, 11),
        Age:          intAt(p, 12),
        Area:         stringAt(p, 10),
        JoinTime:     int64At(p, 14),
        LastSentTime: int64At(p, 15),
        Level:        intAt(p, 39),
        Rank:         stringAt(p, 13),
        Title:        stringAt(p, 31),
        ShutupTime:   cache.Some(shutup),
        UpdateTime:   cache.Some(now),
    }
    if p.Has(8) { m.Card = cache.Some(funString(c, p[8])) }
    if v, ok := p.Lookup(9); ok {
        switch v {
        case 0:
            m.Sex = cache.Some(cache.Male)
        case 1:
            m.Sex = cache.Some(cache.Female)
        default:
            m.Sex = cache.Some(cache.UnknownSex)
        }
    }
    switch p.Int(27) {
    case 3:
        m.Role = cache.Some(cache.Owner)
    case 2:
        m.Role = cache.Some(cache.Admin)
    default:
        m.Role = cache.Some(cache.Member)
    }
    if v, ok := p.Lookup(32); ok {
        m.TitleExpireTime = &v
    } else {
        m.TitleExpireTime = cache.Some(int64(0xffffffff))
    }
    return m
}

// rosterPatch maps one legacy roster entry. Roster entries carry no fresh
// profile, so UpdateTime is reset to keep member accessors refreshing.
func rosterPatch(v codec.Tree, now int64) cache.MemberPatch {
    m := cache.MemberPatch{
        Nickname:     cache.Some(v.String(4)),
        Card:         cache.Some(v.String(8)),
        Age:          cache.Some(int(v.Int(2))),
        JoinTime:     int64At(v, 15),
        LastSentTime: int64At(v, 16),
        Level:        intAt(v, 14),
        Title:        stringAt(v, 23),
        UpdateTime:   cache.Some(int64(0)),
    }
    switch {
    case !v.Truthy(3):
        m.Sex = cache.Some(cache.Male)
    case v.Int(3) == -1:
        m.Sex = cache.Some(cache.UnknownSex)
    default:
        m.Sex = cache.Some(cache.Female)
    }
    if v.Int(18)%2 == 1 {
        m.Role = cache.Some(cache.Admin)
    } else {
        m.Role = cache.Some(cache.Member)
    }
    if e, ok := v.Lookup(24); ok { m.TitleExpireTime = cache.Some(e & 0xffffffff) }
    shutup := v.Int(30)
    if shutup <= now { shutup = 0 }
    m.ShutupTime = &shutup
    return m
}

// funString flattens a rich card value: a tree of text segments at tag 1 is
// concatenated, anything else is read as a plain string.
func funString(c codec.Codec, v any) string {
    t := codec.AsTree(v)
    if t == nil {
        b, ok := v.([]byte)
        if !ok {
            s, _ := v.(string)
            return s
        }
        if len(b) == 0 { return "" }
        dec, err := c.Decode(b)
        if err != nil || !dec.Has(1) { return string(b) }
        t = dec
    }
    var sb strings.Builder
    for _, seg := range t.Subs(1) {
        if seg.Truthy(2) { sb.WriteString(seg.String(2)) }
    }
    return sb.String()
}
