package client

import (
    "context"
    "encoding/binary"
    "fmt"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/amirimatin/go-groupchat/pkg/codec"
)

const (
    anonymousBlacklistURL = "https://qqweb.qq.com/c/anonymoustalk/blacklist"
    portraitURL           = "http://htdata3.qq.com/cgi-bin/httpconn?htcmd=0x6ff0072&ver=5520&ukey=%s&range=0&uin=%d&seq=1&groupuin=%d&filetype=3&imagetype=5&userdata=0&subcmd=1&subver=101&clip=0_0_0_0&filesize=%d"
    webTimeout            = 5 * time.Second
)

// AtAllRemaining is the remaining @all quota.
type AtAllRemaining struct {
    CanAtAll        bool  `json:"can_at_all"`
    RemainForGroup  int64 `json:"remain_at_all_count_for_group"`
    RemainForMember int64 `json:"remain_at_all_count_for_uin"`
}

func (g *Group) setting(ctx context.Context, obj codec.Tree) (bool, error) {
    rsp, err := g.c.caller.Oidb(ctx, "OidbSvc.0x89a_0", codec.Tree{1: g.gid, 2: obj})
    if err != nil { return false, err }
    return rsp.Eq(3, 0), nil
}

func (g *Group) SetName(ctx context.Context, name string) (bool, error) {
    return g.setting(ctx, codec.Tree{3: name})
}

// MuteAll toggles the whole-group mute.
func (g *Group) MuteAll(ctx context.Context, yes bool) (bool, error) {
    v := int64(0)
    if yes { v = 0xffffffff }
    return g.setting(ctx, codec.Tree{17: v})
}

// Announce replaces the group announcement.
func (g *Group) Announce(ctx context.Context, content string) (bool, error) {
    return g.setting(ctx, codec.Tree{4: content})
}

func (g *Group) AllowAnonymous(ctx context.Context, yes bool) (bool, error) {
    buf := make([]byte, 5)
    binary.BigEndian.PutUint32(buf, uint32(g.gid))
    if yes { buf[4] = 1 }
    rsp, err := g.c.caller.Oidb(ctx, "OidbSvc.0x568_22", buf)
    if err != nil { return false, err }
    return rsp.Eq(3, 0), nil
}

// SetRemark sets the account's private remark for the group.
func (g *Group) SetRemark(ctx context.Context, remark string) error {
    _, err := g.c.caller.Oidb(ctx, "OidbSvc.0xf16_1", codec.Tree{
        1: codec.Tree{1: g.gid, 2: Code2Uin(g.gid), 3: remark},
    })
    return err
}

// GetAnonymousInfo returns the account's anonymous identity in the group.
func (g *Group) GetAnonymousInfo(ctx context.Context) (AnonymousInfo, error) {
    rsp, err := g.c.caller.Uni(ctx, "group_anonymous_generate_nick.group", codec.Tree{
        1: 1,
        10: codec.Tree{1: g.c.Uin(), 2: g.gid},
    }, 0)
    if err != nil { return AnonymousInfo{}, err }
    obj := rsp.Sub(11)
    if obj == nil { return AnonymousInfo{}, ErrBadResponse }
    var info AnonymousInfo
    info.Enable = !obj.Sub(10).Truthy(1)
    info.Name = obj.String(3)
    info.ID = obj.Int(5)
    info.ID2 = obj.Int(4)
    info.ExpireTime = obj.Int(6)
    info.Color = obj.String(15)
    return info, nil
}

func (g *Group) GetAtAllRemainingTimes(ctx context.Context) (AtAllRemaining, error) {
    rsp, err := g.c.caller.Oidb(ctx, "OidbSvc.0x8a7_0", codec.Tree{1: 1, 2: 2, 3: 1, 4: g.c.Uin(), 5: g.gid})
    if err != nil { return AtAllRemaining{}, err }
    r := rsp.Sub(4).Sub(2)
    if r == nil { return AtAllRemaining{}, ErrBadResponse }
    return AtAllRemaining{
        CanAtAll:        r.Truthy(1),
        RemainForGroup:  r.Int(2),
        RemainForMember: r.Int(3),
    }, nil
}

func (g *Group) lastSeq(ctx context.Context) (int64, error) {
    rsp, err := g.c.caller.Oidb(ctx, "OidbSvc.0x88d_0", codec.Tree{
        1: g.c.opts.Session.SubID(),
        2: codec.Tree{1: g.gid, 2: codec.Tree{22: 0}},
    })
    if err != nil { return 0, err }
    return rsp.Sub(4).Sub(1).Sub(3).Int(22), nil
}

// MarkRead marks messages up to seq as read. A zero seq means the latest.
func (g *Group) MarkRead(ctx context.Context, seq int64) error {
    if seq == 0 {
        var err error
        if seq, err = g.lastSeq(ctx); err != nil { return err }
    }
    _, err := g.c.caller.Uni(ctx, "PbMessageSvc.PbMsgReadedReport", codec.Tree{1: codec.Tree{1: g.gid, 2: seq}}, 0)
    return err
}

// Invite invites a friend into the group.
func (g *Group) Invite(ctx context.Context, uid int64) (bool, error) {
    rsp, err := g.c.caller.Oidb(ctx, "OidbSvc.oidb_0x758", codec.Tree{1: g.gid, 2: codec.Tree{1: uid}})
    if err != nil { return false, err }
    switch v := rsp[4].(type) {
    case []byte:
        return len(v) > 6, nil
    case codec.Tree:
        b, err := g.c.opts.Codec.Encode(v)
        if err != nil { return false, err }
        return len(b) > 6, nil
    }
    return false, nil
}

// Quit leaves the group, or dismisses it when the account is the owner.
func (g *Group) Quit(ctx context.Context) (bool, error) {
    c := g.c
    buf := make([]byte, 8)
    binary.BigEndian.PutUint32(buf, uint32(c.Uin()))
    binary.BigEndian.PutUint32(buf[4:], uint32(g.gid))
    rsp, err := c.caller.Legacy(ctx, "ProfileService.GroupMngReq", "KQQ.ProfileService.ProfileServantObj", "GroupMngReq", "GroupMngReq",
        codec.Struct{2, c.Uin(), buf}, 0)
    if err != nil { return false, err }
    return rsp.Eq(1, 0), nil
}

// MuteAnonymous mutes an anonymous sender. flag is "nick@id" as carried by
// anonymous messages.
func (g *Group) MuteAnonymous(ctx context.Context, flag string, seconds int64) (bool, error) {
    c := g.c
    if c.opts.Web == nil || c.opts.HTTP == nil { return false, ErrNoWebCredentials }
    nick, id, _ := strings.Cut(flag, "@")
    form := url.Values{
        "anony_id":   {id},
        "group_code": {strconv.FormatInt(g.gid, 10)},
        "seconds":    {strconv.FormatInt(seconds, 10)},
        "anony_nick": {nick},
        "bkn":        {strconv.FormatInt(c.opts.Web.Bkn(), 10)},
    }
    ctx, cancel := context.WithTimeout(ctx, webTimeout)
    defer cancel()
    rsp, err := c.opts.HTTP.PostForm(ctx, anonymousBlacklistURL, form, http.Header{"Cookie": {c.opts.Web.Cookie("qqweb.qq.com")}})
    if err != nil { return false, err }
    if rsp.Status != http.StatusOK { return false, nil }
    var out struct {
        Retcode *int `json:"retcode"`
    }
    if err := rsp.JSON(&out); err != nil { return false, fmt.Errorf("groupchat: mute anonymous: %w", err) }
    return out.Retcode != nil && *out.Retcode == 0, nil
}

// SetPortrait uploads img as the group avatar.
func (g *Group) SetPortrait(ctx context.Context, img []byte) error {
    c := g.c
    if c.opts.Web == nil || c.opts.HTTP == nil { return ErrNoWebCredentials }
    u := fmt.Sprintf(portraitURL, url.QueryEscape(c.opts.Web.SKey()), c.Uin(), g.gid, len(img))
    rsp, err := c.opts.HTTP.Post(ctx, u, "application/octet-stream", img, nil)
    if err != nil { return err }
    if rsp.Status/100 != 2 { return fmt.Errorf("groupchat: set portrait: status %d", rsp.Status) }
    return nil
}

// FetchFileDownloadURL resolves a file's download URL.
func (g *Group) FetchFileDownloadURL(ctx context.Context, fid string) (string, error) {
    d, err := g.fs.Download(ctx, fid)
    if err != nil { return "", err }
    return d.URL, nil
}
