package client

import (
    "context"
    "encoding/binary"
    "errors"
    "strings"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/amirimatin/go-groupchat/pkg/cache"
    "github.com/amirimatin/go-groupchat/pkg/codec"
    "github.com/amirimatin/go-groupchat/pkg/codec/cbor"
    "github.com/amirimatin/go-groupchat/pkg/errcode"
    "github.com/amirimatin/go-groupchat/pkg/message"
    "github.com/amirimatin/go-groupchat/pkg/transport/loopback"
)

const (
    selfUin = 10001
    gid     = 284840486
    owner   = 20002
)

var cb = cbor.MustNew()

type backend struct {
    t *testing.T
    s *loopback.Session
}

func newClient(t *testing.T, mutate ...func(*Options)) (*Client, *backend) {
    t.Helper()
    s := loopback.New(selfUin)
    opts := DefaultOptions()
    opts.Session = s
    opts.Codec = cb
    opts.StructCodec = cb
    for _, fn := range mutate { fn(&opts) }
    c, err := New(context.Background(), opts)
    if err != nil { t.Fatalf("new client: %v", err) }
    t.Cleanup(func() { _ = c.Close() })
    return c, &backend{t: t, s: s}
}

// oidb serves cmd with fn: fn gets the envelope and the decoded service body
// (nil for raw buffers) and returns the service payload.
func (b *backend) oidb(cmd string, fn func(env, req codec.Tree) codec.Tree) {
    b.s.Handle(cmd, func(_ context.Context, _ string, raw []byte) ([]byte, error) {
        env, err := cb.Decode(raw)
        if err != nil { return nil, err }
        req, _ := cb.Decode(env.Bytes(4))
        out := fn(env, req)
        if out.Has(3) && !out.Has(4) { return cb.Encode(out) }
        inner, err := cb.Encode(out)
        if err != nil { return nil, err }
        return cb.Encode(codec.Tree{3: 0, 4: inner})
    })
}

// status answers cmd with a bare envelope.
func (b *backend) status(cmd string, rsp codec.Tree, got *[]byte) {
    b.s.Handle(cmd, func(_ context.Context, _ string, raw []byte) ([]byte, error) {
        env, err := cb.Decode(raw)
        if err != nil { return nil, err }
        if got != nil { *got = env.Bytes(4) }
        return cb.Encode(rsp)
    })
}

func (b *backend) uni(cmd string, fn func(req codec.Tree) codec.Tree) {
    b.s.Handle(cmd, func(_ context.Context, _ string, raw []byte) ([]byte, error) {
        req, err := cb.Decode(raw)
        if err != nil { return nil, err }
        return cb.Encode(fn(req))
    })
}

func (b *backend) legacy(cmd string, fn func(req codec.Tree) codec.Struct) {
    b.s.Handle(cmd, func(_ context.Context, _ string, raw []byte) ([]byte, error) {
        servant, method, name, err := cb.WrapperName(raw)
        if err != nil { return nil, err }
        req, err := cb.DecodeWrapper(raw)
        if err != nil { return nil, err }
        body, err := cb.EncodeStruct(fn(req))
        if err != nil { return nil, err }
        return cb.EncodeWrapper(servant, method, name, body)
    })
}

func (b *backend) groupInfo(proto codec.Tree) {
    b.oidb("OidbSvc.0x88d_0", func(_, req codec.Tree) codec.Tree {
        if req.Sub(2).Int(1) != gid { b.t.Errorf("gid = %d", req.Sub(2).Int(1)) }
        return codec.Tree{1: codec.Tree{3: proto}}
    })
}

func (b *backend) roster(pages ...[]codec.Struct) *atomic.Int32 {
    var calls atomic.Int32
    b.legacy("friendlist.GetTroopMemberListReq", func(req codec.Tree) codec.Struct {
        i := int(calls.Add(1)) - 1
        next := int64(0)
        if i+1 < len(pages) { next = int64(i + 1) }
        if int64(i) != req.Int(2) { b.t.Errorf("page %d requested with next=%d", i, req.Int(2)) }
        list := make([]any, 0, len(pages[i]))
        for _, m := range pages[i] { list = append(list, m) }
        return codec.Struct{nil, nil, nil, list, next}
    })
    return &calls
}

func entry(uid int64, nick string, flag int) codec.Struct {
    return codec.Struct{uid, nil, 20, 1, nick, nil, nil, nil, "card-" + nick, nil, nil, nil, nil, nil, 3, 1600000000, nil, nil, flag}
}

func TestOptionsValidate(t *testing.T) {
    if err := (Options{}).Validate(); !errors.Is(err, ErrNilSession) { t.Fatalf("got %v", err) }
    o := DefaultOptions()
    o.Session = loopback.New(1)
    if err := o.Validate(); !errors.Is(err, ErrNilCodec) { t.Fatalf("got %v", err) }
    o.Codec, o.StructCodec = cb, cb
    if err := o.Validate(); err != nil { t.Fatalf("valid options: %v", err) }
}

func TestGroupFetchInfo(t *testing.T) {
    c, b := newClient(t)
    now := time.Now().Unix()
    b.groupInfo(codec.Tree{1: owner, 2: 1500000000, 5: 500, 6: 42, 15: "old", 89: "new name", 45: 1, 46: now + 3600})

    g := c.Group(gid)
    info, err := g.FetchInfo(context.Background())
    if err != nil { t.Fatalf("fetch: %v", err) }
    if info.Name != "new name" || info.MemberCount != 42 || info.MaxMemberCount != 500 || info.OwnerID != owner { t.Fatalf("unexpected %+v", info) }
    if info.ShutupTimeWhole != 0xffffffff || info.ShutupTimeMe != now+3600 { t.Fatalf("shutup %+v", info) }
    if info.UpdateTime == 0 { t.Fatalf("update time not stamped") }
    if c.Group(gid) != g { t.Fatalf("cached group returned a new handle") }
}

func TestGroupFetchInfoKeepsPreviousFields(t *testing.T) {
    c, b := newClient(t)
    b.groupInfo(codec.Tree{1: owner, 6: 42, 15: "name"})
    g := c.Group(gid)
    if _, err := g.FetchInfo(context.Background()); err != nil { t.Fatalf("fetch: %v", err) }
    b.groupInfo(codec.Tree{6: 43})
    info, err := g.FetchInfo(context.Background())
    if err != nil { t.Fatalf("refetch: %v", err) }
    if info.MemberCount != 43 || info.Name != "name" || info.OwnerID != owner { t.Fatalf("merge lost fields %+v", info) }
}

func TestGroupNotJoined(t *testing.T) {
    c, b := newClient(t)
    b.oidb("OidbSvc.0x88d_0", func(_, _ codec.Tree) codec.Tree { return codec.Tree{1: codec.Tree{}} })
    _, err := c.Group(gid).FetchInfo(context.Background())
    if !errors.Is(err, errcode.New(errcode.GroupNotJoined)) { t.Fatalf("got %v", err) }
    if !errcode.IsNotFound(err) { t.Fatalf("not classified as not found") }
}

func TestGroupInfoRefreshesInBackground(t *testing.T) {
    c, b := newClient(t)
    b.groupInfo(codec.Tree{1: owner, 15: "bg"})
    g := c.Group(gid)
    if _, ok := g.Info(); ok { t.Fatalf("info should be unknown before any fetch") }
    deadline := time.Now().Add(2 * time.Second)
    for {
        if info, ok := g.Info(); ok {
            if info.Name != "bg" { t.Fatalf("name = %q", info.Name) }
            break
        }
        if time.Now().After(deadline) { t.Fatalf("background refresh never landed") }
        time.Sleep(5 * time.Millisecond)
    }
}

func TestMemberFetchInfoDerivesOwner(t *testing.T) {
    c, b := newClient(t, func(o *Options) { o.CacheGroupMember = false })
    b.groupInfo(codec.Tree{1: owner})
    if _, err := c.Group(gid).FetchInfo(context.Background()); err != nil { t.Fatalf("group: %v", err) }
    b.uni("group_member_card.get_group_member_card_info", func(req codec.Tree) codec.Tree {
        return codec.Tree{3: codec.Tree{8: "card", 9: 1, 11: "nick", 12: 30, 27: 1, 31: "title"}}
    })
    info, err := c.Member(gid, owner).FetchInfo(context.Background())
    if err != nil { t.Fatalf("fetch: %v", err) }
    if info.Role != cache.Owner || info.Sex != cache.Female || info.Card != "card" || info.TitleExpireTime != 0xffffffff { t.Fatalf("unexpected %+v", info) }
}

func TestMemberHandleKeptWithoutRoster(t *testing.T) {
    c, b := newClient(t, func(o *Options) { o.CacheGroupMember = false })
    b.uni("group_member_card.get_group_member_card_info", func(codec.Tree) codec.Tree {
        return codec.Tree{3: codec.Tree{8: "card", 11: "nick", 27: 1}}
    })
    m := c.Member(gid, 30003)
    if _, err := m.FetchInfo(context.Background()); err != nil { t.Fatalf("fetch: %v", err) }
    again := c.Member(gid, 30003)
    if again != m { t.Fatalf("fetched handle replaced while still held") }
    if info, ok := again.Info(); !ok || info.Nickname != "nick" { t.Fatalf("info %+v ok=%v", info, ok) }
}

func TestMemberNotExists(t *testing.T) {
    c, b := newClient(t, func(o *Options) { o.CacheGroupMember = false })
    b.uni("group_member_card.get_group_member_card_info", func(codec.Tree) codec.Tree { return codec.Tree{3: codec.Tree{27: 0}} })
    _, err := c.Member(gid, 30003).FetchInfo(context.Background())
    if !errors.Is(err, errcode.New(errcode.MemberNotExists)) { t.Fatalf("got %v", err) }
}

func TestFunStringCard(t *testing.T) {
    rich := codec.Tree{1: []any{codec.Tree{1: 0, 2: "he"}, codec.Tree{1: 0, 2: "llo"}}}
    b, err := cb.Encode(rich)
    if err != nil { t.Fatalf("encode: %v", err) }
    if got := funString(cb, b); got != "hello" { t.Fatalf("got %q", got) }
    if got := funString(cb, "plain"); got != "plain" { t.Fatalf("got %q", got) }
}

func TestGetMemberListPagesAndCaches(t *testing.T) {
    c, b := newClient(t)
    b.groupInfo(codec.Tree{1: owner})
    if _, err := c.Group(gid).FetchInfo(context.Background()); err != nil { t.Fatalf("group: %v", err) }
    calls := b.roster(
        []codec.Struct{entry(owner, "boss", 0), entry(30003, "a", 1)},
        []codec.Struct{entry(30004, "b", 0)},
    )
    g := c.Group(gid)
    list, err := g.GetMemberList(context.Background(), false)
    if err != nil { t.Fatalf("list: %v", err) }
    if len(list) != 3 || calls.Load() != 2 { t.Fatalf("members=%d pages=%d", len(list), calls.Load()) }
    if list[owner].Role != cache.Owner || list[30003].Role != cache.Admin || list[30004].Role != cache.Member { t.Fatalf("roles %+v", list) }
    if list[30003].Card != "card-a" || list[30003].Sex != cache.Female || list[30003].UpdateTime != 0 { t.Fatalf("entry %+v", list[30003]) }

    list[30003] = cache.MemberInfo{}
    again, err := g.GetMemberList(context.Background(), false)
    if err != nil { t.Fatalf("cached list: %v", err) }
    if calls.Load() != 2 { t.Fatalf("cached roster refetched") }
    if again[30003].Nickname != "a" { t.Fatalf("snapshot aliased cache") }
}

func TestGetMemberListSharesInFlightFetch(t *testing.T) {
    c, b := newClient(t)
    release := make(chan struct{})
    started := make(chan struct{}, 1)
    var calls atomic.Int32
    b.legacy("friendlist.GetTroopMemberListReq", func(codec.Tree) codec.Struct {
        calls.Add(1)
        started <- struct{}{}
        <-release
        return codec.Struct{nil, nil, nil, []any{entry(30003, "a", 0)}, 0}
    })
    g := c.Group(gid)
    var wg sync.WaitGroup
    results := make([]map[int64]cache.MemberInfo, 2)
    wg.Add(1)
    go func() { defer wg.Done(); results[0], _ = g.GetMemberList(context.Background(), true) }()
    <-started
    wg.Add(1)
    go func() { defer wg.Done(); results[1], _ = g.GetMemberList(context.Background(), false) }()
    time.Sleep(50 * time.Millisecond)
    close(release)
    wg.Wait()
    if calls.Load() != 1 { t.Fatalf("pages fetched = %d, want 1", calls.Load()) }
    if len(results[0]) != 1 || len(results[1]) != 1 { t.Fatalf("results %v", results) }
}

func TestGetMemberListOutlivesCancelledCaller(t *testing.T) {
    c, b := newClient(t)
    release := make(chan struct{})
    started := make(chan struct{}, 2)
    var calls atomic.Int32
    b.s.Handle("friendlist.GetTroopMemberListReq", func(ctx context.Context, _ string, raw []byte) ([]byte, error) {
        calls.Add(1)
        started <- struct{}{}
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-release:
        }
        servant, method, name, err := cb.WrapperName(raw)
        if err != nil { return nil, err }
        body, err := cb.EncodeStruct(codec.Struct{nil, nil, nil, []any{entry(30003, "a", 0)}, 0})
        if err != nil { return nil, err }
        return cb.EncodeWrapper(servant, method, name, body)
    })
    g := c.Group(gid)
    first, cancel := context.WithCancel(context.Background())
    firstErr := make(chan error, 1)
    go func() { _, err := g.GetMemberList(first, true); firstErr <- err }()
    <-started

    type result struct {
        list map[int64]cache.MemberInfo
        err  error
    }
    second := make(chan result, 1)
    go func() {
        list, err := g.GetMemberList(context.Background(), false)
        second <- result{list, err}
    }()
    time.Sleep(50 * time.Millisecond)
    cancel()
    if err := <-firstErr; !errors.Is(err, context.Canceled) { t.Fatalf("cancelled caller got %v", err) }
    close(release)

    select {
    case r := <-second:
        if r.err != nil { t.Fatalf("live caller failed: %v", r.err) }
        if len(r.list) != 1 { t.Fatalf("members = %d", len(r.list)) }
    case <-time.After(2 * time.Second):
        t.Fatalf("live caller never returned")
    }
    if calls.Load() != 1 { t.Fatalf("pages fetched = %d, want 1", calls.Load()) }
    if !c.members.Has(gid) { t.Fatalf("roster not cached after shared fetch") }
}

func TestGetMemberListWithoutCaching(t *testing.T) {
    c, b := newClient(t, func(o *Options) { o.CacheGroupMember = false })
    calls := b.roster([]codec.Struct{entry(30003, "a", 0)})
    g := c.Group(gid)
    for i := 0; i < 2; i++ {
        if _, err := g.GetMemberList(context.Background(), false); err != nil { t.Fatalf("list: %v", err) }
    }
    if calls.Load() != 2 { t.Fatalf("uncached fetches = %d", calls.Load()) }
    if c.members.Has(gid) { t.Fatalf("roster cached with caching off") }
}

// confirmSends answers sends and pushes the confirmation for each one.
func (b *backend) confirmSends(seq uint32) {
    b.s.Handle("MessageSvc.PbSendMsg", func(_ context.Context, _ string, raw []byte) ([]byte, error) {
        req, err := cb.Decode(raw)
        if err != nil { return nil, err }
        rnd := req.Uint32(5)
        g := req.Sub(1).Sub(2).Int(1)
        id := message.FormatGroupID(message.ID{GroupID: uint32(g), UserID: selfUin, Seq: seq, Rand: rnd, Time: 1700000000, PktNum: 1})
        b.s.Push(message.PushKey(g, rnd), []byte(id))
        return cb.Encode(codec.Tree{1: 0})
    })
}

func TestSendMessageConfirmed(t *testing.T) {
    c, b := newClient(t)
    b.confirmSends(77)
    ret, err := c.Group(gid).SendMessage(context.Background(), "hello")
    if err != nil { t.Fatalf("send: %v", err) }
    if ret.Seq != 77 || ret.Time != 1700000000 || ret.PktNum != 1 || ret.MessageID == "" { t.Fatalf("ret %+v", ret) }
    req, _ := cb.Decode(b.s.Calls("MessageSvc.PbSendMsg")[0].Body)
    if req.Uint32(5) != ret.Rand || !req.Sub(2).Eq(1, 1) { t.Fatalf("request %v", req) }
}

func TestSendMessageServerFailure(t *testing.T) {
    c, b := newClient(t)
    b.uni("MessageSvc.PbSendMsg", func(codec.Tree) codec.Tree { return codec.Tree{1: 120, 2: "muted"} })
    _, err := c.Group(gid).SendMessage(context.Background(), "hi")
    if errcode.CodeOf(err) != 120 { t.Fatalf("got %v", err) }
}

func TestSendMessageUnconfirmed(t *testing.T) {
    c, b := newClient(t, func(o *Options) { o.SendTimeouts.Short = 20 * time.Millisecond })
    var key string
    b.uni("MessageSvc.PbSendMsg", func(req codec.Tree) codec.Tree {
        key = message.PushKey(gid, req.Uint32(5))
        return codec.Tree{1: 0}
    })
    _, err := c.Group(gid).SendMessage(context.Background(), "hi")
    if !errors.Is(err, errcode.New(errcode.RiskMessageFailure)) { t.Fatalf("got %v", err) }
    if n := b.s.Pending(key); n != 0 { t.Fatalf("waiter leaked: %d", n) }
}

func TestSendMessageFallsBackToFragments(t *testing.T) {
    c, b := newClient(t, func(o *Options) {
        o.Resend = true
        o.SendTimeouts.Resend = 20 * time.Millisecond
    })
    var frags atomic.Int32
    var divs sync.Map
    b.s.Handle("MessageSvc.PbSendMsg", func(_ context.Context, _ string, raw []byte) ([]byte, error) {
        req, err := cb.Decode(raw)
        if err != nil { return nil, err }
        head := req.Sub(2)
        if head.Int(1) < 2 { return cb.Encode(codec.Tree{1: 0}) }
        frags.Add(1)
        divs.Store(head.Int(3), true)
        if head.Int(2) == head.Int(1)-1 {
            rnd := req.Uint32(5)
            id := message.FormatGroupID(message.ID{GroupID: gid, UserID: selfUin, Seq: 9, Rand: rnd, Time: 1, PktNum: 2})
            b.s.Push(message.PushKey(gid, rnd), []byte(id))
        }
        return nil, nil
    })
    ret, err := c.Group(gid).SendMessage(context.Background(), strings.Repeat("x", 100))
    if err != nil { t.Fatalf("send: %v", err) }
    if frags.Load() != 2 || ret.PktNum != 2 { t.Fatalf("fragments=%d ret=%+v", frags.Load(), ret) }
    n := 0
    divs.Range(func(any, any) bool { n++; return true })
    if n != 1 { t.Fatalf("fragments used %d divs", n) }
}

func TestSendFragmentsUnconfirmed(t *testing.T) {
    c, b := newClient(t, func(o *Options) {
        o.Resend = true
        o.SendTimeouts.Resend = 20 * time.Millisecond
        o.SendTimeouts.Fragments = 20 * time.Millisecond
    })
    var mu sync.Mutex
    var keys []string
    var frags atomic.Int32
    b.s.Handle("MessageSvc.PbSendMsg", func(_ context.Context, _ string, raw []byte) ([]byte, error) {
        req, err := cb.Decode(raw)
        if err != nil { return nil, err }
        mu.Lock()
        keys = append(keys, message.PushKey(gid, req.Uint32(5)))
        mu.Unlock()
        if req.Sub(2).Int(1) < 2 { return cb.Encode(codec.Tree{1: 0}) }
        frags.Add(1)
        return nil, nil
    })
    _, err := c.Group(gid).SendMessage(context.Background(), strings.Repeat("x", 100))
    if !errors.Is(err, errcode.New(errcode.SensitiveWordsFailure)) { t.Fatalf("got %v", err) }
    if frags.Load() != 2 { t.Fatalf("fragments sent = %d", frags.Load()) }
    mu.Lock()
    defer mu.Unlock()
    for _, k := range keys {
        if n := b.s.Pending(k); n != 0 { t.Fatalf("waiter leaked on %s: %d", k, n) }
    }
}

func TestSendAnonymousFetchesIdentity(t *testing.T) {
    c, b := newClient(t)
    b.uni("group_anonymous_generate_nick.group", func(codec.Tree) codec.Tree {
        return codec.Tree{11: codec.Tree{3: "ghost", 4: 8, 5: 9, 6: 1800000000, 10: codec.Tree{1: 0}, 15: "red"}}
    })
    b.confirmSends(5)
    if _, err := c.Group(gid).SendAnonymous(context.Background(), "boo", nil); err != nil { t.Fatalf("send: %v", err) }
    req, _ := cb.Decode(b.s.Calls("MessageSvc.PbSendMsg")[0].Body)
    elems := req.Sub(3).Sub(1).Subs(2)
    if len(elems) != 2 || elems[0].Sub(21).String(3) != "ghost" { t.Fatalf("elems %v", elems) }
}

func TestDiscussSend(t *testing.T) {
    c, b := newClient(t)
    b.uni("MessageSvc.PbSendMsg", func(req codec.Tree) codec.Tree {
        if req.Sub(1).Sub(4).Int(1) != 555 { t.Errorf("routing %v", req[1]) }
        return codec.Tree{1: 0}
    })
    ret, err := c.Discuss(555).SendMessage(context.Background(), "hi")
    if err != nil || ret != (message.Ret{}) { t.Fatalf("ret=%+v err=%v", ret, err) }
}

func TestRecallMultiPacket(t *testing.T) {
    c, b := newClient(t)
    var body []byte
    b.status("PbMessageSvc.PbMsgWithDraw", codec.Tree{2: codec.Tree{1: 0}}, &body)
    ok, err := c.Group(gid).RecallMessage(context.Background(), message.Ref{Seq: 10, Rand: 99, PktNum: 3})
    if err != nil || !ok { t.Fatalf("ok=%v err=%v", ok, err) }
    req, _ := cb.Decode(body)
    inner := req.Sub(2)
    msgs := inner.Subs(4)
    parts := inner.Sub(5).Subs(2)
    if len(msgs) != 3 || len(parts) != 3 || msgs[2].Int(1) != 12 || parts[2].Int(4) != 2 || !inner.Sub(5).Eq(1, 1) { t.Fatalf("body %v", inner) }
}

func TestRecallRejected(t *testing.T) {
    c, b := newClient(t)
    b.status("PbMessageSvc.PbMsgWithDraw", codec.Tree{2: codec.Tree{1: 1001}}, nil)
    id := message.FormatGroupID(message.ID{GroupID: gid, Seq: 1, Rand: 2})
    ok, err := c.Group(gid).RecallMessageID(context.Background(), id)
    if err != nil || ok { t.Fatalf("ok=%v err=%v", ok, err) }
}

func TestMuteClampsDuration(t *testing.T) {
    c, b := newClient(t)
    var body []byte
    b.status("OidbSvc.0x570_8", codec.Tree{3: 0}, &body)
    for _, tc := range []struct{ in, want int64 }{{-1, MaxMuteSeconds}, {MaxMuteSeconds + 1, MaxMuteSeconds}, {0, 0}, {60, 60}} {
        ok, err := c.Member(gid, 30003).Mute(context.Background(), tc.in)
        if err != nil || !ok { t.Fatalf("mute(%d): ok=%v err=%v", tc.in, ok, err) }
        if len(body) != 15 || body[4] != 32 { t.Fatalf("buffer %x", body) }
        if got := int64(binary.BigEndian.Uint32(body[11:])); got != tc.want { t.Fatalf("mute(%d) sent %d", tc.in, got) }
        if binary.BigEndian.Uint32(body[7:]) != 30003 { t.Fatalf("uid %x", body) }
    }
}

func seedRoster(t *testing.T, c *Client, b *backend) {
    t.Helper()
    b.roster([]codec.Struct{entry(30003, "a", 0)})
    if _, err := c.Group(gid).GetMemberList(context.Background(), false); err != nil { t.Fatalf("roster: %v", err) }
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
    t.Helper()
    select {
    case ev := <-ch:
        return ev
    case <-time.After(2 * time.Second):
        t.Fatalf("no event")
    }
    return Event{}
}

func TestMemberHandleFollowsCachedRecord(t *testing.T) {
    c, b := newClient(t)
    seedRoster(t, c, b)
    m := c.Member(gid, 30003)
    if c.Member(gid, 30003) != m || c.Group(gid).AcquireMember(30003) != m { t.Fatalf("cached member returned new handles") }
    g := c.Group(gid)
    if m.AcquireGroup() != g { t.Fatalf("group handle not reused") }
}

func TestKickEmitsDecrease(t *testing.T) {
    c, b := newClient(t)
    seedRoster(t, c, b)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    events := c.Subscribe(ctx)
    b.oidb("OidbSvc.0x8a0_0", func(_, req codec.Tree) codec.Tree {
        if !req.Sub(2).Eq(3, 1) { t.Errorf("block flag missing %v", req) }
        return codec.Tree{2: codec.Tree{1: 0}}
    })
    ok, err := c.Group(gid).KickMember(context.Background(), 30003, true)
    if err != nil || !ok { t.Fatalf("ok=%v err=%v", ok, err) }
    ev := nextEvent(t, events)
    if ev.Type != EventGroupDecrease || ev.UserID != 30003 || ev.OperatorID != selfUin || ev.Member == nil || ev.Member.Nickname != "a" { t.Fatalf("event %+v", ev) }
    if c.members.Member(gid, 30003) != nil { t.Fatalf("member still cached") }
}

func TestSetAdminEmitsEvent(t *testing.T) {
    c, b := newClient(t)
    seedRoster(t, c, b)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    events := c.Subscribe(ctx)
    var body []byte
    b.status("OidbSvc.0x55c_1", codec.Tree{3: 0}, &body)
    ok, err := c.Member(gid, 30003).SetAdmin(context.Background(), true)
    if err != nil || !ok { t.Fatalf("ok=%v err=%v", ok, err) }
    if len(body) != 9 || body[8] != 1 { t.Fatalf("buffer %x", body) }
    ev := nextEvent(t, events)
    if ev.Type != EventGroupAdmin || !ev.Set || ev.UserID != 30003 { t.Fatalf("event %+v", ev) }
    if role := c.members.Member(gid, 30003).Snapshot().Role; role != cache.Admin { t.Fatalf("role = %s", role) }
}

func TestSettingsAndExtras(t *testing.T) {
    c, b := newClient(t)
    var names []string
    b.oidb("OidbSvc.0x89a_0", func(_, req codec.Tree) codec.Tree {
        names = append(names, req.Sub(2).String(3))
        return codec.Tree{3: 0}
    })
    g := c.Group(gid)
    if ok, err := g.SetName(context.Background(), "renamed"); err != nil || !ok { t.Fatalf("set name: %v %v", ok, err) }
    if len(names) != 1 || names[0] != "renamed" { t.Fatalf("names %v", names) }

    b.oidb("OidbSvc.0x8a7_0", func(_, _ codec.Tree) codec.Tree { return codec.Tree{2: codec.Tree{1: 1, 2: 9, 3: 2}} })
    at, err := g.GetAtAllRemainingTimes(context.Background())
    if err != nil || !at.CanAtAll || at.RemainForGroup != 9 || at.RemainForMember != 2 { t.Fatalf("at all %+v %v", at, err) }

    b.legacy("ProfileService.GroupMngReq", func(req codec.Tree) codec.Struct {
        buf := req.Bytes(2)
        if len(buf) != 8 || binary.BigEndian.Uint32(buf[4:]) != gid { t.Errorf("quit buffer %x", buf) }
        return codec.Struct{nil, 0}
    })
    if ok, err := g.Quit(context.Background()); err != nil || !ok { t.Fatalf("quit: %v %v", ok, err) }
}

func TestMarkReadFetchesLastSeq(t *testing.T) {
    c, b := newClient(t)
    b.oidb("OidbSvc.0x88d_0", func(_, _ codec.Tree) codec.Tree { return codec.Tree{1: codec.Tree{3: codec.Tree{22: 4321}}} })
    var seq int64
    b.uni("PbMessageSvc.PbMsgReadedReport", func(req codec.Tree) codec.Tree { seq = req.Sub(1).Int(2); return codec.Tree{} })
    if err := c.Group(gid).MarkRead(context.Background(), 0); err != nil { t.Fatalf("mark read: %v", err) }
    if seq != 4321 { t.Fatalf("seq = %d", seq) }
}

func TestWebActionsNeedCredentials(t *testing.T) {
    c, _ := newClient(t)
    if _, err := c.Group(gid).MuteAnonymous(context.Background(), "nick@1", 60); !errors.Is(err, ErrNoWebCredentials) { t.Fatalf("got %v", err) }
    if err := c.Group(gid).SetPortrait(context.Background(), []byte{1}); !errors.Is(err, ErrNoWebCredentials) { t.Fatalf("got %v", err) }
}

func TestCode2UinRoundTrip(t *testing.T) {
    for _, code := range []int64{1234567, 284840486, 999999999, 3000000000} {
        if got := Uin2Code(Code2Uin(code)); got != code { t.Fatalf("round trip %d -> %d", code, got) }
    }
}

func TestStatusAndClose(t *testing.T) {
    c, b := newClient(t)
    b.groupInfo(codec.Tree{1: owner})
    if _, err := c.Group(gid).FetchInfo(context.Background()); err != nil { t.Fatalf("fetch: %v", err) }
    st, err := c.Status(context.Background())
    if err != nil { t.Fatalf("status: %v", err) }
    if st.Uin != selfUin || len(st.Groups) != 1 || st.Groups[0] != gid || st.Closed { t.Fatalf("status %+v", st) }
    if err := c.Close(); err != nil { t.Fatalf("close: %v", err) }
    if err := c.Close(); err != nil { t.Fatalf("second close: %v", err) }
    st, _ = c.Status(context.Background())
    if !st.Closed { t.Fatalf("status not closed") }
}
