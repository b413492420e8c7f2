package cli

import (
    "context"
    "sync/atomic"
    "time"

    "github.com/amirimatin/go-groupchat/pkg/codec"
    "github.com/amirimatin/go-groupchat/pkg/codec/cbor"
    "github.com/amirimatin/go-groupchat/pkg/message"
    "github.com/amirimatin/go-groupchat/pkg/transport/loopback"
)

var demoCodec = cbor.MustNew()

// demoRoster is the membership every demo group reports.
var demoRoster = []struct {
    uid  int64
    nick string
    role int
}{
    {20002, "owner", 1},
    {20003, "admin", 2},
    {20004, "alice", 0},
    {20005, "bob", 0},
}

// DemoSession returns an in-memory session that answers the commands used by
// gchatctl with canned data: every group exists, is owned by 20002 and has a
// four member roster. Sends are confirmed with a push, actions succeed.
func DemoSession(uin int64) *loopback.Session {
    s := loopback.New(uin)
    var seq atomic.Uint32
    seq.Store(1000)

    s.Handle("OidbSvc.0x88d_0", demoOidb(func(req codec.Tree) codec.Tree {
        created := time.Now().Add(-30 * 24 * time.Hour).Unix()
        return codec.Tree{1: codec.Tree{3: codec.Tree{1: demoRoster[0].uid, 2: created, 5: 200, 6: len(demoRoster), 89: "demo group"}}}
    }))
    s.Handle("friendlist.GetTroopMemberListReq", demoLegacy(func(codec.Tree) codec.Struct {
        list := make([]any, 0, len(demoRoster))
        joined := time.Now().Add(-7 * 24 * time.Hour).Unix()
        for _, m := range demoRoster {
            flag := 0
            if m.role == 2 { flag = 1 }
            list = append(list, codec.Struct{m.uid, nil, 20, 0, m.nick, nil, nil, nil, "", nil, nil, nil, nil, nil, 1, joined, nil, nil, flag})
        }
        return codec.Struct{nil, nil, nil, list, 0}
    }))
    s.Handle("group_member_card.get_group_member_card_info", func(_ context.Context, _ string, raw []byte) ([]byte, error) {
        req, err := demoCodec.Decode(raw)
        if err != nil { return nil, err }
        uid := req.Int(2)
        for _, m := range demoRoster {
            if m.uid == uid { return demoCodec.Encode(codec.Tree{3: codec.Tree{9: 0, 11: m.nick, 12: 20, 27: 1}}) }
        }
        return demoCodec.Encode(codec.Tree{3: codec.Tree{27: 0}})
    })
    s.Handle("MessageSvc.PbSendMsg", func(_ context.Context, _ string, raw []byte) ([]byte, error) {
        req, err := demoCodec.Decode(raw)
        if err != nil { return nil, err }
        g := req.Sub(1).Sub(2).Int(1)
        if g == 0 { return demoCodec.Encode(codec.Tree{1: 0}) }
        rnd := req.Uint32(5)
        id := message.FormatGroupID(message.ID{GroupID: uint32(g), UserID: uint32(uin), Seq: seq.Add(1), Rand: rnd, Time: uint32(time.Now().Unix()), PktNum: 1})
        s.Push(message.PushKey(g, rnd), []byte(id))
        return demoCodec.Encode(codec.Tree{1: 0})
    })
    s.HandleDefault(func(_ context.Context, _ string, raw []byte) ([]byte, error) {
        if servant, method, name, err := demoCodec.WrapperName(raw); err == nil {
            body, err := demoCodec.EncodeStruct(codec.Struct{0, 0, nil, []any{0}})
            if err != nil { return nil, err }
            return demoCodec.EncodeWrapper(servant, method, name, body)
        }
        inner, err := demoCodec.Encode(codec.Tree{2: codec.Tree{1: 0}})
        if err != nil { return nil, err }
        return demoCodec.Encode(codec.Tree{1: 0, 2: codec.Tree{1: 0}, 3: 0, 4: inner})
    })
    return s
}

func demoOidb(fn func(req codec.Tree) codec.Tree) loopback.Handler {
    return func(_ context.Context, _ string, raw []byte) ([]byte, error) {
        env, err := demoCodec.Decode(raw)
        if err != nil { return nil, err }
        req, _ := demoCodec.Decode(env.Bytes(4))
        inner, err := demoCodec.Encode(fn(req))
        if err != nil { return nil, err }
        return demoCodec.Encode(codec.Tree{3: 0, 4: inner})
    }
}

func demoLegacy(fn func(req codec.Tree) codec.Struct) loopback.Handler {
    return func(_ context.Context, _ string, raw []byte) ([]byte, error) {
        servant, method, name, err := demoCodec.WrapperName(raw)
        if err != nil { return nil, err }
        req, err := demoCodec.DecodeWrapper(raw)
        if err != nil { return nil, err }
        body, err := demoCodec.EncodeStruct(fn(req))
        if err != nil { return nil, err }
        return demoCodec.EncodeWrapper(servant, method, name, body)
    }
}
