package client

import (
    "context"

    "github.com/amirimatin/go-groupchat/pkg/codec"
    "github.com/amirimatin/go-groupchat/pkg/message"
    "github.com/amirimatin/go-groupchat/pkg/observability/metrics"
)

// RecallMessage withdraws a sent message. It reports whether the server
// accepted the recall.
func (g *Group) RecallMessage(ctx context.Context, ref message.Ref) (ok bool, err error) {
    defer func() {
        result := metrics.Result(err)
        if err == nil && !ok { result = "rejected" }
        metrics.Recalls.WithLabelValues(result).Inc()
    }()
    var msg, reserver any
    if ref.PktNum > 1 {
        msgs := make([]any, 0, ref.PktNum)
        parts := make([]any, 0, ref.PktNum)
        for i := 0; i < ref.PktNum; i++ {
            seq := ref.Seq + uint32(i)
            msgs = append(msgs, codec.Tree{1: seq, 2: ref.Rand})
            parts = append(parts, codec.Tree{1: seq, 3: ref.PktNum, 4: i})
        }
        msg, reserver = msgs, codec.Tree{1: 1, 2: parts}
    } else {
        msg, reserver = codec.Tree{1: ref.Seq, 2: ref.Rand}, codec.Tree{1: 0}
    }
    rsp, err := g.c.caller.Oidb(ctx, "PbMessageSvc.PbMsgWithDraw", codec.Tree{
        2: codec.Tree{1: 1, 2: 0, 3: g.gid, 4: msg, 5: reserver},
    })
    if err != nil { return false, err }
    return rsp.Sub(2).Eq(1, 0), nil
}

// RecallMessageID recalls the message with the given id.
func (g *Group) RecallMessageID(ctx context.Context, id string) (bool, error) {
    ref, err := message.RefFromID(id)
    if err != nil { return false, err }
    return g.RecallMessage(ctx, ref)
}
