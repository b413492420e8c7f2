package client

import (
    "context"
    "errors"

    "github.com/amirimatin/go-groupchat/pkg/codec"
    "github.com/amirimatin/go-groupchat/pkg/errcode"
    "github.com/amirimatin/go-groupchat/pkg/internal/logutil"
    "github.com/amirimatin/go-groupchat/pkg/message"
    "github.com/amirimatin/go-groupchat/pkg/observability/metrics"
    "github.com/amirimatin/go-groupchat/pkg/observability/tracing"
)

const cmdSendMsg = "MessageSvc.PbSendMsg"

// AnonymousInfo is the account's anonymous identity in a group.
type AnonymousInfo struct {
    message.Anonymous
    Enable bool `json:"enable"`
}

// SendMessage sends content and waits for the server push that confirms it.
func (g *Group) SendMessage(ctx context.Context, content any) (message.Ret, error) {
    return g.send(ctx, content, false, nil)
}

// SendAnonymous sends content anonymously. A nil anon fetches the current
// anonymous identity first.
func (g *Group) SendAnonymous(ctx context.Context, content any, anon *AnonymousInfo) (message.Ret, error) {
    return g.send(ctx, content, true, anon)
}

func (g *Group) send(ctx context.Context, content any, anonymous bool, anon *AnonymousInfo) (ret message.Ret, err error) {
    c := g.c
    defer func() { metrics.MessagesSent.WithLabelValues("group", metrics.Result(err)).Inc() }()
    ctx, end := tracing.StartSpan(ctx, "group.send")
    defer end()

    p, err := c.opts.Converter.Build(ctx, content)
    if err != nil { return message.Ret{}, err }
    if anonymous {
        if anon == nil {
            info, err := g.GetAnonymousInfo(ctx)
            if err != nil { return message.Ret{}, err }
            anon = &info
        }
        p.Anonymize(anon.Anonymous)
    }

    rnd := rand32()
    w := message.Await(c.opts.Session, message.PushKey(g.gid, rnd))
    defer w.Release()
    rsp, err := c.caller.Uni(ctx, cmdSendMsg, codec.Tree{
        1: codec.Tree{2: codec.Tree{1: g.gid}},
        2: pbContent(),
        3: codec.Tree{1: p.Rich()},
        4: rand16(),
        5: rnd,
        8: 0,
    }, 0)
    if err != nil { return message.Ret{}, err }
    if code := rsp.Int(1); code != 0 {
        logutil.Errorf(c.opts.Logger, "failed to send: [Group(%d)] %s(%d)", g.gid, rsp.String(2), code)
        return message.Ret{}, errcode.Server(code, rsp.String(2))
    }

    id, err := w.Wait(ctx, c.opts.SendTimeouts.pick(c.opts.Resend, p.Length()))
    if errors.Is(err, message.ErrTimeout) {
        metrics.CorrelationTimeouts.Inc()
        if !c.opts.Resend { return message.Ret{}, errcode.New(errcode.RiskMessageFailure) }
        id, err = g.sendFragments(ctx, p.Fragments())
    }
    if err != nil { return message.Ret{}, err }
    ret, err = message.RetFromID(string(id))
    if err != nil { return message.Ret{}, err }
    logutil.Infof(c.opts.Logger, "succeed to send: [Group(%d)] %s", g.gid, p.Brief())
    return ret, nil
}

// sendFragments sends every fragment one-way under a shared rand and div and
// waits once for the confirmation.
func (g *Group) sendFragments(ctx context.Context, frags []codec.Tree) ([]byte, error) {
    c := g.c
    rnd, div := rand32(), rand16()
    w := message.Await(c.opts.Session, message.PushKey(g.gid, rnd))
    defer w.Release()
    for i, frag := range frags {
        err := c.caller.OneWay(ctx, cmdSendMsg, codec.Tree{
            1: codec.Tree{2: codec.Tree{1: g.gid}},
            2: codec.Tree{1: len(frags), 2: i, 3: div},
            3: codec.Tree{1: frag},
            4: rand16(),
            5: rnd,
            8: 0,
        })
        if err != nil { return nil, err }
        metrics.MessageFragments.Inc()
    }
    id, err := w.Wait(ctx, c.opts.SendTimeouts.Fragments)
    if errors.Is(err, message.ErrTimeout) {
        metrics.CorrelationTimeouts.Inc()
        return nil, errcode.New(errcode.SensitiveWordsFailure)
    }
    return id, err
}

// Discuss is the handle of a discussion group. Sends are not confirmed.
type Discuss struct {
    c   *Client
    gid int64
}

func (d *Discuss) GroupID() int64 { return d.gid }

// SendMessage sends content and returns a zero Ret on success.
func (d *Discuss) SendMessage(ctx context.Context, content any) (ret message.Ret, err error) {
    c := d.c
    defer func() { metrics.MessagesSent.WithLabelValues("discuss", metrics.Result(err)).Inc() }()
    p, err := c.opts.Converter.Build(ctx, content)
    if err != nil { return message.Ret{}, err }
    rsp, err := c.caller.Uni(ctx, cmdSendMsg, codec.Tree{
        1: codec.Tree{4: codec.Tree{1: d.gid}},
        2: pbContent(),
        3: codec.Tree{1: p.Rich()},
        4: rand16(),
        5: rand32(),
        8: 0,
    }, 0)
    if err != nil { return message.Ret{}, err }
    if code := rsp.Int(1); code != 0 {
        logutil.Errorf(c.opts.Logger, "failed to send: [Discuss(%d)] %s(%d)", d.gid, rsp.String(2), code)
        return message.Ret{}, errcode.Server(code, rsp.String(2))
    }
    logutil.Infof(c.opts.Logger, "succeed to send: [Discuss(%d)] %s", d.gid, p.Brief())
    return message.Ret{}, nil
}
