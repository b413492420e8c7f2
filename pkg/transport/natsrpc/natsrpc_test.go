package natsrpc

import (
    "errors"
    "testing"

    "github.com/nats-io/nats.go"

    "github.com/amirimatin/go-groupchat/pkg/errcode"
)

func TestSubjects(t *testing.T) {
    cases := []struct{ got, want string }{
        {RequestSubject("gchat", "OidbSvc.0x88d_0"), "gchat.req.OidbSvc.0x88d_0"},
        {UniSubject("gchat", "MessageSvc.PbSendMsg"), "gchat.uni.MessageSvc.PbSendMsg"},
        {PushSubject("gchat", "internal.1.2"), "gchat.push.internal.1.2"},
        {PushWildcard("gchat"), "gchat.push.>"},
        {HighwaySubject("gchat", 71), "gchat.highway.71"},
    }
    for _, c := range cases {
        if c.got != c.want { t.Fatalf("got %q want %q", c.got, c.want) }
    }
}

func TestPushKey(t *testing.T) {
    key, ok := PushKey("gchat", "gchat.push.internal.284840486.77")
    if !ok || key != "internal.284840486.77" { t.Fatalf("key=%q ok=%v", key, ok) }
    if _, ok := PushKey("gchat", "gchat.req.x"); ok { t.Fatalf("request subject parsed as push") }
    if _, ok := PushKey("gchat", "gchat.push."); ok { t.Fatalf("empty key accepted") }
}

func TestReplyErrorRoundTrip(t *testing.T) {
    if err := ReplyError(nil); err != nil { t.Fatalf("nil header: %v", err) }
    if err := ReplyError(nats.Header{}); err != nil { t.Fatalf("empty header: %v", err) }

    h := ErrorHeader(errcode.Server(120, "muted"))
    err := ReplyError(h)
    if errcode.CodeOf(err) != 120 || err.Error() != errcode.Server(120, "muted").Error() { t.Fatalf("got %v", err) }

    err = ReplyError(ErrorHeader(errors.New("backend down")))
    if errcode.CodeOf(err) != -1 { t.Fatalf("got %v", err) }
}

func TestOptionsValidate(t *testing.T) {
    if err := (Options{}).Validate(); !errors.Is(err, ErrNoURL) { t.Fatalf("got %v", err) }
    if err := (Options{URL: nats.DefaultURL}).Validate(); !errors.Is(err, ErrNoUin) { t.Fatalf("got %v", err) }
    o := Options{URL: nats.DefaultURL, Uin: 1}.withDefaults()
    if o.Prefix != DefaultPrefix || o.Timeout != DefaultTimeout || o.ChunkSize != DefaultChunkSize { t.Fatalf("defaults %+v", o) }
}
