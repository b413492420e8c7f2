package loopback

import (
    "bytes"
    "context"
    "errors"
    "testing"
    "time"

    "github.com/amirimatin/go-groupchat/pkg/transport"
)

func TestRequestDispatchAndRecording(t *testing.T) {
    s := New(10001)
    s.Handle("echo", func(_ context.Context, _ string, body []byte) ([]byte, error) { return body, nil })
    out, err := s.SendRequest(context.Background(), "echo", []byte("x"), time.Second)
    if err != nil { t.Fatalf("send: %v", err) }
    if string(out) != "x" { t.Fatalf("out = %q", out) }
    if _, err := s.SendRequest(context.Background(), "missing", nil, 0); err == nil {
        t.Fatalf("expected error for unhandled command")
    }
    if err := s.SendOneWay(context.Background(), "echo", []byte("y")); err != nil { t.Fatalf("oneway: %v", err) }
    calls := s.Calls("echo")
    if len(calls) != 2 || calls[0].OneWay || !calls[1].OneWay { t.Fatalf("unexpected calls %+v", calls) }
    if calls[0].Timeout != time.Second { t.Fatalf("timeout not recorded") }
}

func TestPushReachesSubscribersAndHook(t *testing.T) {
    s := New(1)
    var got, hooked string
    s.SubscribeOnce("internal.1.2", func(p []byte) { got = string(p) })
    s.OnPush(func(key string, _ []byte) { hooked = key })
    if n := s.Push("internal.1.2", []byte("id")); n != 1 { t.Fatalf("fired %d", n) }
    if got != "id" || hooked != "internal.1.2" { t.Fatalf("got=%q hooked=%q", got, hooked) }
    if s.Pending("internal.1.2") != 0 { t.Fatalf("subscriber should be removed") }
}

func TestUploadRecorded(t *testing.T) {
    s := New(1)
    var pct float64
    err := s.UploadBlob(context.Background(), bytes.NewReader([]byte("blob")), transport.BlobMeta{CommandID: 71, Size: 4}, func(p float64) { pct = p })
    if err != nil { t.Fatalf("upload: %v", err) }
    ups := s.Uploads()
    if len(ups) != 1 || string(ups[0].Data) != "blob" || ups[0].Meta.CommandID != 71 { t.Fatalf("uploads %+v", ups) }
    if pct != 100 { t.Fatalf("progress = %v", pct) }
}

func TestClosedSessionRejects(t *testing.T) {
    s := New(1)
    _ = s.Close()
    if _, err := s.SendRequest(context.Background(), "x", nil, 0); !errors.Is(err, transport.ErrClosed) {
        t.Fatalf("err = %v, want ErrClosed", err)
    }
}
