package grpc

import (
    "bytes"
    "context"
    "encoding/json"
    "testing"
    "time"

    "github.com/amirimatin/go-groupchat/pkg/discovery/static"
    "github.com/amirimatin/go-groupchat/pkg/errcode"
    "github.com/amirimatin/go-groupchat/pkg/transport"
    "github.com/amirimatin/go-groupchat/pkg/transport/loopback"
)

func startGateway(t *testing.T) (*Server, *loopback.Session, *Client) {
    t.Helper()
    backend := loopback.New(10001)
    ctx, cancel := context.WithCancel(context.Background())
    t.Cleanup(cancel)
    srv := NewServer("127.0.0.1:0", backend, nil)
    status := func(context.Context) ([]byte, error) { return json.Marshal(map[string]int64{"uin": backend.Uin()}) }
    if err := srv.Start(ctx, status); err != nil { t.Fatalf("start: %v", err) }
    c, err := NewClient(ClientOptions{Addr: srv.Addr(), Uin: 10001, Timeout: 2 * time.Second, ChunkSize: 4})
    if err != nil { t.Fatalf("client: %v", err) }
    t.Cleanup(func() { _ = c.Close() })
    return srv, backend, c
}

func TestCallRoundTrip(t *testing.T) {
    _, backend, c := startGateway(t)
    backend.Handle("OidbSvc.0x88d_0", func(_ context.Context, _ string, body []byte) ([]byte, error) {
        return append([]byte("echo:"), body...), nil
    })
    out, err := c.SendRequest(context.Background(), "OidbSvc.0x88d_0", []byte("hi"), 0)
    if err != nil { t.Fatalf("call: %v", err) }
    if string(out) != "echo:hi" { t.Fatalf("got %q", out) }
}

func TestCallProtocolError(t *testing.T) {
    _, backend, c := startGateway(t)
    backend.Handle("MessageSvc.PbSendMsg", func(context.Context, string, []byte) ([]byte, error) {
        return nil, errcode.Server(120, "muted")
    })
    _, err := c.SendRequest(context.Background(), "MessageSvc.PbSendMsg", nil, 0)
    if errcode.CodeOf(err) != 120 { t.Fatalf("got %v", err) }
}

func TestOneWay(t *testing.T) {
    _, backend, c := startGateway(t)
    backend.Handle("MessageSvc.PbSendMsg", func(context.Context, string, []byte) ([]byte, error) { return nil, nil })
    if err := c.SendOneWay(context.Background(), "MessageSvc.PbSendMsg", []byte{1}); err != nil { t.Fatalf("one way: %v", err) }
    calls := backend.Calls("MessageSvc.PbSendMsg")
    if len(calls) != 1 || !calls[0].OneWay { t.Fatalf("calls %+v", calls) }
}

func TestUploadIsReassembled(t *testing.T) {
    _, backend, c := startGateway(t)
    data := []byte("0123456789abcdef-x")
    var progress []float64
    meta := transport.BlobMeta{CommandID: 71, MD5: []byte{1, 2}, Size: int64(len(data)), Ext: []byte{9}}
    if err := c.UploadBlob(context.Background(), bytes.NewReader(data), meta, func(p float64) { progress = append(progress, p) }); err != nil { t.Fatalf("upload: %v", err) }
    ups := backend.Uploads()
    if len(ups) != 1 || !bytes.Equal(ups[0].Data, data) || ups[0].Meta.CommandID != 71 || !bytes.Equal(ups[0].Meta.Ext, []byte{9}) { t.Fatalf("uploads %+v", ups) }
    if len(progress) < 2 || progress[len(progress)-1] != 100 { t.Fatalf("progress %v", progress) }
}

func TestPushReachesClientSubscribers(t *testing.T) {
    srv, backend, c := startGateway(t)
    deadline := time.Now().Add(3 * time.Second)
    for srv.Subscribers() == 0 {
        if time.Now().After(deadline) { t.Fatalf("push stream never connected") }
        time.Sleep(10 * time.Millisecond)
    }
    got := make(chan []byte, 1)
    c.SubscribeOnce("internal.1.2", func(p []byte) { got <- p })
    backend.Push("internal.1.2", []byte("msg-id"))
    select {
    case p := <-got:
        if string(p) != "msg-id" { t.Fatalf("payload %q", p) }
    case <-time.After(3 * time.Second):
        t.Fatalf("push not delivered")
    }
}

func TestStatus(t *testing.T) {
    _, _, c := startGateway(t)
    b, err := c.Status(context.Background())
    if err != nil { t.Fatalf("status: %v", err) }
    if string(b) != `{"uin":10001}` { t.Fatalf("status %q", b) }
}

func TestClosedClient(t *testing.T) {
    _, _, c := startGateway(t)
    _ = c.Close()
    if _, err := c.SendRequest(context.Background(), "x", nil, 0); err != transport.ErrClosed { t.Fatalf("got %v", err) }
}

func TestFailoverToNextEndpoint(t *testing.T) {
    srv, backend, _ := startGateway(t)
    backend.Handle("OidbSvc.0x88d_0", func(context.Context, string, []byte) ([]byte, error) { return []byte("ok"), nil })
    c, err := NewClient(ClientOptions{Resolver: static.New("127.0.0.1:1", srv.Addr()), Uin: 10001, Timeout: 300 * time.Millisecond})
    if err != nil { t.Fatalf("client: %v", err) }
    defer c.Close()
    deadline := time.Now().Add(5 * time.Second)
    for {
        out, err := c.SendRequest(context.Background(), "OidbSvc.0x88d_0", nil, 0)
        if err == nil {
            if string(out) != "ok" { t.Fatalf("got %q", out) }
            return
        }
        if time.Now().After(deadline) { t.Fatalf("never failed over: %v", err) }
    }
}

func TestClientNeedsAddress(t *testing.T) {
    if _, err := NewClient(ClientOptions{}); err != ErrNoAddr { t.Fatalf("got %v", err) }
}
