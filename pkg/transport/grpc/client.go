package grpc

import (
    "context"
    "crypto/tls"
    "errors"
    "io"
    "log"
    "sync"
    "sync/atomic"
    "time"

    "github.com/google/uuid"
    "google.golang.org/grpc"
    "google.golang.org/grpc/backoff"
    "google.golang.org/grpc/codes"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/credentials/insecure"
    "google.golang.org/grpc/keepalive"
    "google.golang.org/grpc/metadata"
    "google.golang.org/grpc/status"

    "github.com/amirimatin/go-groupchat/pkg/discovery"
    "github.com/amirimatin/go-groupchat/pkg/errcode"
    "github.com/amirimatin/go-groupchat/pkg/event"
    "github.com/amirimatin/go-groupchat/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-groupchat/pkg/observability/metrics"
    "github.com/amirimatin/go-groupchat/pkg/transport"
)

var (
    ErrNoAddr      = errors.New("grpc: missing gateway address")
    ErrNoEndpoints = errors.New("grpc: resolver returned no gateway endpoints")
)

// DefaultChunkSize is the blob upload chunk size.
const DefaultChunkSize = 256 << 10

// ClientOptions configures a gateway session.
type ClientOptions struct {
    // Addr is dialed when Resolver is nil or yields nothing.
    Addr string
    // Resolver supplies gateway endpoints; the client moves to the next one
    // when a call finds the current endpoint unavailable.
    Resolver discovery.Resolver
    Uin   int64
    SubID int64
    // Timeout applies to requests issued with a non-positive timeout.
    Timeout   time.Duration
    ChunkSize int
    TLS       *tls.Config
    Logger    *log.Logger
}

// Client is a transport.Session that talks to a gateway Server. Push events
// arrive over a server stream that is re-established with backoff.
type Client struct {
    opts ClientOptions
    cm   *ConnManager
    bus  event.Bus
    id   string

    cancel context.CancelFunc
    wg     sync.WaitGroup
    closed atomic.Bool
    next   atomic.Uint32
}

var _ transport.Session = (*Client)(nil)

// NewClient returns a session for the gateway at opts.Addr and starts its push
// stream. Connections are dialed lazily.
func NewClient(opts ClientOptions) (*Client, error) {
    if opts.Addr == "" && opts.Resolver == nil { return nil, ErrNoAddr }
    if opts.Timeout <= 0 { opts.Timeout = 5 * time.Second }
    if opts.ChunkSize <= 0 { opts.ChunkSize = DefaultChunkSize }
    if opts.Logger == nil { opts.Logger = log.Default() }
    c := &Client{opts: opts, id: uuid.NewString()}
    c.cm = NewConnManager(30*time.Second, c.dialCtx)
    ctx, cancel := context.WithCancel(context.Background())
    c.cancel = cancel
    c.wg.Add(1)
    go c.pushLoop(ctx)
    return c, nil
}

// UseTLS sets TLS config for the client. Call it before the first request.
func (c *Client) UseTLS(cfg *tls.Config) *Client { c.opts.TLS = cfg; return c }

func (c *Client) dialCtx(ctx context.Context, target string) (*grpc.ClientConn, error) {
    // Use JSON codec and set content subtype accordingly.
    opts := []grpc.DialOption{
        grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
        grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
        grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
        grpc.WithBlock(),
    }
    if c.opts.TLS != nil {
        opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.opts.TLS)))
    } else {
        opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }
    return grpc.DialContext(ctx, target, opts...)
}

// endpoint is a dial target and its position in the resolver's list.
type endpoint struct {
    addr string
    idx  uint32
}

// target picks the endpoint to dial.
func (c *Client) target(ctx context.Context) (endpoint, error) {
    if c.opts.Resolver == nil { return endpoint{addr: c.opts.Addr}, nil }
    eps := c.opts.Resolver.Endpoints(ctx)
    if len(eps) == 0 {
        if c.opts.Addr != "" { return endpoint{addr: c.opts.Addr}, nil }
        return endpoint{}, ErrNoEndpoints
    }
    idx := c.next.Load()
    return endpoint{addr: eps[int(idx%uint32(len(eps)))], idx: idx}, nil
}

// conn returns a cached connection to the current endpoint.
func (c *Client) conn(ctx context.Context) (*grpc.ClientConn, func(), endpoint, error) {
    ep, err := c.target(ctx)
    if err != nil { return nil, nil, ep, err }
    cc, rel, err := c.cm.Get(ctx, ep.addr)
    if err != nil { c.failover(ep, err); return nil, nil, ep, err }
    return cc, rel, ep, nil
}

// failover advances past ep after a dial failure or an Unavailable status.
// Concurrent failures on the same endpoint advance once.
func (c *Client) failover(ep endpoint, err error) {
    if c.opts.Resolver == nil { return }
    if st, ok := status.FromError(err); ok && st.Code() != codes.Unavailable && st.Code() != codes.DeadlineExceeded { return }
    if c.next.CompareAndSwap(ep.idx, ep.idx+1) {
        logutil.Warnf(c.opts.Logger, "grpc: gateway %s unavailable, trying next endpoint: %v", ep.addr, err)
    }
}

func (c *Client) Uin() int64   { return c.opts.Uin }
func (c *Client) SubID() int64 { return c.opts.SubID }

func (c *Client) SubscribeOnce(key string, fn func(payload []byte)) { c.bus.SubscribeOnce(key, fn) }
func (c *Client) UnsubscribeAll(key string)                        { c.bus.UnsubscribeAll(key) }

func (c *Client) SendRequest(ctx context.Context, cmd string, body []byte, timeout time.Duration) ([]byte, error) {
    if timeout <= 0 { timeout = c.opts.Timeout }
    out, err := c.invoke(ctx, methodCall, &callRequest{Cmd: cmd, Body: body, TimeoutMs: timeout.Milliseconds()}, timeout)
    if err != nil { return nil, err }
    return out.Body, nil
}

func (c *Client) SendOneWay(ctx context.Context, cmd string, body []byte) error {
    _, err := c.invoke(ctx, methodCall, &callRequest{Cmd: cmd, Body: body, OneWay: true}, c.opts.Timeout)
    return err
}

// UploadBlob streams r as ordered chunks; the last chunk is flagged final.
func (c *Client) UploadBlob(ctx context.Context, r io.Reader, meta transport.BlobMeta, progress transport.ProgressFunc) error {
    id := uuid.NewString()
    buf := make([]byte, c.opts.ChunkSize)
    var offset int64
    for {
        n, rerr := io.ReadFull(r, buf)
        final := rerr == io.EOF || rerr == io.ErrUnexpectedEOF
        if rerr != nil && !final { return rerr }
        chunk := &uploadChunk{
            UploadID:  id,
            CommandID: meta.CommandID,
            MD5:       meta.MD5,
            Size:      meta.Size,
            Ext:       meta.Ext,
            Offset:    offset,
            Data:      buf[:n],
            Final:     final,
        }
        if _, err := c.invoke(ctx, methodUpload, chunk, c.opts.Timeout); err != nil { return err }
        offset += int64(n)
        if progress != nil && meta.Size > 0 { progress(min(100, float64(offset)*100/float64(meta.Size))) }
        if final { return nil }
    }
}

// Status fetches the gateway's JSON status document.
func (c *Client) Status(ctx context.Context) ([]byte, error) {
    cctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
    defer cancel()
    cc, rel, ep, err := c.conn(cctx)
    if err != nil { return nil, err }
    defer rel()
    out := new(statusBlob)
    if err := cc.Invoke(c.outgoing(cctx), methodStatus, &empty{}, out); err != nil { c.failover(ep, err); return nil, err }
    return out.Data, nil
}

func (c *Client) invoke(ctx context.Context, method string, in any, timeout time.Duration) (*callResponse, error) {
    if c.closed.Load() { return nil, transport.ErrClosed }
    cctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()
    cc, rel, ep, err := c.conn(cctx)
    if err != nil { return nil, err }
    defer rel()
    out := new(callResponse)
    if err := cc.Invoke(c.outgoing(cctx), method, in, out); err != nil { c.failover(ep, err); return nil, err }
    if out.Code != 0 { return nil, errcode.Server(out.Code, out.Message) }
    return out, nil
}

func (c *Client) outgoing(ctx context.Context) context.Context {
    return metadata.AppendToOutgoingContext(ctx, headerRequest, uuid.NewString())
}

// pushLoop keeps a Push stream open until Close, re-establishing it with
// exponential backoff after errors.
func (c *Client) pushLoop(ctx context.Context) {
    defer c.wg.Done()
    wait := 100 * time.Millisecond
    for {
        err := c.subscribe(ctx)
        if ctx.Err() != nil { return }
        if err != nil {
            logutil.Debugf(c.opts.Logger, "grpc: push stream: %v", err)
        } else {
            wait = 100 * time.Millisecond
        }
        select {
        case <-ctx.Done():
            return
        case <-time.After(wait):
        }
        if wait < 5*time.Second { wait *= 2 }
    }
}

func (c *Client) subscribe(ctx context.Context) error {
    cc, rel, ep, err := c.conn(ctx)
    if err != nil { return err }
    defer rel()
    // Build a client stream manually
    sd := &grpc.StreamDesc{ServerStreams: true}
    cs, err := cc.NewStream(c.outgoing(ctx), sd, methodPush)
    if err != nil { c.failover(ep, err); return err }
    if err := cs.SendMsg(&pushSubscribe{ClientID: c.id}); err != nil { return err }
    _ = cs.CloseSend()
    for {
        var m pushEvent
        if err := cs.RecvMsg(&m); err != nil {
            if errors.Is(err, io.EOF) { return nil }
            return err
        }
        obsmetrics.PushEvents.WithLabelValues("grpc").Inc()
        c.bus.Emit(m.Key, m.Payload)
    }
}

// Close stops the push stream and closes cached connections.
func (c *Client) Close() error {
    if !c.closed.CompareAndSwap(false, true) { return nil }
    c.cancel()
    c.wg.Wait()
    c.cm.Close()
    return nil
}
