package grpc

import (
    "bytes"
    "context"
    "crypto/tls"
    "errors"
    "log"
    "net"
    "sync"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/codes"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"
    "google.golang.org/grpc/metadata"
    "google.golang.org/grpc/status"

    "github.com/amirimatin/go-groupchat/pkg/errcode"
    "github.com/amirimatin/go-groupchat/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-groupchat/pkg/observability/metrics"
    "github.com/amirimatin/go-groupchat/pkg/observability/tracing"
    "github.com/amirimatin/go-groupchat/pkg/transport"
)

// PushFeed is a backend that reports every inbound push event, not only the
// ones a local subscriber waits for.
type PushFeed interface {
    OnPush(fn func(key string, payload []byte))
}

// Server exposes a backend session as the groupchat.v1.Gateway service.
type Server struct {
    bind    string
    backend transport.Session
    logger  *log.Logger
    lis     net.Listener
    srv     *grpc.Server
    tlsCfg  *tls.Config

    mu      sync.Mutex
    subs    map[*pushSub]struct{}
    uploads map[string]*pendingUpload
    done    chan struct{}
}

type pushSub struct {
    mu sync.Mutex
    ss grpc.ServerStream
    id string
}

func (p *pushSub) send(m *pushEvent) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    return p.ss.SendMsg(m)
}

type pendingUpload struct {
    buf     bytes.Buffer
    started time.Time
}

// uploadTTL drops transfers whose final chunk never arrived.
const uploadTTL = 5 * time.Minute

func NewServer(bind string, backend transport.Session, logger *log.Logger) *Server {
    if logger == nil { logger = log.Default() }
    return &Server{bind: bind, backend: backend, logger: logger}
}

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// gatewayServer defines the methods we expose.
type gatewayServer interface {
    Call(ctx context.Context, in *callRequest) (*callResponse, error)
    Upload(ctx context.Context, in *uploadChunk) (*callResponse, error)
    Status(ctx context.Context, in *empty) (*statusBlob, error)
    Push(in *pushSubscribe, stream grpc.ServerStream) error
}

type gatewayImpl struct {
    s      *Server
    status transport.StatusFunc
}

func (g *gatewayImpl) Call(ctx context.Context, in *callRequest) (*callResponse, error) {
    if in == nil || in.Cmd == "" { return nil, status.Error(codes.InvalidArgument, "missing cmd") }
    ctx, end := tracing.StartSpan(ctx, "grpc.call", "cmd", in.Cmd, "request_id", requestID(ctx))
    defer end()
    if in.OneWay {
        return replyOf(nil, g.s.backend.SendOneWay(ctx, in.Cmd, in.Body)), nil
    }
    b, err := g.s.backend.SendRequest(ctx, in.Cmd, in.Body, time.Duration(in.TimeoutMs)*time.Millisecond)
    return replyOf(b, err), nil
}

func (g *gatewayImpl) Upload(ctx context.Context, in *uploadChunk) (*callResponse, error) {
    if in == nil || in.UploadID == "" { return nil, status.Error(codes.InvalidArgument, "missing upload id") }
    data, ok, err := g.s.appendChunk(in)
    if err != nil { return nil, status.Error(codes.FailedPrecondition, err.Error()) }
    if !ok { return &callResponse{}, nil }
    ctx, end := tracing.StartSpan(ctx, "grpc.upload", "request_id", requestID(ctx))
    defer end()
    meta := transport.BlobMeta{CommandID: in.CommandID, MD5: in.MD5, Size: in.Size, Ext: in.Ext}
    return replyOf(nil, g.s.backend.UploadBlob(ctx, bytes.NewReader(data), meta, nil)), nil
}

func (g *gatewayImpl) Status(ctx context.Context, _ *empty) (*statusBlob, error) {
    if g.status == nil { return nil, status.Error(codes.Unimplemented, "status not supported") }
    ctx, end := tracing.StartSpan(ctx, "grpc.status")
    defer end()
    b, err := g.status(ctx)
    if err != nil { return nil, err }
    return &statusBlob{Data: b}, nil
}

func (g *gatewayImpl) Push(in *pushSubscribe, stream grpc.ServerStream) error {
    sub := &pushSub{ss: stream}
    if in != nil { sub.id = in.ClientID }
    if !g.s.addSub(sub) { return status.Error(codes.Unavailable, "gateway stopping") }
    defer g.s.removeSub(sub)
    // Block until client disconnects or the server stops
    select {
    case <-stream.Context().Done():
    case <-g.s.done:
    }
    return nil
}

// replyOf folds a backend result into a reply. Protocol errors travel in the
// reply; anything else becomes a gRPC status.
func replyOf(b []byte, err error) *callResponse {
    if err == nil { return &callResponse{Body: b} }
    var e *errcode.Error
    if errors.As(err, &e) { return &callResponse{Code: e.Code, Message: e.Message} }
    return &callResponse{Code: -1, Message: err.Error()}
}

func requestID(ctx context.Context) string {
    md, ok := metadata.FromIncomingContext(ctx)
    if !ok { return "" }
    if v := md.Get(headerRequest); len(v) > 0 { return v[0] }
    return ""
}

func (s *Server) appendChunk(in *uploadChunk) ([]byte, bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    now := time.Now()
    for id, p := range s.uploads {
        if now.Sub(p.started) > uploadTTL { delete(s.uploads, id) }
    }
    p, ok := s.uploads[in.UploadID]
    if !ok {
        if in.Offset != 0 { return nil, false, errors.New("unknown upload") }
        p = &pendingUpload{started: now}
        s.uploads[in.UploadID] = p
    }
    if int64(p.buf.Len()) != in.Offset { return nil, false, errors.New("out of order chunk") }
    p.buf.Write(in.Data)
    if !in.Final { return nil, false, nil }
    delete(s.uploads, in.UploadID)
    return p.buf.Bytes(), true, nil
}

// Service descriptor and handlers (hand-written, no codegen required)
var _Gateway_serviceDesc = grpc.ServiceDesc{
    ServiceName: serviceName,
    HandlerType: (*gatewayServer)(nil),
    Methods: []grpc.MethodDesc{
        {MethodName: "Call", Handler: _Gateway_Call_Handler},
        {MethodName: "Upload", Handler: _Gateway_Upload_Handler},
        {MethodName: "Status", Handler: _Gateway_Status_Handler},
    },
    Streams: []grpc.StreamDesc{{
        StreamName:    "Push",
        ServerStreams: true,
        Handler:       _Gateway_Push_Handler,
    }},
}

func _Gateway_Call_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(callRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(gatewayServer).Call(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCall}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(gatewayServer).Call(ctx, req.(*callRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func _Gateway_Upload_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(uploadChunk)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(gatewayServer).Upload(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodUpload}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(gatewayServer).Upload(ctx, req.(*uploadChunk))
    }
    return interceptor(ctx, in, info, handler)
}

func _Gateway_Status_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(empty)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(gatewayServer).Status(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStatus}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(gatewayServer).Status(ctx, req.(*empty))
    }
    return interceptor(ctx, in, info, handler)
}

func _Gateway_Push_Handler(srv interface{}, stream grpc.ServerStream) error {
    m := new(pushSubscribe)
    if err := stream.RecvMsg(m); err != nil { return err }
    return srv.(gatewayServer).Push(m, stream)
}

// Start listens on the bind address and serves the gateway. When the backend
// implements PushFeed its pushes are broadcast to Push subscribers.
func (s *Server) Start(ctx context.Context, statusFn transport.StatusFunc) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    s.lis = lis
    // Force JSON codec to avoid requiring protobuf types
    var opts []grpc.ServerOption
    opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
    // keepalive settings for long-lived streams
    opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}))
    opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}))
    if s.tlsCfg != nil { opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg))) }
    srv := grpc.NewServer(opts...)
    s.mu.Lock()
    s.srv = srv
    s.subs = make(map[*pushSub]struct{})
    s.uploads = make(map[string]*pendingUpload)
    s.done = make(chan struct{})
    s.mu.Unlock()
    // Health service (always serving for now)
    healthSrv := health.NewServer()
    healthpb.RegisterHealthServer(srv, healthSrv)
    srv.RegisterService(&_Gateway_serviceDesc, &gatewayImpl{s: s, status: statusFn})

    if feed, ok := s.backend.(PushFeed); ok {
        feed.OnPush(func(key string, payload []byte) { s.Broadcast(key, payload) })
    }

    go func() {
        <-ctx.Done()
        _ = s.Stop(context.Background())
    }()
    go func() {
        if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
            logutil.Errorf(s.logger, "grpc: gateway serve: %v", err)
        }
    }()
    logutil.Infof(s.logger, "grpc: gateway listening on %s", lis.Addr())
    return nil
}

// Addr returns the listening address once started, else the bind address.
func (s *Server) Addr() string {
    if s.lis != nil { return s.lis.Addr().String() }
    return s.bind
}

// Stop ends push streams and stops the server gracefully, falling back to a
// hard stop when ctx is done or after two seconds.
func (s *Server) Stop(ctx context.Context) error {
    s.mu.Lock()
    srv := s.srv
    s.srv = nil
    if srv != nil { close(s.done) }
    s.mu.Unlock()
    if srv == nil { return nil }
    ch := make(chan struct{})
    go func() { srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-ctx.Done():
        srv.Stop()
    case <-time.After(2 * time.Second):
        srv.Stop()
    }
    return nil
}

func (s *Server) addSub(sub *pushSub) bool {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.srv == nil { return false }
    s.subs[sub] = struct{}{}
    obsmetrics.GatewaySubs.Inc()
    return true
}

func (s *Server) removeSub(sub *pushSub) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.subs[sub]; !ok { return }
    delete(s.subs, sub)
    obsmetrics.GatewaySubs.Dec()
}

// Subscribers returns the number of connected push streams.
func (s *Server) Subscribers() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.subs)
}

// Broadcast sends a push event to all active subscribers. Returns count sent.
func (s *Server) Broadcast(key string, payload []byte) int {
    s.mu.Lock()
    subs := make([]*pushSub, 0, len(s.subs))
    for sub := range s.subs { subs = append(subs, sub) }
    s.mu.Unlock()
    msg := &pushEvent{Key: key, Payload: payload}
    cnt := 0
    for _, sub := range subs {
        if err := sub.send(msg); err == nil {
            cnt++
        } else {
            s.removeSub(sub)
        }
    }
    obsmetrics.PushEvents.WithLabelValues("grpc-gateway").Add(float64(cnt))
    return cnt
}
