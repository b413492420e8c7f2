// Package natsrpc implements transport.Session over NATS request/reply.
//
// Subjects, under a configurable prefix:
//
//  <prefix>.req.<cmd>         request/reply
//  <prefix>.uni.<cmd>         one-way publish
//  <prefix>.push.<key>        inbound push events
//  <prefix>.highway.<cmdid>   chunked blob upload, request/reply per chunk
//
// Failed replies carry Error-Code and Error-Message headers.
package natsrpc

import (
    "bytes"
    "context"
    "crypto/tls"
    "encoding/base64"
    "encoding/hex"
    "errors"
    "io"
    "log"
    "strconv"
    "strings"
    "sync/atomic"
    "time"

    "github.com/nats-io/nats.go"

    "github.com/amirimatin/go-groupchat/pkg/errcode"
    "github.com/amirimatin/go-groupchat/pkg/event"
    "github.com/amirimatin/go-groupchat/pkg/internal/logutil"
    "github.com/amirimatin/go-groupchat/pkg/observability/metrics"
    "github.com/amirimatin/go-groupchat/pkg/transport"
)

const (
    HeaderErrorCode    = "Error-Code"
    HeaderErrorMessage = "Error-Message"
    HeaderMD5          = "Md5"
    HeaderSize         = "Size"
    HeaderOffset       = "Offset"
    HeaderExt          = "Ext"

    DefaultPrefix    = "gchat"
    DefaultTimeout   = 5 * time.Second
    DefaultChunkSize = 64 << 10
)

var (
    ErrNoURL = errors.New("natsrpc: missing URL")
    ErrNoUin = errors.New("natsrpc: missing uin")
)

// Options configures a NATS session.
type Options struct {
    URL    string
    Prefix string
    Name   string
    Uin    int64
    SubID  int64
    // Timeout applies to requests issued with a non-positive timeout.
    Timeout       time.Duration
    MaxReconnects int
    ReconnectWait time.Duration
    ChunkSize     int
    TLS           *tls.Config
    Logger        *log.Logger
}

func (o Options) Validate() error {
    if o.URL == "" { return ErrNoURL }
    if o.Uin == 0 { return ErrNoUin }
    return nil
}

func (o Options) withDefaults() Options {
    if o.Prefix == "" { o.Prefix = DefaultPrefix }
    if o.Timeout <= 0 { o.Timeout = DefaultTimeout }
    if o.MaxReconnects == 0 { o.MaxReconnects = 60 }
    if o.ReconnectWait <= 0 { o.ReconnectWait = 2 * time.Second }
    if o.ChunkSize <= 0 { o.ChunkSize = DefaultChunkSize }
    if o.Logger == nil { o.Logger = log.Default() }
    return o
}

// Session is a transport.Session bound to one NATS connection.
type Session struct {
    opts   Options
    nc     *nats.Conn
    owned  bool
    bus    event.Bus
    sub    *nats.Subscription
    closed atomic.Bool
    hook   atomic.Pointer[func(key string, payload []byte)]
}

var _ transport.Session = (*Session)(nil)

// Dial connects to NATS and subscribes to the push subject.
func Dial(opts Options) (*Session, error) {
    if err := opts.Validate(); err != nil { return nil, err }
    opts = opts.withDefaults()
    logger := opts.Logger
    nopts := []nats.Option{
        nats.Name(opts.Name),
        nats.MaxReconnects(opts.MaxReconnects),
        nats.ReconnectWait(opts.ReconnectWait),
        nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
            if err != nil { logutil.Warnf(logger, "natsrpc: disconnected: %v", err) }
        }),
        nats.ReconnectHandler(func(nc *nats.Conn) {
            logutil.Infof(logger, "natsrpc: reconnected to %s", nc.ConnectedUrl())
        }),
        nats.ClosedHandler(func(*nats.Conn) {
            logutil.Debugf(logger, "natsrpc: connection closed")
        }),
    }
    if opts.TLS != nil { nopts = append(nopts, nats.Secure(opts.TLS)) }
    nc, err := nats.Connect(opts.URL, nopts...)
    if err != nil { return nil, err }
    s, err := newSession(nc, opts)
    if err != nil { nc.Close(); return nil, err }
    s.owned = true
    return s, nil
}

// NewWithConn builds a session on an existing connection. Close does not
// close nc.
func NewWithConn(nc *nats.Conn, opts Options) (*Session, error) {
    if opts.Uin == 0 { return nil, ErrNoUin }
    return newSession(nc, opts.withDefaults())
}

func newSession(nc *nats.Conn, opts Options) (*Session, error) {
    s := &Session{opts: opts, nc: nc}
    sub, err := nc.Subscribe(PushWildcard(opts.Prefix), s.onPush)
    if err != nil { return nil, err }
    s.sub = sub
    return s, nil
}

func (s *Session) onPush(msg *nats.Msg) {
    key, ok := PushKey(s.opts.Prefix, msg.Subject)
    if !ok { return }
    metrics.PushEvents.WithLabelValues("nats").Inc()
    s.bus.Emit(key, msg.Data)
    if fn := s.hook.Load(); fn != nil { (*fn)(key, msg.Data) }
}

// OnPush registers a hook invoked for every push after local subscribers.
func (s *Session) OnPush(fn func(key string, payload []byte)) {
    if fn == nil { s.hook.Store(nil); return }
    s.hook.Store(&fn)
}

func (s *Session) Uin() int64   { return s.opts.Uin }
func (s *Session) SubID() int64 { return s.opts.SubID }

func (s *Session) SubscribeOnce(key string, fn func(payload []byte)) { s.bus.SubscribeOnce(key, fn) }
func (s *Session) UnsubscribeAll(key string)                        { s.bus.UnsubscribeAll(key) }

func (s *Session) SendRequest(ctx context.Context, cmd string, body []byte, timeout time.Duration) ([]byte, error) {
    msg := nats.NewMsg(RequestSubject(s.opts.Prefix, cmd))
    msg.Data = body
    rsp, err := s.request(ctx, msg, timeout)
    if err != nil { return nil, err }
    return rsp.Data, nil
}

func (s *Session) SendOneWay(ctx context.Context, cmd string, body []byte) error {
    if s.closed.Load() { return transport.ErrClosed }
    if err := ctx.Err(); err != nil { return err }
    return s.nc.Publish(UniSubject(s.opts.Prefix, cmd), body)
}

// UploadBlob sends r in ChunkSize pieces. Every chunk is acknowledged before
// the next one is sent.
func (s *Session) UploadBlob(ctx context.Context, r io.Reader, meta transport.BlobMeta, progress transport.ProgressFunc) error {
    subject := HighwaySubject(s.opts.Prefix, meta.CommandID)
    buf := make([]byte, s.opts.ChunkSize)
    var offset int64
    for {
        n, rerr := io.ReadFull(r, buf)
        if n > 0 || offset == 0 {
            msg := nats.NewMsg(subject)
            msg.Data = bytes.Clone(buf[:n])
            msg.Header.Set(HeaderMD5, hex.EncodeToString(meta.MD5))
            msg.Header.Set(HeaderSize, strconv.FormatInt(meta.Size, 10))
            msg.Header.Set(HeaderOffset, strconv.FormatInt(offset, 10))
            if len(meta.Ext) > 0 { msg.Header.Set(HeaderExt, base64.StdEncoding.EncodeToString(meta.Ext)) }
            if _, err := s.request(ctx, msg, 0); err != nil { return err }
            offset += int64(n)
            if progress != nil && meta.Size > 0 { progress(min(100, float64(offset)*100/float64(meta.Size))) }
        }
        if rerr == io.EOF || rerr == io.ErrUnexpectedEOF { return nil }
        if rerr != nil { return rerr }
    }
}

func (s *Session) request(ctx context.Context, msg *nats.Msg, timeout time.Duration) (*nats.Msg, error) {
    if s.closed.Load() { return nil, transport.ErrClosed }
    if timeout <= 0 { timeout = s.opts.Timeout }
    ctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()
    rsp, err := s.nc.RequestMsgWithContext(ctx, msg)
    if err != nil { return nil, err }
    if err := ReplyError(rsp.Header); err != nil { return nil, err }
    return rsp, nil
}

func (s *Session) Close() error {
    if !s.closed.CompareAndSwap(false, true) { return nil }
    if s.sub != nil { _ = s.sub.Unsubscribe() }
    if s.owned { s.nc.Close() }
    return nil
}

func RequestSubject(prefix, cmd string) string { return prefix + ".req." + cmd }
func UniSubject(prefix, cmd string) string     { return prefix + ".uni." + cmd }
func PushSubject(prefix, key string) string    { return prefix + ".push." + key }
func PushWildcard(prefix string) string        { return prefix + ".push.>" }
func HighwaySubject(prefix string, cmdID int) string {
    return prefix + ".highway." + strconv.Itoa(cmdID)
}

// PushKey returns the event key carried by a push subject.
func PushKey(prefix, subject string) (string, bool) {
    key, ok := strings.CutPrefix(subject, prefix+".push.")
    if !ok || key == "" { return "", false }
    return key, true
}

// ReplyError maps error headers to an *errcode.Error, or nil.
func ReplyError(h nats.Header) error {
    if h == nil { return nil }
    raw := h.Get(HeaderErrorCode)
    if raw == "" { return nil }
    code, err := strconv.ParseInt(raw, 10, 64)
    if err != nil { code = -1 }
    return errcode.Server(code, h.Get(HeaderErrorMessage))
}

// ErrorHeader encodes err for a reply. Non-protocol errors use code -1.
func ErrorHeader(err error) nats.Header {
    h := nats.Header{}
    var e *errcode.Error
    if errors.As(err, &e) {
        h.Set(HeaderErrorCode, strconv.FormatInt(e.Code, 10))
        h.Set(HeaderErrorMessage, e.Message)
        return h
    }
    h.Set(HeaderErrorCode, "-1")
    h.Set(HeaderErrorMessage, err.Error())
    return h
}
