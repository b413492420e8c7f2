// Package rpc binds a transport session to the wire codecs and provides the
// request shapes used by group operations: plain unary, Oidb-enveloped,
// one-way and legacy-struct calls.
package rpc

import (
    "context"
    "errors"
    "strconv"
    "strings"
    "time"

    "github.com/amirimatin/go-groupchat/pkg/codec"
    "github.com/amirimatin/go-groupchat/pkg/errcode"
    "github.com/amirimatin/go-groupchat/pkg/observability/metrics"
    "github.com/amirimatin/go-groupchat/pkg/observability/tracing"
    "github.com/amirimatin/go-groupchat/pkg/transport"
)

var (
    ErrNilSession = errors.New("rpc: nil session")
    ErrNilCodec   = errors.New("rpc: nil codec")
    ErrBadBody    = errors.New("rpc: oidb body must be a codec.Tree or []byte")
)

// DefaultVersion is the client version stamped into Oidb envelopes.
const DefaultVersion = "8.4.1"

// Caller issues requests over a Session.
type Caller struct {
    Session transport.Session
    Codec   codec.Codec
    Struct  codec.StructCodec
    // Version is sent as "android <Version>" in Oidb envelopes.
    Version string
}

// New returns a Caller. structs may be nil if no legacy calls are made.
func New(s transport.Session, c codec.Codec, structs codec.StructCodec) (*Caller, error) {
    if s == nil { return nil, ErrNilSession }
    if c == nil { return nil, ErrNilCodec }
    return &Caller{Session: s, Codec: c, Struct: structs, Version: DefaultVersion}, nil
}

// Uin is the session account id.
func (c *Caller) Uin() int64 { return c.Session.Uin() }

// Uni sends an encoded tree to cmd and decodes the response.
func (c *Caller) Uni(ctx context.Context, cmd string, body codec.Tree, timeout time.Duration) (codec.Tree, error) {
    b, err := c.Codec.Encode(body)
    if err != nil { return nil, err }
    ctx, end := tracing.StartSpan(ctx, "rpc."+cmd)
    defer end()
    payload, err := c.request(ctx, cmd, b, timeout)
    if err != nil { return nil, err }
    return c.Codec.Decode(payload)
}

// Oidb wraps body in the Oidb envelope and returns the decoded response
// envelope. The service payload is at tag 4.
func (c *Caller) Oidb(ctx context.Context, cmd string, body any) (codec.Tree, error) {
    var inner any
    switch v := body.(type) {
    case codec.Tree:
        b, err := c.Codec.Encode(v)
        if err != nil { return nil, err }
        inner = b
    case []byte:
        inner = v
    default:
        return nil, ErrBadBody
    }
    t1, t2 := ParseOidbType(cmd)
    env := codec.Tree{1: t1, 2: t2, 3: 0, 4: inner, 6: "android " + c.version()}
    b, err := c.Codec.Encode(env)
    if err != nil { return nil, err }
    ctx, end := tracing.StartSpan(ctx, "rpc."+cmd, "oidb.type", strconv.FormatInt(t1, 16))
    defer end()
    payload, err := c.request(ctx, cmd, b, 0)
    if err != nil { return nil, err }
    rsp, err := c.Codec.Decode(payload)
    if err != nil { return nil, err }
    // Servers answer with the service payload encoded inside tag 4.
    if raw, ok := rsp[4].([]byte); ok {
        if sub, err := c.Codec.Decode(raw); err == nil { rsp[4] = sub }
    }
    return rsp, nil
}

// OneWay sends an encoded tree without waiting for a response.
func (c *Caller) OneWay(ctx context.Context, cmd string, body codec.Tree) error {
    b, err := c.Codec.Encode(body)
    if err != nil { return err }
    ctx, end := tracing.StartSpan(ctx, "rpc."+cmd, "oneway", "true")
    defer end()
    start := time.Now()
    err = c.Session.SendOneWay(ctx, cmd, b)
    observe(cmd, start, err)
    return err
}

// Legacy encodes s as a named legacy struct inside a servant wrapper and
// decodes the wrapped response struct.
func (c *Caller) Legacy(ctx context.Context, cmd, servant, method, name string, s codec.Struct, timeout time.Duration) (codec.Tree, error) {
    if c.Struct == nil { return nil, ErrNilCodec }
    inner, err := c.Struct.EncodeStruct(s)
    if err != nil { return nil, err }
    b, err := c.Struct.EncodeWrapper(servant, method, name, inner)
    if err != nil { return nil, err }
    ctx, end := tracing.StartSpan(ctx, "rpc."+cmd, "servant", servant)
    defer end()
    payload, err := c.request(ctx, cmd, b, timeout)
    if err != nil { return nil, err }
    return c.Struct.DecodeWrapper(payload)
}

func (c *Caller) request(ctx context.Context, cmd string, b []byte, timeout time.Duration) ([]byte, error) {
    start := time.Now()
    payload, err := c.Session.SendRequest(ctx, cmd, b, timeout)
    observe(cmd, start, err)
    return payload, err
}

func (c *Caller) version() string {
    if c.Version == "" { return DefaultVersion }
    return c.Version
}

func observe(cmd string, start time.Time, err error) {
    metrics.RPCRequests.WithLabelValues(cmd, metrics.Result(err)).Inc()
    metrics.RPCDuration.WithLabelValues(cmd).Observe(time.Since(start).Seconds())
}

// ParseOidbType extracts the service type pair from command names such as
// "OidbSvc.0x88d_0" or "OidbSvc.oidb_0x758". The second part defaults to 1.
// Names without a hex service id yield 0, 0.
func ParseOidbType(cmd string) (int64, int64) {
    name := cmd
    if i := strings.IndexByte(name, '.'); i >= 0 { name = name[i+1:] }
    name = strings.TrimPrefix(name, "oidb_")
    head, tail, hasTail := strings.Cut(name, "_")
    if !strings.HasPrefix(head, "0x") { return 0, 0 }
    t1, err := strconv.ParseInt(head[2:], 16, 64)
    if err != nil { return 0, 0 }
    if !hasTail { return t1, 1 }
    t2, err := strconv.ParseInt(tail, 10, 64)
    if err != nil { return t1, 1 }
    return t1, t2
}

// CheckStatus returns a server error when t carries a non-zero status at
// tag 1; the message is read from tag 2. A missing status counts as success.
func CheckStatus(t codec.Tree) error {
    if code := t.Int(1); code != 0 {
        return errcode.Server(code, t.String(2))
    }
    return nil
}
