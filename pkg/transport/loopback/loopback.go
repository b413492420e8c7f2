// Package loopback provides an in-memory transport.Session. Requests are
// served by per-command handlers registered in process; pushes are injected
// with Push. It backs protocol tests and the CLI demo mode.
package loopback

import (
    "context"
    "fmt"
    "io"
    "sync"
    "time"

    "github.com/amirimatin/go-groupchat/pkg/event"
    "github.com/amirimatin/go-groupchat/pkg/transport"
)

// Handler serves one request.
type Handler func(ctx context.Context, cmd string, body []byte) ([]byte, error)

// UploadHandler serves one blob upload.
type UploadHandler func(ctx context.Context, data []byte, meta transport.BlobMeta) error

// Call is a recorded request.
type Call struct {
    Cmd     string
    Body    []byte
    Timeout time.Duration
    OneWay  bool
}

// Upload is a recorded blob transfer.
type Upload struct {
    Meta transport.BlobMeta
    Data []byte
}

// Session is an in-memory transport.Session.
type Session struct {
    bus   event.Bus
    uin   int64
    subid int64

    mu       sync.Mutex
    handlers map[string]Handler
    fallback Handler
    onUpload UploadHandler
    onPush   func(key string, payload []byte)
    calls    []Call
    uploads  []Upload
    closed   bool
}

// New returns a session authenticated as uin.
func New(uin int64) *Session {
    return &Session{uin: uin, subid: 537044845, handlers: make(map[string]Handler)}
}

var _ transport.Session = (*Session)(nil)

func (s *Session) Uin() int64   { return s.uin }
func (s *Session) SubID() int64 { return s.subid }

// Handle registers h for cmd, replacing any previous handler.
func (s *Session) Handle(cmd string, h Handler) {
    s.mu.Lock()
    s.handlers[cmd] = h
    s.mu.Unlock()
}

// HandleDefault registers h for commands without a dedicated handler.
func (s *Session) HandleDefault(h Handler) {
    s.mu.Lock()
    s.fallback = h
    s.mu.Unlock()
}

// HandleUpload registers the blob upload handler.
func (s *Session) HandleUpload(h UploadHandler) {
    s.mu.Lock()
    s.onUpload = h
    s.mu.Unlock()
}

// OnPush registers a hook invoked for every pushed event, after local
// subscribers ran. Gateways use it to forward pushes.
func (s *Session) OnPush(fn func(key string, payload []byte)) {
    s.mu.Lock()
    s.onPush = fn
    s.mu.Unlock()
}

func (s *Session) SubscribeOnce(key string, fn func(payload []byte)) { s.bus.SubscribeOnce(key, fn) }
func (s *Session) UnsubscribeAll(key string)                        { s.bus.UnsubscribeAll(key) }

// Pending returns how many subscribers wait on key.
func (s *Session) Pending(key string) int { return s.bus.Pending(key) }

// Push delivers a push event and returns the number of local handlers fired.
func (s *Session) Push(key string, payload []byte) int {
    n := s.bus.Emit(key, payload)
    s.mu.Lock()
    fn := s.onPush
    s.mu.Unlock()
    if fn != nil { fn(key, payload) }
    return n
}

func (s *Session) SendRequest(ctx context.Context, cmd string, body []byte, timeout time.Duration) ([]byte, error) {
    h, err := s.record(Call{Cmd: cmd, Body: body, Timeout: timeout})
    if err != nil { return nil, err }
    if timeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, timeout)
        defer cancel()
    }
    return h(ctx, cmd, body)
}

func (s *Session) SendOneWay(ctx context.Context, cmd string, body []byte) error {
    h, err := s.record(Call{Cmd: cmd, Body: body, OneWay: true})
    if err != nil { return err }
    _, err = h(ctx, cmd, body)
    return err
}

func (s *Session) UploadBlob(ctx context.Context, r io.Reader, meta transport.BlobMeta, progress transport.ProgressFunc) error {
    data, err := io.ReadAll(r)
    if err != nil { return err }
    s.mu.Lock()
    if s.closed { s.mu.Unlock(); return transport.ErrClosed }
    s.uploads = append(s.uploads, Upload{Meta: meta, Data: data})
    h := s.onUpload
    s.mu.Unlock()
    if h != nil {
        if err := h(ctx, data, meta); err != nil { return err }
    }
    if progress != nil { progress(100) }
    return nil
}

func (s *Session) record(c Call) (Handler, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed { return nil, transport.ErrClosed }
    s.calls = append(s.calls, c)
    if h, ok := s.handlers[c.Cmd]; ok { return h, nil }
    if s.fallback != nil { return s.fallback, nil }
    return func(context.Context, string, []byte) ([]byte, error) {
        return nil, fmt.Errorf("loopback: no handler for %s", c.Cmd)
    }, nil
}

// Calls returns the recorded requests for cmd, or all when cmd is empty.
func (s *Session) Calls(cmd string) []Call {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []Call
    for _, c := range s.calls {
        if cmd == "" || c.Cmd == cmd { out = append(out, c) }
    }
    return out
}

// Uploads returns the recorded blob transfers.
func (s *Session) Uploads() []Upload {
    s.mu.Lock()
    defer s.mu.Unlock()
    return append([]Upload(nil), s.uploads...)
}

func (s *Session) Close() error {
    s.mu.Lock()
    s.closed = true
    s.mu.Unlock()
    return nil
}
