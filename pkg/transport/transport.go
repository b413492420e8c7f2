package transport

import (
    "context"
    "errors"
    "io"
    "time"
)

var ErrClosed = errors.New("transport: session closed")

// EventSource delivers out-of-band push events keyed by topic. Handlers
// registered with SubscribeOnce fire at most once.
type EventSource interface {
    SubscribeOnce(key string, fn func(payload []byte))
    UnsubscribeAll(key string)
}

// BlobMeta describes one large-binary transfer.
type BlobMeta struct {
    CommandID int
    MD5       []byte
    Size      int64
    // Ext is the encoded, command-specific extension block.
    Ext []byte
}

// ProgressFunc receives upload progress in percent (0..100).
type ProgressFunc func(percent float64)

// Session is an authenticated connection to the group-chat backend. It
// dispatches requests by command name and surfaces push events.
type Session interface {
    EventSource

    // Uin is the account id the session is authenticated as.
    Uin() int64
    // SubID is the client application sub id expected by some commands.
    SubID() int64

    // SendRequest sends body to cmd and returns the response payload. A
    // timeout <= 0 uses the session default.
    SendRequest(ctx context.Context, cmd string, body []byte, timeout time.Duration) ([]byte, error)
    // SendOneWay sends body to cmd without waiting for a response.
    SendOneWay(ctx context.Context, cmd string, body []byte) error
    // UploadBlob streams r through the large-binary channel.
    UploadBlob(ctx context.Context, r io.Reader, meta BlobMeta, progress ProgressFunc) error

    Close() error
}

// WebCredentials carry the cookies and tokens needed by auxiliary web
// endpoints.
type WebCredentials interface {
    Cookie(domain string) string
    Bkn() int64
    SKey() string
}

// StatusFunc returns a JSON-encoded status payload for the /status endpoint.
type StatusFunc func(ctx context.Context) ([]byte, error)

// StaticCredentials is a fixed WebCredentials value.
type StaticCredentials struct {
    Cookies map[string]string
    BknVal  int64
    SKeyVal string
}

func (s StaticCredentials) Cookie(domain string) string { return s.Cookies[domain] }
func (s StaticCredentials) Bkn() int64                  { return s.BknVal }
func (s StaticCredentials) SKey() string                { return s.SKeyVal }

var _ WebCredentials = StaticCredentials{}
