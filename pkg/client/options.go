package client

import (
    "errors"
    "log"
    "time"

    "github.com/amirimatin/go-groupchat/pkg/cache"
    "github.com/amirimatin/go-groupchat/pkg/codec"
    "github.com/amirimatin/go-groupchat/pkg/message"
    "github.com/amirimatin/go-groupchat/pkg/transport"
    "github.com/amirimatin/go-groupchat/pkg/transport/httpjson"
)

// DefaultRefreshAfter is how old a cached record may get before an accessor
// schedules a background refresh.
const DefaultRefreshAfter = 900 * time.Second

// SendTimeouts bound the wait for a send confirmation push.
type SendTimeouts struct {
    // Resend applies to every send when the fragmented fallback is enabled.
    Resend time.Duration
    // Short applies to content up to ShortLength, Long to anything longer.
    Short       time.Duration
    Long        time.Duration
    ShortLength int
    // Fragments is the wait after a fragmented send.
    Fragments time.Duration
}

// DefaultSendTimeouts returns the stock confirmation timeouts.
func DefaultSendTimeouts() SendTimeouts {
    return SendTimeouts{
        Resend:      5000 * time.Millisecond,
        Short:       2000 * time.Millisecond,
        Long:        500 * time.Millisecond,
        ShortLength: 80,
        Fragments:   5000 * time.Millisecond,
    }
}

func (t SendTimeouts) pick(resend bool, length int) time.Duration {
    if resend { return t.Resend }
    if length <= t.ShortLength { return t.Short }
    return t.Long
}

// Options carries the collaborators and tuning of a Client. Instances are
// typically produced from bootstrap.Config.
type Options struct {
    // Session is the authenticated backend connection (required).
    Session transport.Session
    // Codec and StructCodec encode the tag/value and legacy formats (required).
    Codec       codec.Codec
    StructCodec codec.StructCodec
    // Converter builds message payloads. Defaults to message.TextConverter.
    Converter message.Converter
    // Web and HTTP serve the auxiliary web endpoints (optional).
    Web  transport.WebCredentials
    HTTP *httpjson.WebClient
    // Logger defaults to log.Default().
    Logger *log.Logger

    // CacheGroupMember keeps rosters cached after a fetch.
    CacheGroupMember bool
    // Resend enables the fragmented fallback when a send is not confirmed.
    Resend       bool
    RefreshAfter time.Duration
    SendTimeouts SendTimeouts

    GroupCacheSize  int
    RosterCacheSize int
    // Workers and QueueSize size the pool running detached tasks.
    Workers   int
    QueueSize int
    // Observer is told about cache writes and drops (optional).
    Observer cache.Observer
    // Version is stamped into Oidb envelopes.
    Version string

    // Now overrides the clock, for tests.
    Now func() time.Time
}

// DefaultOptions returns Options with defaults for everything but the
// required collaborators.
func DefaultOptions() Options {
    return Options{
        CacheGroupMember: true,
        RefreshAfter:     DefaultRefreshAfter,
        SendTimeouts:     DefaultSendTimeouts(),
        GroupCacheSize:   cache.DefaultSize,
        RosterCacheSize:  cache.DefaultSize,
        Workers:          4,
        QueueSize:        256,
    }
}

// Validate performs a minimal validation of Options. It is safe to call
// before New.
func (o Options) Validate() error {
    if o.Session == nil { return ErrNilSession }
    if o.Codec == nil { return ErrNilCodec }
    if o.StructCodec == nil { return ErrNilStructCodec }
    if o.GroupCacheSize < 0 || o.RosterCacheSize < 0 { return errors.New("groupchat: negative cache size") }
    if o.RefreshAfter < 0 { return errors.New("groupchat: negative RefreshAfter") }
    return nil
}

func (o Options) withDefaults() Options {
    d := DefaultOptions()
    if o.Converter == nil { o.Converter = message.TextConverter{} }
    if o.Logger == nil { o.Logger = log.Default() }
    if o.RefreshAfter == 0 { o.RefreshAfter = d.RefreshAfter }
    if o.SendTimeouts == (SendTimeouts{}) { o.SendTimeouts = d.SendTimeouts }
    if o.Workers <= 0 { o.Workers = d.Workers }
    if o.QueueSize <= 0 { o.QueueSize = d.QueueSize }
    if o.Web != nil && o.HTTP == nil { o.HTTP = httpjson.NewWebClient(httpjson.DefaultTimeout) }
    if o.Now == nil { o.Now = time.Now }
    return o
}
