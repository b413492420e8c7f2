// Package bootstrap assembles a group-chat client from configuration:
// transport selection, codecs, TLS, the optional redis cache mirror and the
// status/metrics server.
package bootstrap

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "strings"
    "time"

    "github.com/spf13/viper"

    "github.com/amirimatin/go-groupchat/pkg/cache"
    "github.com/amirimatin/go-groupchat/pkg/cache/redismirror"
    "github.com/amirimatin/go-groupchat/pkg/client"
    "github.com/amirimatin/go-groupchat/pkg/codec/cbor"
    "github.com/amirimatin/go-groupchat/pkg/discovery"
    "github.com/amirimatin/go-groupchat/pkg/discovery/dns"
    "github.com/amirimatin/go-groupchat/pkg/discovery/file"
    "github.com/amirimatin/go-groupchat/pkg/discovery/static"
    "github.com/amirimatin/go-groupchat/pkg/internal/logutil"
    "github.com/amirimatin/go-groupchat/pkg/observability/metrics"
    tlsx "github.com/amirimatin/go-groupchat/pkg/security/tlsconfig"
    "github.com/amirimatin/go-groupchat/pkg/transport"
    gw "github.com/amirimatin/go-groupchat/pkg/transport/grpc"
    "github.com/amirimatin/go-groupchat/pkg/transport/httpjson"
    "github.com/amirimatin/go-groupchat/pkg/transport/loopback"
    "github.com/amirimatin/go-groupchat/pkg/transport/natsrpc"
)

const (
    TransportNATS     = "nats"
    TransportGRPC     = "grpc"
    TransportLoopback = "loopback"

    // EnvPrefix prefixes environment overrides, e.g. GCHAT_NATS_URL.
    EnvPrefix = "GCHAT"
)

var ErrUnknownTransport = errors.New("bootstrap: unknown transport (want nats|grpc|loopback)")

type NATSConfig struct {
    URL    string `mapstructure:"url"`
    Prefix string `mapstructure:"prefix"`
    Name   string `mapstructure:"name"`
}

type GatewayConfig struct {
    // Addr is the gateway dialed by the grpc transport. With discovery
    // "static" it may list several endpoints, comma-separated; with "dns" it
    // lists SRV or host names.
    Addr string `mapstructure:"addr"`
    // Bind is where the gateway command listens.
    Bind string `mapstructure:"bind"`
    // Discovery is static (default), dns or file.
    Discovery string        `mapstructure:"discovery"`
    DNSPort   int           `mapstructure:"dns_port"`
    File      string        `mapstructure:"file"`
    FileEnv   string        `mapstructure:"file_env"`
    Refresh   time.Duration `mapstructure:"refresh"`
}

// Resolver returns the endpoint resolver selected by Discovery.
func (g GatewayConfig) Resolver() (discovery.Resolver, error) {
    switch g.Discovery {
    case "", "static":
        return static.Parse(g.Addr), nil
    case "dns":
        return dns.New(dns.Options{Names: discovery.ParseList(g.Addr), Port: g.DNSPort, Refresh: g.Refresh}), nil
    case "file":
        if g.File == "" && g.FileEnv == "" { return nil, errors.New("bootstrap: gateway discovery file needs gateway.file or gateway.file_env") }
        return file.New(file.Options{Path: g.File, Env: g.FileEnv, Refresh: g.Refresh}), nil
    }
    return nil, fmt.Errorf("bootstrap: unknown gateway discovery %q (want static|dns|file)", g.Discovery)
}

type TLSConfig struct {
    Enable     bool          `mapstructure:"enable"`
    CA         string        `mapstructure:"ca"`
    Cert       string        `mapstructure:"cert"`
    Key        string        `mapstructure:"key"`
    ServerName string        `mapstructure:"server_name"`
    SkipVerify bool          `mapstructure:"skip_verify"`
    Reload     time.Duration `mapstructure:"reload"`
}

// Options converts the file paths into tlsconfig options.
func (t TLSConfig) Options() tlsx.Options {
    return tlsx.Options{Enable: t.Enable, CAFile: t.CA, CertFile: t.Cert, KeyFile: t.Key, InsecureSkipVerify: t.SkipVerify, ServerName: t.ServerName, Reload: t.Reload}
}

type CacheConfig struct {
    GroupMember  bool          `mapstructure:"group_member"`
    GroupSize    int           `mapstructure:"group_size"`
    RosterSize   int           `mapstructure:"roster_size"`
    RefreshAfter time.Duration `mapstructure:"refresh_after"`
}

type RedisConfig struct {
    Addr     string        `mapstructure:"addr"`
    Password string        `mapstructure:"password"`
    DB       int           `mapstructure:"db"`
    TTL      time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
    JSON  bool `mapstructure:"json"`
    Debug bool `mapstructure:"debug"`
}

// Config defines the inputs needed to assemble a client. LoadConfig fills it
// from YAML and GCHAT_* environment variables; applications may also build
// it directly.
type Config struct {
    Uin       int64         `mapstructure:"uin"`
    SubID     int64         `mapstructure:"subid"`
    Transport string        `mapstructure:"transport"`
    Timeout   time.Duration `mapstructure:"timeout"`
    Resend    bool          `mapstructure:"resend"`
    Workers   int           `mapstructure:"workers"`

    NATS    NATSConfig    `mapstructure:"nats"`
    Gateway GatewayConfig `mapstructure:"gateway"`
    TLS     TLSConfig     `mapstructure:"tls"`
    Cache   CacheConfig   `mapstructure:"cache"`
    Redis   RedisConfig   `mapstructure:"redis"`
    Log     LogConfig     `mapstructure:"log"`

    // MetricsAddr serves /status, /healthz and /metrics when set.
    MetricsAddr string `mapstructure:"metrics_addr"`

    // Logger (optional). If nil, log.Default() is used.
    Logger *log.Logger `mapstructure:"-"`
    // Session overrides transport selection, e.g. with a prepared loopback.
    Session transport.Session `mapstructure:"-"`
}

// Defaults returns the configuration used for keys absent from file and env.
func Defaults() Config {
    return Config{
        Transport: TransportNATS,
        Timeout:   natsrpc.DefaultTimeout,
        Workers:   4,
        NATS:      NATSConfig{URL: "nats://127.0.0.1:4222", Prefix: natsrpc.DefaultPrefix, Name: "gchat"},
        Gateway:   GatewayConfig{Addr: "127.0.0.1:17950", Bind: ":17950", Discovery: "static", DNSPort: dns.DefaultPort, Refresh: 5 * time.Second},
        Cache:     CacheConfig{GroupMember: true, GroupSize: cache.DefaultSize, RosterSize: cache.DefaultSize, RefreshAfter: client.DefaultRefreshAfter},
        Redis:     RedisConfig{TTL: 24 * time.Hour},
    }
}

// Validate checks the transport kind and per-transport requirements.
func (c Config) Validate() error {
    switch c.Transport {
    case TransportNATS:
        if c.Session == nil && c.NATS.URL == "" { return natsrpc.ErrNoURL }
    case TransportGRPC:
        if c.Session == nil && c.Gateway.Addr == "" && c.Gateway.Discovery != "file" { return gw.ErrNoAddr }
        if _, err := c.Gateway.Resolver(); err != nil { return err }
    case TransportLoopback:
    default:
        return fmt.Errorf("%w: %q", ErrUnknownTransport, c.Transport)
    }
    if c.Session == nil && c.Uin == 0 { return errors.New("bootstrap: missing uin") }
    return c.TLS.Options().Validate()
}

// LoadConfig is ReadConfig followed by Validate.
func LoadConfig(path string) (Config, error) {
    cfg, err := ReadConfig(path)
    if err != nil { return Config{}, err }
    if err := cfg.Validate(); err != nil { return Config{}, err }
    return cfg, nil
}

// ReadConfig reads path (optional, YAML) over Defaults and applies GCHAT_*
// environment overrides. Nested keys map with '.' replaced by '_', so
// nats.url is GCHAT_NATS_URL.
func ReadConfig(path string) (Config, error) {
    v := viper.New()
    setDefaults(v, Defaults())
    v.SetEnvPrefix(EnvPrefix)
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    v.AutomaticEnv()
    if path != "" {
        v.SetConfigFile(path)
        v.SetConfigType("yaml")
        if err := v.ReadInConfig(); err != nil { return Config{}, fmt.Errorf("bootstrap: read config: %w", err) }
    }
    var cfg Config
    if err := v.Unmarshal(&cfg); err != nil { return Config{}, fmt.Errorf("bootstrap: decode config: %w", err) }
    return cfg, nil
}

// setDefaults registers every key so AutomaticEnv applies during Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
    v.SetDefault("uin", d.Uin)
    v.SetDefault("subid", d.SubID)
    v.SetDefault("transport", d.Transport)
    v.SetDefault("timeout", d.Timeout)
    v.SetDefault("resend", d.Resend)
    v.SetDefault("workers", d.Workers)
    v.SetDefault("metrics_addr", d.MetricsAddr)
    v.SetDefault("nats.url", d.NATS.URL)
    v.SetDefault("nats.prefix", d.NATS.Prefix)
    v.SetDefault("nats.name", d.NATS.Name)
    v.SetDefault("gateway.addr", d.Gateway.Addr)
    v.SetDefault("gateway.bind", d.Gateway.Bind)
    v.SetDefault("gateway.discovery", d.Gateway.Discovery)
    v.SetDefault("gateway.dns_port", d.Gateway.DNSPort)
    v.SetDefault("gateway.file", d.Gateway.File)
    v.SetDefault("gateway.file_env", d.Gateway.FileEnv)
    v.SetDefault("gateway.refresh", d.Gateway.Refresh)
    v.SetDefault("tls.enable", d.TLS.Enable)
    v.SetDefault("tls.ca", d.TLS.CA)
    v.SetDefault("tls.cert", d.TLS.Cert)
    v.SetDefault("tls.key", d.TLS.Key)
    v.SetDefault("tls.server_name", d.TLS.ServerName)
    v.SetDefault("tls.skip_verify", d.TLS.SkipVerify)
    v.SetDefault("tls.reload", d.TLS.Reload)
    v.SetDefault("cache.group_member", d.Cache.GroupMember)
    v.SetDefault("cache.group_size", d.Cache.GroupSize)
    v.SetDefault("cache.roster_size", d.Cache.RosterSize)
    v.SetDefault("cache.refresh_after", d.Cache.RefreshAfter)
    v.SetDefault("redis.addr", d.Redis.Addr)
    v.SetDefault("redis.password", d.Redis.Password)
    v.SetDefault("redis.db", d.Redis.DB)
    v.SetDefault("redis.ttl", d.Redis.TTL)
    v.SetDefault("log.json", d.Log.JSON)
    v.SetDefault("log.debug", d.Log.Debug)
}

// Session opens the backend session selected by cfg.Transport.
func Session(cfg Config) (transport.Session, error) {
    if cfg.Session != nil { return cfg.Session, nil }
    var cliTLS *tls.Config
    if cfg.TLS.Enable {
        c, err := cfg.TLS.Options().Client()
        if err != nil { return nil, err }
        cliTLS = c
    }
    switch cfg.Transport {
    case TransportNATS:
        return natsrpc.Dial(natsrpc.Options{
            URL:     cfg.NATS.URL,
            Prefix:  cfg.NATS.Prefix,
            Name:    cfg.NATS.Name,
            Uin:     cfg.Uin,
            SubID:   cfg.SubID,
            Timeout: cfg.Timeout,
            TLS:     cliTLS,
            Logger:  cfg.Logger,
        })
    case TransportGRPC:
        res, err := cfg.Gateway.Resolver()
        if err != nil { return nil, err }
        return gw.NewClient(gw.ClientOptions{
            Resolver: res,
            Uin:      cfg.Uin,
            SubID:    cfg.SubID,
            Timeout:  cfg.Timeout,
            TLS:      cliTLS,
            Logger:   cfg.Logger,
        })
    case TransportLoopback:
        return loopback.New(cfg.Uin), nil
    }
    return nil, ErrUnknownTransport
}

// Build assembles a client from cfg without serving anything.
func Build(ctx context.Context, cfg Config) (*client.Client, error) {
    if cfg.Logger == nil { cfg.Logger = log.Default() }
    if err := cfg.Validate(); err != nil { return nil, err }
    if cfg.Log.JSON { logutil.SetJSON(true) }
    if cfg.Log.Debug { logutil.SetDebug(true) }
    metrics.Register()

    codec, err := cbor.New()
    if err != nil { return nil, err }
    sess, err := Session(cfg)
    if err != nil { return nil, err }

    opts := client.DefaultOptions()
    opts.Session = sess
    opts.Codec = codec
    opts.StructCodec = codec
    opts.Logger = cfg.Logger
    opts.CacheGroupMember = cfg.Cache.GroupMember
    opts.Resend = cfg.Resend
    if cfg.Cache.GroupSize > 0 { opts.GroupCacheSize = cfg.Cache.GroupSize }
    if cfg.Cache.RosterSize > 0 { opts.RosterCacheSize = cfg.Cache.RosterSize }
    if cfg.Cache.RefreshAfter > 0 { opts.RefreshAfter = cfg.Cache.RefreshAfter }
    if cfg.Workers > 0 { opts.Workers = cfg.Workers }

    if cfg.Redis.Addr != "" {
        m, err := redismirror.New(redismirror.Options{
            Addr:     cfg.Redis.Addr,
            Password: cfg.Redis.Password,
            DB:       cfg.Redis.DB,
            Uin:      sess.Uin(),
            TTL:      cfg.Redis.TTL,
            Logger:   cfg.Logger,
        })
        if err != nil { _ = sess.Close(); return nil, err }
        pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
        perr := m.Ping(pctx)
        cancel()
        if perr != nil { logutil.Warnf(cfg.Logger, "bootstrap: redis mirror %s unreachable: %v", cfg.Redis.Addr, perr) }
        opts.Observer = m
    }

    c, err := client.New(ctx, opts)
    if err != nil {
        _ = sess.Close()
        if cl, ok := opts.Observer.(*redismirror.Mirror); ok { _ = cl.Close() }
        return nil, err
    }
    logutil.Infof(cfg.Logger, "bootstrap: client ready uin=%d transport=%s", sess.Uin(), cfg.Transport)
    return c, nil
}

// Node is a running client with its optional status server.
type Node struct {
    Client *client.Client
    Server *httpjson.Server
}

// StatusFunc renders the client snapshot for /status.
func StatusFunc(c *client.Client) transport.StatusFunc {
    return func(ctx context.Context) ([]byte, error) {
        st, err := c.Status(ctx)
        if err != nil { return nil, err }
        return json.Marshal(st)
    }
}

// Run builds the client and starts the status/metrics server when
// cfg.MetricsAddr is set. The caller is responsible for calling Close.
func Run(ctx context.Context, cfg Config) (*Node, error) {
    c, err := Build(ctx, cfg)
    if err != nil { return nil, err }
    n := &Node{Client: c}
    if cfg.MetricsAddr == "" { return n, nil }
    if cfg.Logger == nil { cfg.Logger = log.Default() }
    srv := httpjson.NewServer(cfg.MetricsAddr, cfg.Logger)
    if cfg.TLS.Enable && cfg.TLS.Cert != "" {
        s, err := cfg.TLS.Options().Server()
        if err != nil { _ = c.Close(); return nil, err }
        srv.UseTLS(s)
    }
    if err := srv.Start(ctx, StatusFunc(c)); err != nil { _ = c.Close(); return nil, err }
    n.Server = srv
    return n, nil
}

// Close stops the status server and closes the client.
func (n *Node) Close() error {
    if n.Server != nil {
        ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        _ = n.Server.Stop(ctx)
        cancel()
    }
    return n.Client.Close()
}
