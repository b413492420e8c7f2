package bootstrap

import (
    "context"
    "encoding/json"
    "errors"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/amirimatin/go-groupchat/pkg/transport/httpjson"
    "github.com/amirimatin/go-groupchat/pkg/transport/loopback"
)

func TestLoadConfigFileAndEnv(t *testing.T) {
    dir := t.TempDir()
    p := filepath.Join(dir, "gchat.yaml")
    yaml := "uin: 10001\ntransport: grpc\ngateway:\n  addr: 10.0.0.1:17950\ncache:\n  roster_size: 64\n  refresh_after: 1m\n"
    if err := os.WriteFile(p, []byte(yaml), 0o600); err != nil { t.Fatal(err) }
    t.Setenv("GCHAT_GATEWAY_ADDR", "10.0.0.2:17950")
    t.Setenv("GCHAT_RESEND", "true")

    cfg, err := LoadConfig(p)
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.Uin != 10001 || cfg.Transport != TransportGRPC { t.Fatalf("file values lost: %+v", cfg) }
    if cfg.Gateway.Addr != "10.0.0.2:17950" || !cfg.Resend { t.Fatalf("env overrides not applied: %+v", cfg) }
    if cfg.Cache.RosterSize != 64 || cfg.Cache.RefreshAfter != time.Minute { t.Fatalf("cache %+v", cfg.Cache) }
    if !cfg.Cache.GroupMember || cfg.NATS.Prefix != "gchat" { t.Fatalf("defaults lost: %+v", cfg) }
}

func TestLoadConfigEnvOnly(t *testing.T) {
    t.Setenv("GCHAT_UIN", "42")
    t.Setenv("GCHAT_TRANSPORT", "loopback")
    cfg, err := LoadConfig("")
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.Uin != 42 || cfg.Transport != TransportLoopback { t.Fatalf("cfg %+v", cfg) }
}

func TestValidateTransport(t *testing.T) {
    cfg := Defaults()
    cfg.Uin = 1
    cfg.Transport = "carrier-pigeon"
    if err := cfg.Validate(); !errors.Is(err, ErrUnknownTransport) { t.Fatalf("got %v", err) }
    cfg.Transport = TransportNATS
    cfg.NATS.URL = ""
    if err := cfg.Validate(); err == nil { t.Fatalf("missing url accepted") }
    cfg.Transport = TransportLoopback
    cfg.Uin = 0
    if err := cfg.Validate(); err == nil { t.Fatalf("missing uin accepted") }
}

func TestRunServesStatus(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    cfg := Defaults()
    cfg.Transport = TransportLoopback
    cfg.Session = loopback.New(10001)
    cfg.MetricsAddr = "127.0.0.1:0"
    n, err := Run(ctx, cfg)
    if err != nil { t.Fatalf("run: %v", err) }
    defer n.Close()
    if n.Client.Uin() != 10001 { t.Fatalf("uin = %d", n.Client.Uin()) }

    b, err := httpjson.NewWebClient(time.Second).GetStatus(ctx, n.Server.Addr())
    if err != nil { t.Fatalf("status: %v", err) }
    var st struct {
        Uin    int64 `json:"uin"`
        Closed bool  `json:"closed"`
    }
    if err := json.Unmarshal(b, &st); err != nil { t.Fatalf("decode: %v", err) }
    if st.Uin != 10001 || st.Closed { t.Fatalf("status %+v", st) }
}

func TestBuildWithoutServer(t *testing.T) {
    cfg := Defaults()
    cfg.Transport = TransportLoopback
    cfg.Uin = 7
    c, err := Build(context.Background(), cfg)
    if err != nil { t.Fatalf("build: %v", err) }
    if c.Uin() != 7 { t.Fatalf("uin = %d", c.Uin()) }
    if err := c.Close(); err != nil { t.Fatalf("close: %v", err) }
}

func TestGatewayResolver(t *testing.T) {
    g := GatewayConfig{Addr: "a:1, b:2"}
    r, err := g.Resolver()
    if err != nil { t.Fatalf("static: %v", err) }
    if eps := r.Endpoints(context.Background()); len(eps) != 2 || eps[0] != "a:1" { t.Fatalf("endpoints %v", eps) }

    t.Setenv("TEST_GCHAT_GW", "c:3")
    r, err = GatewayConfig{Discovery: "file", FileEnv: "TEST_GCHAT_GW"}.Resolver()
    if err != nil { t.Fatalf("file: %v", err) }
    if eps := r.Endpoints(context.Background()); len(eps) != 1 || eps[0] != "c:3" { t.Fatalf("endpoints %v", eps) }

    if _, err := (GatewayConfig{Discovery: "file"}).Resolver(); err == nil { t.Fatalf("file without source accepted") }
    if _, err := (GatewayConfig{Discovery: "mdns"}).Resolver(); err == nil { t.Fatalf("unknown discovery accepted") }
}
