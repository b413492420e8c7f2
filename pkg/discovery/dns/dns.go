package dns

import (
    "context"
    "net"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/amirimatin/go-groupchat/pkg/discovery"
)

// Options configures DNS-based gateway resolution.
type Options struct {
    // Names are SRV records or hostnames to resolve, e.g.
    // "_gchat._tcp.example.com" (SRV) or "gw.example.com" (A/AAAA).
    // Entries already in host:port form are used as-is.
    Names []string
    // Port is used for A/AAAA answers, which carry none.
    Port int
    // Refresh controls cache staleness; if zero, defaults to 5s.
    Refresh time.Duration
    // Resolver optionally overrides the DNS resolver used.
    Resolver *net.Resolver
}

// DefaultPort is the gateway port assumed for A/AAAA answers.
const DefaultPort = 17950

type impl struct {
    opts  Options
    mu    sync.Mutex
    last  time.Time
    cache []string
}

// New returns a DNS-backed Resolver that caches answers for Refresh. A failed
// lookup keeps serving the previous answer.
func New(opts Options) discovery.Resolver {
    if opts.Refresh <= 0 { opts.Refresh = 5 * time.Second }
    if opts.Port == 0 { opts.Port = DefaultPort }
    if opts.Resolver == nil { opts.Resolver = net.DefaultResolver }
    return &impl{opts: opts}
}

func (d *impl) Endpoints(ctx context.Context) []string {
    d.mu.Lock()
    defer d.mu.Unlock()
    if time.Since(d.last) < d.opts.Refresh && len(d.cache) > 0 {
        return append([]string(nil), d.cache...)
    }
    if res := d.resolveAll(ctx); len(res) > 0 || len(d.cache) == 0 {
        d.cache = res
        d.last = time.Now()
    }
    return append([]string(nil), d.cache...)
}

func (d *impl) resolveAll(ctx context.Context) []string {
    var out []string
    for _, name := range d.opts.Names {
        name = strings.TrimSpace(name)
        switch {
        case name == "":
        case isSRV(name):
            out = append(out, d.lookupSRV(ctx, name)...)
        case strings.Contains(name, ":"):
            out = append(out, name)
        default:
            out = append(out, d.lookupHost(ctx, name)...)
        }
    }
    return discovery.Dedup(out)
}

func isSRV(name string) bool { return strings.HasPrefix(name, "_") && strings.Contains(name, "._") }

func (d *impl) lookupSRV(ctx context.Context, fqdn string) []string {
    svc, proto, domain := parseSRVName(fqdn)
    if svc == "" || proto == "" || domain == "" { return nil }
    _, addrs, err := d.opts.Resolver.LookupSRV(ctx, svc, proto, domain)
    if err != nil { return nil }
    out := make([]string, 0, len(addrs))
    for _, a := range addrs {
        out = append(out, net.JoinHostPort(strings.TrimSuffix(a.Target, "."), strconv.Itoa(int(a.Port))))
    }
    return out
}

func (d *impl) lookupHost(ctx context.Context, host string) []string {
    ips, err := d.opts.Resolver.LookupHost(ctx, host)
    if err != nil { return nil }
    out := make([]string, 0, len(ips))
    for _, ip := range ips {
        out = append(out, net.JoinHostPort(ip, strconv.Itoa(d.opts.Port)))
    }
    return out
}

// parseSRVName splits _service._proto.name.
func parseSRVName(fqdn string) (service, proto, name string) {
    parts := strings.SplitN(fqdn, ".", 3)
    if len(parts) < 3 { return "", "", "" }
    return strings.TrimPrefix(parts[0], "_"), strings.TrimPrefix(parts[1], "_"), parts[2]
}
