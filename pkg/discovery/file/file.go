package file

import (
    "bufio"
    "context"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "time"

    "github.com/amirimatin/go-groupchat/pkg/discovery"
)

// Options configures file or environment based gateway resolution.
type Options struct {
    // Path is a file, or glob, with one endpoint per line or comma-separated
    // lists. Lines starting with # are ignored.
    Path string
    // Env names a variable that overrides the file when non-empty.
    Env string
    // Refresh controls cache staleness; if zero, defaults to 5s.
    Refresh time.Duration
}

type impl struct {
    opts  Options
    mu    sync.Mutex
    last  time.Time
    mtime time.Time
    cache []string
}

func New(opts Options) discovery.Resolver {
    if opts.Refresh <= 0 { opts.Refresh = 5 * time.Second }
    return &impl{opts: opts}
}

func (i *impl) Endpoints(context.Context) []string {
    i.mu.Lock()
    defer i.mu.Unlock()
    if i.opts.Env != "" {
        if v := strings.TrimSpace(os.Getenv(i.opts.Env)); v != "" { return discovery.Dedup(discovery.ParseList(v)) }
    }
    if i.opts.Path == "" { return nil }
    now := time.Now()
    if st, err := os.Stat(i.opts.Path); err == nil {
        if st.ModTime().After(i.mtime) || now.Sub(i.last) >= i.opts.Refresh {
            i.cache = discovery.Dedup(loadFile(i.opts.Path))
            i.last = now
            i.mtime = st.ModTime()
        }
        return append([]string(nil), i.cache...)
    }
    if now.Sub(i.last) < i.opts.Refresh { return append([]string(nil), i.cache...) }
    if matches, _ := filepath.Glob(i.opts.Path); len(matches) > 0 {
        var all []string
        for _, m := range matches { all = append(all, loadFile(m)...) }
        i.cache = discovery.Dedup(all)
        i.last = now
    }
    return append([]string(nil), i.cache...)
}

func loadFile(path string) []string {
    f, err := os.Open(path)
    if err != nil { return nil }
    defer f.Close()
    var out []string
    s := bufio.NewScanner(f)
    for s.Scan() {
        line := strings.TrimSpace(s.Text())
        if line == "" || strings.HasPrefix(line, "#") { continue }
        out = append(out, discovery.ParseList(line)...)
    }
    if s.Err() != nil { return nil }
    return out
}
