// Package discovery resolves the gateway endpoints a grpc session may dial.
package discovery

import (
    "context"
    "sort"
    "strings"
)

// Resolver returns the current gateway endpoints (host:port), best first.
type Resolver interface {
    Endpoints(ctx context.Context) []string
}

// ParseList splits a comma-separated list, dropping blanks.
func ParseList(csv string) []string {
    if csv == "" { return nil }
    parts := strings.Split(csv, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" { out = append(out, p) }
    }
    return out
}

// Dedup returns the distinct entries of in, sorted.
func Dedup(in []string) []string {
    if len(in) == 0 { return nil }
    set := make(map[string]struct{}, len(in))
    out := make([]string, 0, len(in))
    for _, v := range in {
        if _, ok := set[v]; ok { continue }
        set[v] = struct{}{}
        out = append(out, v)
    }
    sort.Strings(out)
    return out
}
