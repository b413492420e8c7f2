package static

import (
    "context"
    "strings"

    "github.com/amirimatin/go-groupchat/pkg/discovery"
)

type endpoints []string

func (e endpoints) Endpoints(context.Context) []string { return append([]string(nil), e...) }

// New returns a Resolver that always returns the given endpoints in order.
func New(addrs ...string) discovery.Resolver {
    cleaned := make(endpoints, 0, len(addrs))
    for _, v := range addrs {
        if v = strings.TrimSpace(v); v != "" { cleaned = append(cleaned, v) }
    }
    return cleaned
}

// Parse builds a static Resolver from a comma-separated list.
func Parse(csv string) discovery.Resolver { return New(discovery.ParseList(csv)...) }
