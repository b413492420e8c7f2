// Package tlsconfig builds tls.Config values for the NATS session and the
// gRPC gateway from PEM files on disk.
package tlsconfig

import (
    "crypto/tls"
    "crypto/x509"
    "errors"
    "os"
    "sync"
    "time"
)

var (
    ErrNoKeyPair = errors.New("tls: server cert/key required when TLS enabled")
    ErrBadCA     = errors.New("tls: no certificates found in CA file")
)

// Options defines TLS configuration inputs. When Reload is positive the key
// pair is re-read from disk at most once per Reload interval, on handshake.
type Options struct {
    Enable             bool
    CAFile             string
    CertFile           string
    KeyFile            string
    InsecureSkipVerify bool
    ServerName         string
    Reload             time.Duration
}

func (o Options) hasKeyPair() bool { return o.CertFile != "" && o.KeyFile != "" }

// Validate checks that a key pair is either fully given or absent.
func (o Options) Validate() error {
    if !o.Enable { return nil }
    if (o.CertFile == "") != (o.KeyFile == "") { return errors.New("tls: cert and key must be set together") }
    return nil
}

// Server returns a tls.Config for servers if enabled, otherwise nil. A CA
// file turns on client certificate verification.
func (o Options) Server() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    if !o.hasKeyPair() { return nil, ErrNoKeyPair }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12}
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.ClientCAs = pool
        cfg.ClientAuth = tls.RequireAndVerifyClientCert
    }
    l := &keyLoader{cert: o.CertFile, key: o.KeyFile, ttl: o.Reload}
    if o.Reload > 0 {
        cfg.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return l.load() }
        return cfg, nil
    }
    cert, err := l.load()
    if err != nil { return nil, err }
    cfg.Certificates = []tls.Certificate{*cert}
    return cfg, nil
}

// Client returns a tls.Config for clients if enabled, otherwise nil.
func (o Options) Client() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
    if o.ServerName != "" { cfg.ServerName = o.ServerName }
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.RootCAs = pool
    }
    if !o.hasKeyPair() { return cfg, nil }
    l := &keyLoader{cert: o.CertFile, key: o.KeyFile, ttl: o.Reload}
    if o.Reload > 0 {
        cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) { return l.load() }
        return cfg, nil
    }
    cert, err := l.load()
    if err != nil { return nil, err }
    cfg.Certificates = []tls.Certificate{*cert}
    return cfg, nil
}

func loadPool(path string) (*x509.CertPool, error) {
    ca, err := os.ReadFile(path)
    if err != nil { return nil, err }
    pool := x509.NewCertPool()
    if !pool.AppendCertsFromPEM(ca) { return nil, ErrBadCA }
    return pool, nil
}

// keyLoader caches a key pair for ttl.
type keyLoader struct {
    cert, key string
    ttl       time.Duration

    mu       sync.RWMutex
    cached   *tls.Certificate
    lastLoad time.Time
}

func (l *keyLoader) load() (*tls.Certificate, error) {
    l.mu.RLock()
    if l.cached != nil && time.Since(l.lastLoad) < l.ttl {
        c := *l.cached
        l.mu.RUnlock()
        return &c, nil
    }
    l.mu.RUnlock()
    cert, err := tls.LoadX509KeyPair(l.cert, l.key)
    if err != nil { return nil, err }
    l.mu.Lock()
    l.cached = &cert
    l.lastLoad = time.Now()
    l.mu.Unlock()
    return &cert, nil
}
