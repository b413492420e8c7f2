package httpjson

import (
    "bytes"
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "time"
)

// DefaultTimeout bounds one web request attempt.
const DefaultTimeout = 5 * time.Second

// Response is a completed HTTP exchange.
type Response struct {
    Status int
    Body   []byte
}

// JSON decodes the body into out.
func (r *Response) JSON(out any) error { return json.Unmarshal(r.Body, out) }

// WebClient posts to the auxiliary web endpoints and fetches JSON status
// documents. Transport errors and 5xx answers are retried with backoff.
type WebClient struct {
    httpc     *http.Client
    transport *http.Transport
    retries   int
    isTLS     bool
}

// NewWebClient constructs a WebClient with the given per-attempt timeout.
func NewWebClient(timeout time.Duration) *WebClient {
    if timeout <= 0 { timeout = DefaultTimeout }
    tr := &http.Transport{Proxy: http.ProxyFromEnvironment}
    return &WebClient{httpc: &http.Client{Timeout: timeout, Transport: tr}, transport: tr, retries: 3}
}

// UseTLS sets the TLS config used for https requests and for GetStatus.
func (c *WebClient) UseTLS(cfg *tls.Config) *WebClient {
    if c.transport != nil { c.transport.TLSClientConfig = cfg }
    c.isTLS = cfg != nil
    return c
}

// Post sends body with the given content type and headers.
func (c *WebClient) Post(ctx context.Context, rawURL, contentType string, body []byte, header http.Header) (*Response, error) {
    return c.do(ctx, http.MethodPost, rawURL, func() io.Reader { return bytes.NewReader(body) }, func(h http.Header) {
        for k, vs := range header {
            for _, v := range vs { h.Add(k, v) }
        }
        if contentType != "" { h.Set("Content-Type", contentType) }
    })
}

// PostForm sends form url-encoded.
func (c *WebClient) PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) (*Response, error) {
    return c.Post(ctx, rawURL, "application/x-www-form-urlencoded", []byte(form.Encode()), header)
}

// GetStatus fetches /status from a server started by Server.Start at addr
// (host:port).
func (c *WebClient) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    scheme := "http"
    if c.isTLS { scheme = "https" }
    rsp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s://%s/status", scheme, addr), nil, nil)
    if err != nil { return nil, err }
    if rsp.Status != http.StatusOK { return nil, fmt.Errorf("status %d: %s", rsp.Status, string(rsp.Body)) }
    return rsp.Body, nil
}

func (c *WebClient) do(ctx context.Context, method, rawURL string, body func() io.Reader, header func(http.Header)) (*Response, error) {
    var lastErr error
    for attempt := 0; attempt < c.retries; attempt++ {
        var r io.Reader
        if body != nil { r = body() }
        req, err := http.NewRequestWithContext(ctx, method, rawURL, r)
        if err != nil { return nil, err }
        if header != nil { header(req.Header) }
        resp, err := c.httpc.Do(req)
        if err != nil {
            lastErr = err
        } else {
            b, err := io.ReadAll(resp.Body)
            resp.Body.Close()
            switch {
            case err != nil:
                lastErr = err
            case resp.StatusCode >= 500:
                lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
            default:
                return &Response{Status: resp.StatusCode, Body: b}, nil
            }
        }
        if attempt == c.retries-1 { break }
        // backoff unless context is done
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return nil, lastErr
}
