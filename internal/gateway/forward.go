package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"offline_gateway/internal/transport"
)

// Forwarder rewrites requests onto the configured origin. It implements
// strategy.Fetcher, so both strategies and the lifecycle precache share
// one transport.
type Forwarder struct {
	origin    *url.URL
	transport http.RoundTripper
}

func NewForwarder(origin string, opts transport.Options) (*Forwarder, error) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("origin %q must include scheme and host", origin)
	}
	return &Forwarder{
		origin:    parsed,
		transport: transport.NewTransport(opts),
	}, nil
}

func (f *Forwarder) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if f == nil || f.transport == nil {
		return nil, fmt.Errorf("forwarder not initialized")
	}

	target := &url.URL{
		Scheme:   f.origin.Scheme,
		Host:     f.origin.Host,
		Path:     singleJoin(f.origin.Path, req.URL.Path),
		RawQuery: req.URL.RawQuery,
	}

	outbound, err := http.NewRequestWithContext(ctx, req.Method, target.String(), req.Body)
	if err != nil {
		return nil, err
	}
	outbound.Header = req.Header.Clone()
	if outbound.Header == nil {
		outbound.Header = make(http.Header)
	}
	stripHopByHop(outbound.Header)
	outbound.Host = f.origin.Host
	setForwardedHeaders(outbound, req)

	return f.transport.RoundTrip(outbound)
}

func singleJoin(base, path string) string {
	if base == "" || base == "/" {
		return path
	}
	return strings.TrimSuffix(base, "/") + path
}

var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func stripHopByHop(header http.Header) {
	for _, name := range hopByHopHeaders {
		header.Del(name)
	}
}

func setForwardedHeaders(outbound *http.Request, inbound *http.Request) {
	if inbound == nil || inbound.RemoteAddr == "" {
		return
	}
	host, _, err := net.SplitHostPort(inbound.RemoteAddr)
	if err != nil {
		host = inbound.RemoteAddr
	}
	if prior := inbound.Header.Get("X-Forwarded-For"); prior != "" {
		host = prior + ", " + host
	}
	outbound.Header.Set("X-Forwarded-For", host)
	proto := "http"
	if inbound.TLS != nil {
		proto = "https"
	}
	outbound.Header.Set("X-Forwarded-Proto", proto)
	outbound.Header.Set("X-Forwarded-Host", inbound.Host)
}
