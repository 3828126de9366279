// Package httpclient builds the HTTP client used for enumeration requests
package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http/httpguts"
)

// DefaultUserAgent identifies enumeration traffic in target logs
const DefaultUserAgent = "IdorEnumerator/0.1"

// Config configures the enumeration client
type Config struct {
	Timeout        time.Duration // zero means no client-side timeout
	UserAgent      string
	DefaultHeaders http.Header // sent unless the request sets them itself; dropped once a redirect leaves the host
	Transport      http.RoundTripper
	Instrument     bool // wrap the transport in otelhttp client spans
}

// DefaultConfig returns the configuration used when no flags override it
func DefaultConfig() Config {
	return Config{
		UserAgent:      DefaultUserAgent,
		DefaultHeaders: http.Header{},
	}
}

// New creates a client that stamps the default headers and user agent onto every request.
// It fails when any header would be rejected on the wire.
func New(config Config) (*http.Client, error) {
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if !httpguts.ValidHeaderFieldValue(config.UserAgent) {
		return nil, errors.New("invalid user agent")
	}

	headers := make(http.Header, len(config.DefaultHeaders))
	for name, values := range config.DefaultHeaders {
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("invalid header name %q", name)
		}
		for _, v := range values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return nil, fmt.Errorf("invalid value for header %q", name)
			}
		}
		headers[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}

	base := config.Transport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	if config.Instrument {
		base = otelhttp.NewTransport(base)
	}

	return &http.Client{
		Timeout: config.Timeout,
		Transport: &headerTransport{
			base:      base,
			headers:   headers,
			userAgent: config.UserAgent,
		},
	}, nil
}

type headerTransport struct {
	base      http.RoundTripper
	headers   http.Header
	userAgent string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())
	if sameHostChain(req) {
		for name, values := range t.headers {
			if _, ok := req.Header[name]; ok {
				continue
			}
			req.Header[name] = values
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

// sameHostChain reports whether every redirect hop leading to req stayed on one host and port.
func sameHostChain(req *http.Request) bool {
	for r := req; r.Response != nil && r.Response.Request != nil; r = r.Response.Request {
		if !sameHost(r.URL, r.Response.Request.URL) {
			return false
		}
	}
	return true
}

func sameHost(a, b *url.URL) bool {
	return strings.EqualFold(a.Hostname(), b.Hostname()) && effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}

// CloseBody drains and closes a response body so the connection can be reused.
//
// Usage:
//
//	defer httpclient.CloseBody(resp)
func CloseBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	if err := resp.Body.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close HTTP response body: %v\n", err)
	}
}
