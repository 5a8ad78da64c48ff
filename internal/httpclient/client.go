// Package httpclient provides a bounded outbound HTTP client for all
// upstream calls: explicit timeouts, capped redirects, and size-limited
// body reads.
package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"presencelog/internal/config"
)

var (
	ErrResponseTooLarge  = errors.New("response body too large")
	ErrTooManyRedirects  = errors.New("too many redirects")
	ErrRedirectDowngrade = errors.New("redirect from https to http blocked")
)

// Client wraps http.Client with bounded behavior.
type Client struct {
	cfg        *config.OutboundHTTPConfig
	httpClient *http.Client
}

// New creates a new bounded HTTP client.
// The client ignores proxy environment variables.
func New(cfg *config.OutboundHTTPConfig) *Client {
	if cfg == nil {
		cfg = &config.OutboundHTTPConfig{
			TimeoutMS:        30000,
			ConnectTimeoutMS: 5000,
			MaxRedirects:     1,
			MaxResponseBytes: 4 << 20,
		}
	}

	dialer := &net.Dialer{
		Timeout: time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond,
	}

	transport := &http.Transport{
		Proxy:       nil,
		DialContext: dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}

	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 1
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.TimeoutMS) * time.Millisecond,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("%w: exceeded limit of %d", ErrTooManyRedirects, maxRedirects)
				}
				// https may not be downgraded to http mid-chain.
				if via[0].URL.Scheme == "https" && req.URL.Scheme != "https" {
					return ErrRedirectDowngrade
				}
				return nil
			},
		},
	}
}

// Do performs an HTTP request using the request's context.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req.WithContext(ctx))
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, urlStr string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	return c.httpClient.Do(req)
}

// ReadBody drains and closes the response body with the configured size
// limit applied.
func (c *Client) ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	limit := c.cfg.MaxResponseBytes
	if limit <= 0 {
		limit = 4 << 20
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

// Doer is the shared interface for outbound HTTP requests. Implemented
// by Client; accepted by upstream API clients so tests can substitute
// their own transport.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
	ReadBody(resp *http.Response) ([]byte, error)
}
