// Package probe supplies the readiness signals the orchestrator blocks on:
// raw TCP port reachability for infrastructure processes and HTTP health for
// serving endpoints.
package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Prober polls endpoints until they become ready or the context expires.
type Prober struct {
	client       *retryablehttp.Client
	pollInterval time.Duration
	dialTimeout  time.Duration
}

// Option configures a Prober.
type Option func(*Prober)

// WithPollInterval overrides the TCP poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(p *Prober) { p.pollInterval = d }
}

// WithRetryWait overrides the HTTP retry backoff bounds.
func WithRetryWait(min, max time.Duration) Option {
	return func(p *Prober) {
		p.client.RetryWaitMin = min
		p.client.RetryWaitMax = max
	}
}

// New returns a prober. HTTP probing rides on a retrying client that backs
// off between attempts; the caller bounds total wait through the context.
func New(opts ...Option) *Prober {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 120
	client.RetryWaitMin = time.Second
	client.RetryWaitMax = 5 * time.Second

	p := &Prober{
		client:       client,
		pollInterval: time.Second,
		dialTimeout:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WaitForPort blocks until a TCP connection to host:port succeeds or the
// context expires.
func (p *Prober) WaitForPort(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, fmt.Sprint(port))

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		conn, err := net.DialTimeout("tcp", addr, p.dialTimeout)
		if err == nil {
			conn.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s: %w", addr, ctx.Err())
		case <-ticker.C:
		}
	}
}

// WaitForHTTP blocks until a GET to the URL returns 200 or the context
// expires. Connection errors and 5xx responses are retried with backoff.
func (p *Prober) WaitForHTTP(ctx context.Context, url string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("invalid probe URL %s: %w", url, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("health probe %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("health probe %s returned status %d", url, resp.StatusCode)
	}
	return nil
}
