package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/quota"
)

const (
	defaultUserAgent = "ElectionWatch/1.0"
	defaultMaxBytes  = 5 << 20
	defaultTimeout   = 12 * time.Second
)

// FetchOptions tunes the shared HTTP getter.
type FetchOptions struct {
	UserAgent string
	MaxBytes  int64
	Timeout   time.Duration
}

// Fetcher performs GET requests for every scanner under the fetch quota.
type Fetcher struct {
	client    *http.Client
	guard     *quota.Guard
	userAgent string
	maxBytes  int64
	timeout   time.Duration
}

// NewFetcher wires an HTTP client and guard; zero options take defaults.
func NewFetcher(client *http.Client, guard *quota.Guard, opts FetchOptions) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Fetcher{
		client:    client,
		guard:     guard,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		timeout:   opts.Timeout,
	}
}

// Get returns the response body. Failures wrap domain.ErrSourceFetch; 4xx
// responses other than 408 and 429 are not retried.
func (f *Fetcher) Get(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	var body []byte
	err := f.guard.Retry(ctx, func() error {
		if err := f.guard.Wait(ctx); err != nil {
			return quota.Permanent(fmt.Errorf("%w: wait for quota: %v", domain.ErrSourceFetch, err))
		}
		payload, err := f.get(ctx, target, headers)
		if err != nil {
			return err
		}
		body = payload
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, quota.Permanent(fmt.Errorf("%w: build request: %v", domain.ErrSourceFetch, err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request %s: %v", domain.ErrSourceFetch, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		statusErr := fmt.Errorf("%w: %s returned %s: %s",
			domain.ErrSourceFetch, target, resp.Status, strings.TrimSpace(string(snippet)))
		if retryableStatus(resp.StatusCode) {
			return nil, statusErr
		}
		return nil, quota.Permanent(statusErr)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrSourceFetch, err)
	}
	if int64(len(payload)) > f.maxBytes {
		return nil, quota.Permanent(fmt.Errorf("%w: %s body exceeds %d bytes", domain.ErrSourceFetch, target, f.maxBytes))
	}

	return payload, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}
