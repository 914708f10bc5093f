// Package crm is a small Salesforce REST client covering what leadbot needs:
// name lookups through SOQL, record create/update/delete, API version
// discovery and the identity of the connected user.
//
// Every failure is returned as an *errors.E of kind RemoteRejected (the CRM
// answered with an error status) or Transport (network failure, timeout or an
// expired session). Requests are never retried.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	apperrors "leadbot/cli/internal/errors"
	"leadbot/cli/internal/httperrors"
	"leadbot/cli/internal/metrics"
)

const (
	// DefaultAPIVersion is used when no version is configured.
	DefaultAPIVersion = "v59.0"
	// LatestAPIVersion asks the client to discover the newest version.
	LatestAPIVersion = "latest"

	defaultTimeout = 15 * time.Second
	maxBody        = 1 << 20
	remoteName     = "Salesforce"
)

// Config configures a Client.
type Config struct {
	InstanceURL string
	APIVersion  string
	Timeout     time.Duration
	RateLimit   float64
	Burst       int
}

// Client talks to one Salesforce org.
type Client struct {
	baseURL string
	version string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger

	mu       sync.RWMutex
	resolved string
}

// New creates a Client authenticating every request with tokens from ts.
func New(cfg Config, ts oauth2.TokenSource, log *zap.Logger) (*Client, error) {
	base := strings.TrimRight(cfg.InstanceURL, "/")
	if base == "" {
		return nil, fmt.Errorf("salesforce instance URL is not configured (run leadbot login)")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid salesforce instance URL %q: %w", cfg.InstanceURL, err)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.APIVersion != LatestAPIVersion && !strings.HasPrefix(cfg.APIVersion, "v") {
		cfg.APIVersion = "v" + cfg.APIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	var transport http.RoundTripper = http.DefaultTransport
	if ts != nil {
		transport = &oauth2.Transport{Source: ts, Base: http.DefaultTransport}
	}
	return &Client{
		baseURL: base,
		version: cfg.APIVersion,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		log:     log,
	}, nil
}

// do performs one request. body, when non-nil, is sent as JSON; out, when
// non-nil, receives the decoded JSON response. It returns the status code of
// any response received.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, apperrors.Wrap(apperrors.Transport, "request cancelled while rate limited", err)
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.Internal, "failed to encode request", err)
		}
		rdr = bytes.NewReader(b)
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.Internal, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveCRM(method, 0, start)
		return 0, transportError(err)
	}
	defer resp.Body.Close()
	metrics.ObserveCRM(method, resp.StatusCode, start)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, transportError(err)
	}
	c.log.Debug("salesforce request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, responseError(resp.StatusCode, data)
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, apperrors.Wrap(apperrors.RemoteRejected, "unexpected response from Salesforce", err)
		}
	}
	return resp.StatusCode, nil
}

func transportError(err error) *apperrors.E {
	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) {
		return apperrors.Wrap(apperrors.Transport, "Salesforce session expired; re-authentication required (run leadbot login)", err)
	}
	return apperrors.Wrap(apperrors.Transport, httperrors.Describe(err, remoteName), err)
}

func (c *Client) dataPath(ctx context.Context, suffix string) (string, error) {
	v, err := c.apiVersion(ctx)
	if err != nil {
		return "", err
	}
	return "/services/data/" + v + suffix, nil
}
