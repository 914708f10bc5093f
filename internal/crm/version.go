package crm

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	apperrors "leadbot/cli/internal/errors"
)

// apiVersion returns the configured REST version, discovering and caching
// the newest one when configured as "latest".
func (c *Client) apiVersion(ctx context.Context) (string, error) {
	if c.version != LatestAPIVersion {
		return c.version, nil
	}

	c.mu.RLock()
	v := c.resolved
	c.mu.RUnlock()
	if v != "" {
		return v, nil
	}

	v, err := c.Versions(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.resolved = v
	c.mu.Unlock()
	c.log.Debug("resolved salesforce API version", zap.String("version", v))
	return v, nil
}

// Versions asks the org for its supported REST versions and returns the
// newest, for example "v61.0".
func (c *Client) Versions(ctx context.Context) (string, error) {
	var list []struct {
		Version string `json:"version"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/services/data/", nil, nil, &list); err != nil {
		return "", err
	}
	best, bestNum := "", -1.0
	for _, item := range list {
		n, err := strconv.ParseFloat(item.Version, 64)
		if err != nil {
			continue
		}
		if n > bestNum {
			best, bestNum = item.Version, n
		}
	}
	if best == "" {
		return "", apperrors.New(apperrors.RemoteRejected, "Salesforce advertised no API versions")
	}
	return "v" + best, nil
}
