package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/24ep/studio-sub000/internal/config"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"
)

// Client posts JSON to the automation endpoint with its own timeout, separate
// from the caller's request deadline.
type Client struct {
	httpClient     *http.Client
	maxResponseLen int64
}

func NewClient(cfg config.WebhookConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxLen := cfg.MaxResponseLen
	if maxLen <= 0 {
		maxLen = 1 << 20
	}
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		maxResponseLen: maxLen,
	}
}

// Post returns the (possibly truncated) response body for any HTTP status.
// A non-2xx status is reported as a DependencyError alongside the body.
func (c *Client) Post(ctx context.Context, url string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.NewDependencyError("webhook", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseLen))
	if err != nil {
		return "", apperrors.NewDependencyError("webhook", fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return string(raw), apperrors.DependencyError{
			Dependency: "webhook",
			StatusCode: resp.StatusCode,
			Err:        apperrors.ErrWebhookUnavailable,
		}
	}
	return string(raw), nil
}
