package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/biolinkhq/vcmatch/internal/backoff"

	"go.uber.org/zap"
)

const contentType = "application/json"

// doJSON performs one API call with rate limiting and retry on transient
// failures. The body is re-marshalled on every attempt so retries never reuse
// a consumed reader.
func (c *Client) doJSON(ctx context.Context, method, path string, q url.Values, body, target any) error {
	operation := fmt.Sprintf("%s %s", method, path)

	return c.retry.Do(ctx, c.logger, operation, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Unrecoverable(err)
		}

		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return backoff.Unrecoverable(fmt.Errorf("marshal request body: %w", err))
			}
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.APIURL+path, reader)
		if err != nil {
			return backoff.Unrecoverable(err)
		}

		c.setHeaders(req)
		if q != nil {
			req.URL.RawQuery = q.Encode()
		}

		c.logger.Debug("airtable request", zap.String("method", method), zap.String("path", path))

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if err := checkStatus(resp.StatusCode, resp.Status); err != nil {
			return err
		}

		if target == nil {
			return nil
		}

		if err := json.Unmarshal(data, target); err != nil {
			return backoff.Unrecoverable(fmt.Errorf("decode response: %w", err))
		}

		return nil
	})
}

// checkStatus classifies API statuses: rate limits and server errors are
// transient, other non-2xx statuses are terminal.
func checkStatus(code int, status string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("transient status: %s", status)
	default:
		return backoff.Unrecoverable(fmt.Errorf("bad status: %s", status))
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Content-Type", contentType)
}
