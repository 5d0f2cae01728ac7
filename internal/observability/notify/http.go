package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 5 * time.Second
	maxErrorBody       = 4096
)

// HTTPStatusError reports a non-2xx answer from an alert endpoint.
type HTTPStatusError struct {
	Sink   string
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s returned %d %s: %s", e.Sink, e.Status, http.StatusText(e.Status), e.Body)
}

// Retryable is true for throttling and server-side failures.
func (e *HTTPStatusError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// HTTPClient returns hc, or a client with the given timeout (5s when unset).
func HTTPClient(hc *http.Client, timeout time.Duration) *http.Client {
	if hc != nil {
		return hc
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// PostJSON encodes v and POSTs it to endpoint. sink names the destination in errors.
func PostJSON(ctx context.Context, hc *http.Client, sink, endpoint string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", sink, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", sink, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", sink, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPStatusError{Sink: sink, Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain %s response body: %w", sink, err)
	}
	return nil
}

func permanent(err error) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && !statusErr.Retryable()
}
