package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/specdist/internal/httputil"
	"github.com/lox/specdist/internal/metrics"
)

// Source fetches a raw dataset bundle archive.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// HTTPSource fetches the bundle archive over HTTP with exponential backoff on
// transient failures. Client errors are permanent and fail immediately.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource returns a source for the given bundle URL.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{url: url, client: httputil.NewClient()}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch bundle: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("fetch bundle: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch bundle: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		metrics.DatasetFetchesTotal.WithLabelValues("http", "error").Inc()
		return nil, err
	}

	metrics.DatasetFetchesTotal.WithLabelValues("http", "ok").Inc()
	metrics.DatasetFetchLatency.WithLabelValues("http").Observe(time.Since(start).Seconds())
	return body, nil
}
