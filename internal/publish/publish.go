// Package publish uploads rendered figures to a remote embed host and
// returns the hosted URL.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/specdist/internal/httputil"
	"github.com/lox/specdist/internal/metrics"
)

// Publisher posts PNG figures to an upload endpoint.
type Publisher struct {
	endpoint string
	client   *http.Client
}

// New returns a publisher for the given upload endpoint.
func New(endpoint string) *Publisher {
	return &Publisher{endpoint: endpoint, client: httputil.NewClient()}
}

type publishResponse struct {
	URL string `json:"url"`
}

// Publish uploads the PNG under the given name and returns the embed URL.
// Transient server errors are retried with exponential backoff; client
// errors fail immediately.
func (p *Publisher) Publish(ctx context.Context, name string, pngData []byte) (string, error) {
	body, contentType, err := multipartBody(name, pngData)
	if err != nil {
		return "", err
	}

	var respBody []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("upload figure: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("upload figure: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("upload figure: status %d: %s", resp.StatusCode, string(b)))
		}

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 1 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		metrics.PublishesTotal.WithLabelValues("error").Inc()
		return "", err
	}

	var pr publishResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		metrics.PublishesTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if pr.URL == "" {
		metrics.PublishesTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("publish response has no url")
	}

	metrics.PublishesTotal.WithLabelValues("ok").Inc()
	return pr.URL, nil
}

func multipartBody(name string, pngData []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("name", name); err != nil {
		return nil, "", fmt.Errorf("write name field: %w", err)
	}
	fw, err := w.CreateFormFile("figure", name+".png")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(pngData); err != nil {
		return nil, "", fmt.Errorf("write figure: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}
