package dataset

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/lox/specdist/internal/metrics"
)

// FTPSource fetches the bundle archive from an anonymous FTP mirror. Some
// institutional dataset hosts still publish over FTP only.
type FTPSource struct {
	host string // host:port
	path string
}

// NewFTPSource returns a source reading path from the given FTP host.
func NewFTPSource(host, path string) *FTPSource {
	return &FTPSource{host: host, path: path}
}

func (s *FTPSource) Fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()

	conn, err := ftp.Dial(s.host, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		metrics.DatasetFetchesTotal.WithLabelValues("ftp", "error").Inc()
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		metrics.DatasetFetchesTotal.WithLabelValues("ftp", "error").Inc()
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(s.path)
	if err != nil {
		metrics.DatasetFetchesTotal.WithLabelValues("ftp", "error").Inc()
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		metrics.DatasetFetchesTotal.WithLabelValues("ftp", "error").Inc()
		return nil, fmt.Errorf("read body: %w", err)
	}

	metrics.DatasetFetchesTotal.WithLabelValues("ftp", "ok").Inc()
	metrics.DatasetFetchLatency.WithLabelValues("ftp").Observe(time.Since(start).Seconds())
	return body, nil
}
