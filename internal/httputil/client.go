package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

const userAgent = "specdist/1.0 (+https://github.com/lox/specdist)"

type uaTransport struct {
	base http.RoundTripper
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return t.base.RoundTrip(req)
}

// NewClient returns an HTTP client with standard timeout configuration and a
// stable user agent, so dataset mirrors can identify us.
func NewClient() *http.Client {
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: &uaTransport{base: http.DefaultTransport},
	}
}
