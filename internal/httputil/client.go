package httputil

import (
	"net/http"
	"time"
)

// DefaultTimeout covers the archive and climate endpoints, which can take
// tens of seconds to assemble multi-decade responses.
const DefaultTimeout = 90 * time.Second

const UserAgent = "climatematch/1.0 (+https://github.com/lox/climatematch)"

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// NewClient returns an HTTP client with the default timeout that identifies
// itself to upstream APIs.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
		Transport: &userAgentTransport{
			base:      http.DefaultTransport,
			userAgent: UserAgent,
		},
	}
}
