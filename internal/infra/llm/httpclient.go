package llm

import (
	"net/http"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// newHTTPClient builds the HTTP client an adapter will use for its lifetime.
// When p.EnableCORS is set the client is constructed with the alternate
// transport; the flag is consumed here, at construction, and cannot be
// toggled on a live client afterwards.
func newHTTPClient(p Params) *http.Client {
	timeout := defaultRequestTimeout
	if p.RequestTimeoutMS > 0 {
		timeout = time.Duration(p.RequestTimeoutMS) * time.Millisecond
	}
	c := &http.Client{Timeout: timeout}
	if p.EnableCORS {
		c.Transport = &corsBypassTransport{base: http.DefaultTransport}
	}
	return c
}

// corsBypassTransport is the alternate fetch path for providers that reject
// browser-originated requests: it strips Origin/Referer and marks the request
// as an XHR so gateway-side CORS preflight rules do not apply.
type corsBypassTransport struct {
	base http.RoundTripper
}

func (t *corsBypassTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	clone := r.Clone(r.Context())
	clone.Header.Del("Origin")
	clone.Header.Del("Referer")
	clone.Header.Set("X-Requested-With", "XMLHttpRequest")
	return t.base.RoundTrip(clone)
}
