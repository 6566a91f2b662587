package mcptransport

import (
	"net/http"

	"github.com/cubicler/cubicler/pkg/config"
)

// NewForServer builds the Transport matching srv's configured transport
// kind. Configured headers are applied here, through a header-injecting
// http.RoundTripper on the client given to HTTP/SSE/auto transports; stdio
// transports do not use them (spec §3 allows per-server headers only on
// HTTP/SSE/auto transports).
func NewForServer(srv config.McpServerConfig) Transport {
	client := clientWithHeaders(srv.Headers)

	switch srv.EffectiveTransport() {
	case config.McpHTTP:
		return NewHTTPTransport(srv.URL, client)
	case config.McpSSE:
		return NewSSETransport(srv.URL, client)
	case config.McpStdio:
		return NewStdioTransport(srv.Command, srv.Args...)
	default:
		return NewAutoTransport(srv.URL, client)
	}
}

func clientWithHeaders(headers map[string]string) *http.Client {
	if len(headers) == 0 {
		return http.DefaultClient
	}
	return &http.Client{Transport: &headerRoundTripper{headers: headers, next: http.DefaultTransport}}
}

// headerRoundTripper injects static headers (e.g. API keys) into every
// outbound request to a configured MCP server.
type headerRoundTripper struct {
	headers map[string]string
	next    http.RoundTripper
}

func (rt *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	for k, v := range rt.headers {
		cloned.Header.Set(k, v)
	}
	return rt.next.RoundTrip(cloned)
}
