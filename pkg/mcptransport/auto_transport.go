package mcptransport

import (
	"context"
	"net/http"
	"sync"

	"github.com/cubicler/cubicler/pkg/logger"
)

// AutoTransport probes a configured URL for SSE support on first use and
// sticks with whichever transport answered, so later requests skip the
// probe (spec §4.4: "auto" servers negotiate a transport once).
type AutoTransport struct {
	url    string
	client *http.Client

	mu       sync.Mutex
	resolved Transport
}

// NewAutoTransport builds an AutoTransport targeting url.
func NewAutoTransport(url string, client *http.Client) *AutoTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &AutoTransport{url: url, client: client}
}

// Initialize probes the backend: it tries SSE first, and falls back to
// plain HTTP if the SSE handshake fails. The winning transport is cached
// for the lifetime of the AutoTransport.
func (t *AutoTransport) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.resolved != nil {
		return nil
	}

	sse := NewSSETransport(t.url, t.client)
	if err := sse.Initialize(ctx); err == nil {
		t.resolved = sse
		return nil
	} else {
		logger.Debugf("auto transport: SSE probe for %s failed, falling back to http: %v", t.url, err)
	}

	fallback := NewHTTPTransport(t.url, t.client)
	if err := fallback.Initialize(ctx); err != nil {
		return err
	}
	t.resolved = fallback
	return nil
}

// SendRequest delegates to the transport resolved during Initialize.
func (t *AutoTransport) SendRequest(ctx context.Context, req Request) (Response, error) {
	t.mu.Lock()
	resolved := t.resolved
	t.mu.Unlock()

	if resolved == nil {
		if err := t.Initialize(ctx); err != nil {
			return Response{}, err
		}
		t.mu.Lock()
		resolved = t.resolved
		t.mu.Unlock()
	}

	return resolved.SendRequest(ctx, req)
}

// Close releases the resolved transport, if any.
func (t *AutoTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.resolved == nil {
		return nil
	}
	return t.resolved.Close()
}
