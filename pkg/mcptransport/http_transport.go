package mcptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/cubicler/cubicler/pkg/cubicerrors"
)

// HTTPTransport sends each MCP request as a single synchronous POST to a
// streamable-HTTP MCP endpoint. It is safe for concurrent use: requests
// are independent round trips, there is no shared connection state beyond
// the http.Client.
type HTTPTransport struct {
	url    string
	client *http.Client
	nextID int64
}

// NewHTTPTransport builds an HTTPTransport targeting url.
func NewHTTPTransport(url string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{url: url, client: client}
}

// Initialize is a no-op for HTTPTransport: every request is self-contained,
// so there is no session handshake to perform up front.
func (t *HTTPTransport) Initialize(_ context.Context) error { return nil }

// SendRequest posts req to the backend and decodes its JSON-RPC response.
func (t *HTTPTransport) SendRequest(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Response{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonTimeout, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, &cubicerrors.TransportFailureError{
			Reason: cubicerrors.ReasonIO,
			Cause:  fmt.Errorf("backend returned status %d", resp.StatusCode),
		}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonParseFrame, Cause: err}
	}

	return out, nil
}

// Close is a no-op: the underlying http.Client is pooled and owned by the
// caller.
func (t *HTTPTransport) Close() error { return nil }

// NextID returns a monotonically increasing request id, useful for callers
// that need to correlate requests without tracking their own counter.
func (t *HTTPTransport) NextID() int64 {
	return atomic.AddInt64(&t.nextID, 1)
}
