package mcptransport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cubicler/cubicler/pkg/cubicerrors"
	"github.com/cubicler/cubicler/pkg/logger"
)

// SSETransport speaks to a backend MCP server that replies over a
// server-sent-events stream: Initialize opens the stream once with a GET,
// each request is then POSTed, and the matching response arrives
// asynchronously as a `data:` frame on the stream carrying the same
// JSON-RPC id.
type SSETransport struct {
	baseURL string
	client  *http.Client

	mu       sync.Mutex
	pending  map[string]chan Response
	streamCh chan struct{} // closed once the read loop has started
	started  bool
	readErr  error
}

// NewSSETransport builds an SSETransport against baseURL.
func NewSSETransport(baseURL string, client *http.Client) *SSETransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &SSETransport{
		baseURL: baseURL,
		client:  client,
		pending: make(map[string]chan Response),
	}
}

// Initialize opens the SSE stream and starts the background read loop.
func (t *SSETransport) Initialize(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, t.baseURL, nil)
	if err != nil {
		return &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonTimeout, Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return &cubicerrors.TransportFailureError{
			Reason: cubicerrors.ReasonIO,
			Cause:  fmt.Errorf("sse handshake returned status %d", resp.StatusCode),
		}
	}

	go t.readLoop(resp.Body)
	return nil
}

func (t *SSETransport) readLoop(body io.ReadCloser) {
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var dataLines []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case line == "":
			if len(dataLines) == 0 {
				continue
			}
			t.dispatch(strings.Join(dataLines, "\n"))
			dataLines = nil
		}
	}

	if err := scanner.Err(); err != nil {
		t.mu.Lock()
		t.readErr = err
		pending := t.pending
		t.pending = make(map[string]chan Response)
		t.mu.Unlock()

		for _, ch := range pending {
			ch <- ErrorResponse(nil, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err})
			close(ch)
		}
		logger.Warnf("sse transport: stream for %s ended: %v", t.baseURL, err)
	}
}

func (t *SSETransport) dispatch(payload string) {
	var resp Response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		logger.Warnf("sse transport: dropping unparseable frame from %s: %v", t.baseURL, err)
		return
	}

	key := fmt.Sprintf("%v", resp.ID)

	t.mu.Lock()
	ch, ok := t.pending[key]
	if ok {
		delete(t.pending, key)
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	ch <- resp
	close(ch)
}

// SendRequest posts req and blocks until the matching SSE frame arrives or
// ctx is cancelled.
func (t *SSETransport) SendRequest(ctx context.Context, req Request) (Response, error) {
	if req.ID == nil {
		req.ID = uuid.NewString()
	}
	key := fmt.Sprintf("%v", req.ID)

	ch := make(chan Response, 1)
	t.mu.Lock()
	if t.readErr != nil {
		err := t.readErr
		t.mu.Unlock()
		return Response{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}
	t.pending[key] = ch
	t.mu.Unlock()

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
		return Response{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonTimeout, Cause: err}
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
		return Response{}, &cubicerrors.TransportFailureError{
			Reason: cubicerrors.ReasonIO,
			Cause:  fmt.Errorf("sse backend returned status %d", resp.StatusCode),
		}
	}

	select {
	case out := <-ch:
		return out, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
		return Response{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonTimeout, Cause: ctx.Err()}
	}
}

// Close releases any pending waiters; it does not close the underlying
// http.Client.
func (t *SSETransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.pending {
		close(ch)
	}
	t.pending = make(map[string]chan Response)
	return nil
}
