package agenttransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cubicler/cubicler/pkg/cubicerrors"
)

// DefaultRequestTimeout bounds an HTTP agent transport's round trip; a
// deadline on the caller's context also applies, and whichever is earlier
// ends the call.
const DefaultRequestTimeout = 30 * time.Second

// HTTPTransport POSTs an AgentRequest to a configured agent URL and parses
// its AgentResponse (spec §4.9).
type HTTPTransport struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewHTTPTransport builds an HTTPTransport targeting url.
func NewHTTPTransport(url string, headers map[string]string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return &HTTPTransport{url: url, headers: headers, client: client}
}

// Dispatch implements Transport.
func (t *HTTPTransport) Dispatch(ctx context.Context, req AgentRequest) (AgentResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return AgentResponse{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return AgentResponse{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		reason := cubicerrors.ReasonIO
		if ctx.Err() != nil {
			reason = cubicerrors.ReasonTimeout
		}
		return AgentResponse{}, &cubicerrors.TransportFailureError{Reason: reason, Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return AgentResponse{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AgentResponse{}, &cubicerrors.TransportFailureError{
			Reason: cubicerrors.ReasonIO,
			Cause:  fmt.Errorf("agent responded with status %d", resp.StatusCode),
		}
	}

	return decodeAgentResponse(raw)
}

// decodeAgentResponse parses raw JSON into an AgentResponse, first checking
// that the "type" and "metadata" keys are present so a struct's zero value
// can't masquerade as an agent that actually supplied them (spec §4.9).
func decodeAgentResponse(raw []byte) (AgentResponse, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return AgentResponse{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonParseFrame, Cause: err}
	}
	if _, ok := probe["type"]; !ok {
		return AgentResponse{}, &cubicerrors.AgentResponseInvalidError{Reason: "missing required field: type"}
	}
	if _, ok := probe["metadata"]; !ok {
		return AgentResponse{}, &cubicerrors.AgentResponseInvalidError{Reason: "missing required field: metadata"}
	}

	var resp AgentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return AgentResponse{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonParseFrame, Cause: err}
	}
	if err := resp.Validate(); err != nil {
		return AgentResponse{}, &cubicerrors.AgentResponseInvalidError{Reason: err.Error()}
	}
	return resp, nil
}
