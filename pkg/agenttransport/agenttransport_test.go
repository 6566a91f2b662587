package agenttransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubicler/cubicler/pkg/cubicerrors"
)

// echoIdentifierScript is a POSIX sh worker that decodes each outbound
// stdioOutboundFrame line and replies with a well-formed stdioInboundFrame
// whose content echoes the requesting agent's identifier, so tests can
// verify a dispatch received exactly its own correlated response.
const echoIdentifierScript = `while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"requestId":"\([^"]*\)".*/\1/p')
  who=$(printf '%s' "$line" | sed -n 's/.*"agent":{"identifier":"\([^"]*\)".*/\1/p')
  printf '{"requestId":"%s","response":{"type":"text","content":"%s","metadata":{"usedToken":1}}}\n' "$id" "$who"
done`

func TestHTTPTransport_Dispatch_RoundTrips(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req AgentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "agent-1", req.Agent.Identifier)

		content := "hello"
		_ = json.NewEncoder(w).Encode(AgentResponse{
			Timestamp: "2026-01-01T00:00:00Z",
			Type:      "text",
			Content:   &content,
			Metadata:  AgentResponseMeta{UsedToken: 10},
		})
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.URL, nil, nil)
	resp, err := transport.Dispatch(context.Background(), AgentRequest{Agent: AgentInfo{Identifier: "agent-1"}})
	require.NoError(t, err)
	assert.Equal(t, "text", resp.Type)
	require.NotNil(t, resp.Content)
	assert.Equal(t, "hello", *resp.Content)
	assert.Equal(t, 10, resp.Metadata.UsedToken)
}

func TestHTTPTransport_Dispatch_MissingRequiredField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"text"}`))
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.URL, nil, nil)
	_, err := transport.Dispatch(context.Background(), AgentRequest{})

	var invalid *cubicerrors.AgentResponseInvalidError
	require.ErrorAs(t, err, &invalid)
}

func TestHTTPTransport_Dispatch_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.URL, nil, nil)
	_, err := transport.Dispatch(context.Background(), AgentRequest{})

	var failure *cubicerrors.TransportFailureError
	require.ErrorAs(t, err, &failure)
}

func TestSSETransport_Dispatch_CorrelatesById(t *testing.T) {
	registry := NewAgentChannelRegistry()
	done := make(chan struct{})
	ch := registry.Register("agent-1", done)

	go func() {
		frame := <-ch.Frames()
		var parsed sseFrame
		require.NoError(t, json.Unmarshal(frame[len("data: "):len(frame)-2], &parsed))

		content := "sse-reply"
		ch.Deliver(parsed.RequestID, AgentResponse{
			Type:     "text",
			Content:  &content,
			Metadata: AgentResponseMeta{},
		})
	}()

	transport := NewSSETransport("agent-1", registry)
	resp, err := transport.Dispatch(context.Background(), AgentRequest{})
	require.NoError(t, err)
	require.NotNil(t, resp.Content)
	assert.Equal(t, "sse-reply", *resp.Content)
}

func TestSSETransport_Dispatch_NoChannel(t *testing.T) {
	registry := NewAgentChannelRegistry()
	transport := NewSSETransport("missing-agent", registry)

	_, err := transport.Dispatch(context.Background(), AgentRequest{})
	var disconnected *cubicerrors.AgentDisconnectedError
	require.ErrorAs(t, err, &disconnected)
}

func TestStdioPool_Dispatch_RoundTrips(t *testing.T) {
	pool := NewStdioPool("sh", []string{"-c", echoIdentifierScript}, nil, 2, time.Second, time.Second)
	defer pool.Close()

	resp, err := pool.Dispatch(context.Background(), AgentRequest{Agent: AgentInfo{Identifier: "agent-1"}})
	require.NoError(t, err)
	require.NotNil(t, resp.Content)
	assert.Equal(t, "agent-1", *resp.Content)
	assert.Equal(t, 1, resp.Metadata.UsedToken)
}

// TestStdioPool_Dispatch_SerializesConcurrentRequests is the "Stdio
// serialization" property: against a pool of exactly one worker, N
// concurrent dispatches must produce N correlated responses with no
// request's reply misdelivered to another's caller.
func TestStdioPool_Dispatch_SerializesConcurrentRequests(t *testing.T) {
	pool := NewStdioPool("sh", []string{"-c", echoIdentifierScript}, nil, 1, 5*time.Second, 5*time.Second)
	defer pool.Close()

	const n = 100
	var wg sync.WaitGroup
	responses := make([]string, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			identifier := fmt.Sprintf("agent-%d", i)
			resp, err := pool.Dispatch(context.Background(), AgentRequest{Agent: AgentInfo{Identifier: identifier}})
			errs[i] = err
			if err == nil && resp.Content != nil {
				responses[i] = *resp.Content
			}
		}(i)
	}
	wg.Wait()

	count := 0
	for i, err := range errs {
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("agent-%d", i), responses[i])
		count++
	}
	assert.Equal(t, n, count)
}

// TestStdioPool_Dispatch_CorrelatesShuffledResponses is the "Stdio
// correlation" property: with several workers completing in whatever order
// the OS schedules them, each concurrent dispatch still receives exactly
// its own response, never another in-flight request's.
func TestStdioPool_Dispatch_CorrelatesShuffledResponses(t *testing.T) {
	pool := NewStdioPool("sh", []string{"-c", echoIdentifierScript}, nil, 4, 5*time.Second, 5*time.Second)
	defer pool.Close()

	const n = 30
	var wg sync.WaitGroup
	responses := make([]string, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			identifier := fmt.Sprintf("shuffled-%d", i)
			resp, err := pool.Dispatch(context.Background(), AgentRequest{Agent: AgentInfo{Identifier: identifier}})
			errs[i] = err
			if err == nil && resp.Content != nil {
				responses[i] = *resp.Content
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("shuffled-%d", i), responses[i])
	}
}

func TestAgentResponse_Validate(t *testing.T) {
	assert.NoError(t, AgentResponse{Type: "text"}.Validate())
	assert.NoError(t, AgentResponse{Type: "null"}.Validate())
	assert.Error(t, AgentResponse{Type: "bogus"}.Validate())
}
