package mcptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubicler/cubicler/pkg/config"
)

func TestHTTPTransport_SendRequest_RoundTrips(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tools/list", req.Method)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"tools":[]}`)})
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.URL, server.Client())
	require.NoError(t, transport.Initialize(context.Background()))

	req, err := NewRequest("1", "tools/list", map[string]any{})
	require.NoError(t, err)

	resp, err := transport.SendRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "1", resp.ID)
	assert.NoError(t, transport.Close())
}

func TestHTTPTransport_SendRequest_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.URL, server.Client())
	req, _ := NewRequest("1", "tools/list", nil)

	_, err := transport.SendRequest(context.Background(), req)
	assert.Error(t, err)
}

func TestSSETransport_SendRequest_CorrelatesById(t *testing.T) {
	mux := http.NewServeMux()

	var flush http.Flusher
	var writer http.ResponseWriter

	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		writer = w
		flush = w.(http.Flusher)
		<-r.Context().Done()
	})
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		go func() {
			time.Sleep(10 * time.Millisecond)
			resp := Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"ok":true}`)}
			raw, _ := json.Marshal(resp)
			_, _ = writer.Write([]byte("data: "))
			_, _ = writer.Write(raw)
			_, _ = writer.Write([]byte("\n\n"))
			flush.Flush()
		}()

		w.WriteHeader(http.StatusAccepted)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	transport := NewSSETransport(server.URL+"/post", server.Client())

	streamReq, err := http.NewRequest(http.MethodGet, server.URL+"/stream", nil)
	require.NoError(t, err)
	streamReq.Header.Set("Accept", "text/event-stream")

	streamResp, err := server.Client().Do(streamReq)
	require.NoError(t, err)
	go transport.readLoop(streamResp.Body)

	req, err := NewRequest("abc", "tools/call", map[string]any{"name": "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := transport.SendRequest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.ID)
}

func TestAutoTransport_FallsBackToHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// No SSE support: behave like a plain JSON endpoint.
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{}`)})
	}))
	defer server.Close()

	transport := NewAutoTransport(server.URL, server.Client())
	require.NoError(t, transport.Initialize(context.Background()))

	req, _ := NewRequest("1", "tools/list", nil)
	resp, err := transport.SendRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "1", resp.ID)
}

func TestNewForServer_SelectsTransportByKind(t *testing.T) {
	t.Parallel()

	httpSrv := config.McpServerConfig{Identifier: "a", Transport: config.McpHTTP, URL: "http://x"}
	assert.IsType(t, &HTTPTransport{}, NewForServer(httpSrv))

	sseSrv := config.McpServerConfig{Identifier: "b", Transport: config.McpSSE, URL: "http://x"}
	assert.IsType(t, &SSETransport{}, NewForServer(sseSrv))

	stdioSrv := config.McpServerConfig{Identifier: "c", Transport: config.McpStdio, Command: "echo"}
	assert.IsType(t, &StdioTransport{}, NewForServer(stdioSrv))

	autoSrv := config.McpServerConfig{Identifier: "d", URL: "http://x"}
	assert.IsType(t, &AutoTransport{}, NewForServer(autoSrv))
}

func TestRegistry_GetCachesTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: req.ID})
	}))
	defer server.Close()

	reg := NewRegistry([]config.McpServerConfig{
		{Identifier: "svc", Transport: config.McpHTTP, URL: server.URL},
	})

	first, err := reg.Get(context.Background(), "svc")
	require.NoError(t, err)
	second, err := reg.Get(context.Background(), "svc")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = reg.Get(context.Background(), "missing")
	assert.Error(t, err)

	reg.CloseAll()
}
