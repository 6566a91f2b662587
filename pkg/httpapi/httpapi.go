// Package httpapi mounts Cubicler's public HTTP surface: health, agent
// listing, dispatch, the MCP JSON-RPC endpoint, webhooks, and metrics
// (spec §6).
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cubicler/cubicler/pkg/agenttransport"
	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/dispatch"
	"github.com/cubicler/cubicler/pkg/health"
	"github.com/cubicler/cubicler/pkg/logger"
	"github.com/cubicler/cubicler/pkg/mcptransport"
	"github.com/cubicler/cubicler/pkg/metrics"
	"github.com/cubicler/cubicler/pkg/ssebridge"
	"github.com/cubicler/cubicler/pkg/webhook"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// EnvEnableCORS toggles the permissive CORS policy (spec §6).
const EnvEnableCORS = "ENABLE_CORS"

// MCPRouter is the subset of pkg/router.Router the HTTP surface needs.
type MCPRouter interface {
	HandleRequest(ctx context.Context, req mcptransport.Request) mcptransport.Response
}

// Dispatcher is the subset of pkg/dispatch.Service the HTTP surface needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, agentID string, req dispatch.DispatchRequest) (dispatch.DispatchResponse, error)
}

// WebhookHandler is the subset of pkg/webhook.Service the HTTP surface needs.
type WebhookHandler interface {
	Handle(ctx context.Context, in webhook.InboundWebhook) (dispatch.DispatchResponse, error)
}

// AgentsProvider is the subset of pkg/config.Manager the HTTP surface needs
// for GET /agents.
type AgentsProvider interface {
	Agents(ctx context.Context) (*config.AgentsConfig, error)
}

// Deps wires every service the HTTP surface fronts.
type Deps struct {
	AgentsManager AgentsProvider
	Dispatcher    Dispatcher
	Router        MCPRouter
	Webhooks      WebhookHandler
	Health        *health.Service
	Bridge        *ssebridge.Bridge

	// AgentChannels backs the SSE agent transport's inbound endpoints
	// (spec §4.9): agents open a long-lived event stream here and POST
	// their correlated responses back.
	AgentChannels *agenttransport.AgentChannelRegistry
}

// NewRouter builds the chi router for Deps, mounting every endpoint in
// spec §6 plus GET /metrics.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
	)

	if os.Getenv(EnvEnableCORS) != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-MCP-Client-Id", "X-Agent-Id", "X-Signature-256", "Authorization"},
			MaxAge:         300,
		}))
	}

	h := &handlers{deps: deps}

	r.Get("/health", h.health)
	r.Get("/agents", h.agents)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Post("/dispatch", h.dispatch)
	r.Post("/dispatch/{agentId}", h.dispatch)

	r.Post("/mcp", h.mcp)

	r.Post("/webhook", h.webhook)
	r.Post("/webhook/{identifier}", h.webhook)

	r.Get("/agents/{agentId}/events", h.agentEvents)
	r.Post("/agents/{agentId}/responses", h.agentResponses)

	return r
}

// Serve runs the HTTP server on address until ctx is cancelled, then shuts
// it down gracefully.
func Serve(ctx context.Context, address string, handler http.Handler) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	logger.Infof("http server listening on %s", address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Infof("http server stopped")
	return nil
}

// DefaultAddress builds host:port from CUBICLER_HOST/CUBICLER_PORT,
// falling back to spec §6's documented defaults.
func DefaultAddress() string {
	host := os.Getenv("CUBICLER_HOST")
	if host == "" {
		host = "0.0.0.0"
	}
	port := os.Getenv("CUBICLER_PORT")
	if port == "" {
		port = "1503"
	}
	return strings.TrimSuffix(host, ":") + ":" + port
}
