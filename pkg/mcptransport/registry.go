package mcptransport

import (
	"context"
	"sync"

	"github.com/cubicler/cubicler/pkg/config"
)

// Registry lazily builds and caches one Transport per configured MCP
// server, keyed by identifier. Transports are created on first use rather
// than at startup so a misconfigured or unreachable server does not block
// the rest of the gateway from coming up (spec §4.4).
type Registry struct {
	mu         sync.Mutex
	transports map[string]Transport
	servers    map[string]config.McpServerConfig
}

// NewRegistry builds a Registry over the given servers.
func NewRegistry(servers []config.McpServerConfig) *Registry {
	byID := make(map[string]config.McpServerConfig, len(servers))
	for _, s := range servers {
		byID[s.Identifier] = s
	}
	return &Registry{
		transports: make(map[string]Transport),
		servers:    byID,
	}
}

// Get returns the initialized Transport for identifier, creating and
// initializing it on first use.
func (r *Registry) Get(ctx context.Context, identifier string) (Transport, error) {
	r.mu.Lock()
	if t, ok := r.transports[identifier]; ok {
		r.mu.Unlock()
		return t, nil
	}
	srv, ok := r.servers[identifier]
	r.mu.Unlock()

	if !ok {
		return nil, &serverNotConfiguredError{identifier: identifier}
	}

	t := NewForServer(srv)
	if err := t.Initialize(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.transports[identifier]; ok {
		r.mu.Unlock()
		_ = t.Close()
		return existing, nil
	}
	r.transports[identifier] = t
	r.mu.Unlock()

	return t, nil
}

// Identifiers returns the configured server identifiers, in no particular
// order.
func (r *Registry) Identifiers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.servers))
	for id := range r.servers {
		ids = append(ids, id)
	}
	return ids
}

// Server returns the configuration for identifier.
func (r *Registry) Server(identifier string) (config.McpServerConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[identifier]
	return s, ok
}

// CloseAll closes every transport created so far.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transports {
		_ = t.Close()
	}
}

type serverNotConfiguredError struct{ identifier string }

func (e *serverNotConfiguredError) Error() string {
	return "mcp server not configured: " + e.identifier
}
