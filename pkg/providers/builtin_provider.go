package providers

import (
	"context"
	"strings"

	"github.com/cubicler/cubicler/pkg/cubicerrors"
	"github.com/cubicler/cubicler/pkg/logger"
	"github.com/cubicler/cubicler/pkg/mcptransport"
)

const (
	toolAvailableServers = "cubicler_available_servers"
	toolFetchServerTools = "cubicler_fetch_server_tools"
	builtinServerID      = "cubicler"
)

// ServerDirectory resolves hash(server) back to a (identifier, name,
// description) triple, used by BuiltinProvider to answer
// cubicler_fetch_server_tools without duplicating server bookkeeping.
type ServerDirectory interface {
	HashFor(identifier string) (hash string, ok bool)
	Describe(identifier string) (name, description string, ok bool)
	Identifiers() []string
}

// BuiltinProvider exposes Cubicler's own introspection tools. It must be
// given the full set of other providers (MCP, REST) after construction via
// SetPeers, resolving the cyclic dependency between the router and the
// server registry through two-phase initialization (spec §9).
type BuiltinProvider struct {
	directory ServerDirectory
	peers     []ToolsProvider
}

// NewBuiltinProvider builds a BuiltinProvider over directory. Call SetPeers
// once the other providers exist.
func NewBuiltinProvider(directory ServerDirectory) *BuiltinProvider {
	return &BuiltinProvider{directory: directory}
}

// SetPeers supplies the providers whose tools this provider can introspect
// (everything except itself).
func (p *BuiltinProvider) SetPeers(peers []ToolsProvider) {
	p.peers = peers
}

// Identifier names this provider for logging purposes.
func (p *BuiltinProvider) Identifier() string { return builtinServerID }

// Initialize is a no-op.
func (p *BuiltinProvider) Initialize(_ context.Context) error { return nil }

// ToolsList returns the two built-in tool definitions.
func (p *BuiltinProvider) ToolsList(_ context.Context) ([]mcptransport.ToolDefinition, error) {
	return []mcptransport.ToolDefinition{
		{
			Name:        toolAvailableServers,
			Description: "List the configured tool provider servers and how many tools each exposes",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        toolFetchServerTools,
			Description: "Fetch the tool definitions exposed by one configured server",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"serverIdentifier": map[string]any{"type": "string"},
				},
				"required": []string{"serverIdentifier"},
			},
		},
	}, nil
}

// ToolsCall dispatches to the matching built-in.
func (p *BuiltinProvider) ToolsCall(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case toolAvailableServers:
		return p.availableServers(ctx), nil
	case toolFetchServerTools:
		serverID, _ := args["serverIdentifier"].(string)
		return p.fetchServerTools(ctx, serverID)
	default:
		return nil, &cubicerrors.NotFoundError{Kind: cubicerrors.KindTool, Key: name}
	}
}

func (p *BuiltinProvider) availableServers(ctx context.Context) map[string]any {
	servers := make([]map[string]any, 0, len(p.directory.Identifiers()))
	for _, id := range p.directory.Identifiers() {
		name, description, _ := p.directory.Describe(id)
		servers = append(servers, map[string]any{
			"identifier":  id,
			"name":        name,
			"description": description,
			"toolsCount":  p.toolsCountFor(ctx, id),
		})
	}
	return map[string]any{"total": len(servers), "servers": servers}
}

func (p *BuiltinProvider) toolsCountFor(ctx context.Context, identifier string) int {
	hash, ok := p.directory.HashFor(identifier)
	if !ok {
		return 0
	}
	count := 0
	for _, peer := range p.peers {
		tools, err := peer.ToolsList(ctx)
		if err != nil {
			logger.Warnf("builtin provider: tools/list failed while counting for %s: %v", identifier, err)
			continue
		}
		for _, t := range tools {
			if strings.HasPrefix(t.Name, hash+"_") {
				count++
			}
		}
	}
	return count
}

func (p *BuiltinProvider) fetchServerTools(ctx context.Context, identifier string) (any, error) {
	if identifier == builtinServerID {
		tools, _ := p.ToolsList(ctx)
		return map[string]any{"tools": tools}, nil
	}

	hash, ok := p.directory.HashFor(identifier)
	if !ok {
		return nil, &cubicerrors.NotFoundError{Kind: cubicerrors.KindServer, Key: identifier}
	}

	var tools []mcptransport.ToolDefinition
	for _, peer := range p.peers {
		peerTools, err := peer.ToolsList(ctx)
		if err != nil {
			logger.Warnf("builtin provider: tools/list failed while fetching for %s: %v", identifier, err)
			continue
		}
		for _, t := range peerTools {
			if strings.HasPrefix(t.Name, hash+"_") {
				tools = append(tools, t)
			}
		}
	}
	return map[string]any{"tools": tools}, nil
}

// CanHandleRequest reports whether name is one of the two literal built-in
// names.
func (p *BuiltinProvider) CanHandleRequest(name string) bool {
	return name == toolAvailableServers || name == toolFetchServerTools
}
