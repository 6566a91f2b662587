package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cubicler/cubicler/pkg/codec"
	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/cubicerrors"
	"github.com/cubicler/cubicler/pkg/logger"
	"github.com/cubicler/cubicler/pkg/mcptransport"
)

// rawTool is the wire shape of one entry in a backend's tools/list result.
type rawTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type toolsListResult struct {
	Tools []rawTool `json:"tools"`
}

type toolsCallResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// MCPProvider aggregates tools exposed by configured MCP servers behind the
// mangled-name scheme in pkg/codec (spec §4.5).
type MCPProvider struct {
	registry *mcptransport.Registry
	servers  []config.McpServerConfig
}

// NewMCPProvider builds an MCPProvider over the given server configs.
func NewMCPProvider(servers []config.McpServerConfig) *MCPProvider {
	return &MCPProvider{
		registry: mcptransport.NewRegistry(servers),
		servers:  servers,
	}
}

// Identifier names this provider for logging purposes; it is not a
// dispatchable server identifier.
func (p *MCPProvider) Identifier() string { return "mcp" }

// Initialize is a no-op: server transports are created lazily on first use
// so one unreachable backend cannot block startup.
func (p *MCPProvider) Initialize(_ context.Context) error { return nil }

// ToolsList aggregates tools/list across every configured server. A server
// that fails is logged and skipped; the aggregate result still reflects the
// servers that answered.
func (p *MCPProvider) ToolsList(ctx context.Context) ([]mcptransport.ToolDefinition, error) {
	type serverTools struct {
		server config.McpServerConfig
		tools  []rawTool
	}

	results := make([]serverTools, len(p.servers))
	group, gctx := errgroup.WithContext(ctx)

	for i, srv := range p.servers {
		i, srv := i, srv
		group.Go(func() error {
			tools, err := p.listForServer(gctx, srv)
			if err != nil {
				logger.Warnf("mcp provider: tools/list failed for server %s: %v", srv.Identifier, err)
				return nil
			}
			results[i] = serverTools{server: srv, tools: tools}
			return nil
		})
	}
	_ = group.Wait() // per-server errors are swallowed above; only panics would propagate

	var out []mcptransport.ToolDefinition
	for _, r := range results {
		hash := codec.Hash(r.server.Identifier, r.server.PrimaryString())
		for _, t := range r.tools {
			out = append(out, mcptransport.ToolDefinition{
				Name:        hash + "_" + codec.SnakeCase(t.Name),
				Description: t.Description,
				Parameters:  t.InputSchema,
			})
		}
	}
	return out, nil
}

func (p *MCPProvider) listForServer(ctx context.Context, srv config.McpServerConfig) ([]rawTool, error) {
	transport, err := p.registry.Get(ctx, srv.Identifier)
	if err != nil {
		return nil, err
	}

	req, err := mcptransport.NewRequest(srv.Identifier+"-tools-list", "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}

	resp, err := transport.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &cubicerrors.RPCError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}
	}

	var result toolsListResult
	if err := unmarshalResult(resp.Result, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// ToolsCall decodes name, resolves the owning server by recomputed hash
// (never by identifier scan), and issues tools/call against it.
func (p *MCPProvider) ToolsCall(ctx context.Context, name string, args map[string]any) (any, error) {
	hash, function, err := codec.Decode(name)
	if err != nil {
		return nil, err
	}

	srv, ok := p.serverForHash(hash)
	if !ok {
		return nil, &cubicerrors.NotFoundError{Kind: cubicerrors.KindTool, Key: name}
	}

	transport, err := p.registry.Get(ctx, srv.Identifier)
	if err != nil {
		return nil, err
	}

	// function is snake_case; the backend knows it by its original name,
	// which we cannot recover from the mangled name alone, so the backend
	// must itself expose snake_case tool names, or this call targets it
	// verbatim as sent.
	req, err := mcptransport.NewRequest(name, "tools/call", map[string]any{
		"name":      function,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}

	resp, err := transport.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &cubicerrors.RPCError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}
	}

	var result toolsCallResult
	if err := unmarshalResult(resp.Result, &result); err != nil {
		return nil, err
	}
	if result.IsError {
		text := ""
		if len(result.Content) > 0 {
			text = result.Content[0].Text
		}
		return nil, &cubicerrors.RPCError{Code: cubicerrors.CodeInternalError, Message: text}
	}

	if len(result.Content) == 1 {
		return result.Content[0].Text, nil
	}
	texts := make([]string, len(result.Content))
	for i, c := range result.Content {
		texts[i] = c.Text
	}
	return texts, nil
}

func (p *MCPProvider) serverForHash(hash string) (config.McpServerConfig, bool) {
	for _, srv := range p.servers {
		if codec.Hash(srv.Identifier, srv.PrimaryString()) == hash {
			return srv, true
		}
	}
	return config.McpServerConfig{}, false
}

// CanHandleRequest reports whether name decodes to a hash matching one of
// this provider's configured servers.
func (p *MCPProvider) CanHandleRequest(name string) bool {
	hash, _, err := codec.Decode(name)
	if err != nil {
		return false
	}
	_, ok := p.serverForHash(hash)
	return ok
}

func unmarshalResult(raw []byte, out any) error {
	if len(raw) == 0 {
		return &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonParseFrame, Cause: fmt.Errorf("empty result")}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonParseFrame, Cause: err}
	}
	return nil
}
