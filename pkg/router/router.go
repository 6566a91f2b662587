// Package router implements Cubicler's JSON-RPC 2.0 dispatch surface,
// aggregating every configured ToolsProvider behind a single
// initialize / tools/list / tools/call method set (spec §4.7).
package router

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cubicler/cubicler/pkg/cubicerrors"
	"github.com/cubicler/cubicler/pkg/mcptransport"
	"github.com/cubicler/cubicler/pkg/providers"
)

// State is the router's lifecycle state.
type State int

// Lifecycle states (spec §4.7).
const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

const protocolVersion = "2024-11-05"

// ServerName is reported in the initialize response's serverInfo.name.
const ServerName = "Cubicler"

// ServerVersion is reported in the initialize response's serverInfo.version.
var ServerVersion = "dev"

// Router dispatches JSON-RPC requests to the configured provider set.
// Providers are consulted in declaration order; built-ins must be first in
// the slice so no mangled name collision can shadow them (spec §4.7).
type Router struct {
	providers []providers.ToolsProvider

	mu    sync.Mutex
	state State
}

// New builds a Router over providerList, in first-match-wins order.
func New(providerList []providers.ToolsProvider) *Router {
	return &Router{providers: providerList, state: StateUninitialized}
}

// HandleRequest dispatches req and always returns a well-formed JSON-RPC
// response: the router never surfaces a transport-level error to the
// caller (spec §4.7).
func (r *Router) HandleRequest(ctx context.Context, req mcptransport.Request) mcptransport.Response {
	switch req.Method {
	case "initialize":
		return r.handleInitialize(ctx, req.ID)
	case "tools/list":
		return r.handleToolsList(ctx, req.ID)
	case "tools/call":
		return r.handleToolsCall(ctx, req)
	default:
		return mcptransport.ErrorResponse(req.ID, &cubicerrors.RPCError{
			Code:    cubicerrors.CodeMethodNotSupported,
			Message: "method not supported: " + req.Method,
		})
	}
}

// Initialize fans out to every provider's Initialize. It is idempotent: a
// second call while Ready or Initializing is a no-op. A provider failure is
// fatal to the router's initialization, matching spec §4.7.
func (r *Router) Initialize(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateUninitialized {
		r.mu.Unlock()
		return nil
	}
	r.state = StateInitializing
	r.mu.Unlock()

	for _, p := range r.providers {
		if err := p.Initialize(ctx); err != nil {
			r.mu.Lock()
			r.state = StateUninitialized
			r.mu.Unlock()
			return err
		}
	}

	r.mu.Lock()
	r.state = StateReady
	r.mu.Unlock()
	return nil
}

func (r *Router) handleInitialize(ctx context.Context, id any) mcptransport.Response {
	if err := r.Initialize(ctx); err != nil {
		return mcptransport.ErrorResponse(id, err)
	}

	result, _ := json.Marshal(map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": true},
		},
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": ServerVersion,
		},
	})
	return mcptransport.Response{JSONRPC: "2.0", ID: id, Result: result}
}

func (r *Router) handleToolsList(ctx context.Context, id any) mcptransport.Response {
	var tools []mcp.Tool
	for _, p := range r.providers {
		defs, err := p.ToolsList(ctx)
		if err != nil {
			continue
		}
		for _, d := range defs {
			tools = append(tools, toMCPTool(d))
		}
	}

	result, _ := json.Marshal(map[string]any{"tools": tools})
	return mcptransport.Response{JSONRPC: "2.0", ID: id, Result: result}
}

func toMCPTool(d mcptransport.ToolDefinition) mcp.Tool {
	schema := mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}}

	if t, ok := d.Parameters["type"].(string); ok && t != "" {
		schema.Type = t
	}
	if props, ok := d.Parameters["properties"].(map[string]any); ok {
		schema.Properties = props
	}
	schema.Required = requiredStrings(d.Parameters["required"])

	return mcp.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: schema,
	}
}

// requiredStrings normalizes a schema's "required" array, which arrives as
// []string when built in-process (REST provider) or []any when decoded
// from a backend's JSON tools/list response (MCP provider).
func requiredStrings(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (r *Router) handleToolsCall(ctx context.Context, req mcptransport.Request) mcptransport.Response {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return mcptransport.ErrorResponse(req.ID, &cubicerrors.RPCError{
				Code:    cubicerrors.CodeInvalidParams,
				Message: "invalid params: " + err.Error(),
			})
		}
	}
	if params.Name == "" {
		return mcptransport.ErrorResponse(req.ID, &cubicerrors.RPCError{
			Code:    cubicerrors.CodeInvalidParams,
			Message: "missing required parameter: name",
		})
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}

	provider := r.findProvider(params.Name)
	if provider == nil {
		return mcptransport.ErrorResponse(req.ID, &cubicerrors.NotFoundError{Kind: cubicerrors.KindTool, Key: params.Name})
	}

	value, err := provider.ToolsCall(ctx, params.Name, params.Arguments)
	if err != nil {
		return mcptransport.ErrorResponse(req.ID, err)
	}

	var callResult *mcp.CallToolResult
	if text, ok := value.(string); ok {
		callResult = mcp.NewToolResultText(text)
	} else {
		raw, marshalErr := json.Marshal(value)
		if marshalErr != nil {
			return mcptransport.ErrorResponse(req.ID, marshalErr)
		}
		callResult = mcp.NewToolResultText(string(raw))
	}

	result, _ := json.Marshal(callResult)
	return mcptransport.Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// findProvider returns the first provider (in declaration order) whose
// CanHandleRequest(name) is true.
func (r *Router) findProvider(name string) providers.ToolsProvider {
	for _, p := range r.providers {
		if p.CanHandleRequest(name) {
			return p
		}
	}
	return nil
}
