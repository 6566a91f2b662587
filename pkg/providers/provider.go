// Package providers adapts MCP servers, REST APIs, and Cubicler's own
// built-in introspection tools to a single ToolsProvider contract consumed
// by the router (spec §4.5, §4.6).
package providers

import (
	"context"

	"github.com/cubicler/cubicler/pkg/mcptransport"
)

// ToolsProvider is the capability set every backend family adapts to.
type ToolsProvider interface {
	Identifier() string
	Initialize(ctx context.Context) error
	ToolsList(ctx context.Context) ([]mcptransport.ToolDefinition, error)
	ToolsCall(ctx context.Context, name string, args map[string]any) (any, error)
	CanHandleRequest(name string) bool
}
