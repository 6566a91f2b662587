// Package mcptransport implements Cubicler's uniform MCP transport
// interface (HTTP, SSE, stdio, auto) consumed by the provider services and
// router (spec §4.4).
package mcptransport

import (
	"context"
	"encoding/json"

	"github.com/cubicler/cubicler/pkg/cubicerrors"
)

// Request is a JSON-RPC 2.0 request envelope. ID may be a string or number;
// callers must echo it back verbatim.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      any                    `json:"id,omitempty"`
	Result  json.RawMessage        `json:"result,omitempty"`
	Error   *cubicerrors.JSONRPCError `json:"error,omitempty"`
}

// NewRequest builds a Request, marshalling params.
func NewRequest(id any, method string, params any) (Request, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Request{}, err
	}
	return Request{JSONRPC: "2.0", ID: id, Method: method, Params: raw}, nil
}

// ErrorResponse builds a JSON-RPC error Response, echoing id.
func ErrorResponse(id any, err error) Response {
	rpcErr := cubicerrors.AsJSONRPCError(err)
	return Response{JSONRPC: "2.0", ID: id, Error: &rpcErr}
}

// ToolDefinition is a tool as exposed to agents (spec §3).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ServerIdentity names a configured backend server, used to key transports.
type ServerIdentity struct {
	Identifier    string
	PrimaryString string // URL for http/sse/auto, command for stdio
}

// Transport is the uniform interface the router and provider services use
// to talk to a backend MCP server, regardless of wire mechanism.
type Transport interface {
	// Initialize prepares the transport for use (opening the SSE stream or
	// starting the stdio process; a no-op for HTTP). It does not send an
	// MCP initialize request.
	Initialize(ctx context.Context) error
	// SendRequest issues req and returns the backend's response.
	SendRequest(ctx context.Context, req Request) (Response, error)
	// Close releases any resources (connections, processes) held by the
	// transport.
	Close() error
}
