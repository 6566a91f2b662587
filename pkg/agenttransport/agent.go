// Package agenttransport implements the four agent-facing transports
// (HTTP, SSE, stdio pool, direct/openai), each satisfying a common
// dispatch(AgentRequest) -> AgentResponse contract (spec §4.9).
package agenttransport

import (
	"context"

	"github.com/cubicler/cubicler/pkg/mcptransport"
)

// AgentInfo is the agent-identity fragment of an AgentRequest.
type AgentInfo struct {
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

// ServerInfo is one entry of an AgentRequest's servers list.
type ServerInfo struct {
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Message is one turn of conversation history. Sender is "user" for
// caller-supplied turns or a prior agent's identifier for turns the
// dispatcher is replaying back to an agent.
type Message struct {
	Sender  string `json:"sender,omitempty"`
	Content string `json:"content"`
}

// AgentRequest is the payload every agent transport sends to its agent
// (spec §3).
type AgentRequest struct {
	Agent    AgentInfo                    `json:"agent"`
	Tools    []mcptransport.ToolDefinition `json:"tools"`
	Servers  []ServerInfo                 `json:"servers"`
	Messages []Message                   `json:"messages"`
}

// AgentResponse is the payload every agent transport must produce (spec §3).
type AgentResponse struct {
	Timestamp string             `json:"timestamp"`
	Type      string             `json:"type"`
	Content   *string            `json:"content"`
	Metadata  AgentResponseMeta  `json:"metadata"`
}

// AgentResponseMeta carries usage accounting an agent may report.
type AgentResponseMeta struct {
	UsedToken int `json:"usedToken,omitempty"`
	UsedTools int `json:"usedTools,omitempty"`
}

// Validate reports whether resp's Type is one of "text" or "null". It does
// not check that "type" and "metadata" were present on the wire; that check
// is made on the raw JSON by decodeAgentResponse. Content may legitimately
// be nil when Type is "null", so it is not checked here.
func (resp AgentResponse) Validate() error {
	switch resp.Type {
	case "text", "null":
	default:
		return &invalidResponseError{reason: "type must be \"text\" or \"null\""}
	}
	return nil
}

type invalidResponseError struct{ reason string }

func (e *invalidResponseError) Error() string { return e.reason }

// Reason exposes the underlying reason string for cubicerrors.AgentResponseInvalidError.
func (e *invalidResponseError) Reason() string { return e.reason }

// Transport dispatches an AgentRequest to a configured agent and returns
// its AgentResponse, or an error if the agent could not be reached or
// returned a malformed response.
type Transport interface {
	Dispatch(ctx context.Context, req AgentRequest) (AgentResponse, error)
}
