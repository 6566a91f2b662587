// Package dispatch resolves a configured agent, composes its prompt, and
// drives the outbound agent transport, normalizing every failure into a
// valid DispatchResponse rather than ever surfacing a 5xx (spec §4.11).
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cubicler/cubicler/pkg/agenttransport"
	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/cubicerrors"
	"github.com/cubicler/cubicler/pkg/logger"
	"github.com/cubicler/cubicler/pkg/mcptransport"
	"github.com/cubicler/cubicler/pkg/metrics"
)

const fallbackPrompt = "You are a helpful AI assistant powered by Cubicler."

// Router is the subset of pkg/router.Router the dispatch service needs.
type Router interface {
	HandleRequest(ctx context.Context, req mcptransport.Request) mcptransport.Response
}

// TransportFactory resolves the agent.Transport to invoke for a given agent.
type TransportFactory func(agent config.AgentConfig) agenttransport.Transport

// DispatchRequest is the inbound payload (spec §3).
type DispatchRequest struct {
	Messages []agenttransport.Message `json:"messages"`

	// Trigger carries the webhook trigger context for a webhook-originated
	// dispatch (SPEC_FULL §4 "WorkflowTrigger context"); nil for dispatches
	// reaching the service through the agent-facing dispatch API. Not part
	// of the public wire format.
	Trigger *TriggerMetadata `json:"-"`
}

// TriggerMetadata mirrors pkg/webhook.TriggerContext's identifying fields,
// kept as a separate type here to avoid dispatch importing webhook.
type TriggerMetadata struct {
	Type        string
	Identifier  string
	Name        string
	Description string
	TriggeredAt string
}

// DispatchResponse wraps an AgentResponse with the agent identifier that
// produced it (spec §4.11 step 6).
type DispatchResponse struct {
	Sender    string                          `json:"sender"`
	Timestamp string                          `json:"timestamp"`
	Type      string                          `json:"type"`
	Content   *string                         `json:"content"`
	Metadata  agenttransport.AgentResponseMeta `json:"metadata"`
}

// Service implements the dispatch pipeline (spec §4.11).
type Service struct {
	agents        map[string]config.AgentConfig
	order         []string
	basePrompt    string
	defaultPrompt string
	router        Router
	transportFor  TransportFactory
}

// NewService builds a Service over cfg's agents, using router to collect the
// tools/servers lists and transportFor to resolve each agent's transport.
func NewService(cfg *config.AgentsConfig, router Router, transportFor TransportFactory) *Service {
	order := make([]string, 0, len(cfg.Agents))
	for id := range cfg.Agents {
		order = append(order, id)
	}
	sort.Strings(order)

	return &Service{
		agents:        cfg.Agents,
		order:         order,
		basePrompt:    cfg.BasePrompt,
		defaultPrompt: cfg.DefaultPrompt,
		router:        router,
		transportFor:  transportFor,
	}
}

// Dispatch runs the full pipeline for an optional agentID (empty selects the
// first configured agent in identifier order) and req.
func (s *Service) Dispatch(ctx context.Context, agentID string, req DispatchRequest) (DispatchResponse, error) {
	if len(req.Messages) == 0 {
		return DispatchResponse{}, &cubicerrors.BadRequestError{Message: "messages must not be empty"}
	}

	agent, err := s.resolveAgent(agentID)
	if err != nil {
		return DispatchResponse{}, err
	}

	start := time.Now()
	resp, transportErr := s.dispatchToAgent(ctx, agent, req)
	outcome := "success"
	if transportErr != nil {
		outcome = "error"
	}
	metrics.RecordDispatch(agent.Identifier, outcome, time.Since(start).Seconds())
	return resp, nil
}

func (s *Service) resolveAgent(agentID string) (config.AgentConfig, error) {
	if agentID == "" {
		if len(s.order) == 0 {
			return config.AgentConfig{}, &cubicerrors.NotFoundError{Kind: cubicerrors.KindAgent, Key: ""}
		}
		return s.agents[s.order[0]], nil
	}
	agent, ok := s.agents[agentID]
	if !ok {
		return config.AgentConfig{}, &cubicerrors.NotFoundError{Kind: cubicerrors.KindAgent, Key: agentID}
	}
	return agent, nil
}

// dispatchToAgent runs steps 3-6 of spec §4.11. It never returns an error
// to its caller: a non-nil second return only reports the outcome for
// metrics, since a transport failure still produces a valid synthetic
// DispatchResponse.
func (s *Service) dispatchToAgent(ctx context.Context, agent config.AgentConfig, req DispatchRequest) (DispatchResponse, error) {
	prompt := s.composePrompt(agent, req.Trigger)
	tools := s.collectTools(ctx)
	servers := s.collectServers(ctx)

	agentReq := agenttransport.AgentRequest{
		Agent: agenttransport.AgentInfo{
			Identifier:  agent.Identifier,
			Name:        agent.Name,
			Description: agent.Description,
			Prompt:      prompt,
		},
		Tools:    tools,
		Servers:  servers,
		Messages: req.Messages,
	}

	transport := s.transportFor(agent)
	resp, err := transport.Dispatch(ctx, agentReq)
	if err != nil {
		logger.Warnf("dispatch: agent %s transport failed: %v", agent.Identifier, err)
		return syntheticErrorResponse(agent.Identifier, err), err
	}

	return DispatchResponse{
		Sender:    agent.Identifier,
		Timestamp: resp.Timestamp,
		Type:      resp.Type,
		Content:   resp.Content,
		Metadata:  resp.Metadata,
	}, nil
}

// composePrompt joins basePrompt and the agent's prompt (or the document's
// defaultPrompt) with blank lines, omitting empty segments, falling back to
// a literal default if nothing remains (spec §4.11 step 3). When agent
// declares includeTriggerContext and this dispatch carries trigger, the
// trigger's metadata becomes the leading segment (SPEC_FULL §4
// "WorkflowTrigger context").
func (s *Service) composePrompt(agent config.AgentConfig, trigger *TriggerMetadata) string {
	segments := make([]string, 0, 3)
	if agent.IncludeTriggerContext && trigger != nil {
		segments = append(segments, formatTriggerSegment(*trigger))
	}
	if s.basePrompt != "" {
		segments = append(segments, s.basePrompt)
	}
	if agent.Prompt != "" {
		segments = append(segments, agent.Prompt)
	} else if s.defaultPrompt != "" {
		segments = append(segments, s.defaultPrompt)
	}

	composed := ""
	for i, seg := range segments {
		if i > 0 {
			composed += "\n\n"
		}
		composed += seg
	}
	if composed == "" {
		return fallbackPrompt
	}
	return composed
}

// formatTriggerSegment renders trigger as a short prose line identifying
// the webhook that started this conversation.
func formatTriggerSegment(trigger TriggerMetadata) string {
	return fmt.Sprintf("This conversation was triggered by the %q %s (%s) at %s.",
		trigger.Name, trigger.Type, trigger.Identifier, trigger.TriggeredAt)
}

// wireTool mirrors the JSON shape pkg/router's mcp.Tool
// marshalling produces, so collectTools can decode the router's own
// tools/list response back into ToolDefinitions.
type wireTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	} `json:"inputSchema"`
}

// collectTools fetches the router's aggregate tool list, tolerating any
// failure by substituting an empty list (spec §4.11 step 4).
func (s *Service) collectTools(ctx context.Context) []mcptransport.ToolDefinition {
	resp := s.router.HandleRequest(ctx, mcptransport.Request{JSONRPC: "2.0", ID: "dispatch-tools-list", Method: "tools/list"})
	if resp.Error != nil {
		logger.Warnf("dispatch: tools/list failed: %s", resp.Error.Message)
		return nil
	}

	var result struct {
		Tools []wireTool `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		logger.Warnf("dispatch: tools/list returned unparsable result: %v", err)
		return nil
	}

	tools := make([]mcptransport.ToolDefinition, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, mcptransport.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters: map[string]any{
				"type":       t.InputSchema.Type,
				"properties": t.InputSchema.Properties,
				"required":   t.InputSchema.Required,
			},
		})
	}
	return tools
}

// collectServers fetches the builtin available-servers summary, tolerating
// any failure by substituting an empty list (spec §4.11 step 4).
func (s *Service) collectServers(ctx context.Context) []agenttransport.ServerInfo {
	params, _ := json.Marshal(map[string]any{"name": "cubicler_available_servers", "arguments": map[string]any{}})
	resp := s.router.HandleRequest(ctx, mcptransport.Request{JSONRPC: "2.0", ID: "dispatch-available-servers", Method: "tools/call", Params: params})
	if resp.Error != nil {
		logger.Warnf("dispatch: cubicler_available_servers failed: %s", resp.Error.Message)
		return nil
	}

	var callResult struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(resp.Result, &callResult); err != nil || len(callResult.Content) == 0 {
		logger.Warnf("dispatch: cubicler_available_servers returned unparsable result")
		return nil
	}

	var summary struct {
		Servers []agenttransport.ServerInfo `json:"servers"`
	}
	if err := json.Unmarshal([]byte(callResult.Content[0].Text), &summary); err != nil {
		logger.Warnf("dispatch: cubicler_available_servers payload was unparsable: %v", err)
		return nil
	}
	return summary.Servers
}

// syntheticErrorResponse builds the DispatchResponse spec §4.11 step 6
// requires when the agent transport fails.
func syntheticErrorResponse(agentID string, err error) DispatchResponse {
	content := fmt.Sprintf("Sorry, I encountered an error while processing your request: %s", err.Error())
	return DispatchResponse{
		Sender:    agentID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Type:      "text",
		Content:   &content,
		Metadata:  agenttransport.AgentResponseMeta{UsedToken: 0, UsedTools: 0},
	}
}
