package agenttransport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/cubicler/cubicler/pkg/cubicerrors"
	"github.com/cubicler/cubicler/pkg/logger"
	"github.com/cubicler/cubicler/pkg/mcptransport"
)

// MCPRouter is the subset of pkg/router.Router the direct transport needs to
// invoke tool calls in-process, without importing the router package
// directly (would otherwise be a dependency cycle candidate once the
// dispatcher wires both).
type MCPRouter interface {
	HandleRequest(ctx context.Context, req mcptransport.Request) mcptransport.Response
}

// DefaultMaxToolIterations bounds the direct/openai transport's
// completion/tool-call loop (spec §4.9).
const DefaultMaxToolIterations = 8

// DirectTransport drives an in-process OpenAI chat-completion loop,
// resolving tool calls by invoking the MCP router directly instead of going
// back out over HTTP (spec §4.9).
type DirectTransport struct {
	client            openai.Client
	model             string
	router            MCPRouter
	maxToolIterations int
}

// NewDirectTransport builds a DirectTransport for the given model, using
// router to resolve any tool calls the model emits.
func NewDirectTransport(apiKey, model string, router MCPRouter) *DirectTransport {
	return &DirectTransport{
		client:            openai.NewClient(option.WithAPIKey(apiKey)),
		model:             model,
		router:            router,
		maxToolIterations: DefaultMaxToolIterations,
	}
}

// Dispatch implements Transport.
func (t *DirectTransport) Dispatch(ctx context.Context, req AgentRequest) (AgentResponse, error) {
	tools := buildToolParams(req.Tools)
	messages := buildChatMessages(req)

	var usedTools int
	for iteration := 0; iteration < t.maxToolIterations; iteration++ {
		completion, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    t.model,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return AgentResponse{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
		}
		if len(completion.Choices) == 0 {
			return AgentResponse{}, &cubicerrors.AgentResponseInvalidError{Reason: "openai completion returned no choices"}
		}

		choice := completion.Choices[0]
		if len(choice.Message.ToolCalls) == 0 {
			return textResponse(choice.Message.Content, int(completion.Usage.TotalTokens), usedTools), nil
		}

		messages = append(messages, choice.Message.ToParam())
		for _, call := range choice.Message.ToolCalls {
			usedTools++
			result := t.invokeTool(ctx, call.Function.Name, call.Function.Arguments)
			messages = append(messages, openai.ToolMessage(result, call.ID))
		}
	}

	return AgentResponse{}, &cubicerrors.AgentResponseInvalidError{Reason: "exceeded maximum tool-call iterations"}
}

func (t *DirectTransport) invokeTool(ctx context.Context, name, argsJSON string) string {
	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			logger.Warnf("agenttransport: direct transport could not parse tool-call arguments for %s: %v", name, err)
			args = map[string]any{}
		}
	}
	params, _ := json.Marshal(map[string]any{"name": name, "arguments": args})
	resp := t.router.HandleRequest(ctx, mcptransport.Request{JSONRPC: "2.0", ID: name, Method: "tools/call", Params: params})
	if resp.Error != nil {
		return fmt.Sprintf("error: %s", resp.Error.Message)
	}
	return string(resp.Result)
}

func textResponse(content string, usedToken, usedTools int) AgentResponse {
	c := content
	return AgentResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Type:      "text",
		Content:   &c,
		Metadata:  AgentResponseMeta{UsedToken: usedToken, UsedTools: usedTools},
	}
}

func buildChatMessages(req AgentRequest) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.Agent.Prompt != "" {
		messages = append(messages, openai.SystemMessage(req.Agent.Prompt))
	}
	for _, m := range req.Messages {
		if m.Sender == req.Agent.Identifier {
			messages = append(messages, openai.AssistantMessage(m.Content))
			continue
		}
		messages = append(messages, openai.UserMessage(m.Content))
	}
	return messages
}

func buildToolParams(defs []mcptransport.ToolDefinition) []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  openai.FunctionParameters(d.Parameters),
		}))
	}
	return tools
}
