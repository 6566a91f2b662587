package agenttransport

import (
	"net/http"
	"time"

	"github.com/cubicler/cubicler/pkg/config"
)

// NewForAgent builds the Transport configured for agent, wiring an SSE
// transport against channels (used only when the agent's transport kind is
// "sse") and router (used only for "direct").
func NewForAgent(agent config.AgentConfig, channels *AgentChannelRegistry, router MCPRouter) Transport {
	switch agent.Transport {
	case config.TransportHTTP:
		return NewHTTPTransport(agent.URL, agent.Headers, &http.Client{Timeout: DefaultRequestTimeout})
	case config.TransportSSE:
		return NewSSETransport(agent.Identifier, channels)
	case config.TransportStdio:
		return NewStdioPool(
			agent.Command,
			agent.Args,
			nil,
			agent.MaxWorkers,
			time.Duration(agent.AcquireTimeoutMs)*time.Millisecond,
			time.Duration(agent.RequestTimeoutMs)*time.Millisecond,
		)
	case config.TransportDirect:
		return NewDirectTransport(agent.APIKey, agent.Model, router)
	default:
		return NewHTTPTransport(agent.URL, agent.Headers, nil)
	}
}
