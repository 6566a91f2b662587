package agenttransport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cubicler/cubicler/pkg/cubicerrors"
	"github.com/cubicler/cubicler/pkg/logger"
)

// AgentChannel is one agent's live outbound SSE frame sink, registered by
// whatever holds the inbound SSE connection for that agent.
type AgentChannel struct {
	frames chan []byte

	mu      sync.Mutex
	pending map[string]chan AgentResponse
}

// Frames returns the stream of already-framed `data: <json>\n\n` payloads
// to write to the agent's SSE connection.
func (c *AgentChannel) Frames() <-chan []byte { return c.frames }

// Deliver resolves a previously-dispatched request id with the agent's
// response, correlating it back to the Dispatch call awaiting it. It
// reports false if no call is awaiting that id (stale or unknown request).
func (c *AgentChannel) Deliver(requestID string, resp AgentResponse) bool {
	c.mu.Lock()
	ch, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- resp
	return true
}

func (c *AgentChannel) register(requestID string) chan AgentResponse {
	ch := make(chan AgentResponse, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	return ch
}

func (c *AgentChannel) unregister(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// AgentChannelRegistry holds at most one live AgentChannel per agent
// identifier, the inbound-SSE analog of pkg/ssebridge for the agent side of
// the gateway (spec §4.9).
type AgentChannelRegistry struct {
	mu       sync.Mutex
	channels map[string]*AgentChannel
}

// NewAgentChannelRegistry builds an empty registry.
func NewAgentChannelRegistry() *AgentChannelRegistry {
	return &AgentChannelRegistry{channels: make(map[string]*AgentChannel)}
}

// Register creates (or replaces) the channel for an agent identifier. done
// should be closed when the owning SSE connection ends.
func (r *AgentChannelRegistry) Register(identifier string, done <-chan struct{}) *AgentChannel {
	ch := &AgentChannel{frames: make(chan []byte, 8), pending: make(map[string]chan AgentResponse)}

	r.mu.Lock()
	if old, ok := r.channels[identifier]; ok {
		close(old.frames)
	}
	r.channels[identifier] = ch
	r.mu.Unlock()

	go func() {
		<-done
		r.mu.Lock()
		if r.channels[identifier] == ch {
			delete(r.channels, identifier)
		}
		r.mu.Unlock()
	}()

	return ch
}

func (r *AgentChannelRegistry) get(identifier string) (*AgentChannel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[identifier]
	return ch, ok
}

// Deliver resolves requestID on the channel registered for identifier, for
// use by the HTTP handler that receives an agent's correlated response
// POST (spec §4.9). It reports false if the agent has no live channel or
// no call is awaiting that request id.
func (r *AgentChannelRegistry) Deliver(identifier, requestID string, resp AgentResponse) bool {
	ch, ok := r.get(identifier)
	if !ok {
		return false
	}
	return ch.Deliver(requestID, resp)
}

// SSETransport dispatches by writing the AgentRequest to a previously
// registered agent channel and awaiting a correlated response posted back
// over a separate inbound endpoint (spec §4.9).
type SSETransport struct {
	identifier string
	registry   *AgentChannelRegistry
	timeout    time.Duration
}

// NewSSETransport builds an SSETransport targeting the agent registered
// under identifier in registry.
func NewSSETransport(identifier string, registry *AgentChannelRegistry) *SSETransport {
	return &SSETransport{identifier: identifier, registry: registry, timeout: DefaultRequestTimeout}
}

type sseFrame struct {
	RequestID string       `json:"requestId"`
	Request   AgentRequest `json:"request"`
}

// Dispatch implements Transport.
func (t *SSETransport) Dispatch(ctx context.Context, req AgentRequest) (AgentResponse, error) {
	ch, ok := t.registry.get(t.identifier)
	if !ok {
		return AgentResponse{}, &cubicerrors.AgentDisconnectedError{Identifier: t.identifier}
	}

	requestID := uuid.NewString()
	waiter := ch.register(requestID)
	defer ch.unregister(requestID)

	raw, err := json.Marshal(sseFrame{RequestID: requestID, Request: req})
	if err != nil {
		return AgentResponse{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}
	frame := append([]byte("data: "), raw...)
	frame = append(frame, '\n', '\n')

	select {
	case ch.frames <- frame:
	default:
		logger.Warnf("agenttransport: sse channel for %s is full, dropping request %s", t.identifier, requestID)
		return AgentResponse{}, &cubicerrors.AgentDisconnectedError{Identifier: t.identifier}
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case resp := <-waiter:
		if err := resp.Validate(); err != nil {
			return AgentResponse{}, &cubicerrors.AgentResponseInvalidError{Reason: err.Error()}
		}
		return resp, nil
	case <-timer.C:
		return AgentResponse{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonTimeout}
	case <-ctx.Done():
		return AgentResponse{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonTimeout, Cause: ctx.Err()}
	}
}
