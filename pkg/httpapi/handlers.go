package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/cubicler/cubicler/pkg/agenttransport"
	"github.com/cubicler/cubicler/pkg/cubicerrors"
	"github.com/cubicler/cubicler/pkg/dispatch"
	"github.com/cubicler/cubicler/pkg/logger"
	"github.com/cubicler/cubicler/pkg/mcptransport"
	"github.com/cubicler/cubicler/pkg/webhook"
)

type handlers struct {
	deps Deps
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// health implements GET /health (spec §6).
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Health.Report())
}

// agentSummary is one entry in GET /agents' response array.
type agentSummary struct {
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// agents implements GET /agents (spec §6).
func (h *handlers) agents(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.AgentsManager.Agents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load agents: "+err.Error())
		return
	}

	ids := make([]string, 0, len(cfg.Agents))
	for id := range cfg.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	summaries := make([]agentSummary, 0, len(ids))
	for _, id := range ids {
		a := cfg.Agents[id]
		summaries = append(summaries, agentSummary{Identifier: a.Identifier, Name: a.Name, Description: a.Description})
	}

	writeJSON(w, http.StatusOK, map[string]any{"total": len(summaries), "agents": summaries})
}

// dispatch implements POST /dispatch and POST /dispatch/{agentId} (spec §6,
// §4.11). Agent-side failures never surface as 5xx: the dispatch service
// already normalizes those into a synthetic DispatchResponse, so an error
// reaching this handler is always a caller-facing 400/404.
func (h *handlers) dispatch(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	var req dispatch.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	resp, err := h.deps.Dispatcher.Dispatch(r.Context(), agentID, req)
	if err != nil {
		writeError(w, cubicerrors.AsHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// mcp implements POST /mcp (spec §6, §4.8): synchronous JSON-RPC by
// default, or a 202 handoff to a registered SSE channel when the caller
// names one via X-MCP-Client-Id.
func (h *handlers) mcp(w http.ResponseWriter, r *http.Request) {
	var req mcptransport.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	clientID := r.Header.Get("X-MCP-Client-Id")
	if clientID != "" && h.deps.Bridge != nil && h.deps.Bridge.Registered(clientID) {
		ctx := r.Context()
		go func() {
			resp := h.deps.Router.HandleRequest(ctx, req)
			if !h.deps.Bridge.Deliver(clientID, resp) {
				logger.Warnf("httpapi: failed to deliver streamed response to client %s", clientID)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]any{"streamed": true, "id": req.ID})
		return
	}

	resp := h.deps.Router.HandleRequest(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

// webhook implements POST /webhook/{identifier} (spec §6, §4.12). The
// target agent id may be named by an X-Agent-Id header or an agentId query
// parameter.
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	agentID := r.Header.Get("X-Agent-Id")
	if agentID == "" {
		agentID = r.URL.Query().Get("agentId")
	}

	var payload map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
			return
		}
	}

	in := webhook.InboundWebhook{
		Identifier: identifier,
		AgentID:    agentID,
		Payload:    payload,
		Headers: map[string]string{
			"x-signature-256": r.Header.Get("X-Signature-256"),
			"authorization":   r.Header.Get("Authorization"),
		},
	}

	resp, err := h.deps.Webhooks.Handle(r.Context(), in)
	if err != nil {
		writeError(w, cubicerrors.AsHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// agentEvents implements GET /agents/{agentId}/events: the inbound SSE
// connection an SSE-transport agent opens to receive dispatched requests
// (spec §4.9). The connection's lifetime is the channel's lifetime.
func (h *handlers) agentEvents(w http.ResponseWriter, r *http.Request) {
	if h.deps.AgentChannels == nil {
		writeError(w, http.StatusServiceUnavailable, "sse agent transport is not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	identifier := chi.URLParam(r, "agentId")
	done := make(chan struct{})
	ch := h.deps.AgentChannels.Register(identifier, done)
	defer close(done)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case frame, open := <-ch.Frames():
			if !open {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// agentResponsePayload is the body an SSE-transport agent POSTs back to
// correlate a response with a previously streamed request (spec §4.9).
type agentResponsePayload struct {
	RequestID string                          `json:"requestId"`
	Response  agenttransport.AgentResponse    `json:"response"`
}

// agentResponses implements POST /agents/{agentId}/responses (spec §4.9).
func (h *handlers) agentResponses(w http.ResponseWriter, r *http.Request) {
	if h.deps.AgentChannels == nil {
		writeError(w, http.StatusServiceUnavailable, "sse agent transport is not configured")
		return
	}

	identifier := chi.URLParam(r, "agentId")

	var body agentResponsePayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	if !h.deps.AgentChannels.Deliver(identifier, body.RequestID, body.Response) {
		writeError(w, http.StatusNotFound, "no pending request for id "+body.RequestID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
