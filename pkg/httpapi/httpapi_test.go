package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubicler/cubicler/pkg/agenttransport"
	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/cubicerrors"
	"github.com/cubicler/cubicler/pkg/dispatch"
	"github.com/cubicler/cubicler/pkg/mcptransport"
	"github.com/cubicler/cubicler/pkg/webhook"
)

type fakeAgentsProvider struct {
	cfg *config.AgentsConfig
	err error
}

func (f *fakeAgentsProvider) Agents(context.Context) (*config.AgentsConfig, error) {
	return f.cfg, f.err
}

type fakeDispatcher struct {
	resp dispatch.DispatchResponse
	err  error
}

func (f *fakeDispatcher) Dispatch(context.Context, string, dispatch.DispatchRequest) (dispatch.DispatchResponse, error) {
	return f.resp, f.err
}

type fakeRouter struct {
	resp mcptransport.Response
}

func (f *fakeRouter) HandleRequest(context.Context, mcptransport.Request) mcptransport.Response {
	return f.resp
}

type fakeWebhooks struct {
	resp dispatch.DispatchResponse
	err  error
}

func (f *fakeWebhooks) Handle(context.Context, webhook.InboundWebhook) (dispatch.DispatchResponse, error) {
	return f.resp, f.err
}

func TestHealth_AlwaysReturns200(t *testing.T) {
	r := NewRouter(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAgents_ListsSortedByIdentifier(t *testing.T) {
	cfg := &config.AgentsConfig{Agents: map[string]config.AgentConfig{
		"zeta":  {Identifier: "zeta", Name: "Zeta"},
		"alpha": {Identifier: "alpha", Name: "Alpha"},
	}}
	r := NewRouter(Deps{AgentsManager: &fakeAgentsProvider{cfg: cfg}})

	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total  int            `json:"total"`
		Agents []agentSummary `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, "alpha", body.Agents[0].Identifier)
	assert.Equal(t, "zeta", body.Agents[1].Identifier)
}

func TestAgents_ConfigFailureReturns500(t *testing.T) {
	r := NewRouter(Deps{AgentsManager: &fakeAgentsProvider{err: assertError("boom")}})
	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDispatch_EmptyMessagesReturns400(t *testing.T) {
	r := NewRouter(Deps{Dispatcher: &fakeDispatcher{err: &cubicerrors.BadRequestError{Message: "no messages"}}})
	req := httptest.NewRequest(http.MethodPost, "/dispatch", bytes.NewBufferString(`{"messages":[]}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatch_Success(t *testing.T) {
	content := "hi"
	r := NewRouter(Deps{Dispatcher: &fakeDispatcher{resp: dispatch.DispatchResponse{Sender: "agent-a", Type: "text", Content: &content}}})
	req := httptest.NewRequest(http.MethodPost, "/dispatch/agent-a", bytes.NewBufferString(`{"messages":[{"sender":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dispatch.DispatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "agent-a", resp.Sender)
}

func TestMCP_SynchronousByDefault(t *testing.T) {
	r := NewRouter(Deps{Router: &fakeRouter{resp: mcptransport.Response{JSONRPC: "2.0", ID: "1"}}})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`{"jsonrpc":"2.0","id":"1","method":"initialize"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMCP_MalformedJSONReturns400(t *testing.T) {
	r := NewRouter(Deps{Router: &fakeRouter{}})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`not json`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_UnknownReturns404(t *testing.T) {
	r := NewRouter(Deps{Webhooks: &fakeWebhooks{err: &cubicerrors.NotFoundError{Kind: cubicerrors.KindWebhook, Key: "unknown"}}})
	req := httptest.NewRequest(http.MethodPost, "/webhook/unknown", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhook_Success(t *testing.T) {
	r := NewRouter(Deps{Webhooks: &fakeWebhooks{resp: dispatch.DispatchResponse{Sender: "agent-a", Type: "text"}}})
	req := httptest.NewRequest(http.MethodPost, "/webhook/gh?agentId=agent-a", bytes.NewBufferString(`{"a":1}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAgentResponses_NoPendingRequestReturns404(t *testing.T) {
	r := NewRouter(Deps{AgentChannels: agenttransport.NewAgentChannelRegistry()})
	req := httptest.NewRequest(http.MethodPost, "/agents/agent-a/responses", bytes.NewBufferString(`{"requestId":"missing","response":{"type":"null"}}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentResponses_NotConfiguredReturns503(t *testing.T) {
	r := NewRouter(Deps{})
	req := httptest.NewRequest(http.MethodPost, "/agents/agent-a/responses", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type assertError string

func (e assertError) Error() string { return string(e) }
