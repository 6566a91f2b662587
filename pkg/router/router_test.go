package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubicler/cubicler/pkg/mcptransport"
	"github.com/cubicler/cubicler/pkg/providers"
)

type fakeProvider struct {
	id      string
	tools   []mcptransport.ToolDefinition
	initErr error
	callErr error
	callRes any
}

func (f *fakeProvider) Identifier() string { return f.id }
func (f *fakeProvider) Initialize(_ context.Context) error { return f.initErr }
func (f *fakeProvider) ToolsList(_ context.Context) ([]mcptransport.ToolDefinition, error) {
	return f.tools, nil
}
func (f *fakeProvider) ToolsCall(_ context.Context, _ string, _ map[string]any) (any, error) {
	return f.callRes, f.callErr
}
func (f *fakeProvider) CanHandleRequest(name string) bool {
	for _, t := range f.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

func TestRouter_Initialize_FansOutAndIsIdempotent(t *testing.T) {
	p := &fakeProvider{id: "p"}
	r := New([]providers.ToolsProvider{p})

	require.NoError(t, r.Initialize(context.Background()))
	require.NoError(t, r.Initialize(context.Background()))
}

func TestRouter_HandleInitialize(t *testing.T) {
	r := New(nil)
	req := mcptransport.Request{JSONRPC: "2.0", ID: "1", Method: "initialize"}

	resp := r.HandleRequest(context.Background(), req)
	require.Nil(t, resp.Error)

	var result map[string]any
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, protocolVersion, result["protocolVersion"])
}

func TestRouter_ToolsList_Aggregates(t *testing.T) {
	p := &fakeProvider{id: "p", tools: []mcptransport.ToolDefinition{
		{Name: "abc123_do_thing", Description: "does a thing", Parameters: map[string]any{"type": "object"}},
	}}
	r := New([]providers.ToolsProvider{p})

	resp := r.HandleRequest(context.Background(), mcptransport.Request{ID: "1", Method: "tools/list"})

	var result struct {
		Tools []map[string]any `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "abc123_do_thing", result.Tools[0]["name"])
}

func TestRouter_ToolsCall_MissingName(t *testing.T) {
	r := New(nil)
	resp := r.HandleRequest(context.Background(), mcptransport.Request{ID: "1", Method: "tools/call"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

func TestRouter_ToolsCall_FirstMatchWins(t *testing.T) {
	tool := mcptransport.ToolDefinition{Name: "abc123_do_thing"}
	first := &fakeProvider{id: "first", tools: []mcptransport.ToolDefinition{tool}, callRes: "first-result"}
	second := &fakeProvider{id: "second", tools: []mcptransport.ToolDefinition{tool}, callRes: "second-result"}
	r := New([]providers.ToolsProvider{first, second})

	params, _ := json.Marshal(map[string]any{"name": "abc123_do_thing"})
	resp := r.HandleRequest(context.Background(), mcptransport.Request{ID: "1", Method: "tools/call", Params: params})

	require.Nil(t, resp.Error)
	var result map[string]any
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	content, ok := result["content"].([]any)
	require.True(t, ok)
	require.Len(t, content, 1)
	assert.Equal(t, "first-result", content[0].(map[string]any)["text"])
}

func TestRouter_MethodNotSupported(t *testing.T) {
	r := New(nil)
	resp := r.HandleRequest(context.Background(), mcptransport.Request{ID: "1", Method: "bogus"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}
