package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/mcptransport"
)

func TestService_Report_AllHealthy(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	agentsCfg := &config.AgentsConfig{Agents: map[string]config.AgentConfig{
		"agent-a": {Identifier: "agent-a", Transport: config.TransportHTTP, URL: up.URL},
		"agent-b": {Identifier: "agent-b", Transport: config.TransportStdio, Command: "echo"},
	}}
	providersCfg := &config.ProvidersConfig{
		RestServers: []config.RestServerConfig{{Identifier: "rest-a", URL: up.URL}},
	}

	svc := NewService(agentsCfg, providersCfg, mcptransport.NewRegistry(nil))
	svc.refresh(context.Background())

	report := svc.Report()
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, StatusHealthy, report.Services.Agents["agent-a"])
	assert.Equal(t, StatusHealthy, report.Services.Agents["agent-b"])
	assert.Equal(t, StatusHealthy, report.Services.Providers["rest-a"])
	require.NotEmpty(t, report.Timestamp)
}

func TestService_Report_UnreachableAgentIsUnhealthy(t *testing.T) {
	agentsCfg := &config.AgentsConfig{Agents: map[string]config.AgentConfig{
		"agent-a": {Identifier: "agent-a", Transport: config.TransportHTTP, URL: "http://127.0.0.1:1"},
	}}

	svc := NewService(agentsCfg, &config.ProvidersConfig{}, mcptransport.NewRegistry(nil))
	svc.refresh(context.Background())

	report := svc.Report()
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, StatusUnhealthy, report.Services.Agents["agent-a"])
}

func TestService_Report_DirectAgentAlwaysHealthy(t *testing.T) {
	agentsCfg := &config.AgentsConfig{Agents: map[string]config.AgentConfig{
		"agent-a": {Identifier: "agent-a", Transport: config.TransportDirect, Provider: "openai"},
	}}

	svc := NewService(agentsCfg, &config.ProvidersConfig{}, mcptransport.NewRegistry(nil))
	svc.refresh(context.Background())

	report := svc.Report()
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, StatusHealthy, report.Services.Agents["agent-a"])
}

func TestCategorizeProbeError(t *testing.T) {
	assert.Equal(t, "healthy", categorizeProbeError(nil))
	assert.Equal(t, "timeout", categorizeProbeError(errOf("context deadline exceeded")))
	assert.Equal(t, "connection_refused", categorizeProbeError(errOf("dial tcp: connection refused")))
	assert.Equal(t, "authentication_failed", categorizeProbeError(errOf("401 unauthorized")))
	assert.Equal(t, "health_check_failed", categorizeProbeError(errOf("something else")))
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func errOf(msg string) error { return simpleError(msg) }
