package config

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubicler/cubicler/pkg/cubicerrors"
)

func TestAgentsConfig_Validate_RequiresAtLeastOneAgent(t *testing.T) {
	t.Parallel()

	cfg := &AgentsConfig{Agents: map[string]AgentConfig{}}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestAgentsConfig_Validate_RejectsBadIdentifier(t *testing.T) {
	t.Parallel()

	cfg := &AgentsConfig{Agents: map[string]AgentConfig{
		"bad id!": {Identifier: "bad id!", Transport: TransportHTTP},
	}}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestAgentsConfig_Validate_OK(t *testing.T) {
	t.Parallel()

	cfg := &AgentsConfig{Agents: map[string]AgentConfig{
		"code_reviewer": {Identifier: "code_reviewer", Name: "Reviewer", Transport: TransportHTTP, URL: "http://x"},
	}}
	assert.NoError(t, cfg.Validate())
}

func TestProvidersConfig_Validate_DuplicateIdentifiers(t *testing.T) {
	t.Parallel()

	cfg := &ProvidersConfig{
		McpServers: []McpServerConfig{
			{Identifier: "svc", URL: "http://a"},
			{Identifier: "svc", URL: "http://b"},
		},
	}
	assert.Error(t, cfg.Validate())
}

func TestWebhooksConfig_Validate_RequiresAllowedAgents(t *testing.T) {
	t.Parallel()

	cfg := &WebhooksConfig{Webhooks: map[string]WebhookConfig{
		"github_push": {Name: "Push", AllowedAgents: nil},
	}}
	assert.Error(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.json")

	doc := map[string]any{
		"agents": map[string]any{
			"code_reviewer": map[string]any{
				"identifier": "code_reviewer",
				"name":       "Reviewer",
				"transport":  "http",
				"url":        "http://localhost",
			},
		},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	t.Setenv("CUBICLER_AGENTS_LIST_TEST", path)

	cfg, err := Load[AgentsConfig](context.Background(), NewSource(), "CUBICLER_AGENTS_LIST_TEST", "agents")
	require.NoError(t, err)
	assert.Len(t, cfg.Agents, 1)
}

func TestLoad_FromURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"webhooks":{"github_push":{"name":"Push","allowedAgents":["code_reviewer"]}}}`))
	}))
	defer server.Close()

	t.Setenv("CUBICLER_WEBHOOKS_LIST_TEST", server.URL)

	cfg, err := Load[WebhooksConfig](context.Background(), NewSource(), "CUBICLER_WEBHOOKS_LIST_TEST", "webhooks")
	require.NoError(t, err)
	assert.Len(t, cfg.Webhooks, 1)
}

func TestLoad_ConfigLoadErrorOnMissingEnv(t *testing.T) {
	t.Parallel()

	_, err := Load[AgentsConfig](context.Background(), NewSource(), "CUBICLER_DOES_NOT_EXIST", "agents")
	require.Error(t, err)
	var loadErr *cubicerrors.ConfigLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestLoad_ConfigInvalidErrorOnSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"agents": {}}`), 0o600))

	t.Setenv("CUBICLER_AGENTS_LIST_INVALID", path)

	_, err := Load[AgentsConfig](context.Background(), NewSource(), "CUBICLER_AGENTS_LIST_INVALID", "agents")
	require.Error(t, err)
	var invalidErr *cubicerrors.ConfigInvalidError
	require.ErrorAs(t, err, &invalidErr)
}

func TestTTLCache_CachesWithinWindow(t *testing.T) {
	t.Parallel()

	calls := 0
	cache := NewTTLCache(50*time.Millisecond, func(_ context.Context) (*int, error) {
		calls++
		v := calls
		return &v, nil
	})

	first, err := cache.Get(context.Background())
	require.NoError(t, err)
	second, err := cache.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestTTLCache_ReloadsAfterExpiry(t *testing.T) {
	t.Parallel()

	calls := 0
	cache := NewTTLCache(10*time.Millisecond, func(_ context.Context) (*int, error) {
		calls++
		v := calls
		return &v, nil
	})

	_, err := cache.Get(context.Background())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = cache.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestTTLCache_Invalidate(t *testing.T) {
	t.Parallel()

	calls := 0
	cache := NewTTLCache(time.Hour, func(_ context.Context) (*int, error) {
		calls++
		v := calls
		return &v, nil
	})

	_, err := cache.Get(context.Background())
	require.NoError(t, err)

	cache.Invalidate()

	_, err = cache.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestCacheEnabledFromEnv_DefaultsToTrue(t *testing.T) {
	assert.True(t, cacheEnabledFromEnv("CUBICLER_TEST_CACHE_ENABLED_UNSET"))
}

func TestCacheEnabledFromEnv_RecognizesFalsyValues(t *testing.T) {
	for _, v := range []string{"false", "0", "no", "off", "FALSE"} {
		t.Setenv("CUBICLER_TEST_CACHE_ENABLED", v)
		assert.False(t, cacheEnabledFromEnv("CUBICLER_TEST_CACHE_ENABLED"), "value %q should disable caching", v)
	}
}

func TestNewManager_AgentsCacheDisabled_BypassesTTL(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/agents.json"
	require.NoError(t, os.WriteFile(path, []byte(`{"agents":{"a":{"identifier":"a","name":"A","transport":"direct"}}}`), 0o600))

	t.Setenv(EnvAgentsList, path)
	t.Setenv(EnvAgentsCacheEnabled, "false")
	t.Setenv(EnvAgentsCacheTTL, "3600")

	mgr := NewManager()
	_, err := mgr.Agents(context.Background())
	require.NoError(t, err)

	// With caching disabled, the TTL is irrelevant: Get reloads every call
	// instead of serving the cached value for the configured 3600s window.
	assert.Equal(t, time.Duration(0), mgr.agents.ttl)
}
