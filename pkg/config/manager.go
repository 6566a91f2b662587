package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names recognized for config sources and cache TTLs
// (spec §6).
const (
	EnvAgentsList    = "CUBICLER_AGENTS_LIST"
	EnvProvidersList = "CUBICLER_PROVIDERS_LIST"
	EnvWebhooksList  = "CUBICLER_WEBHOOKS_LIST"

	EnvAgentsCacheTTL    = "AGENTS_LIST_CACHE_TTL"
	EnvProvidersCacheTTL = "PROVIDERS_LIST_CACHE_TTL"
	EnvWebhooksCacheTTL  = "WEBHOOKS_LIST_CACHE_TTL"

	EnvAgentsCacheEnabled = "AGENTS_LIST_CACHE_ENABLED"
)

// Manager owns the three cached, loaders for the agents/providers/webhooks
// documents, wired together for the composition root.
type Manager struct {
	agents    *TTLCache[AgentsConfig]
	providers *TTLCache[ProvidersConfig]
	webhooks  *TTLCache[WebhooksConfig]
}

// NewManager builds a Manager reading its three documents from the standard
// environment variables, with TTLs resolved from their sibling env vars
// (defaulting to DefaultCacheTTL).
func NewManager() *Manager {
	src := NewSource()

	agentsTTL := cacheTTLFromEnv(EnvAgentsCacheTTL)
	if !cacheEnabledFromEnv(EnvAgentsCacheEnabled) {
		agentsTTL = 0
	}
	providersTTL := cacheTTLFromEnv(EnvProvidersCacheTTL)
	webhooksTTL := cacheTTLFromEnv(EnvWebhooksCacheTTL)

	m := &Manager{
		agents: NewTTLCache(agentsTTL, func(ctx context.Context) (*AgentsConfig, error) {
			return Load[AgentsConfig](ctx, src, EnvAgentsList, "agents")
		}),
		providers: NewTTLCache(providersTTL, func(ctx context.Context) (*ProvidersConfig, error) {
			return Load[ProvidersConfig](ctx, src, EnvProvidersList, "providers")
		}),
		webhooks: NewTTLCache(webhooksTTL, func(ctx context.Context) (*WebhooksConfig, error) {
			return Load[WebhooksConfig](ctx, src, EnvWebhooksList, "webhooks")
		}),
	}

	watchFile(EnvAgentsList, m.agents.Invalidate)
	watchFile(EnvProvidersList, m.providers.Invalidate)
	watchFile(EnvWebhooksList, m.webhooks.Invalidate)

	return m
}

// Agents returns the current agents document, loading/refreshing as needed.
func (m *Manager) Agents(ctx context.Context) (*AgentsConfig, error) {
	return m.agents.Get(ctx)
}

// Providers returns the current providers document, loading/refreshing as
// needed.
func (m *Manager) Providers(ctx context.Context) (*ProvidersConfig, error) {
	return m.providers.Get(ctx)
}

// Webhooks returns the current webhooks document, loading/refreshing as
// needed.
func (m *Manager) Webhooks(ctx context.Context) (*WebhooksConfig, error) {
	return m.webhooks.Get(ctx)
}

func cacheTTLFromEnv(envVar string) time.Duration {
	raw := os.Getenv(envVar)
	if raw == "" {
		return DefaultCacheTTL
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return DefaultCacheTTL
	}
	return time.Duration(seconds) * time.Second
}

// cacheEnabledFromEnv reports whether caching stays enabled under envVar. Unset or
// any value other than a recognized falsy string leaves caching enabled
// (spec §6: "AGENTS_LIST_CACHE_ENABLED ... default 600s" implies on-by-default).
func cacheEnabledFromEnv(envVar string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envVar))) {
	case "false", "0", "no", "off":
		return false
	default:
		return true
	}
}
