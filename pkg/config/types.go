// Package config loads, caches, and validates Cubicler's three configuration
// documents: agents, providers (MCP servers + REST servers), and webhooks
// (spec §3, §4.2).
package config

import "regexp"

// identifierPattern is the format rule shared by every config identifier.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// TransportKind enumerates the agent transports (spec §3).
type TransportKind string

// Supported agent transports.
const (
	TransportHTTP   TransportKind = "http"
	TransportSSE    TransportKind = "sse"
	TransportStdio  TransportKind = "stdio"
	TransportDirect TransportKind = "direct"
)

// AgentConfig describes one configured agent.
type AgentConfig struct {
	Identifier string        `json:"identifier"`
	Name       string        `json:"name"`
	Description string       `json:"description"`
	Transport  TransportKind `json:"transport"`
	Prompt     string        `json:"prompt,omitempty"`

	// IncludeTriggerContext embeds webhook trigger metadata into the
	// composed prompt for webhook-originated dispatches (SPEC_FULL §4).
	IncludeTriggerContext bool `json:"includeTriggerContext,omitempty"`

	// HTTP / SSE transport config.
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// Stdio transport config.
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`

	// Stdio pool knobs.
	MaxWorkers      int `json:"maxWorkers,omitempty"`
	AcquireTimeoutMs int `json:"acquireTimeoutMs,omitempty"`
	RequestTimeoutMs int `json:"requestTimeoutMs,omitempty"`

	// Direct/openai transport config.
	Provider string `json:"provider,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	Model    string `json:"model,omitempty"`
}

// AgentsConfig is the top-level agents document.
type AgentsConfig struct {
	BasePrompt    string                  `json:"basePrompt,omitempty"`
	DefaultPrompt string                  `json:"defaultPrompt,omitempty"`
	Agents        map[string]AgentConfig `json:"agents"`
}

// Validate enforces the AgentsConfig invariants from spec §3.
func (c *AgentsConfig) Validate() error {
	if len(c.Agents) == 0 {
		return errInvalid("agents: at least one agent is required")
	}
	for id, agent := range c.Agents {
		if id != agent.Identifier && agent.Identifier != "" {
			return errInvalid("agents[" + id + "]: identifier mismatch with map key")
		}
		key := id
		if agent.Identifier != "" {
			key = agent.Identifier
		}
		if !identifierPattern.MatchString(key) {
			return errInvalid("agents[" + id + "]: invalid identifier format")
		}
		switch agent.Transport {
		case TransportHTTP, TransportSSE, TransportStdio, TransportDirect:
		default:
			return errInvalid("agents[" + id + "]: unsupported transport " + string(agent.Transport))
		}
	}
	return nil
}

// McpTransportKind enumerates MCP server transports (spec §3).
type McpTransportKind string

// Supported MCP server transports. Empty string on a URL-only config means
// "auto" (SSE-then-HTTP fallback).
const (
	McpHTTP  McpTransportKind = "http"
	McpSSE   McpTransportKind = "sse"
	McpStdio McpTransportKind = "stdio"
	McpAuto  McpTransportKind = "auto"
)

// McpServerConfig describes one configured MCP server backend.
type McpServerConfig struct {
	Identifier  string            `json:"identifier"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Transport   McpTransportKind  `json:"transport,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

// EffectiveTransport returns the transport to use, defaulting an empty
// transport on a URL-based config to "auto" per spec §3.
func (s *McpServerConfig) EffectiveTransport() McpTransportKind {
	if s.Transport != "" {
		return s.Transport
	}
	if s.Command != "" {
		return McpStdio
	}
	return McpAuto
}

// PrimaryString returns the string hashed alongside the identifier to
// produce the server's function-name hash (spec §4.1): the URL for
// URL-based transports, the command for stdio.
func (s *McpServerConfig) PrimaryString() string {
	if s.EffectiveTransport() == McpStdio {
		return s.Command
	}
	return s.URL
}

// RestAuthKind enumerates REST server auth mechanisms.
type RestAuthKind string

// Supported REST auth mechanisms.
const (
	RestAuthStatic  RestAuthKind = "static"
	RestAuthOAuth2  RestAuthKind = "oauth2-client-credentials"
)

// RestAuthConfig describes a REST server's JWT auth configuration.
type RestAuthConfig struct {
	Type RestAuthKind `json:"type"`

	// Static token.
	Token string `json:"token,omitempty"`

	// OAuth2 client-credentials.
	ClientID         string   `json:"clientId,omitempty"`
	ClientSecret     string   `json:"clientSecret,omitempty"`
	TokenURL         string   `json:"tokenUrl,omitempty"`
	Scopes           []string `json:"scopes,omitempty"`
	RefreshThreshold int      `json:"refreshThreshold,omitempty"` // seconds
}

// RestMethod enumerates supported REST endpoint HTTP methods.
type RestMethod string

// Supported REST methods.
const (
	MethodGet    RestMethod = "GET"
	MethodPost   RestMethod = "POST"
	MethodPut    RestMethod = "PUT"
	MethodDelete RestMethod = "DELETE"
	MethodPatch  RestMethod = "PATCH"
)

// ParameterSpec describes one query parameter.
type ParameterSpec struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// RestEndpointConfig describes one REST endpoint adapted to a tool.
type RestEndpointConfig struct {
	Path              string                    `json:"path"`
	Method            RestMethod                `json:"method"`
	Headers           map[string]string         `json:"headers,omitempty"`
	Parameters        map[string]ParameterSpec  `json:"parameters,omitempty"`
	Payload           map[string]ParameterSpec  `json:"payload,omitempty"`
	ResponseTransform []ResponseTransformRule   `json:"response_transform,omitempty"`
}

// ResponseTransformRule is the JSON shape of a transform.Rule as it appears
// in config documents.
type ResponseTransformRule struct {
	Path      string         `json:"path"`
	Transform string         `json:"transform"`
	Map       map[string]any `json:"map,omitempty"`
	Template  string         `json:"template,omitempty"`
	Format    string         `json:"format,omitempty"`
}

// RestServerConfig describes one configured REST API backend.
type RestServerConfig struct {
	Identifier     string                        `json:"identifier"`
	Name           string                        `json:"name"`
	Description    string                        `json:"description"`
	URL            string                        `json:"url"`
	DefaultHeaders map[string]string             `json:"defaultHeaders,omitempty"`
	Auth           *RestAuthConfig               `json:"auth,omitempty"`
	Endpoints      map[string]RestEndpointConfig `json:"endpoints"`
}

// ProvidersConfig is the top-level providers document: MCP servers and REST
// servers declared side by side.
type ProvidersConfig struct {
	McpServers  []McpServerConfig  `json:"mcpServers,omitempty"`
	RestServers []RestServerConfig `json:"restServers,omitempty"`
}

// Validate enforces the ProvidersConfig invariants from spec §3.
func (c *ProvidersConfig) Validate() error {
	seen := map[string]bool{}
	for _, s := range c.McpServers {
		if !identifierPattern.MatchString(s.Identifier) {
			return errInvalid("mcpServers: invalid identifier " + s.Identifier)
		}
		if seen[s.Identifier] {
			return errInvalid("mcpServers: duplicate identifier " + s.Identifier)
		}
		seen[s.Identifier] = true

		switch s.EffectiveTransport() {
		case McpHTTP, McpSSE, McpAuto:
			if s.URL == "" {
				return errInvalid("mcpServers[" + s.Identifier + "]: url is required")
			}
		case McpStdio:
			if s.Command == "" {
				return errInvalid("mcpServers[" + s.Identifier + "]: command is required")
			}
		}
	}
	for _, s := range c.RestServers {
		if !identifierPattern.MatchString(s.Identifier) {
			return errInvalid("restServers: invalid identifier " + s.Identifier)
		}
		if seen[s.Identifier] {
			return errInvalid("restServers: duplicate identifier " + s.Identifier)
		}
		seen[s.Identifier] = true
		if s.URL == "" {
			return errInvalid("restServers[" + s.Identifier + "]: url is required")
		}
		for name, ep := range s.Endpoints {
			switch ep.Method {
			case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch:
			default:
				return errInvalid("restServers[" + s.Identifier + "].endpoints[" + name + "]: unsupported method")
			}
		}
	}
	return nil
}

// WebhookAuthKind enumerates webhook auth mechanisms.
type WebhookAuthKind string

// Supported webhook auth mechanisms.
const (
	WebhookAuthSignature WebhookAuthKind = "signature"
	WebhookAuthBearer    WebhookAuthKind = "bearer"
)

// WebhookAuthConfig describes a webhook's inbound auth configuration.
type WebhookAuthConfig struct {
	Type   WebhookAuthKind `json:"type"`
	Secret string          `json:"secret,omitempty"`
	Token  string          `json:"token,omitempty"`
}

// WebhookConfig describes one configured inbound webhook trigger.
type WebhookConfig struct {
	Name            string                  `json:"name"`
	Description     string                  `json:"description"`
	Auth            *WebhookAuthConfig      `json:"auth,omitempty"`
	AllowedAgents   []string                `json:"allowedAgents"`
	AllowedOrigins  []string                `json:"allowedOrigins,omitempty"`
	PayloadTransform []ResponseTransformRule `json:"payload_transform,omitempty"`
}

// WebhooksConfig is the top-level webhooks document, keyed by webhook
// identifier.
type WebhooksConfig struct {
	Webhooks map[string]WebhookConfig `json:"webhooks"`
}

// Validate enforces the WebhooksConfig invariants from spec §3.
func (c *WebhooksConfig) Validate() error {
	for id, wh := range c.Webhooks {
		if !identifierPattern.MatchString(id) {
			return errInvalid("webhooks: invalid identifier " + id)
		}
		if len(wh.AllowedAgents) == 0 {
			return errInvalid("webhooks[" + id + "]: allowedAgents must be non-empty")
		}
		if wh.Auth != nil {
			switch wh.Auth.Type {
			case WebhookAuthSignature, WebhookAuthBearer:
			default:
				return errInvalid("webhooks[" + id + "]: unsupported auth type")
			}
		}
	}
	return nil
}

// Webhook looks up a configured webhook by identifier, implementing
// pkg/webhook's WebhookLookup interface directly against the loaded
// document.
func (c *WebhooksConfig) Webhook(identifier string) (WebhookConfig, bool) {
	wh, ok := c.Webhooks[identifier]
	return wh, ok
}

func errInvalid(msg string) error {
	return &invalidError{msg: msg}
}

type invalidError struct{ msg string }

func (e *invalidError) Error() string { return e.msg }
