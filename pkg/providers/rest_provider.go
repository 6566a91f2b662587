package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cubicler/cubicler/pkg/codec"
	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/cubicerrors"
	"github.com/cubicler/cubicler/pkg/mcptransport"
	"github.com/cubicler/cubicler/pkg/oauthjwt"
	"github.com/cubicler/cubicler/pkg/transform"
)

// RESTProvider adapts each configured REST server's endpoints to tools,
// merging path/query/payload parameters into one schema per endpoint and
// injecting auth per server (spec §4.5).
type RESTProvider struct {
	servers []config.RestServerConfig
	client  *http.Client
	tokens  map[string]oauthjwt.TokenProvider
}

// NewRESTProvider builds a RESTProvider over the given server configs.
func NewRESTProvider(servers []config.RestServerConfig) *RESTProvider {
	tokens := make(map[string]oauthjwt.TokenProvider, len(servers))
	for _, s := range servers {
		if p := oauthjwt.NewTokenProvider(s.Auth); p != nil {
			tokens[s.Identifier] = p
		}
	}
	return &RESTProvider{
		servers: servers,
		client:  http.DefaultClient,
		tokens:  tokens,
	}
}

// Identifier names this provider for logging purposes.
func (p *RESTProvider) Identifier() string { return "rest" }

// Initialize is a no-op: REST endpoints are stateless HTTP calls with no
// handshake.
func (p *RESTProvider) Initialize(_ context.Context) error { return nil }

// ToolsList returns one tool per configured endpoint, across all servers.
func (p *RESTProvider) ToolsList(_ context.Context) ([]mcptransport.ToolDefinition, error) {
	var out []mcptransport.ToolDefinition
	for _, srv := range p.servers {
		for name, ep := range srv.Endpoints {
			out = append(out, mcptransport.ToolDefinition{
				Name:        codec.Hash(srv.Identifier, srv.URL) + "_" + codec.SnakeCase(name),
				Description: describeEndpoint(srv, name, ep),
				Parameters:  endpointSchema(ep),
			})
		}
	}
	return out, nil
}

func describeEndpoint(srv config.RestServerConfig, name string, ep config.RestEndpointConfig) string {
	if srv.Description != "" {
		return fmt.Sprintf("%s: %s %s", srv.Description, ep.Method, ep.Path)
	}
	return fmt.Sprintf("%s %s (%s)", ep.Method, ep.Path, name)
}

// endpointSchema merges path variables, a nested "query" object for
// declared parameters, and a nested "payload" object for declared payload
// fields into one JSON Schema object (spec §4.5).
func endpointSchema(ep config.RestEndpointConfig) map[string]any {
	properties := map[string]any{}
	var required []string

	for _, name := range pathVariables(ep.Path) {
		properties[name] = map[string]any{"type": "string"}
		required = append(required, name)
	}

	if len(ep.Parameters) > 0 {
		qProps, qRequired := parameterSchema(ep.Parameters)
		properties["query"] = map[string]any{
			"type":       "object",
			"properties": qProps,
			"required":   qRequired,
		}
	}

	if len(ep.Payload) > 0 {
		pProps, pRequired := parameterSchema(ep.Payload)
		properties["payload"] = map[string]any{
			"type":       "object",
			"properties": pProps,
			"required":   pRequired,
		}
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func parameterSchema(params map[string]config.ParameterSpec) (map[string]any, []string) {
	props := map[string]any{}
	var required []string
	for name, spec := range params {
		entry := map[string]any{"type": spec.Type}
		if spec.Description != "" {
			entry["description"] = spec.Description
		}
		props[name] = entry
		if spec.Required {
			required = append(required, name)
		}
	}
	return props, required
}

func pathVariables(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			out = append(out, strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}"))
		}
	}
	return out
}

// ToolsCall executes the REST endpoint matching name.
func (p *RESTProvider) ToolsCall(ctx context.Context, name string, args map[string]any) (any, error) {
	hash, function, err := codec.Decode(name)
	if err != nil {
		return nil, err
	}

	srv, ep, ok := p.endpointForHash(hash, function)
	if !ok {
		return nil, &cubicerrors.NotFoundError{Kind: cubicerrors.KindTool, Key: name}
	}

	return p.execute(ctx, srv, ep, args)
}

func (p *RESTProvider) endpointForHash(hash, function string) (config.RestServerConfig, config.RestEndpointConfig, bool) {
	for _, srv := range p.servers {
		if codec.Hash(srv.Identifier, srv.URL) != hash {
			continue
		}
		for name, ep := range srv.Endpoints {
			if codec.SnakeCase(name) == function {
				return srv, ep, true
			}
		}
	}
	return config.RestServerConfig{}, config.RestEndpointConfig{}, false
}

func (p *RESTProvider) execute(ctx context.Context, srv config.RestServerConfig, ep config.RestEndpointConfig, args map[string]any) (any, error) {
	path := ep.Path
	for _, name := range pathVariables(ep.Path) {
		value, _ := args[name].(string)
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}

	reqURL := strings.TrimRight(srv.URL, "/") + path
	if query, ok := args["query"].(map[string]any); ok && len(query) > 0 {
		values := url.Values{}
		for k, v := range query {
			values.Set(k, fmt.Sprintf("%v", v))
		}
		reqURL += "?" + values.Encode()
	}

	var body io.Reader
	if payload, ok := args["payload"]; ok && methodAcceptsBody(ep.Method) {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(ep.Method), reqURL, body)
	if err != nil {
		return nil, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}

	for k, v := range srv.DefaultHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range ep.Headers {
		httpReq.Header.Set(k, v)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if provider, ok := p.tokens[srv.Identifier]; ok {
		header, err := provider.AuthorizationHeader(ctx)
		if err != nil {
			return nil, &cubicerrors.AuthFailureError{Reason: cubicerrors.ReasonMisconfigured}
		}
		httpReq.Header.Set("Authorization", header)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonTimeout, Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &cubicerrors.UpstreamStatusError{Status: resp.StatusCode}
	}

	var parsed any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			parsed = string(raw)
		}
	}

	if len(ep.ResponseTransform) > 0 {
		parsed = transform.Apply(parsed, toTransformRules(ep.ResponseTransform))
	}

	return parsed, nil
}

func methodAcceptsBody(method config.RestMethod) bool {
	switch method {
	case config.MethodPost, config.MethodPut, config.MethodPatch:
		return true
	default:
		return false
	}
}

func toTransformRules(rules []config.ResponseTransformRule) []transform.Rule {
	out := make([]transform.Rule, len(rules))
	for i, r := range rules {
		out[i] = transform.Rule{
			Path:      r.Path,
			Transform: transform.Kind(r.Transform),
			Map:       r.Map,
			Template:  r.Template,
			Format:    r.Format,
		}
	}
	return out
}

// CanHandleRequest reports whether name decodes to a hash/function matching
// one of this provider's configured endpoints.
func (p *RESTProvider) CanHandleRequest(name string) bool {
	hash, function, err := codec.Decode(name)
	if err != nil {
		return false
	}
	_, _, ok := p.endpointForHash(hash, function)
	return ok
}
