// Package health aggregates agent and provider reachability into the
// GET /health contract (spec §6), refreshing probe outcomes on a
// background interval so the endpoint itself never blocks on a live
// network call (SPEC_FULL §5.14).
package health

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/logger"
	"github.com/cubicler/cubicler/pkg/metrics"
	"github.com/cubicler/cubicler/pkg/mcptransport"
)

// Status is the two-valued health contract from spec §6.
type Status string

// Health statuses.
const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// DefaultProbeTimeout bounds one dial/initialize probe.
const DefaultProbeTimeout = 5 * time.Second

// DefaultRefreshInterval is how often the background refresher re-probes.
const DefaultRefreshInterval = 30 * time.Second

// Services holds the per-identifier status map for each of the three
// categories named in spec §6's GET /health contract.
type Services struct {
	Agents    map[string]Status `json:"agents"`
	Providers map[string]Status `json:"providers"`
	MCP       map[string]Status `json:"mcp"`
}

// Report is the GET /health response body.
type Report struct {
	Status    Status    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Services  Services  `json:"services"`
}

// probeFunc checks one backend's reachability. A nil error means healthy.
type probeFunc func(ctx context.Context) error

type namedProbe struct {
	identifier string
	probe      probeFunc
}

// tracker caches the last outcome per identifier under a category.
type tracker struct {
	mu    sync.RWMutex
	state map[string]Status
}

func newTracker() *tracker {
	return &tracker{state: make(map[string]Status)}
}

func (t *tracker) record(identifier string, err error) {
	status := StatusHealthy
	if err != nil {
		status = StatusUnhealthy
	}
	t.mu.Lock()
	t.state[identifier] = status
	t.mu.Unlock()
}

func (t *tracker) snapshot() map[string]Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Status, len(t.state))
	for k, v := range t.state {
		out[k] = v
	}
	return out
}

// Service aggregates agent, MCP server, and REST server reachability.
type Service struct {
	agentProbes    []namedProbe
	providerProbes []namedProbe
	mcpProbes      []namedProbe

	agents    *tracker
	providers *tracker
	mcp       *tracker

	refreshInterval time.Duration
	client          *http.Client
}

// NewService builds a Service over the configured agents and providers.
// mcpRegistry is used to probe MCP servers via their real transport
// (spec §4.4's lazy-initialize-and-cache registry); REST and HTTP/SSE
// agent reachability is checked with a cheap HEAD request (SPEC_FULL §5.14).
func NewService(agentsCfg *config.AgentsConfig, providersCfg *config.ProvidersConfig, mcpRegistry *mcptransport.Registry) *Service {
	s := &Service{
		agents:          newTracker(),
		providers:       newTracker(),
		mcp:             newTracker(),
		refreshInterval: DefaultRefreshInterval,
		client:          &http.Client{Timeout: DefaultProbeTimeout},
	}

	if agentsCfg != nil {
		for id, agent := range agentsCfg.Agents {
			s.agentProbes = append(s.agentProbes, namedProbe{identifier: id, probe: s.agentProbe(agent)})
		}
	}
	if providersCfg != nil {
		for _, srv := range providersCfg.RestServers {
			url := srv.URL
			s.providerProbes = append(s.providerProbes, namedProbe{identifier: srv.Identifier, probe: func(ctx context.Context) error {
				return s.dialProbe(ctx, url)
			}})
		}
		for _, srv := range providersCfg.McpServers {
			identifier := srv.Identifier
			s.mcpProbes = append(s.mcpProbes, namedProbe{identifier: identifier, probe: func(ctx context.Context) error {
				_, err := mcpRegistry.Get(ctx, identifier)
				return err
			}})
		}
	}

	return s
}

// agentProbe builds the reachability check for one agent: HTTP/SSE agents
// get a cheap dial probe against their URL, stdio/direct agents report
// healthy once configured since there is no idle connection to probe
// (SPEC_FULL §5.14).
func (s *Service) agentProbe(agent config.AgentConfig) probeFunc {
	switch agent.Transport {
	case config.TransportHTTP, config.TransportSSE:
		url := agent.URL
		return func(ctx context.Context) error {
			return s.dialProbe(ctx, url)
		}
	default:
		return func(context.Context) error { return nil }
	}
}

func (s *Service) dialProbe(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Start runs one synchronous refresh and then refreshes on
// refreshInterval until ctx is cancelled. Call before serving traffic so
// the first GET /health has a populated snapshot.
func (s *Service) Start(ctx context.Context) {
	s.refresh(ctx)

	go func() {
		ticker := time.NewTicker(s.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refresh(ctx)
			}
		}
	}()
}

func (s *Service) refresh(ctx context.Context) {
	s.runProbes(ctx, s.agentProbes, s.agents)
	s.runProbes(ctx, s.providerProbes, s.providers)
	s.runProbes(ctx, s.mcpProbes, s.mcp)

	report := s.Report()
	metrics.RecordHealthCheck(string(report.Status))
	if report.Status == StatusUnhealthy {
		logger.Warnf("health: aggregate status unhealthy")
	}
}

func (s *Service) runProbes(parent context.Context, probes []namedProbe, t *tracker) {
	var wg sync.WaitGroup
	for _, p := range probes {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(parent, DefaultProbeTimeout)
			defer cancel()
			err := p.probe(ctx)
			if err != nil {
				logger.Warnf("health: probe failed for %s (%s): %v", p.identifier, categorizeProbeError(err), err)
			}
			t.record(p.identifier, err)
		}()
	}
	wg.Wait()
}

// Report builds the current aggregate report from cached probe outcomes,
// performing no network I/O (spec §6).
func (s *Service) Report() Report {
	agents := s.agents.snapshot()
	providers := s.providers.snapshot()
	mcp := s.mcp.snapshot()

	status := StatusHealthy
	if anyUnhealthy(agents) || anyUnhealthy(providers) || anyUnhealthy(mcp) {
		status = StatusUnhealthy
	}

	return Report{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services: Services{
			Agents:    agents,
			Providers: providers,
			MCP:       mcp,
		},
	}
}

func anyUnhealthy(states map[string]Status) bool {
	for _, s := range states {
		if s == StatusUnhealthy {
			return true
		}
	}
	return false
}

// categorizeProbeError classifies a probe error for logging purposes; it
// does not change the binary healthy/unhealthy outcome, which spec §6
// defines as two-valued.
func categorizeProbeError(err error) string {
	if err == nil {
		return "healthy"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return "connection_refused"
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "unauthenticated") || strings.Contains(msg, "unauthorized"):
		return "authentication_failed"
	default:
		return "health_check_failed"
	}
}
