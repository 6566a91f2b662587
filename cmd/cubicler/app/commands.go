// Package app provides the entry point for the cubicler command-line
// application (SPEC_FULL §5.15).
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cubicler/cubicler/pkg/agenttransport"
	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/dispatch"
	"github.com/cubicler/cubicler/pkg/health"
	"github.com/cubicler/cubicler/pkg/httpapi"
	"github.com/cubicler/cubicler/pkg/logger"
	"github.com/cubicler/cubicler/pkg/mcptransport"
	"github.com/cubicler/cubicler/pkg/providers"
	"github.com/cubicler/cubicler/pkg/router"
	"github.com/cubicler/cubicler/pkg/ssebridge"
	"github.com/cubicler/cubicler/pkg/webhook"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:               "cubicler",
	DisableAutoGenTag: true,
	Short:             "Cubicler - an agent-and-tool orchestration gateway",
	Long: `Cubicler fronts a configurable set of agents (HTTP, SSE, stdio, or
direct/OpenAI) and tool providers (MCP servers, REST APIs) behind a single
JSON-RPC/MCP surface, a dispatch API, and a webhook trigger API.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Warnf("error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if viper.GetBool("debug") {
			_ = os.Setenv("LOG_LEVEL", "debug")
		}
		if cfgPath := viper.GetString("config"); cfgPath != "" {
			_ = os.Setenv("CUBICLER_CONFIG", cfgPath)
		}
		logger.Initialize()
	},
}

// NewRootCmd builds the root cobra command.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Warnf("error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a server-level config file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Warnf("error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.SilenceUsage = true
	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Cubicler gateway",
		Long: `Start the Cubicler HTTP gateway, loading the agents, providers, and
webhooks documents named by CUBICLER_AGENTS_LIST, CUBICLER_PROVIDERS_LIST,
and CUBICLER_WEBHOOKS_LIST, and serving on CUBICLER_HOST:CUBICLER_PORT.`,
		RunE: runServe,
	}
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("cubicler version: %s", version)
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the agents, providers, and webhooks documents",
		Long: `Load and validate the three configuration documents named by
CUBICLER_AGENTS_LIST, CUBICLER_PROVIDERS_LIST, and CUBICLER_WEBHOOKS_LIST
without starting the server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			mgr := config.NewManager()

			agentsCfg, err := mgr.Agents(ctx)
			if err != nil {
				return fmt.Errorf("agents document invalid: %w", err)
			}
			providersCfg, err := mgr.Providers(ctx)
			if err != nil {
				return fmt.Errorf("providers document invalid: %w", err)
			}
			webhooksCfg, err := mgr.Webhooks(ctx)
			if err != nil {
				return fmt.Errorf("webhooks document invalid: %w", err)
			}

			logger.Infof("agents document valid: %d agent(s)", len(agentsCfg.Agents))
			logger.Infof("providers document valid: %d mcp server(s), %d rest server(s)",
				len(providersCfg.McpServers), len(providersCfg.RestServers))
			logger.Infof("webhooks document valid: %d webhook(s)", len(webhooksCfg.Webhooks))
			return nil
		},
	}
}

// buildProviders assembles the MCP, REST, and builtin providers, resolving
// the builtin provider's cyclic dependency on its peers via the two-phase
// SetPeers initialization.
func buildProviders(providersCfg *config.ProvidersConfig) []providers.ToolsProvider {
	mcpProvider := providers.NewMCPProvider(providersCfg.McpServers)
	restProvider := providers.NewRESTProvider(providersCfg.RestServers)

	directory := providers.NewDirectory(providersCfg)
	builtin := providers.NewBuiltinProvider(directory)
	builtin.SetPeers([]providers.ToolsProvider{mcpProvider, restProvider})

	// Builtin must be first: the router resolves a tool name to the first
	// provider that claims it, and the builtin tools' literal names must
	// never be shadowed by a mangled-name collision.
	return []providers.ToolsProvider{builtin, mcpProvider, restProvider}
}

// runServe is the composition root: load config, build providers, the
// router, agent transports, the dispatch/webhook services, and the HTTP
// surface, then serve until the context is cancelled (SPEC_FULL §5.15).
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	mgr := config.NewManager()

	agentsCfg, err := mgr.Agents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load agents document: %w", err)
	}
	providersCfg, err := mgr.Providers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load providers document: %w", err)
	}
	webhooksCfg, err := mgr.Webhooks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load webhooks document: %w", err)
	}

	providerList := buildProviders(providersCfg)
	rtr := router.New(providerList)
	if err := rtr.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}

	channels := agenttransport.NewAgentChannelRegistry()
	transportFor := func(agent config.AgentConfig) agenttransport.Transport {
		return agenttransport.NewForAgent(agent, channels, rtr)
	}

	dispatchSvc := dispatch.NewService(agentsCfg, rtr, transportFor)
	webhookSvc := webhook.NewService(webhooksCfg, dispatchSvc)

	healthSvc := health.NewService(agentsCfg, providersCfg, mcptransport.NewRegistry(providersCfg.McpServers))
	healthSvc.Start(ctx)

	bridge := ssebridge.New()

	handler := httpapi.NewRouter(httpapi.Deps{
		AgentsManager: mgr,
		Dispatcher:    dispatchSvc,
		Router:        rtr,
		Webhooks:      webhookSvc,
		Health:        healthSvc,
		Bridge:        bridge,
		AgentChannels: channels,
	})

	address := httpapi.DefaultAddress()
	logger.Infof("starting cubicler gateway on %s", address)
	return httpapi.Serve(ctx, address, handler)
}
