// Package cmd provides the CLI commands for mcp-context-protector.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/trailofbits/mcp-context-protector/internal/adapter/outbound/downstream"
	"github.com/trailofbits/mcp-context-protector/internal/adapter/outbound/store"
	"github.com/trailofbits/mcp-context-protector/internal/domain/config"
	"github.com/trailofbits/mcp-context-protector/internal/domain/guardrail"
	"github.com/trailofbits/mcp-context-protector/internal/domain/sanitize"
	"github.com/trailofbits/mcp-context-protector/internal/port/outbound"
	"github.com/trailofbits/mcp-context-protector/internal/service/wrapper"
	"github.com/trailofbits/mcp-context-protector/internal/telemetry"
	"github.com/trailofbits/mcp-context-protector/internal/wrapperconfig"
)

// ErrReviewUINotProvided is returned by the --review-* stub flags. The
// interactive review TUI is an external collaborator (spec.md §1) that
// this core does not implement; these flags exist so --help documents the
// full external interface.
var ErrReviewUINotProvided = errors.New("the interactive review TUI is not built into this binary; use a dedicated review tool against the same servers.json/quarantine.json files")

var (
	cfgFile            string
	commandArgs        []string
	urlFlag            string
	sseURLFlag         string
	guardrailProvider  string
	listProviders      bool
	serverConfigFile   string
	quarantinePath     string
	visualizeANSICodes bool
	reviewServer       bool
	reviewAllServers   bool
	reviewQuarantine   bool
	reviewQuarantineID string
	metricsAddr        string
)

var rootCmd = &cobra.Command{
	Use:   "mcp-context-protector -- COMMAND [ARGS...]",
	Short: "Trust-on-first-use security wrapper for a downstream MCP server",
	Long: `mcp-context-protector sits between an MCP host and a single downstream
MCP server, enforcing trust-on-first-use approval over the downstream's
instructions, tool descriptions, and input schemas, scanning tool responses
through a pluggable guardrail provider, quarantining suspicious responses,
and sanitizing ANSI control sequences in text surfaces.

Exactly one of --command, --url, or --sse-url selects the downstream
transport. A command passed after "--" overrides --command/--command-args.

Configuration is loaded from mcp-context-protector.yaml in the current
directory or $HOME/.mcp-context-protector/, overridable by
MCP_CONTEXT_PROTECTOR_* environment variables and then by CLI flags.`,
	RunE:         runWrapper,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(func() { wrapperconfig.InitViper(cfgFile) })

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcp-context-protector.yaml)")
	rootCmd.Flags().String("command", "", "launch a stdio downstream server")
	rootCmd.Flags().StringSliceVar(&commandArgs, "command-args", nil, "arguments for --command")
	rootCmd.Flags().StringVar(&urlFlag, "url", "", "streamable-HTTP downstream server URL")
	rootCmd.Flags().StringVar(&sseURLFlag, "sse-url", "", "SSE downstream server URL")
	rootCmd.Flags().StringVar(&guardrailProvider, "guardrail-provider", "", "registered guardrail provider to scan tool responses with")
	rootCmd.Flags().BoolVar(&listProviders, "list-guardrail-providers", false, "print registered guardrail provider names and exit")
	rootCmd.Flags().StringVar(&serverConfigFile, "server-config-file", "", "override the approval store path")
	rootCmd.Flags().StringVar(&quarantinePath, "quarantine-path", "", "override the quarantine store path")
	rootCmd.Flags().BoolVar(&visualizeANSICodes, "visualize-ansi-codes", false, "visualize rather than strip ANSI control sequences")
	rootCmd.Flags().BoolVar(&reviewServer, "review-server", false, "review this downstream server's pending configuration (not implemented here)")
	rootCmd.Flags().BoolVar(&reviewAllServers, "review-all-servers", false, "review every known server's pending configuration (not implemented here)")
	rootCmd.Flags().BoolVar(&reviewQuarantine, "review-quarantine", false, "review quarantined responses (not implemented here)")
	rootCmd.Flags().StringVar(&reviewQuarantineID, "quarantine-id", "", "quarantine entry id for --review-quarantine")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "loopback address to serve Prometheus /metrics on (disabled if empty)")
}

// Execute runs the root command, translating errors into the exit codes
// spec.md §6 documents: 0 clean, 1 misuse, 2 downstream unreachable, 3
// review declined/aborted.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, ErrReviewUINotProvided):
		return 3
	case errors.Is(err, errDownstreamUnreachable):
		return 2
	default:
		return 1
	}
}

var errDownstreamUnreachable = errors.New("downstream server unreachable at startup")

func runWrapper(_ *cobra.Command, args []string) error {
	if reviewServer || reviewAllServers || reviewQuarantine {
		return ErrReviewUINotProvided
	}

	registry := guardrail.NewRegistry()
	registry.Register(guardrail.NewRegexProvider())

	if listProviders {
		for _, name := range registry.Names() {
			fmt.Println(name)
		}
		return nil
	}

	cfg, err := wrapperconfig.LoadConfigRaw()
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)
	if len(args) > 0 {
		cfg.Command = args[0]
		cfg.CommandArgs = args[1:]
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	identity, client, err := buildDownstreamClient(cfg)
	if err != nil {
		return err
	}

	var provider guardrail.Provider
	if cfg.GuardrailProvider != "" {
		p, ok := registry.Get(cfg.GuardrailProvider)
		if !ok {
			return fmt.Errorf("%w (see --list-guardrail-providers)", &guardrail.ErrUnknownProvider{Name: cfg.GuardrailProvider})
		}
		provider = p
	}

	approvals := store.NewFileApprovalStore(cfg.ServerConfigFile, logger)
	quarantine := store.NewFileQuarantineStore(cfg.QuarantinePath, logger)

	ansiMode := sanitize.Strip
	if cfg.VisualizeANSICodes {
		ansiMode = sanitize.Visualize
	}
	pipeline := guardrail.NewPipeline(provider, quarantine, ansiMode, logger)
	pipeline.SetScanTimeout(cfg.ScanTimeoutDuration())

	session := wrapper.NewSession(identity, client, approvals, quarantine, pipeline, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics := telemetry.NewMetrics(reg)
		session.SetMetrics(metrics)
		metricsServer := telemetry.NewServer(metricsAddr, reg, logger)
		go func() {
			if err := metricsServer.Serve(ctx); err != nil {
				logger.Warn("telemetry server exited", "error", err)
			}
		}()

		if tp, err := telemetry.NewTracerProvider(os.Stderr); err != nil {
			logger.Warn("tracer provider setup failed, tracing disabled", "error", err)
		} else {
			otel.SetTracerProvider(tp)
			defer func() { _ = tp.Shutdown(context.Background()) }()
		}
	}

	if err := session.Run(ctx, os.Stdin, os.Stdout); err != nil {
		if ctx.Err() != nil {
			return nil // normal shutdown via signal
		}
		return fmt.Errorf("%w: %v", errDownstreamUnreachable, err)
	}
	return nil
}

func applyFlagOverrides(cfg *wrapperconfig.Config) {
	if urlFlag != "" {
		cfg.URL = urlFlag
	}
	if sseURLFlag != "" {
		cfg.SSEURL = sseURLFlag
	}
	if len(commandArgs) > 0 {
		cfg.CommandArgs = commandArgs
	}
	if guardrailProvider != "" {
		cfg.GuardrailProvider = guardrailProvider
	}
	if serverConfigFile != "" {
		cfg.ServerConfigFile = serverConfigFile
	}
	if quarantinePath != "" {
		cfg.QuarantinePath = quarantinePath
	}
	if visualizeANSICodes {
		cfg.VisualizeANSICodes = true
	}
	if v := rootCmd.Flags().Lookup("command"); v != nil && v.Changed {
		cfg.Command = v.Value.String()
	}
}

func buildDownstreamClient(cfg *wrapperconfig.Config) (config.Identity, outbound.MCPClient, error) {
	switch {
	case cfg.Command != "":
		return config.Identity{Kind: config.KindStdio, Locator: commandLocator(cfg.Command, cfg.CommandArgs)},
			downstream.NewStdioClient(cfg.Command, cfg.CommandArgs...), nil
	case cfg.URL != "":
		return config.Identity{Kind: config.KindHTTP, Locator: cfg.URL}, downstream.NewHTTPClient(cfg.URL), nil
	case cfg.SSEURL != "":
		return config.Identity{Kind: config.KindSSE, Locator: cfg.SSEURL}, downstream.NewSSEClient(cfg.SSEURL), nil
	default:
		return config.Identity{}, nil, fmt.Errorf("no downstream transport selected")
	}
}

// commandLocator renders the exact command string used as the identity's
// locator: spec.md §3 requires byte-exact identity, so the command and its
// arguments are joined deterministically rather than re-derived from the
// running process.
func commandLocator(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, strconv.Quote(a))
	}
	return command + " " + strings.Join(quoted, " ")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
