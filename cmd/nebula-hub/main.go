package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hub/pkg/config"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/sources"
	"github.com/ajitpratap0/nebula-hub/pkg/json"
	"github.com/ajitpratap0/nebula-hub/pkg/logger"
	"github.com/ajitpratap0/nebula-hub/pkg/normalizer"
	"github.com/ajitpratap0/nebula-hub/pkg/observability"
	"github.com/ajitpratap0/nebula-hub/pkg/orchestrator"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configFile string

	root := &cobra.Command{
		Use:   "nebula-hub",
		Short: "Nebula Hub - data integration core",
		Long: `Nebula Hub connects to heterogeneous databases, introspects their schemas,
pulls rows and normalizes them into uniform searchable documents.
Syncs run as background jobs when a Redis broker is reachable and
synchronously otherwise.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file (YAML, JSON or TOML)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Nebula Hub v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "kinds",
		Short: "List connector kinds and whether an adapter is available",
		Run: func(cmd *cobra.Command, args []string) {
			implemented := make(map[core.Kind]bool)
			for _, k := range sources.Implemented() {
				implemented[k] = true
			}
			for _, k := range core.AllKinds() {
				if !implemented[k] {
					fmt.Printf("  - %-12s (not implemented)\n", k)
					continue
				}
				info, err := registry.GetConnectorInfo(k)
				if err != nil {
					fmt.Printf("  - %s\n", k)
					continue
				}
				fmt.Printf("  - %-12s %s [%s]\n", k, info.Description, info.Driver)
			}
		},
	})

	root.AddCommand(serveCommand(&configFile))
	root.AddCommand(syncCommand(&configFile))
	root.AddCommand(tablesCommand(&configFile))
	root.AddCommand(schemaCommand(&configFile))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtimeEnv is everything a command needs after configuration is loaded
type runtimeEnv struct {
	cfg      *config.Config
	log      *zap.Logger
	orch     *orchestrator.Orchestrator
	shutdown observability.ShutdownFunc
}

// setup loads configuration, installs the logger and tracer and builds the
// orchestrator. It does not register any system.
func setup(configFile string) (*runtimeEnv, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if cfg.Tracing.ServiceVersion == "" {
		cfg.Tracing.ServiceVersion = version
	}
	shutdown, err := observability.InitTracing(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	log := logger.Get().With(zap.String("component", "nebula-hub-cli"))

	norm := normalizer.New()
	if cfg.MappingsFile != "" {
		n, err := norm.LoadMappingsFile(cfg.MappingsFile)
		if err != nil {
			return nil, err
		}
		log.Info("field mappings loaded", zap.Int("count", n), zap.String("file", cfg.MappingsFile))
	}

	orch := orchestrator.New(registry.GetRegistry(), norm, &orchestrator.Config{BatchSize: cfg.Sync.BatchSize}, log)
	return &runtimeEnv{cfg: cfg, log: log, orch: orch, shutdown: shutdown}, nil
}

// close disconnects every source and flushes telemetry
func (e *runtimeEnv) close(ctx context.Context) {
	if err := e.orch.Close(ctx); err != nil {
		e.log.Warn("failed to disconnect sources", zap.Error(err))
	}
	if err := e.shutdown(ctx); err != nil {
		e.log.Warn("failed to flush traces", zap.Error(err))
	}
	_ = logger.Sync()
}

// registerSystem registers the configured system with the given id
func (e *runtimeEnv) registerSystem(ctx context.Context, id string) error {
	for _, s := range e.cfg.Systems {
		if s.ID == id {
			return e.orch.RegisterSystem(ctx, s.ID, e.cfg.ConnectionFor(s))
		}
	}
	return fmt.Errorf("system %q is not declared in the configuration", id)
}

// registerAll registers every configured system. Failures are logged and
// skipped so one unreachable source does not block the rest.
func (e *runtimeEnv) registerAll(ctx context.Context) int {
	registered := 0
	for _, s := range e.cfg.Systems {
		if err := e.orch.RegisterSystem(ctx, s.ID, e.cfg.ConnectionFor(s)); err != nil {
			e.log.Error("failed to register system",
				zap.String("system_id", s.ID),
				zap.String("kind", string(s.Connection.Kind)),
				zap.Error(err))
			continue
		}
		registered++
	}
	return registered
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
