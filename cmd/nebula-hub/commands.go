package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hub/pkg/queue"
	"github.com/ajitpratap0/nebula-hub/pkg/service"
)

const shutdownGrace = 15 * time.Second

func serveCommand(configFile *string) *cobra.Command {
	var syncOnStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Register configured sources and run the job workers",
		Long: `Register every source declared in the configuration, start the sync, index
and embedding workers and serve Prometheus metrics until interrupted.
When the Redis broker is unreachable the workers are not started and
syncs triggered with --sync-on-start run synchronously.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			env, err := setup(*configFile)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				env.close(closeCtx)
			}()

			registered := env.registerAll(ctx)
			env.log.Info("sources registered", zap.Int("registered", registered), zap.Int("configured", len(env.cfg.Systems)))

			handlers := queue.NewHandlers(env.orch, env.cfg.Queue, env.log)
			mgr, err := queue.New(ctx, env.cfg.Queue, handlers, env.log)
			if err != nil {
				return err
			}
			defer func() {
				if err := mgr.Close(); err != nil {
					env.log.Warn("failed to stop queue", zap.Error(err))
				}
			}()
			svc := service.New(env.orch, mgr, env.log)

			var metricsServer *http.Server
			if env.cfg.Metrics.Enabled {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				metricsServer = &http.Server{
					Addr:              env.cfg.Metrics.Address,
					Handler:           mux,
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						env.log.Error("metrics server stopped", zap.Error(err))
					}
				}()
				env.log.Info("metrics endpoint listening", zap.String("address", env.cfg.Metrics.Address))
			}

			if syncOnStart {
				for _, id := range svc.ListSystems() {
					res, err := svc.TriggerSync(ctx, id, service.TriggerRequest{})
					if err != nil {
						env.log.Error("failed to trigger sync", zap.String("system_id", id), zap.Error(err))
						continue
					}
					env.log.Info("sync triggered",
						zap.String("system_id", id),
						zap.Bool("queued", res.Queued),
						zap.String("job_id", res.JobID))
				}
			}

			env.log.Info("nebula-hub running", zap.Bool("queue_available", mgr.Available()))
			<-ctx.Done()
			env.log.Info("shutting down")

			if metricsServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					env.log.Warn("failed to stop metrics server", zap.Error(err))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&syncOnStart, "sync-on-start", false, "Trigger a sync of every registered source after start-up")
	return cmd
}

func syncCommand(configFile *string) *cobra.Command {
	var (
		tables            []string
		incrementalColumn string
		since             string
		timeout           time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sync <system-id>",
		Short: "Sync one configured source now and print the result",
		Long: `Register the named source, fetch and normalize its tables in this process
and print the sync result as JSON.

Example:
  nebula-hub sync crm --tables customers,orders --incremental-column updated_at --since 2024-01-01T00:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.TriggerRequest{Tables: tables, IncrementalColumn: incrementalColumn}
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("invalid --since %q: %w", since, err)
				}
				req.LastSyncAt = &t
			}

			env, err := setup(*configFile)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			defer env.close(context.Background())

			if err := env.registerSystem(ctx, args[0]); err != nil {
				return err
			}
			res, err := service.New(env.orch, nil, env.log).TriggerSync(ctx, args[0], req)
			if err != nil {
				return err
			}
			return printJSON(res.Result)
		},
	}
	cmd.Flags().StringSliceVarP(&tables, "tables", "t", nil, "Tables to sync (default: every table)")
	cmd.Flags().StringVar(&incrementalColumn, "incremental-column", "", "Column compared against --since for incremental syncs")
	cmd.Flags().StringVar(&since, "since", "", "Only fetch rows changed after this RFC3339 timestamp")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Sync timeout")
	return cmd
}

func tablesCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tables <system-id>",
		Short: "List the tables of a configured source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(*configFile)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer env.close(context.Background())

			if err := env.registerSystem(ctx, args[0]); err != nil {
				return err
			}
			tables, err := env.orch.ListTables(ctx, args[0])
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Println(t)
			}
			return nil
		},
	}
}

func schemaCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <system-id> <table>",
		Short: "Print the introspected schema of a table as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(*configFile)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer env.close(context.Background())

			if err := env.registerSystem(ctx, args[0]); err != nil {
				return err
			}
			schema, err := env.orch.GetTableSchema(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(schema)
		},
	}
}
