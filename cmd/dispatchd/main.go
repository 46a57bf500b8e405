// Dispatchd coordinates a queue of planned engineering tasks consumed one
// at a time by an executing coding agent.
//
// The executor connects over MCP stdio and uses five tools to pull work
// and report outcomes; a small HTTP surface exposes health, dashboard
// aggregates, and Prometheus metrics to the hosting shell.
//
// Usage:
//
//	# Start the daemon with defaults
//	dispatchd serve
//
//	# Configure via environment
//	DISPATCHD_QUEUE_CAPACITY=100 dispatchd serve
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/config"
	"github.com/fyrsmithlabs/dispatchd/internal/gate"
	dhttp "github.com/fyrsmithlabs/dispatchd/internal/http"
	"github.com/fyrsmithlabs/dispatchd/internal/logging"
	"github.com/fyrsmithlabs/dispatchd/internal/mcp"
	"github.com/fyrsmithlabs/dispatchd/internal/protocol"
	"github.com/fyrsmithlabs/dispatchd/internal/scheduler"
	"github.com/fyrsmithlabs/dispatchd/internal/store"
	"github.com/fyrsmithlabs/dispatchd/internal/ticket"
)

// Version information (set via ldflags during build).
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dispatchd",
	Short: "Task dispatch daemon for coding agents",
	Long: `dispatchd coordinates a queue of planned engineering tasks consumed one
at a time by an executing coding agent over MCP.`,
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dispatchd %s (commit %s, built %s)\n", version, gitCommit, buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func serve() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failures are expected on Linux

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	return run(ctx, cfg, logger)
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	snap, err := store.NewFileSnapshotter(cfg.Queue.SnapshotPath, logger.Named("snapshot"))
	if err != nil {
		return fmt.Errorf("build snapshotter: %w", err)
	}

	st, err := store.New(&store.Config{Capacity: cfg.Queue.Capacity}, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}

	// Restore whatever the last run managed to flush. Terminal tasks were
	// filtered at load; everything else resumes where it left off.
	loaded, err := snap.Load()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if len(loaded) > 0 {
		st.ReplaceAll(loaded)
		logger.Info("restored tasks from snapshot",
			zap.Int("count", len(loaded)),
			zap.String("path", cfg.Queue.SnapshotPath))
	}

	// Drop restored tasks whose origin ticket has been deleted from the
	// conversation store. Without a configured directory there is nothing
	// to check against, so everything restored is kept.
	if cfg.Queue.TicketDir != "" {
		dir, err := ticket.NewFileDirectory(cfg.Queue.TicketDir)
		if err != nil {
			return fmt.Errorf("open ticket directory: %w", err)
		}
		if err := st.Reconcile(ctx, dir); err != nil {
			return fmt.Errorf("reconcile tickets: %w", err)
		}
	}

	saver := store.NewSaver(func() error {
		return snap.Save(st.All())
	}, time.Duration(cfg.Queue.DebounceMS)*time.Millisecond, logger.Named("saver"))
	defer saver.Close()
	st.SetOnMutate(saver.Schedule)

	sched := scheduler.New(st)

	g, err := gate.New(&gate.Config{
		MaxSessions:   cfg.Gate.MaxSessions,
		ContextBudget: cfg.Gate.ContextBudget,
	}, st, sched, logger.Named("gate"))
	if err != nil {
		return fmt.Errorf("build gate: %w", err)
	}

	service, err := protocol.NewService(st, sched, g, logger.Named("protocol"))
	if err != nil {
		return fmt.Errorf("build protocol service: %w", err)
	}

	mcpServer, err := mcp.NewServer(&mcp.Config{
		Name:    "dispatchd",
		Version: version,
		Logger:  logger.Named("mcp"),
	}, service)
	if err != nil {
		return fmt.Errorf("build mcp server: %w", err)
	}

	httpServer, err := dhttp.NewServer(service, sched, mcpServer.Registry(),
		logger.Named("http"), &dhttp.Config{
			Host: cfg.HTTP.Host,
			Port: cfg.HTTP.Port,
		})
	if err != nil {
		return fmt.Errorf("build http server: %w", err)
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- httpServer.Start()
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", zap.Error(err))
		}
	}()

	// MCP on stdio blocks until the client disconnects or ctx ends.
	if err := mcpServer.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	if err := <-httpErr; err != nil {
		logger.Warn("http server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
