// Command payloadmgrd runs the payload manager as a long-lived process:
// it loads configuration, builds the storage tiers, opens a repository,
// and wires the catalog/data/stream/admin services behind the
// spill-and-tiering background pipeline described in SPEC_FULL.md §4-§5.
//
// The reference system fronts this core with a gRPC service layer
// (payload_{catalog,data,stream,admin}_service.proto); that transport
// and its argument decoding are out of scope here (SPEC_FULL.md's
// Non-goals exclude RPC scaffolding), so this binary exposes the same
// internal/service facade it builds directly rather than standing up a
// server loop in front of stub proto types that were never generated.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orneryd/payloadmgr/internal/config"
	"github.com/orneryd/payloadmgr/internal/lease"
	"github.com/orneryd/payloadmgr/internal/manager"
	"github.com/orneryd/payloadmgr/internal/repository"
	"github.com/orneryd/payloadmgr/internal/repository/badgerrepo"
	"github.com/orneryd/payloadmgr/internal/repository/memoryrepo"
	"github.com/orneryd/payloadmgr/internal/repository/sqlrepo"
	"github.com/orneryd/payloadmgr/internal/service"
	"github.com/orneryd/payloadmgr/internal/spill"
	"github.com/orneryd/payloadmgr/internal/storagebackend"
	"github.com/orneryd/payloadmgr/internal/stream"
	"github.com/orneryd/payloadmgr/internal/telemetry"
	"github.com/orneryd/payloadmgr/internal/tiering"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "payloadmgrd",
		Short: "payloadmgrd runs the tiered payload manager daemon",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("payloadmgrd %s\n", version)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the payload manager daemon",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Path to a YAML config file (defaults and env vars apply if empty)")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, watcher, err := config.WatchFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(os.Stdout, "payloadmgrd: ", log.LstdFlags)
	logger.Printf("starting node %s", cfg.NodeID)

	ctx, stopTelemetry := context.WithCancel(context.Background())
	defer stopTelemetry()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		NodeID:         cfg.NodeID,
		MetricsEnabled: cfg.Observability.MetricsEnabled,
		TracingEnabled: cfg.Observability.TracingEnabled,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}
	defer repo.Close()

	var gpuDevice *int
	if len(cfg.Storage.Gpu.Devices) > 0 {
		d := cfg.Storage.Gpu.Devices[0]
		gpuDevice = &d
	}
	stores, err := storagebackend.Build(ctx, storagebackend.Config{
		DiskRoot:     cfg.Storage.Disk.RootPath,
		GpuDeviceID:  gpuDevice,
		ObjectBucket: cfg.Storage.Object.Bucket,
		ObjectPrefix: cfg.Storage.Object.Prefix,
	})
	if err != nil {
		return fmt.Errorf("building storage backends: %w", err)
	}

	leases := lease.NewManager()
	mgr := manager.New(leases, stores, repo)

	scheduler := spill.NewScheduler(cfg.Spill.QueueSize)
	pool := spill.NewPool(scheduler, mgr, logger, cfg.Spill.Workers)

	pressure := tiering.NewPressureState(
		cfg.Storage.Ram.CapacityBytes,
		0,
		cfg.Storage.Disk.CapacityBytes,
	)
	policy := tiering.NewLRUPolicy(repo, leases)
	controller := tiering.NewController(policy, scheduler, pressure, cfg.Tiering.Interval)
	controller.Start()

	streams := stream.NewStore(repo)
	// service.Services is the facade an in-process caller (or a future
	// transport front-end) drives; no RPC server is wired here, see the
	// package doc.
	_ = service.New(mgr, repo, streams)

	logger.Printf("ready: bind=%s database=%s", cfg.Server.BindAddress, cfg.Database.Driver)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if watcher != nil {
		go func() {
			for range watcher.C {
				logger.Printf("config file changed; running components keep the settings loaded at startup")
			}
		}()
	}

	<-sigCh
	logger.Printf("shutting down")

	controller.Stop()
	scheduler.Shutdown()
	pool.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.Printf("telemetry shutdown: %v", err)
	}

	return nil
}

// openRepository selects a repository backend by cfg.Driver. badger is
// accepted alongside the documented memory/sqlite/postgres trio as the
// embedded-LSM durable default the teacher repo itself ships with
// (internal/repository/badgerrepo), stored under the sqlite path when
// no dedicated badger path is configured.
func openRepository(ctx context.Context, cfg *config.Config) (repository.Repository, error) {
	switch cfg.Database.Driver {
	case "", "memory":
		return memoryrepo.New(), nil
	case "sqlite":
		return sqlrepo.Open(ctx, sqlrepo.DialectSQLite, cfg.Database.Sqlite.Path)
	case "postgres":
		return sqlrepo.Open(ctx, sqlrepo.DialectPostgres, cfg.Database.Postgres.DSN)
	case "badger":
		dir := cfg.Database.Sqlite.Path
		if dir == "" {
			dir = "./data/badger"
		}
		return badgerrepo.Open(badgerrepo.Options{Dir: dir})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}
