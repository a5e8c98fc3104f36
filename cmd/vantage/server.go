package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vantagehq/vantage/pkg/api"
	"github.com/vantagehq/vantage/pkg/config"
	"github.com/vantagehq/vantage/pkg/etl"
	"github.com/vantagehq/vantage/pkg/log"
	"github.com/vantagehq/vantage/pkg/storage"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the search API server",
	Long: `Run the Vantage HTTP server.

The primary process forks one worker per CPU core (override with
cluster.workers) and restarts any worker that exits. Workers share the
listening port via SO_REUSEPORT; each holds its own connection pool.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if id := api.WorkerID(); id >= 0 {
			return runWorker(cfg, id)
		}
		return api.RunPrimary(cfg)
	},
}

// runWorker is one serving process: its own pool, repository, and HTTP
// server, draining gracefully on interrupt or terminate
func runWorker(cfg *config.Config, workerID int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.WithWorkerID(workerID)

	pool, err := storage.ServingPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("worker %d: %w", workerID, err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool, storage.Options{
		MaxCandidates: cfg.Search.MaxCandidates,
	})
	orchestrator := etl.NewOrchestrator(cfg)
	server := api.NewServer(cfg, repo, orchestrator)

	ln, err := api.ListenReusePort(fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("worker %d: %w", workerID, err)
	}

	logger.Info().Int("port", cfg.Port).Msg("Worker serving")
	if err := server.Serve(ctx, ln); err != nil {
		return fmt.Errorf("worker %d: %w", workerID, err)
	}
	logger.Info().Msg("Worker drained and exiting")
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("VANTAGE_CONFIG")
	}
	return config.Load(path)
}
