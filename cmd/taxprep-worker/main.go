package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"taxprep/internal/amqp"
	"taxprep/internal/cli"
	"taxprep/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting taxprep-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	// The worker always reads from SQLite; the memory backend has nothing
	// durable to sweep.
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	snapshotWorker := worker.NewSnapshotWorker(repo, cfg.SweepBatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Recover any backlog from downtime before consuming.
	logger.Info("Performing startup sweep...")
	if err := snapshotWorker.StartupSweep(ctx); err != nil {
		logger.Error("Startup sweep failed", "error", err)
		// Don't exit - the periodic sweep retries
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeReturnCompleted(gctx, func(msg *amqp.ReturnCompletedMessage) error {
			return snapshotWorker.HandleCompletedMessage(gctx, msg)
		})
	})

	g.Go(func() error {
		return snapshotWorker.RunPeriodicSweep(gctx, cfg.SweepInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker shutdown complete")
}
