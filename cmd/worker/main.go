package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/unclebandit/retention-engine/internal/config"
	"github.com/unclebandit/retention-engine/internal/db"
	"github.com/unclebandit/retention-engine/internal/logger"
	"github.com/unclebandit/retention-engine/internal/metrics"
	"github.com/unclebandit/retention-engine/internal/provider"
	"github.com/unclebandit/retention-engine/internal/queue"
	"github.com/unclebandit/retention-engine/internal/repository"
	"github.com/unclebandit/retention-engine/internal/service"
)

func main() {
	cfg, err := config.Load("retention-worker")
	if err != nil {
		panic(err)
	}
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		panic(err)
	}
	log := logger.GetLogger()
	defer log.Sync()
	log.Info("starting worker", cfg.LogConfig()...)

	if cfg.Queue.AMQPURL == "" {
		log.Fatal("AMQP_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Init(ctx, &cfg.DB, log)
	if err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}
	defer conn.Close()

	metrics.Register()

	providers, err := provider.FromConfig(cfg.Providers, cfg.Server.Env != "production", log)
	if err != nil {
		log.Fatal("provider configuration invalid", zap.Error(err))
	}

	store := repository.NewStore(conn)
	worker := service.NewWorker(
		service.NewInterventionService(store, providers, log),
		cfg.Worker.DispatchInterval,
		cfg.Worker.DispatchBatch,
		log,
	)

	q, err := queue.DialAMQP(cfg.Queue.AMQPURL, log)
	if err != nil {
		log.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer q.Close()
	q.Prefetch = cfg.Worker.Concurrency

	if err := run(ctx, q, worker, cfg.Queue.DailyRunQueue, log); err != nil {
		log.Fatal("worker failed", zap.Error(err))
	}
	log.Info("worker stopped")
}

// run consumes daily run jobs from q and dispatches scheduled interventions
// until ctx is done.
func run(ctx context.Context, q queue.Queue, worker *service.Worker, topic string, log *zap.Logger) error {
	if err := queue.StartDailyRunSubscriber(q, topic, log, worker.Handle); err != nil {
		return err
	}
	log.Info("worker running, waiting for jobs", zap.String("queue", topic))
	worker.RunScheduler(ctx)
	return nil
}
