// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/retention-engine/internal/config"
	"github.com/unclebandit/retention-engine/internal/controller"
	"github.com/unclebandit/retention-engine/internal/db"
	"github.com/unclebandit/retention-engine/internal/handler"
	"github.com/unclebandit/retention-engine/internal/logger"
	"github.com/unclebandit/retention-engine/internal/metrics"
	"github.com/unclebandit/retention-engine/internal/provider"
	"github.com/unclebandit/retention-engine/internal/queue"
	"github.com/unclebandit/retention-engine/internal/repository"
	"github.com/unclebandit/retention-engine/internal/service"
)

func main() {
	cfg, err := config.Load("retention-api")
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
	log.Info("starting server", cfg.LogConfig()...)

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
	interventionService := service.NewInterventionService(store, providers, log)
	snapshotService := service.NewSnapshotService(store, log)

	// Without a broker, async runs are handled in process.
	var q queue.Queue
	if cfg.Queue.AMQPURL != "" {
		amqpQueue, err := queue.DialAMQP(cfg.Queue.AMQPURL, log)
		if err != nil {
			log.Fatal("failed to connect to RabbitMQ", zap.Error(err))
		}
		q = amqpQueue
	} else {
		memQueue := queue.NewInMemoryQueue(log)
		worker := service.NewWorker(interventionService, cfg.Worker.DispatchInterval, cfg.Worker.DispatchBatch, log)
		if err := queue.StartDailyRunSubscriber(memQueue, cfg.Queue.DailyRunQueue, log, worker.Handle); err != nil {
			log.Fatal("failed to subscribe to daily runs", zap.Error(err))
		}
		go worker.RunScheduler(ctx)
		q = memQueue
	}
	defer q.Close()

	interventionController := &controller.InterventionController{
		Interventions: interventionService,
		Scoring:       snapshotService,
		Queue:         q,
		RunTopic:      cfg.Queue.DailyRunQueue,
	}
	interventionHandler := handler.NewInterventionHandler(interventionService)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := conn.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	interventionController.Routes(r)
	interventionHandler.Routes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("server running", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server stopped", zap.Error(err))
	}
}
