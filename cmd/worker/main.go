// Package main is the entry point for the crmforge worker.
// The worker claims jobs from the queue and runs generation, injection,
// cleanup, and snapshot work against the target environment.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crmforge/internal/config"
	"crmforge/internal/crm"
	"crmforge/internal/generate"
	"crmforge/internal/logger"
	"crmforge/internal/notify"
	"crmforge/internal/observability"
	"crmforge/internal/snapshot"
	"crmforge/internal/store/postgres"
	"crmforge/internal/worker"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: crmforge.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "crmforge-worker", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	workerMetrics, err := observability.NewWorkerMetrics()
	if err != nil {
		log.Fatalf("Failed to init worker metrics: %v", err)
	}

	// The sandbox connector keeps records in memory. A live deployment
	// swaps this for a client against the target CRM's REST API.
	connector := crm.NewFake()
	log.Println("Using in-memory sandbox connector")

	seed := func() int64 { return time.Now().UnixNano() }
	contentRng := rand.New(rand.NewSource(seed()))

	agent := worker.New(store, notify.NewLogNotifier(slogger), workerMetrics, slogger, worker.AgentConfig{
		Concurrency:         cfg.WorkerConcurrency,
		PollInterval:        cfg.WorkerPollInterval,
		MaxBackoff:          cfg.WorkerMaxBackoff,
		StaleClaimThreshold: cfg.StaleClaimThreshold,
	})

	agent.Register(&worker.GenerationHandler{
		Store:    store,
		Content:  generate.NewStaticGenerator(contentRng),
		SchedCfg: cfg.ScheduleConfig(),
		Density:  cfg.Density(),
		Seed:     seed,
	})
	agent.Register(&worker.InjectionHandler{
		Store:     store,
		Connector: connector,
		Metrics:   workerMetrics,
	})
	agent.Register(&worker.CleanupHandler{
		Store:     store,
		Connector: connector,
		Log:       slogger,
	})

	manager := snapshot.NewManager(store, connector, slogger)
	agent.Register(&worker.SnapshotCreateHandler{Store: store, Manager: manager})
	agent.Register(&worker.SnapshotRestoreHandler{Store: store, Manager: manager})

	log.Printf("Worker started with concurrency %d", cfg.WorkerConcurrency)
	go agent.Run(ctx)

	// Start a dedicated metrics server on port 6162
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		log.Println("Worker metrics listening on :6162")
		if err := http.ListenAndServe(":6162", mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()

	<-agent.Done()
}
