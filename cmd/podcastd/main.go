// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghostradio/podcastd/internal/config"
	"github.com/ghostradio/podcastd/internal/httpapi"
	"github.com/ghostradio/podcastd/internal/ingest"
	"github.com/ghostradio/podcastd/internal/jobstatus"
	"github.com/ghostradio/podcastd/internal/obs"
	"github.com/ghostradio/podcastd/internal/provider"
	"github.com/ghostradio/podcastd/internal/queue"
	"github.com/ghostradio/podcastd/internal/webhook"
	"github.com/ghostradio/podcastd/internal/worker"
)

var version = "dev"

func main() {
	var configPath string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queueStore, err := queue.NewStore(cfg.Storage.QueueDir, cfg.Storage.ProcessedDir, cfg.Storage.FailedDir)
	if err != nil {
		logger.Fatal("failed to open queue store", obs.Err(err))
	}
	statuses, err := jobstatus.NewStore(cfg.Storage.JobsDir)
	if err != nil {
		logger.Fatal("failed to open job status store", obs.Err(err))
	}

	probeCtx, probeCancel := context.WithTimeout(ctx, cfg.Providers.ProbeTimeout*time.Duration(len(cfg.Providers.LLM)+len(cfg.Providers.TTS)+1))
	registry, err := provider.NewRegistry(probeCtx, cfg.Providers, cfg.Storage.LogsDir+"/provider_cache.json", logger)
	probeCancel()
	if err != nil {
		logger.Fatal("failed to build provider registry", obs.Err(err))
	}

	prompts, err := worker.LoadPromptManager(cfg.PromptsFile)
	if err != nil {
		logger.Fatal("failed to load prompt templates", obs.Err(err))
	}

	notifier := webhook.New(cfg.Webhook, logger)
	fetcher := ingest.NewHTTPFetcher()

	pipeline := worker.NewPipeline(cfg.Worker, cfg.Storage, cfg.Retention, fetcher, registry, statuses, prompts, notifier, cfg.Podcast, logger)
	wrk := worker.New(cfg.Worker, queueStore, statuses, pipeline, logger)

	if err := wrk.Acquire(); err != nil {
		logger.Fatal("failed to acquire worker singleton lock; another instance may be running", obs.Err(err))
	}
	defer wrk.Release()

	apiServer := httpapi.NewServer(*cfg, queueStore, statuses, wrk, registry, logger)

	readyCheck := func(c context.Context) error { return nil }
	metricsSrv := obs.StartHTTPServer(cfg.Observability.MetricsPort, readyCheck)
	defer func() { _ = metricsSrv.Shutdown(context.Background()) }()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		_ = apiServer.Shutdown(shutdownCtx)
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(cfg.Server.ShutdownTimeout + 5*time.Second):
		}
	}()

	go runPruneLoop(ctx, wrk, cfg.Worker.PruneInterval)

	// Start a background drain of whatever was left queued by a previous
	// run; it runs alongside the ingest server rather than before it.
	wrk.Trigger(ctx)

	logger.Info("podcastd starting", obs.String("addr", cfg.Server.Addr), obs.String("version", version))
	if err := apiServer.Start(); err != nil {
		logger.Fatal("ingest server error", obs.Err(err))
	}
}

func runPruneLoop(ctx context.Context, wrk *worker.Worker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wrk.PruneProcessed()
		}
	}
}
