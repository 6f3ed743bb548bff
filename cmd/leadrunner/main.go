package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"alfred-ai/internal/infra/config"
	"alfred-ai/internal/infra/logger"
	"alfred-ai/internal/infra/tracer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Runtime (stores, model router, engine, job queue, scheduler,
	// handover evaluator, ingress/inbound servers, IMAP scanner)
	rt, cleanup, err := initRuntime(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("runtime: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := cleanup(shutdownCtx); err != nil {
			log.Error("runtime cleanup error", "err", err)
		}
	}()

	// 4. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 5. Start everything
	rt.queue.Start(ctx)
	rt.scheduler.Start(ctx)
	if rt.imapScan != nil {
		rt.imapScan.Start(ctx)
	}
	if err := rt.ingress.Start(ctx); err != nil {
		return fmt.Errorf("ingress: %w", err)
	}
	if err := rt.inbound.Start(ctx); err != nil {
		return fmt.Errorf("inbound: %w", err)
	}

	log.Info("leadrunner started",
		"ingressAddr", rt.ingress.BoundAddr(),
		"inboundAddr", rt.inbound.BoundAddr(),
		"imapEnabled", rt.imapScan != nil,
	)

	<-ctx.Done()
	log.Info("leadrunner shutting down")
	return nil
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("LEADRUNNER_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
