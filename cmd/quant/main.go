package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"ai-quant/internal/brief"
	"ai-quant/internal/interfaces"
	"ai-quant/internal/logger"
	"ai-quant/internal/runner"
	"ai-quant/internal/store"
	"ai-quant/internal/trace"
	"ai-quant/internal/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single pipeline pass and exit")
	briefOnly := flag.Bool("brief", false, "generate today's brief and exit")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = trace.Shutdown(sctx)
	}()

	cfg, err := store.LoadConfig(*configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		os.Exit(1)
	}

	compressOldLogs(ctx)

	repo, err := initializeStore(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to initialize store", err)
		os.Exit(1)
	}
	defer repo.Pool().Close()

	if *briefOnly {
		path, err := brief.Generate(ctx, repo, cfg.Brief.Dir, time.Now())
		if err != nil {
			logger.ErrorWithErr(ctx, "Brief generation failed", err)
			os.Exit(1)
		}
		logger.Info(ctx, "Daily brief written", "path", path)
		return
	}

	scorer := initializeScorer(ctx, cfg)
	gw := initializeGateway(ctx, cfg)
	run := initializeRunner(cfg, repo, scorer, gw)

	if *once {
		summary, err := run.RunOnce(ctx)
		if err != nil {
			logger.ErrorWithErr(ctx, "Run failed to start", err)
			os.Exit(1)
		}
		if summary.Outcome == types.OutcomeAborted {
			os.Exit(1)
		}
		return
	}

	runScheduled(ctx, cfg, run, repo)
}

// runScheduled runs the pipeline on the configured cron schedule until
// the process receives SIGINT or SIGTERM.
func runScheduled(ctx context.Context, cfg *store.Config, run *runner.Runner, repo interfaces.Store) {
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(cfg.Schedule, func() {
		if _, err := run.RunOnce(ctx); err != nil {
			logger.Warn(ctx, "Scheduled run skipped", "error", err)
			return
		}
		if cfg.Brief.Dir != "" {
			if path, err := brief.Generate(ctx, repo, cfg.Brief.Dir, time.Now()); err != nil {
				logger.ErrorWithErr(ctx, "Brief generation failed", err)
			} else {
				logger.Info(ctx, "Daily brief written", "path", path)
			}
		}
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Invalid schedule", err, "schedule", cfg.Schedule)
		os.Exit(1)
	}

	c.Start()
	logger.Info(ctx, "Scheduler started", "schedule", cfg.Schedule)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info(ctx, "Shutting down")
	case <-ctx.Done():
	}

	stopCtx := c.Stop()
	<-stopCtx.Done()
}
