// Command boa runs the BOA campaign orchestration server: it loads a TOML
// config, opens the SQLite store, wires the plugin registry, lock,
// checkpointer, ledger and engine, then drains the durable job queue on a
// tick loop until interrupted. The wiring order is config -> store ->
// components -> signal-driven run loop.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron"

	"github.com/antigravity-dev/boa/internal/boaerr"
	"github.com/antigravity-dev/boa/internal/bundle"
	"github.com/antigravity-dev/boa/internal/checkpointer"
	"github.com/antigravity-dev/boa/internal/config"
	"github.com/antigravity-dev/boa/internal/engine"
	"github.com/antigravity-dev/boa/internal/health"
	"github.com/antigravity-dev/boa/internal/jobqueue"
	"github.com/antigravity-dev/boa/internal/lock"
	"github.com/antigravity-dev/boa/internal/plugins"
	"github.com/antigravity-dev/boa/internal/plugins/builtin"
	"github.com/antigravity-dev/boa/internal/store"
)

func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func main() {
	configPath := flag.String("config", "boa.toml", "path to config file")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	once := flag.Bool("once", false, "drain one batch of pending jobs then exit")

	exportCampaign := flag.String("export-campaign", "", "export the named campaign ID to -bundle-path and exit")
	importBundle := flag.Bool("import-bundle", false, "import a bundle from -bundle-path and exit")
	bundlePath := flag.String("bundle-path", "", "file path used by -export-campaign/-import-bundle")

	cleanupStaleJobs := flag.Bool("cleanup-stale-jobs", false, "fail RUNNING jobs older than jobs.stale_max_age and exit")
	cleanupCompletedJobs := flag.Bool("cleanup-completed-jobs", false, "prune terminal jobs beyond jobs.keep_completed and exit")
	sweepLocks := flag.Bool("sweep-locks", false, "remove expired campaign locks and exit")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("boa starting", "config", *configPath)

	cfgManager, err := config.LoadManager(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	logger = configureLogger(cfg.Logging.Level, *dev)
	slog.SetDefault(logger)

	lockFile, err := health.AcquireFlock("/tmp/boa.lock")
	if err != nil {
		logger.Error("failed to acquire single-instance lock", "error", err)
		os.Exit(1)
	}
	defer health.ReleaseFlock(lockFile)

	if err := os.MkdirAll(cfg.Server.CheckpointDir, 0o755); err != nil {
		logger.Error("failed to create checkpoint directory", "dir", cfg.Server.CheckpointDir, "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.Server.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	switch {
	case *exportCampaign != "":
		runExport(logger, st, *exportCampaign, *bundlePath)
		return
	case *importBundle:
		runImport(logger, st, *bundlePath)
		return
	case *cleanupStaleJobs:
		runCleanupStaleJobs(logger, st, cfg)
		return
	case *cleanupCompletedJobs:
		runCleanupCompletedJobs(logger, st, cfg)
		return
	case *sweepLocks:
		runSweepLocks(logger, st, cfg)
		return
	}

	registry := plugins.NewRegistry()
	builtin.RegisterAll(registry)

	campaignLock := lock.New(st, cfg.Lock.TTL.Duration)
	checkpts := checkpointer.New(st, cfg.Server.CheckpointDir)
	eng := engine.New(st, registry, campaignLock, checkpts, hostname())

	queue := jobqueue.New(st)
	worker := jobqueue.NewWorker(queue, logger, cfg.Jobs.PollInterval.Duration, cfg.Jobs.Concurrency)
	registerJobHandlers(worker, eng)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := cron.New()
	sched.AddFunc(cfg.Maintenance.SweepCron, func() { runMaintenanceTick(logger, st, queue, checkpts, cfg) })
	sched.Start()
	defer sched.Stop()

	if *once {
		logger.Info("running single job-drain pass")
		worker.Drain(ctx)
		return
	}

	logger.Info("job worker running", "poll_interval", cfg.Jobs.PollInterval.Duration, "concurrency", cfg.Jobs.Concurrency)
	worker.Run(ctx)
	logger.Info("boa shutting down")
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "boa-worker"
	}
	return h
}

func runExport(logger *slog.Logger, st *store.Store, campaignID, path string) {
	if path == "" {
		logger.Error("-bundle-path is required with -export-campaign")
		os.Exit(1)
	}
	if err := bundle.NewExporter(st).ExportToFile(campaignID, path); err != nil {
		logger.Error("export failed", "campaign_id", campaignID, "error", err)
		os.Exit(1)
	}
	logger.Info("export complete", "campaign_id", campaignID, "path", path)
}

func runImport(logger *slog.Logger, st *store.Store, path string) {
	if path == "" {
		logger.Error("-bundle-path is required with -import-bundle")
		os.Exit(1)
	}
	result, err := bundle.NewImporter(st).ImportFromFile(path)
	if err != nil {
		logger.Error("import failed", "path", path, "error", err)
		os.Exit(1)
	}
	logger.Info("import complete", "process_id", result.ProcessID, "campaign_id", result.CampaignID)
}

func runCleanupStaleJobs(logger *slog.Logger, st *store.Store, cfg *config.Config) {
	n, err := jobqueue.New(st).CleanupStale(cfg.Jobs.StaleMaxAge.Duration)
	if err != nil {
		logger.Error("cleanup-stale-jobs failed", "error", err)
		os.Exit(1)
	}
	logger.Info("cleanup-stale-jobs complete", "jobs_failed", n)
}

func runCleanupCompletedJobs(logger *slog.Logger, st *store.Store, cfg *config.Config) {
	n, err := jobqueue.New(st).CleanupCompleted(cfg.Jobs.KeepCompleted)
	if err != nil {
		logger.Error("cleanup-completed-jobs failed", "error", err)
		os.Exit(1)
	}
	logger.Info("cleanup-completed-jobs complete", "jobs_removed", n)
}

func runSweepLocks(logger *slog.Logger, st *store.Store, cfg *config.Config) {
	n, err := lock.New(st, cfg.Lock.TTL.Duration).Sweep()
	if err != nil {
		logger.Error("sweep-locks failed", "error", err)
		os.Exit(1)
	}
	logger.Info("sweep-locks complete", "locks_removed", n)
}

// runMaintenanceTick runs the periodic stale-job/lock sweep plus a
// checkpoint-retention pass over every ACTIVE or PAUSED campaign, invoked by the
// cron schedule in cfg.Maintenance.SweepCron. The original checkpointer.py's
// cleanup() is caller-invoked only; this scheduled pass is the "operational
// nicety" SPEC_FULL.md's supplemented-features section adds on top of it.
func runMaintenanceTick(logger *slog.Logger, st *store.Store, queue *jobqueue.Queue, checkpts *checkpointer.Checkpointer, cfg *config.Config) {
	if n, err := queue.CleanupStale(cfg.Jobs.StaleMaxAge.Duration); err != nil {
		logger.Error("maintenance: cleanup stale jobs failed", "error", err)
	} else if n > 0 {
		logger.Info("maintenance: failed stale jobs", "count", n)
	}

	if n, err := lock.New(st, cfg.Lock.TTL.Duration).Sweep(); err != nil {
		logger.Error("maintenance: sweep expired locks failed", "error", err)
	} else if n > 0 {
		logger.Info("maintenance: swept expired locks", "count", n)
	}

	for _, status := range []store.CampaignStatus{store.CampaignActive, store.CampaignPaused} {
		campaigns, err := st.ListCampaigns(status)
		if err != nil {
			logger.Error("maintenance: list campaigns failed", "status", status, "error", err)
			continue
		}
		for _, c := range campaigns {
			n, err := checkpts.Cleanup(c.ID, "", cfg.Jobs.CheckpointKeep)
			if err != nil {
				logger.Error("maintenance: checkpoint cleanup failed", "campaign_id", c.ID, "error", err)
				continue
			}
			if n > 0 {
				logger.Info("maintenance: pruned checkpoints", "campaign_id", c.ID, "count", n)
			}
		}
	}
}

// registerJobHandlers wires the two durable job types this engine supports:
// running an optimization iteration, and analyzing a campaign's current
// metrics. Both job payloads carry a campaign_id and, for
// optimize_iteration, a strategy name and batch size q.
func registerJobHandlers(worker *jobqueue.Worker, eng *engine.Engine) {
	worker.RegisterHandler("optimize_iteration", func(ctx context.Context, job *store.Job, report func(float64)) error {
		campaignID, _ := job.Payload["campaign_id"].(string)
		strategyName, _ := job.Payload["strategy"].(string)
		q := 1
		if qv, ok := job.Payload["q"].(float64); ok {
			q = int(qv)
		}
		if campaignID == "" || strategyName == "" {
			return boaerr.New(boaerr.KindValidationError, "optimize_iteration job requires campaign_id and strategy")
		}

		report(0.1)
		spec, err := eng.LoadSpec(campaignID)
		if err != nil {
			return err
		}
		report(0.3)
		_, err = eng.OptimizationIteration(ctx, spec, campaignID, strategyName, q)
		report(1.0)
		return err
	})

	worker.RegisterHandler("analyze_campaign", func(ctx context.Context, job *store.Job, report func(float64)) error {
		campaignID, _ := job.Payload["campaign_id"].(string)
		if campaignID == "" {
			return boaerr.New(boaerr.KindValidationError, "analyze_campaign job requires campaign_id")
		}
		spec, err := eng.LoadSpec(campaignID)
		if err != nil {
			return err
		}
		report(0.5)
		_, err = eng.Analyze(spec, campaignID, nil)
		report(1.0)
		return err
	})
}
