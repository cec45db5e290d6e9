package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"dockreclaim/internal/command"
	"dockreclaim/internal/config"
	"dockreclaim/internal/disk"
	"dockreclaim/internal/docker"
	"dockreclaim/internal/domain"
	"dockreclaim/internal/logger"
	"dockreclaim/internal/reclaim"
	"dockreclaim/internal/storage/sqlite"
	"dockreclaim/internal/workers"
)

const usage = "usage: reclaimer\n\nTakes no arguments. Prunes unused docker resources and prints disk usage.\nOptional settings are read from RECLAIM_* environment variables or .env."

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	os.Exit(code)
}

// run stops scheduled mode, or the current run before its next step, when
// ctx is done.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	appLog := logger.New(cfg, stderr)

	exec := command.OS{}
	dockerManager := docker.NewManager(appLog, exec, cfg.DockerBinary)

	if cfg.ReportFailures {
		preflight(ctx, dockerManager, appLog)
	}

	var runs domain.RunRepository
	if cfg.HistoryEnabled() {
		db, err := sqlite.NewSqliteDB(cfg.HistoryDB, appLog)
		if err != nil {
			appLog.Error("failed to open reclaim history", "path", cfg.HistoryDB, "error", err)
			return 1
		}
		defer db.Close()

		runs = sqlite.NewRunRepository(db)
		logPreviousRun(ctx, runs, appLog)
	}

	reclaimer := reclaim.New(exec, reclaim.DefaultSteps(dockerManager, cfg.DfBinary), stdout, appLog,
		reclaim.WithStderr(stderr),
		reclaim.WithVerbose(cfg.Verbose),
		reclaim.WithReportFailures(cfg.ReportFailures),
		reclaim.WithStepTimeout(cfg.StepTimeout),
		reclaim.WithMeasurePath(cfg.MeasurePath),
	)

	if cfg.Scheduled() {
		manager := workers.NewManager(workers.NewScheduler(appLog), cfg, appLog, &workers.ManagerServices{
			Reclaimer: reclaimer,
			Runs:      runs,
		})

		if err := manager.Start(ctx); err != nil && ctx.Err() == nil {
			appLog.Error("reclaim scheduler failed", "error", err)
			return 1
		}

		appLog.Info("reclaim scheduler stopped")
		return 0
	}

	report := reclaimer.Run(ctx)

	if err := workers.SaveReport(ctx, runs, report); err != nil {
		appLog.Error("failed to record reclaim run", "error", err)
	}

	if ctx.Err() != nil {
		return command.CodeInterrupted
	}

	return report.ExitCode()
}

func preflight(ctx context.Context, dm *docker.Manager, log logger.Logger) {
	if !dm.IsDockerInstalled(ctx) {
		return
	}

	version, err := dm.Version(ctx)
	if err != nil {
		log.Warn("docker daemon unreachable, prune steps will fail", "error", err)
		return
	}

	log.Debug("docker daemon reachable", "server_version", version)
}

func logPreviousRun(ctx context.Context, runs domain.RunRepository, log logger.Logger) {
	last, err := runs.List(ctx, 1)
	if err != nil {
		log.Warn("failed to read reclaim history", "error", err)
		return
	}
	if len(last) == 0 {
		return
	}

	prev := last[0]
	log.Debug("previous reclaim run",
		"run_id", prev.ID,
		"started_at", prev.StartedAt,
		"exit_code", prev.ExitCode(),
		"failed_steps", len(prev.FailedSteps()),
		"reclaimed", disk.HumanBytes(prev.ReclaimedBytes()),
	)
}
