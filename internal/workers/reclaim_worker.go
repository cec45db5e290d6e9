package workers

import (
	"context"
	"fmt"
	"time"

	"dockreclaim/internal/domain"
	"dockreclaim/internal/logger"
)

type Reclaimer interface {
	Run(ctx context.Context) *domain.RunReport
}

type ReclaimWorker struct {
	reclaimer Reclaimer
	runs      domain.RunRepository
	log       logger.Logger
}

func NewReclaimWorker(reclaimer Reclaimer, runs domain.RunRepository, log logger.Logger) Worker {
	return &ReclaimWorker{
		reclaimer: reclaimer,
		runs:      runs,
		log:       log,
	}
}

func (w *ReclaimWorker) Name() string {
	return "reclaim"
}

// Run never fails because a reclaim step failed; only history errors are
// returned.
func (w *ReclaimWorker) Run(ctx context.Context) error {
	report := w.reclaimer.Run(ctx)

	w.log.Debug("reclaim run completed",
		"run_id", report.ID,
		"exit_code", report.ExitCode(),
		"failed_steps", len(report.FailedSteps()),
	)

	return SaveReport(ctx, w.runs, report)
}

// SaveReport persists report when history is enabled. The write is not
// tied to ctx so an interrupted run is still recorded.
func SaveReport(ctx context.Context, runs domain.RunRepository, report *domain.RunReport) error {
	if runs == nil || report == nil {
		return nil
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := runs.Save(saveCtx, report); err != nil {
		return fmt.Errorf("failed to save reclaim run %s: %w", report.ID, err)
	}
	return nil
}

type HistoryCleanupWorker struct {
	runs      domain.RunRepository
	retention time.Duration
	log       logger.Logger
	now       func() time.Time
}

func NewHistoryCleanupWorker(runs domain.RunRepository, retention time.Duration, log logger.Logger) Worker {
	return &HistoryCleanupWorker{
		runs:      runs,
		retention: retention,
		log:       log,
		now:       time.Now,
	}
}

func (w *HistoryCleanupWorker) Name() string {
	return "history_cleanup"
}

func (w *HistoryCleanupWorker) Run(ctx context.Context) error {
	n, err := w.runs.DeleteOlderThan(ctx, w.now().Add(-w.retention))
	if err != nil {
		return err
	}

	w.log.Debug("reclaim history pruned", "deleted", n, "retention", w.retention)
	return nil
}
