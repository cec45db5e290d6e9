package reclaim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"dockreclaim/internal/command"
	"dockreclaim/internal/disk"
	"dockreclaim/internal/domain"
	"dockreclaim/internal/logger"
)

type UsageFunc func(path string) (disk.FilesystemUsage, error)

type Reclaimer struct {
	exec  command.Executor
	steps []domain.Step
	out   io.Writer
	log   logger.Logger

	errOut         io.Writer
	verbose        bool
	reportFailures bool
	stepTimeout    time.Duration
	measurePath    string
	usage          UsageFunc
	now            func() time.Time
}

type Option func(*Reclaimer)

// WithVerbose sends the output of discarded steps to the debug log.
func WithVerbose(v bool) Option {
	return func(r *Reclaimer) { r.verbose = v }
}

// WithReportFailures logs failed steps at warn instead of debug.
func WithReportFailures(v bool) Option {
	return func(r *Reclaimer) { r.reportFailures = v }
}

// WithStepTimeout bounds every step. Zero leaves steps unbounded.
func WithStepTimeout(d time.Duration) Option {
	return func(r *Reclaimer) { r.stepTimeout = d }
}

// WithMeasurePath samples free space on path before and after the run.
// An empty path disables sampling.
func WithMeasurePath(path string) Option {
	return func(r *Reclaimer) { r.measurePath = path }
}

func WithStderr(w io.Writer) Option {
	return func(r *Reclaimer) { r.errOut = w }
}

func WithUsageFunc(fn UsageFunc) Option {
	return func(r *Reclaimer) { r.usage = fn }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reclaimer) { r.now = now }
}

func New(exec command.Executor, steps []domain.Step, out io.Writer, log logger.Logger, opts ...Option) *Reclaimer {
	r := &Reclaimer{
		exec:   exec,
		steps:  steps,
		out:    out,
		log:    log,
		errOut: os.Stderr,
		usage:  disk.Usage,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes every step in order and never stops because a step
// failed. It only stops early when ctx is cancelled.
func (r *Reclaimer) Run(ctx context.Context) *domain.RunReport {
	report := &domain.RunReport{
		ID:          uuid.New(),
		StartedAt:   r.now().UTC(),
		MeasurePath: r.measurePath,
	}
	log := r.log.With("run_id", report.ID.String())

	if r.measurePath != "" {
		report.FreeBefore = r.sampleFree(log, report)
	}

	for i, step := range r.steps {
		if ctx.Err() != nil {
			log.Info("reclaim run interrupted", "next_step", step.Name)
			break
		}

		fmt.Fprintln(r.out, step.Announcement)

		result := r.runStep(ctx, log, i, step)
		report.Steps = append(report.Steps, result)

		if result.Failed() {
			r.logFailure(log, result)
		}
	}

	if r.measurePath != "" && !report.MeasureFailed {
		report.FreeAfter = r.sampleFree(log, report)
	}

	report.FinishedAt = r.now().UTC()

	log.Debug("reclaim run finished",
		"exit_code", report.ExitCode(),
		"failed_steps", len(report.FailedSteps()),
		"reclaimed", disk.HumanBytes(report.ReclaimedBytes()),
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)

	return report
}

func (r *Reclaimer) runStep(ctx context.Context, log logger.Logger, position int, step domain.Step) domain.StepResult {
	stepCtx := ctx
	if r.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, r.stepTimeout)
		defer cancel()
	}

	spec := command.Spec{Name: step.Binary, Args: step.Args}

	switch step.Output {
	case domain.OutputForward:
		spec.Stdout = r.out
		spec.Stderr = r.errOut
	default:
		if r.verbose && logger.Enabled(log, slog.LevelDebug) {
			stepLog := log.With("step", step.Name)
			spec.OnLine = func(line string, stream domain.LogStream, level domain.LogLevel) {
				stepLog.Debug(line, "stream", stream, "level", level)
			}
		}
	}

	log.Debug("running step", "step", step.Name, "cmd", spec.String())

	started := r.now()
	res := r.exec.Exec(stepCtx, spec)
	finished := r.now()

	result := domain.StepResult{
		Position:   position,
		Name:       step.Name,
		Command:    step.CommandLine(),
		ExitCode:   res.Code,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Duration:   finished.Sub(started),
	}
	if res.Err != nil {
		result.Error = res.Err.Error()
	}

	return result
}

func (r *Reclaimer) logFailure(log logger.Logger, result domain.StepResult) {
	args := []any{
		"step", result.Name,
		"cmd", result.Command,
		"exit_code", result.ExitCode,
		"error", result.Error,
	}

	if r.reportFailures {
		log.Warn("reclaim step failed", args...)
		return
	}
	log.Debug("reclaim step failed", args...)
}

func (r *Reclaimer) sampleFree(log logger.Logger, report *domain.RunReport) uint64 {
	usage, err := r.usage(r.measurePath)
	if err != nil {
		log.Debug("failed to sample free space", "path", r.measurePath, "error", err)
		report.MeasureFailed = true
		return 0
	}
	return usage.FreeBytes
}
