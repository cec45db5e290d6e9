// Package workers
package workers

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"dockreclaim/internal/config"
	"dockreclaim/internal/domain"
	"dockreclaim/internal/logger"
)

const (
	historyRetention = 30 * 24 * time.Hour
)

var historyCleanupSchedule = DailySchedule{Hour: 3, Minute: 0}

type Manager struct {
	scheduler *Scheduler
	cfg       *config.Config
	log       logger.Logger

	services *ManagerServices
}

type ManagerServices struct {
	Reclaimer Reclaimer
	// Runs is nil when history is disabled.
	Runs domain.RunRepository
}

type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

func NewManager(scheduler *Scheduler, cfg *config.Config, log logger.Logger, services *ManagerServices) *Manager {
	return &Manager{
		scheduler: scheduler,
		cfg:       cfg,
		log:       log,

		services: services,
	}
}

type scheduledWorker struct {
	worker Worker
	run    func(ctx context.Context, w Worker) error
}

// plan lists the workers Start runs. History cleanup is only scheduled
// when history is enabled.
func (m *Manager) plan() []scheduledWorker {
	reclaim := scheduledWorker{worker: NewReclaimWorker(m.services.Reclaimer, m.services.Runs, m.log)}

	if m.cfg.Interval > 0 {
		reclaim.run = func(ctx context.Context, w Worker) error {
			return m.scheduler.RunByDuration(ctx, m.cfg.Interval, true, w)
		}
	} else {
		hour, minute := m.cfg.DailyTime()
		reclaim.run = func(ctx context.Context, w Worker) error {
			return m.scheduler.RunDaily(ctx, DailySchedule{Hour: hour, Minute: minute}, w)
		}
	}

	plan := []scheduledWorker{reclaim}

	if m.services.Runs != nil {
		plan = append(plan, scheduledWorker{
			worker: NewHistoryCleanupWorker(m.services.Runs, historyRetention, m.log),
			run: func(ctx context.Context, w Worker) error {
				return m.scheduler.RunDaily(ctx, historyCleanupSchedule, w)
			},
		})
	}

	return plan
}

// Start blocks until ctx is done and returns ctx.Err().
func (m *Manager) Start(ctx context.Context) error {
	m.log.Info("worker: manager started")

	g, gCtx := errgroup.WithContext(ctx)

	for _, sw := range m.plan() {
		sw := sw
		g.Go(func() error {
			return sw.run(gCtx, sw.worker)
		})
	}

	return g.Wait()
}
