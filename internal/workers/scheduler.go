package workers

import (
	"context"
	"time"

	"dockreclaim/internal/logger"
)

type DailySchedule struct {
	Hour   int
	Minute int
}

// Next returns the first occurrence of the schedule strictly after now.
func (d DailySchedule) Next(now time.Time) time.Time {
	next := time.Date(
		now.Year(),
		now.Month(),
		now.Day(),
		d.Hour,
		d.Minute,
		0,
		0,
		now.Location(),
	)

	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

type Scheduler struct {
	log logger.Logger
	now func() time.Time
}

func NewScheduler(log logger.Logger) *Scheduler {
	return &Scheduler{log: log, now: time.Now}
}

// RunByDuration blocks, running worker every dur until ctx is done. When
// immediate is set the first run happens right away.
func (s *Scheduler) RunByDuration(ctx context.Context, dur time.Duration, immediate bool, worker Worker) error {
	s.log.Info("worker scheduled", "name", worker.Name(), "interval", dur)

	if immediate {
		s.run(ctx, worker)
	}

	ticker := time.NewTicker(dur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx, worker)
		}
	}
}

// RunDaily blocks, running worker once a day at schedule until ctx is done.
func (s *Scheduler) RunDaily(ctx context.Context, schedule DailySchedule, worker Worker) error {
	next := schedule.Next(s.now())
	s.log.Info("worker scheduled", "name", worker.Name(), "next_run", next)

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.run(ctx, worker)

			// Recomputed each time so DST shifts do not drift the schedule.
			timer.Reset(time.Until(schedule.Next(s.now())))
		}
	}
}

func (s *Scheduler) run(ctx context.Context, worker Worker) {
	start := time.Now()

	err := worker.Run(ctx)
	if err != nil {
		s.log.Error("worker failed", "name", worker.Name(), "error", err)
	}

	s.log.Debug("worker finished", "name", worker.Name(), "time", time.Since(start))
}
