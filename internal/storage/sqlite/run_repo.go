package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dockreclaim/internal/domain"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) domain.RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Save(ctx context.Context, report *domain.RunReport) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reclaim_runs (id, started_at, finished_at, exit_code, measure_path, measure_failed, free_before, free_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID.String(),
		report.StartedAt.UTC(),
		report.FinishedAt.UTC(),
		report.ExitCode(),
		report.MeasurePath,
		report.MeasureFailed,
		int64(report.FreeBefore),
		int64(report.FreeAfter),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reclaim run: %w", err)
	}

	for _, s := range report.Steps {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reclaim_steps (run_id, position, name, command, exit_code, error, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			report.ID.String(),
			s.Position,
			s.Name,
			s.Command,
			s.ExitCode,
			s.Error,
			s.StartedAt.UTC(),
			s.FinishedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert reclaim step %s: %w", s.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reclaim run: %w", err)
	}
	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.RunReport, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, measure_path, measure_failed, free_before, free_after
		FROM reclaim_runs WHERE id = ?`, id.String())

	report, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reclaim run: %w", err)
	}

	if err := r.loadSteps(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// List returns the most recent runs first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*domain.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, measure_path, measure_failed, free_before, free_after
		FROM reclaim_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reclaim runs: %w", err)
	}
	defer rows.Close()

	var reports []*domain.RunReport
	for rows.Next() {
		report, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reclaim run: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reclaim runs: %w", err)
	}

	for _, report := range reports {
		if err := r.loadSteps(ctx, report); err != nil {
			return nil, err
		}
	}

	return reports, nil
}

func (r *RunRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM reclaim_runs WHERE started_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old reclaim runs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted reclaim runs: %w", err)
	}
	return n, nil
}

func (r *RunRepository) loadSteps(ctx context.Context, report *domain.RunReport) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT position, name, command, exit_code, error, started_at, finished_at
		FROM reclaim_steps WHERE run_id = ? ORDER BY position`, report.ID.String())
	if err != nil {
		return fmt.Errorf("failed to query reclaim steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.StepResult
		if err := rows.Scan(&s.Position, &s.Name, &s.Command, &s.ExitCode, &s.Error, &s.StartedAt, &s.FinishedAt); err != nil {
			return fmt.Errorf("failed to scan reclaim step: %w", err)
		}
		s.Duration = s.FinishedAt.Sub(s.StartedAt)
		report.Steps = append(report.Steps, s)
	}

	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*domain.RunReport, error) {
	var (
		report     domain.RunReport
		id         string
		freeBefore int64
		freeAfter  int64
	)

	err := s.Scan(&id, &report.StartedAt, &report.FinishedAt, &report.MeasurePath, &report.MeasureFailed, &freeBefore, &freeAfter)
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}

	report.ID = parsed
	report.FreeBefore = uint64(freeBefore)
	report.FreeAfter = uint64(freeAfter)
	return &report, nil
}
