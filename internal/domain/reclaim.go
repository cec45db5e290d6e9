package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRunNotFound    = errors.New("reclaim run not found")
	ErrBinaryNotFound = errors.New("binary not found in PATH")
)

// OutputMode decides where a step's child output goes.
type OutputMode string

const (
	OutputDiscard OutputMode = "discard"
	OutputForward OutputMode = "forward"
)

type Step struct {
	Name         string     `json:"name"`
	Announcement string     `json:"announcement"`
	Binary       string     `json:"binary"`
	Args         []string   `json:"args"`
	Output       OutputMode `json:"output"`
}

func (s Step) CommandLine() string {
	return strings.Join(append([]string{s.Binary}, s.Args...), " ")
}

type StepResult struct {
	Position   int           `json:"position"`
	Name       string        `json:"name"`
	Command    string        `json:"command"`
	ExitCode   int           `json:"exit_code"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

func (r StepResult) Failed() bool {
	return r.ExitCode != 0 || r.Error != ""
}

type RunReport struct {
	ID            uuid.UUID    `json:"id"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    time.Time    `json:"finished_at"`
	Steps         []StepResult `json:"steps"`
	FreeBefore    uint64       `json:"free_before"`
	FreeAfter     uint64       `json:"free_after"`
	MeasurePath   string       `json:"measure_path"`
	MeasureFailed bool         `json:"measure_failed"`
}

// ExitCode is the exit status of the last step run; earlier steps are
// not examined.
func (r *RunReport) ExitCode() int {
	if r == nil || len(r.Steps) == 0 {
		return 0
	}
	return r.Steps[len(r.Steps)-1].ExitCode
}

// ReclaimedBytes is the growth in free space across the run, clamped at
// zero when other writers consumed space in the meantime.
func (r *RunReport) ReclaimedBytes() uint64 {
	if r == nil || r.MeasureFailed || r.FreeAfter <= r.FreeBefore {
		return 0
	}
	return r.FreeAfter - r.FreeBefore
}

func (r *RunReport) FailedSteps() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if s.Failed() {
			failed = append(failed, s)
		}
	}
	return failed
}

type RunRepository interface {
	Save(ctx context.Context, report *RunReport) error
	GetByID(ctx context.Context, id uuid.UUID) (*RunReport, error)
	List(ctx context.Context, limit int) ([]*RunReport, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
