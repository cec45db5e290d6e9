package reclaim

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dockreclaim/internal/command"
	"dockreclaim/internal/disk"
	"dockreclaim/internal/docker"
	"dockreclaim/internal/domain"
	"dockreclaim/internal/logger"
)

const dfTable = "Filesystem      Size  Used Avail Use% Mounted on\n/dev/sda1        50G   20G   28G  42% /\n"

// fakeExecutor records every spec and answers docker calls with
// dockerResult. df writes a table to the forwarded stdout.
type fakeExecutor struct {
	specs        []command.Spec
	dockerResult command.Result
	dfResult     command.Result
	onDocker     func(spec command.Spec)
}

func (f *fakeExecutor) Exec(_ context.Context, spec command.Spec) command.Result {
	f.specs = append(f.specs, spec)

	if spec.Name == "df" {
		if spec.Stdout != nil {
			io.WriteString(spec.Stdout, dfTable)
		}
		return f.dfResult
	}

	if f.onDocker != nil {
		f.onDocker(spec)
	}
	return f.dockerResult
}

func defaultSteps() []domain.Step {
	return DefaultSteps(docker.NewManager(logger.Nop(), command.OS{}, "docker"), "df")
}

func TestRunIssuesFourInvocationsInOrder(t *testing.T) {
	exec := &fakeExecutor{}
	var out bytes.Buffer

	report := New(exec, defaultSteps(), &out, logger.Nop()).Run(context.Background())

	require.Len(t, exec.specs, 4)
	assert.Equal(t, "docker system prune --all --force", exec.specs[0].String())
	assert.Equal(t, "docker image prune --all --force", exec.specs[1].String())
	assert.Equal(t, "docker volume prune --all --force", exec.specs[2].String())
	assert.Equal(t, "df -h", exec.specs[3].String())

	require.Len(t, report.Steps, 4)
	for i, name := range []string{StepSystemPrune, StepImagePrune, StepVolumePrune, StepDiskUsage} {
		assert.Equal(t, i, report.Steps[i].Position)
		assert.Equal(t, name, report.Steps[i].Name)
	}
	assert.Equal(t, 0, report.ExitCode())
}

func TestRunDiscardsPruneOutputAndForwardsDiskUsage(t *testing.T) {
	exec := &fakeExecutor{}
	var out, errOut bytes.Buffer

	New(exec, defaultSteps(), &out, logger.Nop(), WithStderr(&errOut)).Run(context.Background())

	for _, spec := range exec.specs[:3] {
		assert.Nil(t, spec.Stdout, spec.String())
		assert.Nil(t, spec.Stderr, spec.String())
		assert.Nil(t, spec.OnLine, spec.String())
	}
	assert.Same(t, &out, exec.specs[3].Stdout)
	assert.Same(t, &errOut, exec.specs[3].Stderr)
}

func TestRunAnnouncesEachStepImmediatelyBeforeIt(t *testing.T) {
	var out bytes.Buffer
	exec := &fakeExecutor{
		onDocker: func(command.Spec) {
			out.WriteString("<run>\n")
		},
	}

	New(exec, defaultSteps(), &out, logger.Nop()).Run(context.Background())

	want := AnnounceSystemPrune + "\n<run>\n" +
		AnnounceImagePrune + "\n<run>\n" +
		AnnounceVolumePrune + "\n<run>\n" +
		AnnounceDiskUsage + "\n" + dfTable
	assert.Equal(t, want, out.String())
}

func TestRunContinuesWhenRuntimeIsUnreachable(t *testing.T) {
	exec := &fakeExecutor{
		dockerResult: command.Result{
			Code: 1,
			Err:  errors.New("Cannot connect to the Docker daemon at unix:///var/run/docker.sock"),
		},
	}
	var out, logs bytes.Buffer
	log := logger.NewWithWriter(&logs, "info", "text")

	report := New(exec, defaultSteps(), &out, log).Run(context.Background())

	assert.Len(t, exec.specs, 4)
	assert.Equal(t,
		AnnounceSystemPrune+"\n"+AnnounceImagePrune+"\n"+AnnounceVolumePrune+"\n"+AnnounceDiskUsage+"\n"+dfTable,
		out.String(),
	)
	assert.Empty(t, logs.String())
	assert.Len(t, report.FailedSteps(), 3)
	assert.Equal(t, 0, report.ExitCode())
}

func TestRunExitCodeIsLastStep(t *testing.T) {
	exec := &fakeExecutor{dfResult: command.Result{Code: 127, Err: domain.ErrBinaryNotFound}}

	report := New(exec, defaultSteps(), io.Discard, logger.Nop()).Run(context.Background())

	assert.Equal(t, 127, report.ExitCode())
	assert.Equal(t, domain.ErrBinaryNotFound.Error(), report.Steps[3].Error)
}

func TestRunReportFailuresLogsAtWarn(t *testing.T) {
	exec := &fakeExecutor{dockerResult: command.Result{Code: 1}}
	var logs bytes.Buffer
	log := logger.NewWithWriter(&logs, "info", "text")

	New(exec, defaultSteps(), io.Discard, log, WithReportFailures(true)).Run(context.Background())

	assert.Equal(t, 3, bytes.Count(logs.Bytes(), []byte("reclaim step failed")))
	assert.Contains(t, logs.String(), "step=volume-prune")
}

func TestRunVerboseStreamsDiscardedOutputToDebugLog(t *testing.T) {
	exec := &fakeExecutor{
		onDocker: func(spec command.Spec) {
			require.NotNil(t, spec.OnLine)
			spec.OnLine("Total reclaimed space: 1.5GB", domain.StreamStdout, domain.LogInfo)
		},
	}
	var out, logs bytes.Buffer
	log := logger.NewWithWriter(&logs, "debug", "text")

	New(exec, defaultSteps(), &out, log, WithVerbose(true)).Run(context.Background())

	assert.Contains(t, logs.String(), "Total reclaimed space: 1.5GB")
	assert.Contains(t, logs.String(), "step=image-prune")
	assert.NotContains(t, out.String(), "Total reclaimed space")
	assert.Nil(t, exec.specs[3].OnLine)
}

func TestRunVerboseSkippedWhenDebugDisabled(t *testing.T) {
	exec := &fakeExecutor{}

	New(exec, defaultSteps(), io.Discard, logger.Nop(), WithVerbose(true)).Run(context.Background())

	for _, spec := range exec.specs {
		assert.Nil(t, spec.OnLine)
	}
}

func TestRunStepTimeout(t *testing.T) {
	var deadlines []bool
	exec := command.ExecutorFunc(func(ctx context.Context, _ command.Spec) command.Result {
		_, ok := ctx.Deadline()
		deadlines = append(deadlines, ok)
		return command.Result{}
	})

	New(exec, defaultSteps(), io.Discard, logger.Nop()).Run(context.Background())
	assert.Equal(t, []bool{false, false, false, false}, deadlines)

	deadlines = nil
	New(exec, defaultSteps(), io.Discard, logger.Nop(), WithStepTimeout(time.Minute)).Run(context.Background())
	assert.Equal(t, []bool{true, true, true, true}, deadlines)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := &fakeExecutor{
		onDocker: func(command.Spec) { cancel() },
	}
	var out bytes.Buffer

	report := New(exec, defaultSteps(), &out, logger.Nop()).Run(ctx)

	assert.Len(t, exec.specs, 1)
	assert.Len(t, report.Steps, 1)
	assert.Equal(t, AnnounceSystemPrune+"\n", out.String())
}

func TestRunMeasuresReclaimedSpace(t *testing.T) {
	samples := []uint64{100, 350}
	usage := func(path string) (disk.FilesystemUsage, error) {
		free := samples[0]
		samples = samples[1:]
		return disk.FilesystemUsage{Path: path, FreeBytes: free}, nil
	}

	report := New(&fakeExecutor{}, defaultSteps(), io.Discard, logger.Nop(),
		WithMeasurePath("/var/lib/docker"),
		WithUsageFunc(usage),
	).Run(context.Background())

	assert.Equal(t, "/var/lib/docker", report.MeasurePath)
	assert.EqualValues(t, 100, report.FreeBefore)
	assert.EqualValues(t, 350, report.FreeAfter)
	assert.EqualValues(t, 250, report.ReclaimedBytes())
}

func TestRunMeasureFailureIsSilent(t *testing.T) {
	calls := 0
	usage := func(string) (disk.FilesystemUsage, error) {
		calls++
		return disk.FilesystemUsage{}, errors.New("statfs failed")
	}
	var out bytes.Buffer

	report := New(&fakeExecutor{}, defaultSteps(), &out, logger.Nop(),
		WithMeasurePath("/"),
		WithUsageFunc(usage),
	).Run(context.Background())

	assert.Equal(t, 1, calls)
	assert.True(t, report.MeasureFailed)
	assert.Zero(t, report.ReclaimedBytes())
	assert.Contains(t, out.String(), dfTable)
}

func TestRunUsesClock(t *testing.T) {
	base := time.Date(2026, 10, 17, 2, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	report := New(&fakeExecutor{}, defaultSteps(), io.Discard, logger.Nop(), WithClock(clock)).Run(context.Background())

	assert.Equal(t, base.Add(time.Second), report.StartedAt)
	assert.Equal(t, time.Second, report.Steps[0].Duration)
	assert.True(t, report.FinishedAt.After(report.Steps[3].FinishedAt))
}
