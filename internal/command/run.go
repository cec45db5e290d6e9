// Package command runs host binaries and maps their outcome to an exit
// code the way a shell would report it.
package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strings"
	"sync"
	"time"

	"dockreclaim/internal/domain"
)

const (
	initialScannerBufferSize = 4096
	maxScannerBufferSize     = 10 * 1024 * 1024

	CodeStartFailure = 1
	CodeTimeout      = 124
	CodeNotFound     = 127
	CodeInterrupted  = 130

	waitDelay = 2 * time.Second
)

type StreamHandler = func(line string, stream domain.LogStream, level domain.LogLevel)

type Result struct {
	Code int
	Err  error
}

func (r Result) OK() bool {
	return r.Code == 0 && r.Err == nil
}

// Spec describes one invocation. When OnLine is set the output is split
// into lines and handed to it; Stdout and Stderr are ignored.
type Spec struct {
	Name   string
	Args   []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
	OnLine StreamHandler
}

func (s Spec) String() string {
	return strings.Join(append([]string{s.Name}, s.Args...), " ")
}

type Executor interface {
	Exec(ctx context.Context, spec Spec) Result
}

type ExecutorFunc func(ctx context.Context, spec Spec) Result

func (f ExecutorFunc) Exec(ctx context.Context, spec Spec) Result {
	return f(ctx, spec)
}

// OS runs specs as real child processes.
type OS struct{}

func (OS) Exec(ctx context.Context, spec Spec) Result {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.WaitDelay = waitDelay

	if spec.OnLine != nil {
		return resultOf(ctx, stream(ctx, cmd, spec.OnLine))
	}

	cmd.Stdout = nullIfDiscard(spec.Stdout)
	cmd.Stderr = nullIfDiscard(spec.Stderr)
	return resultOf(ctx, cmd.Run())
}

func resultOf(ctx context.Context, err error) Result {
	if err == nil {
		return Result{}
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Result{Code: CodeTimeout, Err: err}
	case errors.Is(ctx.Err(), context.Canceled):
		return Result{Code: CodeInterrupted, Err: err}
	case errors.As(err, &exitErr):
		return Result{Code: exitErr.ExitCode(), Err: err}
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return Result{Code: CodeNotFound, Err: fmt.Errorf("%w: %w", domain.ErrBinaryNotFound, err)}
	default:
		return Result{Code: CodeStartFailure, Err: err}
	}
}

// A nil writer makes exec attach the null device instead of a copying pipe.
func nullIfDiscard(w io.Writer) io.Writer {
	if w == io.Discard {
		return nil
	}
	return w
}

func stream(ctx context.Context, cmd *exec.Cmd, handler StreamHandler) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	// Handlers are not required to be goroutine safe.
	var mu sync.Mutex
	locked := func(line string, s domain.LogStream, l domain.LogLevel) {
		mu.Lock()
		defer mu.Unlock()
		handler(line, s, l)
	}

	errChan := make(chan error, 2)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := streamOutput(stdout, locked, domain.StreamStdout); err != nil {
			errChan <- fmt.Errorf("stdout stream error: %w", err)
		}
	}()

	go func() {
		defer wg.Done()
		if err := streamOutput(stderr, locked, domain.StreamStderr); err != nil {
			errChan <- fmt.Errorf("stderr stream error: %w", err)
		}
	}()

	// A descendant of a killed child can keep the pipes open forever, so
	// the read ends are closed once waitDelay has passed after ctx is done.
	drained := make(chan struct{})
	go func() {
		select {
		case <-drained:
		case <-ctx.Done():
			timer := time.NewTimer(waitDelay)
			defer timer.Stop()

			select {
			case <-drained:
			case <-timer.C:
				stdout.Close()
				stderr.Close()
			}
		}
	}()

	// Pipes must be drained before Wait closes them.
	wg.Wait()
	close(drained)
	cmdErr := cmd.Wait()
	close(errChan)

	if cmdErr != nil {
		return cmdErr
	}

	var streamErrs []error
	for err := range errChan {
		streamErrs = append(streamErrs, err)
	}
	return errors.Join(streamErrs...)
}

func streamOutput(r io.Reader, handler StreamHandler, s domain.LogStream) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialScannerBufferSize), maxScannerBufferSize)

	for scanner.Scan() {
		for _, line := range normalizeAndSplitLines(scanner.Text()) {
			line = strings.TrimSpace(line)
			if line != "" {
				handler(line, s, ClassifyLine(line))
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

func normalizeAndSplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	return strings.Split(text, "\n")
}

func ClassifyLine(line string) domain.LogLevel {
	l := strings.ToLower(line)

	switch {
	case strings.Contains(l, "panic"),
		strings.Contains(l, "fatal"):
		return domain.LogFatal

	case strings.Contains(l, "error"),
		strings.Contains(l, "failed"),
		strings.Contains(l, "cannot connect"),
		strings.Contains(l, "permission denied"):
		return domain.LogError

	case strings.Contains(l, "warn"),
		strings.Contains(l, "deprecated"):
		return domain.LogWarn
	}

	return domain.LogInfo
}
