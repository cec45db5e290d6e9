// Package docker
package docker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"dockreclaim/internal/command"
	"dockreclaim/internal/logger"
)

type Manager struct {
	log    logger.Logger
	exec   command.Executor
	binary string
}

func NewManager(log logger.Logger, exec command.Executor, binary string) *Manager {
	if binary == "" {
		binary = "docker"
	}

	return &Manager{
		log:    log,
		exec:   exec,
		binary: binary,
	}
}

func (m *Manager) Binary() string {
	return m.binary
}

// SystemPruneArgs is the only prune that also clears build cache.
func (m *Manager) SystemPruneArgs() []string {
	return pruneArgs("system")
}

func (m *Manager) ImagePruneArgs() []string {
	return pruneArgs("image")
}

func (m *Manager) VolumePruneArgs() []string {
	return pruneArgs("volume")
}

func pruneArgs(object string) []string {
	return []string{object, "prune", "--all", "--force"}
}

// Version asks the daemon for its server version, which fails when the
// daemon is unreachable even if the CLI is installed.
func (m *Manager) Version(ctx context.Context) (string, error) {
	out, err := m.runDockerCommand(ctx, "version", "--format", "{{.Server.Version}}")
	return strings.TrimSpace(out), err
}

func (m *Manager) IsDockerInstalled(ctx context.Context) bool {
	res := m.exec.Exec(ctx, command.Spec{Name: m.binary, Args: []string{"--version"}})
	if !res.OK() {
		m.log.Warn("docker not found in PATH", "binary", m.binary, "error", res.Err)
		return false
	}

	return true
}

func (m *Manager) runDockerCommand(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	spec := command.Spec{
		Name:   m.binary,
		Args:   args,
		Stdout: &stdout,
		Stderr: &stderr,
	}

	m.log.Debug("running docker command", "cmd", spec.String())

	res := m.exec.Exec(ctx, spec)

	output := stdout.String()
	if stderr.Len() > 0 {
		output += "\n" + stderr.String()
	}

	if !res.OK() {
		m.log.Debug("docker command failed",
			"cmd", spec.String(),
			"exit_code", res.Code,
			"error", res.Err,
		)
		if res.Err != nil {
			return output, fmt.Errorf("docker command failed: %w", res.Err)
		}
		return output, fmt.Errorf("docker command exited with code %d", res.Code)
	}

	m.log.Debug("docker command succeeded", "cmd", spec.String())
	return output, nil
}
