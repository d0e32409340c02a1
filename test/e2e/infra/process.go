package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kubev2v/logdriver-e2e/internal/agent"
)

// ProcessAgentManager runs the plugin binary as a child process.
type ProcessAgentManager struct {
	proc *agent.Process
}

func NewProcessAgentManager() *ProcessAgentManager {
	return &ProcessAgentManager{}
}

func (m *ProcessAgentManager) StartAgent(cfg AgentConfig) error {
	if m.proc != nil {
		return fmt.Errorf("plugin already started (pid %d)", m.proc.Pid())
	}

	// leftovers from an earlier run hold the socket
	if _, err := agent.KillAll(filepath.Base(cfg.BinaryPath)); err != nil {
		zap.S().Warnw("failed to kill stale plugins", "error", err)
	}
	if err := os.Remove(cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket: %w", err)
	}

	proc := agent.New(cfg.BinaryPath, agent.WithEnv(cfg.Env), agent.WithSocket(cfg.SocketPath))
	ctx, cancel := context.WithTimeout(context.Background(), cfg.StartupTimeout)
	defer cancel()

	if err := proc.Start(ctx); err != nil {
		return err
	}
	if err := proc.WaitReady(ctx); err != nil {
		_ = proc.Kill()
		return fmt.Errorf("plugin not ready: %w", err)
	}

	m.proc = proc
	zap.S().Infow("plugin started", "binary", cfg.BinaryPath, "pid", proc.Pid())
	return nil
}

func (m *ProcessAgentManager) StopAgent() error {
	if m.proc == nil {
		return nil
	}
	err := m.proc.Kill()
	m.proc = nil
	return err
}

func (m *ProcessAgentManager) RestartAgent(cfg AgentConfig) error {
	if err := m.StopAgent(); err != nil {
		return err
	}
	return m.StartAgent(cfg)
}

func (m *ProcessAgentManager) RealPlugin() bool { return true }
