package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type Option func(*Process)

// WithEnv adds environment overrides on top of the current environment.
func WithEnv(env map[string]string) Option {
	return func(p *Process) {
		for k, v := range env {
			p.env[k] = v
		}
	}
}

func WithArgs(args ...string) Option {
	return func(p *Process) {
		p.args = append(p.args, args...)
	}
}

// WithSocket sets the control socket WaitReady waits for.
func WithSocket(path string) Option {
	return func(p *Process) {
		p.socket = path
	}
}

// Process is one run of the log driver plugin binary.
type Process struct {
	binary string
	args   []string
	env    map[string]string
	socket string

	mu      sync.Mutex
	cmd     *exec.Cmd
	exited  chan struct{}
	waitErr error
}

func New(binaryPath string, opts ...Option) *Process {
	p := &Process{
		binary: binaryPath,
		env:    map[string]string{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the binary. Its output goes to the "agent" logger.
// The process outlives ctx; use Kill to stop it.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("agent %s already started", p.binary)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(p.binary, p.args...)
	cmd.Env = append(os.Environ(), p.environ()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach agent stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to attach agent stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start agent %s: %w", p.binary, err)
	}

	var pipes sync.WaitGroup
	pipes.Add(2)
	go p.forward(&pipes, "stdout", stdout)
	go p.forward(&pipes, "stderr", stderr)

	p.cmd = cmd
	p.exited = make(chan struct{})
	go func() {
		pipes.Wait()
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.exited)
		zap.S().Named("agent").Infow("agent exited", "pid", cmd.Process.Pid, "error", err)
	}()

	zap.S().Named("agent").Infow("agent started", "binary", p.binary, "pid", cmd.Process.Pid, "socket", p.socket)
	return nil
}

// WaitReady blocks until the control socket exists, the process exits or ctx ends.
func (p *Process) WaitReady(ctx context.Context) error {
	p.mu.Lock()
	exited := p.exited
	p.mu.Unlock()
	if exited == nil {
		return errors.New("agent not started")
	}
	if p.socket == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready := make(chan error, 1)
	go func() {
		ready <- WaitForSocket(ctx, p.socket)
	}()

	select {
	case err := <-ready:
		return err
	case <-exited:
		return fmt.Errorf("agent exited before %s appeared: %v", p.socket, p.ExitErr())
	}
}

// Kill kills the process and waits for it to be reaped. Killing a process
// that already exited is not an error.
func (p *Process) Kill() error {
	p.mu.Lock()
	cmd, exited := p.cmd, p.exited
	p.mu.Unlock()
	if cmd == nil {
		return nil
	}

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill agent %d: %w", cmd.Process.Pid, err)
	}
	<-exited
	return nil
}

// Pid returns the process id, or 0 before Start.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Exited is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

func (p *Process) environ() []string {
	keys := make([]string, 0, len(p.env))
	for k := range p.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+p.env[k])
	}
	return out
}

func (p *Process) forward(wg *sync.WaitGroup, stream string, r io.Reader) {
	defer wg.Done()
	log := zap.S().Named("agent")
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		log.Debugw(scanner.Text(), "stream", stream)
	}
}
