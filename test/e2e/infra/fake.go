package infra

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kubev2v/logdriver-e2e/test/fake"
)

// FakeAgentManager serves the fake plugin on the control socket and the fake
// search service on a local port, so the suite can run without Docker or Splunk.
type FakeAgentManager struct {
	splunk *fake.Splunk
	agent  *fake.Agent
}

// NewFakeAgentManager starts the fake search service on addr (":0" picks a port).
func NewFakeAgentManager(addr, username, password string) (*FakeAgentManager, error) {
	splunk := fake.NewSplunk(fake.WithCredentials(username, password))
	if err := splunk.Start(addr); err != nil {
		return nil, fmt.Errorf("starting fake search service: %w", err)
	}
	return &FakeAgentManager{splunk: splunk}, nil
}

// SearchURL is the base url of the fake search service.
func (f *FakeAgentManager) SearchURL() string {
	return f.splunk.URL()
}

func (f *FakeAgentManager) StartAgent(cfg AgentConfig) error {
	if f.agent != nil {
		return errors.New("fake plugin already started")
	}
	a := fake.NewAgent(f.splunk)
	if err := a.Start(cfg.SocketPath); err != nil {
		return err
	}
	f.agent = a
	zap.S().Infow("fake plugin started", "socket", cfg.SocketPath)
	return nil
}

func (f *FakeAgentManager) StopAgent() error {
	if f.agent == nil {
		return nil
	}
	err := f.agent.Stop()
	f.agent = nil
	return err
}

func (f *FakeAgentManager) RestartAgent(cfg AgentConfig) error {
	if err := f.StopAgent(); err != nil {
		return err
	}
	return f.StartAgent(cfg)
}

func (f *FakeAgentManager) RealPlugin() bool { return false }

// Close stops the plugin and the search service.
func (f *FakeAgentManager) Close() error {
	return errors.Join(f.StopAgent(), f.splunk.Stop())
}
