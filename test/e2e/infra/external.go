package infra

// ExternalAgentManager implements AgentManager for plugins managed outside
// the suite, e.g. installed with `docker plugin install`.
type ExternalAgentManager struct{}

func NewExternalAgentManager() *ExternalAgentManager {
	return &ExternalAgentManager{}
}

func (e *ExternalAgentManager) StartAgent(_ AgentConfig) error   { return nil }
func (e *ExternalAgentManager) StopAgent() error                 { return nil }
func (e *ExternalAgentManager) RestartAgent(_ AgentConfig) error { return nil }
func (e *ExternalAgentManager) RealPlugin() bool                 { return true }
