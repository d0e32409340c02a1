package agent

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// KillAll kills every process whose executable name is name and returns how
// many were signalled. Processes that vanish while being inspected are skipped.
func KillAll(name string) (int, error) {
	procs, err := process.Processes()
	if err != nil {
		return 0, fmt.Errorf("listing processes: %w", err)
	}

	self := int32(os.Getpid())
	killed := 0
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		n, err := p.Name()
		if err != nil || n != name {
			continue
		}
		if err := p.Kill(); err != nil {
			zap.S().Named("agent").Warnw("failed to kill process", "pid", p.Pid, "name", n, "error", err)
			continue
		}
		killed++
	}

	zap.S().Named("agent").Infow("killall", "name", name, "killed", killed)
	return killed, nil
}
