package actions

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// RestartProcess kills every process matching name, waits briefly, and
// starts the given command line.
func RestartProcess(name string, command []string) error {
	procs, err := process.Processes()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	killed := 0
	for _, p := range procs {
		pname, err := p.Name()
		if err != nil {
			continue
		}
		if !strings.EqualFold(pname, name) {
			continue
		}
		if err := p.Kill(); err != nil {
			slog.Warn("failed to kill process", "name", name, "pid", p.Pid, "error", err)
			continue
		}
		killed++
	}

	if killed > 0 {
		time.Sleep(2 * time.Second)
	}

	cmd := exec.Command(command[0], command[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", command[0], err)
	}
	// Detach: the relaunched process outlives the agent.
	if err := cmd.Process.Release(); err != nil {
		slog.Warn("failed to release process handle", "error", err)
	}

	slog.Info("process restarted", "name", name, "killed", killed)
	return nil
}
