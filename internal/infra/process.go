// Package infra implements infrastructure concerns (netlink subscription,
// /proc polling, V4L2 probing, overlay child supervision).
package infra

import (
	"os"
	"strings"
	"syscall"

	"github.com/BryanGreenaway/RingLight/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// IsRunning checks if a PID exists and is running.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	// On Unix, FindProcess always succeeds
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)

// Matcher decides whether a process belongs to the watch list.
// The kernel-reported short name is compared case-insensitively as a whole;
// the command line is matched as a case-insensitive substring.
type Matcher struct {
	names []string // lowercased
}

// NewMatcher builds a matcher over the configured watch names.
func NewMatcher(names []string) *Matcher {
	lowered := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			lowered = append(lowered, n)
		}
	}
	return &Matcher{names: lowered}
}

// MatchesName reports whether the short (comm) name equals any watch name.
func (m *Matcher) MatchesName(comm string) bool {
	comm = strings.ToLower(comm)
	for _, n := range m.names {
		if comm == n {
			return true
		}
	}
	return false
}

// MatchesCmdline reports whether any watch name occurs in the command line.
func (m *Matcher) MatchesCmdline(cmdline string) bool {
	if cmdline == "" {
		return false
	}
	cmdline = strings.ToLower(cmdline)
	for _, n := range m.names {
		if strings.Contains(cmdline, n) {
			return true
		}
	}
	return false
}
