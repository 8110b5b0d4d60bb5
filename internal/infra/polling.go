package infra

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/BryanGreenaway/RingLight/internal/domain"
)

// PollingWatcher is the pull detection backend: one pass over /proc per tick.
// It is the low-cost fallback and is never used while the netlink
// subscription is active.
type PollingWatcher struct {
	matcher    *Matcher
	devicePath string // canonical, resolved once at startup
	selfPid    int32
	logger     *zap.Logger
}

// NewPollingWatcher creates a scanner for the watch names and video device.
// The device path is canonicalised here; every fd-target comparison during
// scans uses the cached value.
func NewPollingWatcher(names []string, device string, logger *zap.Logger) *PollingWatcher {
	resolved, err := filepath.EvalSymlinks(device)
	if err != nil {
		resolved = device
	}
	return &PollingWatcher{
		matcher:    NewMatcher(names),
		devicePath: resolved,
		selfPid:    int32(os.Getpid()),
		logger:     logger,
	}
}

// ScanActive reports whether any watched-name process exists, or any other
// process holds an open fd to the video device. Processes that vanish
// between the directory scan and the attribute read are skipped.
func (w *PollingWatcher) ScanActive() (bool, error) {
	procs, err := process.Processes()
	if err != nil {
		return false, err
	}

	// Name pass first: comm reads are cheap.
	for _, p := range procs {
		if p.Pid == w.selfPid {
			continue
		}
		if name, err := p.Name(); err == nil && w.matcher.MatchesName(name) {
			w.logger.Debug("watched process running", zap.String("name", name), zap.Int32("pid", p.Pid))
			return true, nil
		}
		if cmdline, err := p.Cmdline(); err == nil && w.matcher.MatchesCmdline(cmdline) {
			w.logger.Debug("watched cmdline match", zap.Int32("pid", p.Pid))
			return true, nil
		}
	}

	// Fd pass: costlier, and may be denied for other users' processes.
	for _, p := range procs {
		if p.Pid == w.selfPid {
			continue
		}
		files, err := p.OpenFiles()
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.Path == w.devicePath {
				w.logger.Debug("device held open", zap.Int32("pid", p.Pid), zap.String("device", w.devicePath))
				return true, nil
			}
		}
	}

	return false, nil
}

// Ensure PollingWatcher implements domain.ActivityScanner.
var _ domain.ActivityScanner = (*PollingWatcher)(nil)
