package infra

import (
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BryanGreenaway/RingLight/internal/domain"
)

// OverlayBinary is the per-screen renderer executable, resolved via PATH.
const OverlayBinary = "ringlight-overlay"

const (
	terminateTimeout = 500 * time.Millisecond
	terminateSlice   = 50 * time.Millisecond
)

type overlayChild struct {
	cmd    *exec.Cmd
	screen string
	done   chan struct{} // closed by the reaper once Wait returns
}

func (c *overlayChild) exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Supervisor owns the overlay children. Transitions are driven from the
// event loop only; the mutex exists so out-of-loop observers (tests, status
// probes) can read the child set safely. The per-child reaper goroutines do
// nothing but Wait.
type Supervisor struct {
	params domain.OverlayParams
	logger *zap.Logger

	// newCommand builds the child command; replaceable in tests.
	newCommand func(screen string, args []string) *exec.Cmd

	mu       sync.Mutex
	children []*overlayChild
}

// NewSupervisor creates a supervisor for the given overlay parameters.
func NewSupervisor(params domain.OverlayParams, logger *zap.Logger) *Supervisor {
	return NewSupervisorWithCommand(params, logger, func(screen string, args []string) *exec.Cmd {
		cmd := exec.Command(OverlayBinary, args...)
		// Environment is inherited as-is: the Wayland display and
		// runtime-dir variables must reach the renderer. Stderr is
		// shared so overlay diagnostics land next to ours.
		cmd.Stderr = os.Stderr
		return cmd
	})
}

// NewSupervisorWithCommand creates a supervisor with a custom command
// factory (for testing, or an alternative renderer binary).
func NewSupervisorWithCommand(
	params domain.OverlayParams,
	logger *zap.Logger,
	newCommand func(screen string, args []string) *exec.Cmd,
) *Supervisor {
	return &Supervisor{
		params:     params,
		logger:     logger,
		newCommand: newCommand,
	}
}

// Spawn starts one overlay child per screen selector (or a single default
// child when no selectors are configured). Idempotent while active.
// Per-selector failures are logged and skipped; Spawn fails only when no
// child could be started at all.
func (s *Supervisor) Spawn() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.children) > 0 {
		return nil
	}

	selectors := s.params.Screens
	if len(selectors) == 0 {
		selectors = []string{""}
	}
	if len(selectors) > domain.MaxOverlayChildren {
		selectors = selectors[:domain.MaxOverlayChildren]
	}

	for _, sel := range selectors {
		cmd := s.newCommand(sel, s.overlayArgs(sel))
		if err := cmd.Start(); err != nil {
			s.logger.Error("overlay spawn failed",
				zap.String("screen", sel), zap.Error(err))
			continue
		}

		c := &overlayChild{cmd: cmd, screen: sel, done: make(chan struct{})}
		go func() {
			_ = cmd.Wait() // reap; no zombies outside Terminate
			close(c.done)
		}()
		s.children = append(s.children, c)

		s.logger.Info("overlay started",
			zap.Int("pid", cmd.Process.Pid), zap.String("screen", sel))
	}

	if len(s.children) == 0 {
		return domain.ErrSpawnFailure
	}
	return nil
}

// overlayArgs builds the renderer CLI from the overlay parameters.
func (s *Supervisor) overlayArgs(selector string) []string {
	args := []string{
		"-c", s.params.ColorHex(),
		"-b", strconv.Itoa(s.params.Brightness),
		"-w", strconv.Itoa(s.params.Width),
	}
	if s.params.Fullscreen {
		args = append(args, "-f")
	}
	if selector != "" {
		args = append(args, "-s", selector)
	}
	return args
}

// Terminate stops every child: SIGTERM, bounded wait in short slices,
// SIGKILL survivors, reap all. Idempotent.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.children) == 0 {
		return
	}
	s.logger.Info("stopping overlays", zap.Int("count", len(s.children)))

	for _, c := range s.children {
		if !c.exited() {
			_ = c.cmd.Process.Signal(syscall.SIGTERM)
		}
	}

	deadline := time.Now().Add(terminateTimeout)
	for time.Now().Before(deadline) && s.anyAlive() {
		time.Sleep(terminateSlice)
	}

	for _, c := range s.children {
		if c.exited() {
			continue
		}
		s.logger.Warn("overlay did not exit, killing",
			zap.Int("pid", c.cmd.Process.Pid), zap.String("screen", c.screen))
		_ = c.cmd.Process.Kill()
		<-c.done
	}
	s.children = nil
}

func (s *Supervisor) anyAlive() bool {
	for _, c := range s.children {
		if !c.exited() {
			return true
		}
	}
	return false
}

// Active drops children that exited on their own and reports whether any
// remain. The event loop uses this to observe independent overlay death
// as an OFF state.
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	alive := s.children[:0]
	for _, c := range s.children {
		if c.exited() {
			s.logger.Warn("overlay exited on its own",
				zap.Int("pid", c.cmd.Process.Pid), zap.String("screen", c.screen))
			continue
		}
		alive = append(alive, c)
	}
	if len(alive) == 0 {
		s.children = nil
		return false
	}
	s.children = alive
	return true
}

// Children returns the current (pid, selector) set in spawn order.
func (s *Supervisor) Children() []domain.OverlayChild {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.OverlayChild, 0, len(s.children))
	for _, c := range s.children {
		out = append(out, domain.OverlayChild{PID: c.cmd.Process.Pid, Screen: c.screen})
	}
	return out
}

// Ensure Supervisor implements domain.OverlaySupervisor.
var _ domain.OverlaySupervisor = (*Supervisor)(nil)
