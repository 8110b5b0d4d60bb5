// Package daemon implements the monitor event loop.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BryanGreenaway/RingLight/internal/domain"
)

// DefaultSweepInterval is the liveness-sweep cadence while processes are
// tracked. Netlink exit events carry no name attributes, so tracked PIDs
// are additionally probed with a null signal at this cadence.
const DefaultSweepInterval = 500 * time.Millisecond

// MonitorConfig holds the loop parameters.
type MonitorConfig struct {
	Mode          domain.Mode
	PollInterval  time.Duration // camera probe / hybrid wakeup cadence
	SweepInterval time.Duration // liveness sweep cadence while tracking
}

// Monitor combines the detection backends into an edge-triggered ON/OFF
// decision and drives the overlay supervisor on transitions.
//
// It owns the lit state and the watched-PID set exclusively; every state
// transition serializes through one loop iteration.
type Monitor struct {
	cfg     MonitorConfig
	source  domain.ProcessEventSource // nil in camera mode
	scanner domain.ActivityScanner    // camera mode only
	probe   domain.CameraProbe
	overlay domain.OverlaySupervisor
	pm      domain.ProcessManager
	logger  *zap.Logger

	lit     bool
	watched map[int]struct{}
}

// NewMonitor wires the loop to its collaborators. Which of source, scanner
// and probe are consulted depends on cfg.Mode.
func NewMonitor(
	cfg MonitorConfig,
	source domain.ProcessEventSource,
	scanner domain.ActivityScanner,
	probe domain.CameraProbe,
	overlay domain.OverlaySupervisor,
	pm domain.ProcessManager,
	logger *zap.Logger,
) *Monitor {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Monitor{
		cfg:     cfg,
		source:  source,
		scanner: scanner,
		probe:   probe,
		overlay: overlay,
		pm:      pm,
		logger:  logger,
		watched: make(map[int]struct{}),
	}
}

// Run blocks until the context is canceled (clean shutdown, returns nil) or
// the subscription channel is lost (returns ErrSubscriptionLost). Overlays
// are terminated on every exit path.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.overlay.Terminate()

	switch m.cfg.Mode {
	case domain.ModeCamera:
		return m.runCamera(ctx)
	case domain.ModeHybrid:
		return m.runHybrid(ctx)
	default:
		return m.runProcess(ctx)
	}
}

// runProcess waits on subscription events, with no timeout while OFF and a
// short sweep cadence while ON.
func (m *Monitor) runProcess(ctx context.Context) error {
	m.logger.Info("process mode", zap.Duration("sweep", m.cfg.SweepInterval))

	sweep := time.NewTicker(m.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		var sweepC <-chan time.Time
		if m.lit {
			sweepC = sweep.C
		}

		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return nil
		case ev, ok := <-m.source.Events():
			if !ok {
				return domain.ErrSubscriptionLost
			}
			m.handleEvent(ev)
			if !m.drainEvents() {
				return domain.ErrSubscriptionLost
			}
		case <-sweepC:
		}

		if m.lit && len(m.watched) > 0 {
			m.sweepWatched()
		}
		m.transition(len(m.watched) > 0)
	}
}

// runCamera polls the busy probe and the /proc scanner every tick.
func (m *Monitor) runCamera(ctx context.Context) error {
	m.logger.Info("camera mode", zap.Duration("interval", m.cfg.PollInterval))

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		active := m.probe.InUse()
		if !active && m.scanner != nil {
			ok, err := m.scanner.ScanActive()
			if err != nil {
				m.logger.Warn("process scan failed", zap.Error(err))
			} else {
				active = ok
			}
		}
		m.transition(active)

		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// runHybrid waits on subscription events with a poll-interval timeout, and
// runs the busy probe only when no watched process is known. While PIDs are
// tracked the wakeup is capped at the sweep cadence so exits are noticed
// within a second even for long poll intervals.
func (m *Monitor) runHybrid(ctx context.Context) error {
	m.logger.Info("hybrid mode", zap.Duration("interval", m.cfg.PollInterval))

	poll := time.NewTicker(m.cfg.PollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(m.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		timeoutC := poll.C
		if len(m.watched) > 0 {
			timeoutC = sweep.C
		}

		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return nil
		case ev, ok := <-m.source.Events():
			if !ok {
				return domain.ErrSubscriptionLost
			}
			m.handleEvent(ev)
			if !m.drainEvents() {
				return domain.ErrSubscriptionLost
			}
		case <-timeoutC:
		}

		if len(m.watched) > 0 {
			m.sweepWatched()
		}

		// The device probe runs only when no watched process is known.
		target := len(m.watched) > 0
		if !target {
			target = m.probe.InUse()
		}
		m.transition(target)
	}
}

// handleEvent updates the watched-PID set from one subscription event.
func (m *Monitor) handleEvent(ev domain.ProcessEvent) {
	switch ev.Kind {
	case domain.EventExec:
		if _, ok := m.watched[ev.PID]; ok {
			return
		}
		if len(m.watched) >= domain.MaxWatchedPids {
			return
		}
		m.watched[ev.PID] = struct{}{}
		m.logger.Info("tracking process", zap.Int("pid", ev.PID))
	case domain.EventExit:
		if _, ok := m.watched[ev.PID]; ok {
			delete(m.watched, ev.PID)
			m.logger.Info("watched process exited", zap.Int("pid", ev.PID))
		}
	}
}

// drainEvents consumes everything pending on the channel so a burst is
// observed within one iteration. Returns false if the channel closed.
func (m *Monitor) drainEvents() bool {
	for {
		select {
		case ev, ok := <-m.source.Events():
			if !ok {
				return false
			}
			m.handleEvent(ev)
		default:
			return true
		}
	}
}

// sweepWatched removes tracked PIDs that fail a null-signal liveness probe.
func (m *Monitor) sweepWatched() {
	for pid := range m.watched {
		if !m.pm.IsRunning(pid) {
			delete(m.watched, pid)
			m.logger.Info("watched process gone", zap.Int("pid", pid))
		}
	}
}

// transition is the single decision point: spawn and terminate are called
// only when the target state flips. If the children all died on their own
// while ON, the state reads as OFF so a later activation re-spawns.
func (m *Monitor) transition(target bool) {
	if m.lit && !m.overlay.Active() {
		m.lit = false
	}
	if target == m.lit {
		return
	}
	if target {
		if err := m.overlay.Spawn(); err != nil {
			m.logger.Error("failed to start overlay", zap.Error(err))
			return
		}
		m.lit = true
		m.logger.Info("lit", zap.Int("overlays", len(m.overlay.Children())))
	} else {
		m.overlay.Terminate()
		m.lit = false
		m.logger.Info("unlit")
	}
}

// Lit reports the current overlay decision (test hook).
func (m *Monitor) Lit() bool { return m.lit }

// WatchedCount reports the tracked-PID set size (test hook).
func (m *Monitor) WatchedCount() int { return len(m.watched) }
