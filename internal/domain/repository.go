package domain

// ProcessEventSource is the subscription (push) detection backend.
// Implementation: netlink proc connector, requires CAP_NET_ADMIN to bind.
type ProcessEventSource interface {
	// Subscribe binds the kernel event channel and starts delivery.
	// Returns ErrCapabilityMissing when the bind is denied.
	Subscribe() error

	// Events returns the delivery channel. EventExec is emitted only for
	// PIDs matching the watch list; EventExit is emitted for every exit.
	// The channel is closed when the subscription is lost or Close is called.
	Events() <-chan ProcessEvent

	// Close tears down the socket and stops delivery.
	Close() error
}

// ActivityScanner is the polling (pull) detection backend.
// Implementation: one pass over /proc via gopsutil.
type ActivityScanner interface {
	// ScanActive reports whether any watched-name process exists, or any
	// other process holds an open fd to the video device.
	ScanActive() (bool, error)
}

// CameraProbe answers "is the camera currently capturing?".
// Implementation: V4L2 REQBUFS busy probe (stateless, cheap).
type CameraProbe interface {
	// InUse returns true iff another capturer holds the device.
	InUse() bool
}

// OverlaySupervisor owns the overlay child processes.
type OverlaySupervisor interface {
	// Spawn starts one overlay child per configured screen selector.
	// Idempotent: a no-op while children are active. Succeeds if at least
	// one child started; returns ErrSpawnFailure when none did.
	Spawn() error

	// Terminate stops all children: SIGTERM, bounded wait, SIGKILL
	// survivors, reap everything. Idempotent.
	Terminate()

	// Active reaps self-exited children and reports whether any remain.
	Active() bool

	// Children returns the current (pid, selector) set.
	Children() []OverlayChild
}

// ProcessManager handles OS process liveness checks.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}
