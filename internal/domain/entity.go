// Package domain contains core entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "fmt"

// Mode selects the camera-detection strategy.
type Mode string

const (
	// ModeProcess watches for trigger processes via the netlink proc connector.
	ModeProcess Mode = "process"
	// ModeCamera polls the V4L2 device and /proc for camera activity.
	ModeCamera Mode = "camera"
	// ModeHybrid combines the two: netlink events, with a device probe
	// whenever no watched process is known.
	ModeHybrid Mode = "hybrid"
)

// ParseMode maps a user-supplied string to a Mode.
// Unrecognized values fall back to ModeProcess.
func ParseMode(s string) Mode {
	switch s {
	case string(ModeCamera):
		return ModeCamera
	case string(ModeHybrid):
		return ModeHybrid
	default:
		return ModeProcess
	}
}

// MaxOverlayChildren caps overlay processes per activation.
const MaxOverlayChildren = 16

// MaxWatchedPids caps the tracked trigger-process set.
const MaxWatchedPids = 16

// OverlayParams describes how overlay children are launched.
type OverlayParams struct {
	Color      uint32 // 24-bit RGB
	Brightness int    // 1-100
	Width      int    // region width in px, 10-500
	Fullscreen bool
	Screens    []string // selectors: numeric indices or compositor names
}

// ColorHex returns the color as six uppercase hex digits (overlay -c arg).
func (p OverlayParams) ColorHex() string {
	return fmt.Sprintf("%06X", p.Color&0xFFFFFF)
}

// ProcessEventKind distinguishes proc connector event types we care about.
type ProcessEventKind int

const (
	// EventExec is delivered when a process matching the watch list execs.
	EventExec ProcessEventKind = iota
	// EventExit is delivered for every process exit. Exit messages carry
	// no name attributes, so membership filtering happens at the receiver.
	EventExit
)

// ProcessEvent is one subscription-channel notification.
type ProcessEvent struct {
	Kind ProcessEventKind
	PID  int
}

// OverlayChild records one spawned overlay process.
type OverlayChild struct {
	PID    int
	Screen string // selector the child was launched with; "" for the default screen
}
