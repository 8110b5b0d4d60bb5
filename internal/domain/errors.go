package domain

import "errors"

// Error taxonomy. Callers match with errors.Is; concrete detail is wrapped
// in via fmt.Errorf("%w: ...").
var (
	// ErrConfigParse means the config file was unreadable or a value could
	// not be coerced. A missing file is not an error (defaults apply).
	ErrConfigParse = errors.New("config parse error")

	// ErrCapabilityMissing means the netlink proc connector bind was denied.
	// Fatal in process mode; hybrid mode degrades to camera mode.
	ErrCapabilityMissing = errors.New("missing CAP_NET_ADMIN capability")

	// ErrDeviceUnavailable means the video device cannot be opened. Probes
	// treat this as "not in use"; it is warned about once at startup.
	ErrDeviceUnavailable = errors.New("video device unavailable")

	// ErrSpawnFailure means no overlay child could be started at all.
	// Per-selector failures are logged and do not surface as this error.
	ErrSpawnFailure = errors.New("overlay spawn failed")

	// ErrSubscriptionLost means the netlink socket failed unrecoverably.
	// The daemon cleans up and exits nonzero.
	ErrSubscriptionLost = errors.New("process event subscription lost")
)
