// Package main is the CLI entry point for ringlight-monitor.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BryanGreenaway/RingLight/internal/config"
	"github.com/BryanGreenaway/RingLight/internal/daemon"
	"github.com/BryanGreenaway/RingLight/internal/domain"
	"github.com/BryanGreenaway/RingLight/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version = "0.3.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ringlight-monitor",
	Short: "Webcam activity monitor - lights your screens when the camera is on",
	Long: `ringlight-monitor watches for camera use and spawns one ringlight-overlay
process per selected screen while the camera is active.

Detection modes:
  process  netlink proc connector, watches trigger processes (needs CAP_NET_ADMIN)
  camera   polls the V4L2 device and /proc for any camera activity
  hybrid   both: events first, device probe only when no match is known

Configuration is read from <config-home>/ringlight/config.ini; flags
override individual values.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMonitor,
}

var flags struct {
	mode       string
	device     string
	procs      []string
	interval   int
	color      string
	brightness int
	width      int
	screens    string
	fullscreen bool
	verbose    bool
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flags.mode, "mode", "m", "", "detection mode: process|camera|hybrid")
	f.StringVarP(&flags.device, "device", "d", "", "video device path")
	f.StringArrayVarP(&flags.procs, "proc", "p", nil, "process name to watch (repeatable)")
	f.IntVarP(&flags.interval, "interval", "i", 0, "poll interval in ms")
	f.StringVarP(&flags.color, "color", "c", "", "overlay color (RRGGBB)")
	f.IntVarP(&flags.brightness, "brightness", "b", 0, "overlay brightness (1-100)")
	f.IntVarP(&flags.width, "width", "w", 0, "overlay width in px")
	f.StringVarP(&flags.screens, "screens", "s", "", "comma-separated screen selectors")
	f.BoolVarP(&flags.fullscreen, "fullscreen", "f", false, "fullscreen overlays")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "verbose output")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		newLogger(true).Error("bad config file", zap.Error(err))
		return err
	}
	if err := cfg.Apply(overridesFromFlags(cmd)); err != nil {
		newLogger(true).Error("bad flag value", zap.Error(err))
		return err
	}

	logger := newLogger(cfg.Verbose)
	defer func() { _ = logger.Sync() }()

	probe := infra.NewV4L2Probe(cfg.VideoDevice, logger)
	if err := probe.CheckAvailable(); err != nil {
		// Warned once here; per-poll probe failures stay silent.
		logger.Warn("video device not openable", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode := cfg.Mode
	var source domain.ProcessEventSource
	if mode != domain.ModeCamera {
		nl := infra.NewNetlinkWatcher(cfg.WatchNames, logger)
		if err := nl.Subscribe(); err != nil {
			if mode == domain.ModeProcess {
				if errors.Is(err, domain.ErrCapabilityMissing) {
					logger.Error("process mode needs CAP_NET_ADMIN; grant it with: sudo setcap cap_net_admin+ep " + executablePath())
				}
				logger.Error("netlink subscription failed", zap.Error(err))
				return err
			}
			logger.Warn("netlink subscription failed, falling back to camera mode", zap.Error(err))
			mode = domain.ModeCamera
		} else {
			source = nl
			defer func() { _ = nl.Close() }()
		}
	}

	var scanner domain.ActivityScanner
	if mode == domain.ModeCamera {
		scanner = infra.NewPollingWatcher(cfg.WatchNames, cfg.VideoDevice, logger)
	}

	mon := daemon.NewMonitor(
		daemon.MonitorConfig{
			Mode:          mode,
			PollInterval:  cfg.PollInterval,
			SweepInterval: daemon.DefaultSweepInterval,
		},
		source,
		scanner,
		probe,
		infra.NewSupervisor(cfg.Overlay, logger),
		infra.NewProcessManager(),
		logger,
	)

	if err := mon.Run(ctx); err != nil {
		logger.Error("monitor failed", zap.Error(err))
		return err
	}
	return nil
}

// overridesFromFlags maps only the flags actually given on the command line;
// absent flags leave the file values untouched.
func overridesFromFlags(cmd *cobra.Command) config.Overrides {
	f := cmd.Flags()
	ov := config.Overrides{
		Procs:      flags.procs,
		Fullscreen: flags.fullscreen,
		Verbose:    flags.verbose,
	}
	if f.Changed("mode") {
		ov.Mode = &flags.mode
	}
	if f.Changed("device") {
		ov.Device = &flags.device
	}
	if f.Changed("interval") {
		ov.Interval = &flags.interval
	}
	if f.Changed("color") {
		ov.Color = &flags.color
	}
	if f.Changed("brightness") {
		ov.Brightness = &flags.brightness
	}
	if f.Changed("width") {
		ov.Width = &flags.width
	}
	if f.Changed("screens") {
		ov.Screens = &flags.screens
	}
	return ov
}

// newLogger builds the stderr diagnostic logger. Every line is prefixed with
// [ringlight]; informational lines are emitted only when verbose.
func newLogger(verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + name + "]")
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core).Named("ringlight")
}

func executablePath() string {
	if path, err := os.Executable(); err == nil {
		return path
	}
	return "ringlight-monitor"
}
