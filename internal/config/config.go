// Package config loads and validates the daemon's runtime configuration.
// All clamping happens here so downstream components never re-validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/BryanGreenaway/RingLight/internal/domain"
)

// Defaults. Poll interval matches the original monitor; the watch list
// defaults to the face-authentication helper.
const (
	DefaultVideoDevice  = "/dev/video0"
	DefaultPollInterval = 2000 * time.Millisecond
	DefaultWatchProcess = "howdy"

	MinPollInterval = 100 * time.Millisecond
	MinBrightness   = 1
	MaxBrightness   = 100
	MinWidth        = 10
	MaxWidth        = 500
)

// Config is the immutable runtime configuration. Built once at startup from
// the config file plus CLI overrides; read-only afterwards.
type Config struct {
	Mode         domain.Mode
	WatchNames   []string
	VideoDevice  string
	PollInterval time.Duration
	Overlay      domain.OverlayParams
	Verbose      bool
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode:         domain.ModeProcess,
		WatchNames:   nil, // defaulted by Finalize
		VideoDevice:  DefaultVideoDevice,
		PollInterval: DefaultPollInterval,
		Overlay: domain.OverlayParams{
			Color:      0xFFFFFF,
			Brightness: 100,
			Width:      80,
		},
	}
}

// DefaultPath resolves <config-home>/ringlight/config.ini, falling back to
// ~/.config when the config-home environment variable is missing.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ringlight", "config.ini")
}

// Load reads the INI file at path on top of the defaults. A missing file is
// not an error; a malformed file or an uncoercible value is ErrConfigParse.
//
// The GUI writes the file through QSettings, which nests keys under a
// [General] section, so section headers are ignored: every key from every
// section is treated as global, and later keys override earlier ones.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		cfg.Finalize()
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.Finalize()
		return cfg, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigParse, err)
	}

	for _, sec := range f.Sections() {
		for _, key := range sec.Keys() {
			if err := cfg.applyKey(key.Name(), key.Value()); err != nil {
				return nil, err
			}
		}
	}

	cfg.Finalize()
	return cfg, nil
}

// applyKey sets one config field from a file key. Unknown keys are ignored;
// recognized keys with uncoercible values are not.
func (c *Config) applyKey(name, value string) error {
	switch name {
	case "mode":
		c.Mode = domain.ParseMode(value)
	case "color":
		rgb, err := ParseColor(value)
		if err != nil {
			return err
		}
		c.Overlay.Color = rgb
	case "brightness":
		n, err := parseInt(name, value)
		if err != nil {
			return err
		}
		c.Overlay.Brightness = clamp(n, MinBrightness, MaxBrightness)
	case "width":
		n, err := parseInt(name, value)
		if err != nil {
			return err
		}
		c.Overlay.Width = clamp(n, MinWidth, MaxWidth)
	case "fullscreen":
		c.Overlay.Fullscreen = value == "true" || value == "1"
	case "video_device", "videoDevice":
		c.VideoDevice = value
	case "poll_interval":
		n, err := parseInt(name, value)
		if err != nil {
			return err
		}
		c.PollInterval = clampInterval(n)
	case "screens", "enabledScreens", "enabledScreenIndices":
		c.Overlay.Screens = splitList(value)
	case "watch_processes", "processes":
		c.WatchNames = splitList(value)
	}
	return nil
}

// Overrides carries CLI flag values. Pointer fields are applied only when
// non-nil (flag present); booleans only force-enable.
type Overrides struct {
	Mode       *string
	Device     *string
	Procs      []string // replaces the watch list when non-empty
	Interval   *int
	Color      *string
	Brightness *int
	Width      *int
	Screens    *string
	Fullscreen bool
	Verbose    bool
}

// Apply layers CLI overrides on top of file values, field by field.
func (c *Config) Apply(o Overrides) error {
	if o.Mode != nil {
		c.Mode = domain.ParseMode(*o.Mode)
	}
	if o.Device != nil {
		c.VideoDevice = *o.Device
	}
	if len(o.Procs) > 0 {
		c.WatchNames = append([]string(nil), o.Procs...)
	}
	if o.Interval != nil {
		c.PollInterval = clampInterval(*o.Interval)
	}
	if o.Color != nil {
		rgb, err := ParseColor(*o.Color)
		if err != nil {
			return err
		}
		c.Overlay.Color = rgb
	}
	if o.Brightness != nil {
		c.Overlay.Brightness = clamp(*o.Brightness, MinBrightness, MaxBrightness)
	}
	if o.Width != nil {
		c.Overlay.Width = clamp(*o.Width, MinWidth, MaxWidth)
	}
	if o.Screens != nil {
		c.Overlay.Screens = splitList(*o.Screens)
	}
	if o.Fullscreen {
		c.Overlay.Fullscreen = true
	}
	if o.Verbose {
		c.Verbose = true
	}
	c.Finalize()
	return nil
}

// Finalize fills derived defaults. Called after file load and again after
// CLI overrides so the watch list is never empty.
func (c *Config) Finalize() {
	if len(c.WatchNames) == 0 {
		c.WatchNames = []string{DefaultWatchProcess}
	}
	if len(c.WatchNames) > domain.MaxWatchedPids {
		c.WatchNames = c.WatchNames[:domain.MaxWatchedPids]
	}
	if len(c.Overlay.Screens) > domain.MaxOverlayChildren {
		c.Overlay.Screens = c.Overlay.Screens[:domain.MaxOverlayChildren]
	}
}

// Save writes the clamped configuration back out. Reparsing the result
// yields an identical Config.
func (c *Config) Save(path string) error {
	f := ini.Empty()
	sec := f.Section("")
	sec.Key("mode").SetValue(string(c.Mode))
	sec.Key("color").SetValue(c.Overlay.ColorHex())
	sec.Key("brightness").SetValue(strconv.Itoa(c.Overlay.Brightness))
	sec.Key("width").SetValue(strconv.Itoa(c.Overlay.Width))
	sec.Key("fullscreen").SetValue(strconv.FormatBool(c.Overlay.Fullscreen))
	sec.Key("video_device").SetValue(c.VideoDevice)
	sec.Key("poll_interval").SetValue(strconv.Itoa(int(c.PollInterval / time.Millisecond)))
	if len(c.Overlay.Screens) > 0 {
		sec.Key("screens").SetValue(strings.Join(c.Overlay.Screens, ","))
	}
	sec.Key("watch_processes").SetValue(strings.Join(c.WatchNames, ","))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return f.SaveTo(path)
}

// ParseColor parses a 6-hex-digit RGB value with an optional leading '#'.
func ParseColor(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return 0, fmt.Errorf("%w: color %q: want 6 hex digits", domain.ErrConfigParse, s)
	}
	rgb, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: color %q: %v", domain.ErrConfigParse, s, err)
	}
	return uint32(rgb), nil
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", domain.ErrConfigParse, key, value, err)
	}
	return n, nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func clampInterval(ms int) time.Duration {
	d := time.Duration(ms) * time.Millisecond
	if d < MinPollInterval {
		return MinPollInterval
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
