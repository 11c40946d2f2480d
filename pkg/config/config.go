// Copyright (c) 2025 A Bit of Help, Inc.

// Package config provides the run configuration for the conversion pipeline.
//
// A Config is built once by the CLI (defaults, then an optional TOML file, then flags)
// and passed explicitly into the pipeline coordinator.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// DefaultTagTool is the tag reporting binary used for metadata extraction
	DefaultTagTool = "/usr/bin/id3tool"

	// DefaultDecoder is the binary that decodes a source file to PCM
	DefaultDecoder = "/usr/bin/mplayer"

	// DefaultEncoder is the binary that encodes PCM to the target format
	DefaultEncoder = "/usr/bin/oggenc"

	// DefaultSourceExt is the extension replaced when deriving output paths
	DefaultSourceExt = ".mp3"

	// DefaultTargetExt is the extension of converted files
	DefaultTargetExt = ".ogg"

	// DefaultEncoderWorkers defines the number of concurrent encoder workers
	DefaultEncoderWorkers = 3

	// DefaultQueueCapacity leaves the non-throttled queues unbounded
	DefaultQueueCapacity = 0

	// DefaultDecodeSoftCap is the decode to encode queue depth at which decoding pauses
	DefaultDecodeSoftCap = 20

	// DefaultSoftCapPollInterval is how often a throttled decoder re-checks the queue depth
	DefaultSoftCapPollInterval = time.Second

	// DefaultMonitorInterval is the progress sampling period
	DefaultMonitorInterval = time.Second

	defaultConfigPath = "~/.config/mp3toogg/config.toml"
)

// Duration is a time.Duration that reads and writes as a string such as "1s" in TOML.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// Config contains every setting the coordinator and the external tool adapters need.
type Config struct {
	// TagTool, Decoder and Encoder are the external binaries
	TagTool string `toml:"tag_tool"`
	Decoder string `toml:"decoder"`
	Encoder string `toml:"encoder"`

	// OutputDir prefixes every derived output path
	OutputDir string `toml:"output_dir"`

	// TempDir holds the intermediate artifacts
	TempDir string `toml:"temp_dir"`

	// LogPath is the result log, opened in append mode
	LogPath string `toml:"log_path"`

	SourceExt string `toml:"source_ext"`
	TargetExt string `toml:"target_ext"`

	// EncoderWorkers is the size of the encode stage pool
	EncoderWorkers int `toml:"encoder_workers"`

	// QueueCapacity is the hard capacity of the metadata and cleanup queues; 0 means unbounded
	QueueCapacity int `toml:"queue_capacity"`

	// DecodeSoftCap throttles the decoder once the encode queue reaches this depth; 0 disables it
	DecodeSoftCap int `toml:"decode_soft_cap"`

	SoftCapPollInterval Duration `toml:"soft_cap_poll_interval"`
	MonitorInterval     Duration `toml:"monitor_interval"`

	// ToolTimeout bounds each external tool invocation; 0 means no timeout
	ToolTimeout Duration `toml:"tool_timeout"`

	Verbose bool `toml:"verbose"`
}

// Default returns a Config populated with the built-in defaults.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		TagTool:             DefaultTagTool,
		Decoder:             DefaultDecoder,
		Encoder:             DefaultEncoder,
		OutputDir:           filepath.Join(home, "Music"),
		TempDir:             os.TempDir(),
		LogPath:             filepath.Join(home, "mp32ogg.log"),
		SourceExt:           DefaultSourceExt,
		TargetExt:           DefaultTargetExt,
		EncoderWorkers:      DefaultEncoderWorkers,
		QueueCapacity:       DefaultQueueCapacity,
		DecodeSoftCap:       DefaultDecodeSoftCap,
		SoftCapPollInterval: Duration(DefaultSoftCapPollInterval),
		MonitorInterval:     Duration(DefaultMonitorInterval),
	}
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath(defaultConfigPath)
}

// Load reads the configuration file at path, or the default location when path is empty,
// on top of the defaults. A missing default file is not an error. It returns the config,
// the resolved file path and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}
	resolved, err := ExpandPath(path)
	if err != nil {
		return nil, "", false, err
	}

	exists := true
	file, err := os.Open(resolved)
	switch {
	case err == nil:
		defer file.Close()
		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		exists = false
	default:
		return nil, "", false, fmt.Errorf("open config: %w", err)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// Normalize expands ~ in every path field.
func (c *Config) Normalize() error {
	for _, field := range []*string{&c.TagTool, &c.Decoder, &c.Encoder, &c.OutputDir, &c.TempDir, &c.LogPath} {
		expanded, err := ExpandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}

// Validate reports the first setting that cannot drive a run.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.TagTool) == "":
		return errors.New("tag_tool must be set")
	case strings.TrimSpace(c.Decoder) == "":
		return errors.New("decoder must be set")
	case strings.TrimSpace(c.Encoder) == "":
		return errors.New("encoder must be set")
	case strings.TrimSpace(c.OutputDir) == "":
		return errors.New("output_dir must be set")
	case strings.TrimSpace(c.TempDir) == "":
		return errors.New("temp_dir must be set")
	case strings.TrimSpace(c.LogPath) == "":
		return errors.New("log_path must be set")
	case !strings.HasPrefix(c.SourceExt, "."), !strings.HasPrefix(c.TargetExt, "."):
		return fmt.Errorf("extensions must start with a dot (source %q, target %q)", c.SourceExt, c.TargetExt)
	case c.EncoderWorkers < 1:
		return fmt.Errorf("encoder_workers must be at least 1, got %d", c.EncoderWorkers)
	case c.QueueCapacity < 0:
		return fmt.Errorf("queue_capacity must not be negative, got %d", c.QueueCapacity)
	case c.DecodeSoftCap < 0:
		return fmt.Errorf("decode_soft_cap must not be negative, got %d", c.DecodeSoftCap)
	case c.SoftCapPollInterval <= 0:
		return errors.New("soft_cap_poll_interval must be positive")
	case c.MonitorInterval <= 0:
		return errors.New("monitor_interval must be positive")
	case c.ToolTimeout < 0:
		return errors.New("tool_timeout must not be negative")
	}
	return nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
