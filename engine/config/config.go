// package config loads engine settings from TOML or YAML files and builds the process logger.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned by Load for a file extension it cannot decode.
var ErrUnknownFormat = errors.New("unknown config format")

type Config struct {
	Pipeline PipelineConfig `toml:"pipeline" yaml:"pipeline"`
	Render   RenderConfig   `toml:"render" yaml:"render"`
	Window   WindowConfig   `toml:"window" yaml:"window"`
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
	Profiler ProfilerConfig `toml:"profiler" yaml:"profiler"`
}

type PipelineConfig struct {
	Depth           int `toml:"depth" yaml:"depth"`               // frames the scene loop may run ahead (K)
	GraceWindow     int `toml:"grace_window" yaml:"grace_window"` // 0 = depth + 1
	Workers         int `toml:"workers" yaml:"workers"`           // 0 = hardware concurrency - 2
	Tokens          int `toml:"tokens" yaml:"tokens"`
	EventQueue      int `toml:"event_queue" yaml:"event_queue"`
	JobQueue        int `toml:"job_queue" yaml:"job_queue"`
	CompletionQueue int `toml:"completion_queue" yaml:"completion_queue"`
}

type RenderConfig struct {
	Backend       string     `toml:"backend" yaml:"backend"` // headless | wgpu
	FrameLimit    float64    `toml:"frame_limit" yaml:"frame_limit"`
	PresentMode   string     `toml:"present_mode" yaml:"present_mode"` // vsync | uncapped
	ForceSoftware bool       `toml:"force_software" yaml:"force_software"`
	ClearColor    [4]float64 `toml:"clear_color" yaml:"clear_color"`
}

type WindowConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Title   string `toml:"title" yaml:"title"`
	Width   int    `toml:"width" yaml:"width"`
	Height  int    `toml:"height" yaml:"height"`
}

type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // console | json
}

type ProfilerConfig struct {
	Enabled  bool          `toml:"enabled" yaml:"enabled"`
	Interval time.Duration `toml:"interval" yaml:"interval"`
}

// Load reads the file at path on top of Defaults. The format follows the extension: .toml, .yaml or .yml.
//
// Parameters:
//   - path: the config file
//
// Returns:
//   - *Config: the loaded and validated config
//   - error: error if the file could not be read, parsed or validated
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("config %s: %w", path, ErrUnknownFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Defaults returns the settings used when no file overrides them.
//
// Returns:
//   - *Config: a fresh default config
func Defaults() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Depth:           2,
			Tokens:          4,
			EventQueue:      256,
			JobQueue:        64,
			CompletionQueue: 16,
		},
		Render: RenderConfig{
			Backend:     "headless",
			PresentMode: "vsync",
			ClearColor:  [4]float64{0.1, 0.1, 0.1, 1.0},
		},
		Window: WindowConfig{
			Title:  "oxy-stage",
			Width:  1280,
			Height: 720,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Profiler: ProfilerConfig{
			Interval: time.Second,
		},
	}
}

// Validate checks the pipeline invariants the scene host enforces at construction.
//
// Returns:
//   - error: the first violated constraint, or nil
func (c *Config) Validate() error {
	p := c.Pipeline
	switch {
	case p.Depth < 2:
		return fmt.Errorf("pipeline.depth must be at least 2, got %d", p.Depth)
	case p.GraceWindow != 0 && p.GraceWindow < p.Depth:
		return fmt.Errorf("pipeline.grace_window %d is below pipeline.depth %d", p.GraceWindow, p.Depth)
	case p.Workers < 0:
		return fmt.Errorf("pipeline.workers must not be negative, got %d", p.Workers)
	case p.Tokens < 1:
		return fmt.Errorf("pipeline.tokens must be at least 1, got %d", p.Tokens)
	case p.EventQueue < 1:
		return fmt.Errorf("pipeline.event_queue must be at least 1, got %d", p.EventQueue)
	case p.JobQueue < p.Tokens:
		return fmt.Errorf("pipeline.job_queue %d is below pipeline.tokens %d", p.JobQueue, p.Tokens)
	case p.CompletionQueue < p.Tokens:
		return fmt.Errorf("pipeline.completion_queue %d is below pipeline.tokens %d", p.CompletionQueue, p.Tokens)
	}

	switch c.Render.Backend {
	case "headless", "wgpu":
	default:
		return fmt.Errorf("render.backend must be headless or wgpu, got %q", c.Render.Backend)
	}
	if c.Render.FrameLimit < 0 {
		return fmt.Errorf("render.frame_limit must not be negative, got %g", c.Render.FrameLimit)
	}
	if c.Window.Enabled && (c.Window.Width <= 0 || c.Window.Height <= 0) {
		return fmt.Errorf("window size %dx%d is invalid", c.Window.Width, c.Window.Height)
	}
	if c.Profiler.Enabled && c.Profiler.Interval <= 0 {
		return fmt.Errorf("profiler.interval must be positive, got %s", c.Profiler.Interval)
	}
	return nil
}
