package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Client    ClientConfig    `toml:"client"`
	Loop      LoopConfig      `toml:"loop"`
	Boot      BootConfig      `toml:"boot"`
	Scripting ScriptingConfig `toml:"scripting"`
	Logging   LoggingConfig   `toml:"logging"`
}

type ClientConfig struct {
	Name      string `toml:"name"`
	Version   string `toml:"version"`
	StartTime int64  // set at boot, not from config
}

type LoopConfig struct {
	TickRate      time.Duration `toml:"tick_rate"`
	FixedStep     time.Duration `toml:"fixed_step"`
	MaxFixedSteps int           `toml:"max_fixed_steps"`
	QueueSize     int           `toml:"queue_size"`
}

type BootConfig struct {
	Plan            string        `toml:"plan"`             // YAML task group manifest
	BootGroup       string        `toml:"boot_group"`       // run once the loop is up
	ShutdownGroup   string        `toml:"shutdown_group"`   // run on the way out, may be empty
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	FirstScene      string        `toml:"first_scene"`
}

type ScriptingConfig struct {
	Dir string `toml:"dir"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Client.StartTime = time.Now().Unix()
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Loop.TickRate <= 0:
		return errors.New("loop.tick_rate must be positive")
	case c.Loop.FixedStep <= 0:
		return errors.New("loop.fixed_step must be positive")
	case c.Loop.MaxFixedSteps <= 0:
		return errors.New("loop.max_fixed_steps must be positive")
	case c.Loop.QueueSize <= 0:
		return errors.New("loop.queue_size must be positive")
	case c.Boot.BootGroup == "":
		return errors.New("boot.boot_group is required")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Client: ClientConfig{
			Name:    "L1JGO-Client",
			Version: "0.1.0",
		},
		Loop: LoopConfig{
			TickRate:      16 * time.Millisecond,
			FixedStep:     20 * time.Millisecond,
			MaxFixedSteps: 5,
			QueueSize:     256,
		},
		Boot: BootConfig{
			Plan:            "config/boot.yaml",
			BootGroup:       "boot",
			ShutdownGroup:   "shutdown",
			ShutdownTimeout: 5 * time.Second,
			FirstScene:      "title",
		},
		Scripting: ScriptingConfig{
			Dir: "scripts",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
