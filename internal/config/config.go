package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/user/daqrelay/internal/registry"
)

// Config is the daqrelay configuration file: relay settings plus the
// declarative module list.
type Config struct {
	HTTPPort  int                  `json:"http_port"`
	Heartbeat int                  `json:"heartbeat"` // milliseconds
	LogLevel  string               `json:"log_level"`
	Modules   []registry.RawModule `json:"modules"`
}

// Load reads the configuration file. Defaults are filled first, the file
// merges over them, and environment variables take highest precedence.
// A missing or unparseable file is an error; the module list is the whole
// point of the process.
func Load(path string) (*Config, error) {
	cfg := &Config{
		HTTPPort:  8080,
		Heartbeat: 500,
		LogLevel:  "info",
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Override from env (highest precedence)
	if port := os.Getenv("DAQRELAY_HTTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("DAQRELAY_HTTP_PORT: %w", err)
		}
		cfg.HTTPPort = p
	}
	if level := os.Getenv("DAQRELAY_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 500
	}

	return cfg, nil
}

// Save writes the configuration atomically: temp file then rename.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Sample returns a starter configuration with one example module.
func Sample() *Config {
	return &Config{
		HTTPPort:  8080,
		Heartbeat: 500,
		LogLevel:  "info",
		Modules: []registry.RawModule{
			{
				Name:        "abcd",
				Description: "Data acquisition",
				Type:        "abcd",
				Sockets: []registry.RawSocket{
					{Type: "status", Address: "tcp://127.0.0.1:16180", Topic: "status_abcd"},
					{Type: "events", Address: "tcp://127.0.0.1:16180", Topic: "events_abcd"},
					{Type: "data", Address: "tcp://127.0.0.1:16181", Topic: "data_abcd"},
					{Type: "commands", Address: "tcp://127.0.0.1:16182"},
				},
			},
		},
	}
}
