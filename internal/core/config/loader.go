package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Monitor.CheckInterval == 0 {
		cfg.Monitor.CheckInterval = Duration(30 * time.Second)
	}
	if cfg.Monitor.AnnounceInterval == 0 {
		cfg.Monitor.AnnounceInterval = Duration(5 * time.Minute)
	}
	if cfg.Monitor.ConnectTimeout == 0 {
		cfg.Monitor.ConnectTimeout = Duration(10 * time.Second)
	}
	if cfg.Monitor.SLA == 0 {
		cfg.Monitor.SLA = Duration(500 * time.Millisecond)
	}
	if cfg.Monitor.RetryAttempts == 0 {
		cfg.Monitor.RetryAttempts = 3
	}
	if cfg.Monitor.RetryInterval == 0 {
		cfg.Monitor.RetryInterval = Duration(time.Second)
	}
	if cfg.Alerting.QueueName == "" {
		cfg.Alerting.QueueName = "alerts"
	}
	if cfg.Alerting.BlockDrift == 0 {
		cfg.Alerting.BlockDrift = 30
	}

	if cfg.Monitor.ID == "" {
		return nil, fmt.Errorf("monitor.id is required")
	}

	return &cfg, nil
}
