package config

import (
	redisclient "github.com/ibp-network/ibpmon/internal/infra/redis"
	"github.com/ibp-network/ibpmon/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Monitor  MonitorConfig      `yaml:"monitor"`
	Alerting AlertingConfig     `yaml:"alerting"`
	Gossip   GossipConfig       `yaml:"gossip"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Logging  LoggingConfig      `yaml:"logging"`
	Members  []MemberConfig     `yaml:"members"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MonitorConfig holds settings for the local monitor node.
type MonitorConfig struct {
	ID               string   `yaml:"id"`
	CheckInterval    Duration `yaml:"check_interval"`
	AnnounceInterval Duration `yaml:"announce_interval"`
	ConnectTimeout   Duration `yaml:"connect_timeout"`
	CallTimeout      Duration `yaml:"call_timeout"`
	SLA              Duration `yaml:"sla"`
	RetryAttempts    int      `yaml:"retry_attempts"`
	RetryInterval    Duration `yaml:"retry_interval"`
	CheckOwnServices bool     `yaml:"check_own_services"`
	Retention        Duration `yaml:"retention_period"` // 0 = infinite
}

// AlertingConfig holds alerting engine settings.
type AlertingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	QueueName  string `yaml:"queue_name"`
	BlockDrift uint64 `yaml:"block_drift"`
}

// GossipConfig holds gossip overlay settings.
type GossipConfig struct {
	BindAddr       string   `yaml:"bind_addr"`
	BindPort       int      `yaml:"bind_port"`
	Seeds          []string `yaml:"seeds"`
	GossipInterval Duration `yaml:"gossip_interval"`
	ProbeInterval  Duration `yaml:"probe_interval"`
	ProbeTimeout   Duration `yaml:"probe_timeout"`
}

// MemberConfig holds a member this monitor is responsible for checking.
type MemberConfig struct {
	ID               string          `yaml:"id"`
	ServiceIPAddress string          `yaml:"service_ip_address"`
	Subdomain        string          `yaml:"subdomain"`
	Services         []ServiceConfig `yaml:"services"`
}

// ServiceConfig holds one RPC endpoint of a member.
type ServiceConfig struct {
	ID      string `yaml:"id"`
	URL     string `yaml:"url"`
	ChainID string `yaml:"chain_id"`
}
