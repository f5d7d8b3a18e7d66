package node

import (
	"fmt"
	"os"
	"time"

	"github.com/adamgarcia4/rendezvous/barrier"
	"github.com/adamgarcia4/rendezvous/peers"
	"gopkg.in/yaml.v3"
)

// Default configuration constants
const (
	DefaultPort      = 8888
	DefaultHostsFile = "hosts"
)

// Config holds the configuration for a node
type Config struct {
	// Identity; empty means HOSTNAME, then the kernel hostname
	Hostname string `yaml:"hostname"`

	// Peer list source. EtcdEndpoints takes precedence over HostsFile.
	HostsFile     string        `yaml:"hosts_file"`
	EtcdEndpoints []string      `yaml:"etcd_endpoints"`
	EtcdPrefix    string        `yaml:"etcd_prefix"`
	EtcdTimeout   time.Duration `yaml:"etcd_timeout"`
	MaxHosts      int           `yaml:"max_hosts"`

	// Socket
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Barrier timing
	TotalTimeout time.Duration `yaml:"total_timeout"`
	SendInterval time.Duration `yaml:"send_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`

	ExitOnReady       bool `yaml:"exit_on_ready"`
	AckEveryHeartbeat bool `yaml:"ack_every_heartbeat"`

	// Observability; empty addresses disable the servers
	Debug       bool   `yaml:"debug"`
	MetricsAddr string `yaml:"metrics_addr"`
	StatusAddr  string `yaml:"status_addr"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HostsFile:    DefaultHostsFile,
		EtcdPrefix:   peers.DefaultEtcdPrefix,
		EtcdTimeout:  peers.DefaultEtcdTimeout,
		MaxHosts:     peers.DefaultMaxHosts,
		Port:         DefaultPort,
		TotalTimeout: barrier.DefaultTotalTimeout,
		SendInterval: barrier.DefaultSendInterval,
		PollTimeout:  barrier.DefaultPollTimeout,
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigRequired
	}
	if c.HostsFile == "" && len(c.EtcdEndpoints) == 0 {
		return ErrHostsSourceRequired
	}
	// Every peer listens on the same port, so an ephemeral one cannot work.
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.EtcdTimeout < 0 {
		return ErrInvalidEtcdTimeout
	}
	if c.MaxHosts <= 0 {
		return ErrInvalidMaxHosts
	}
	if c.TotalTimeout <= 0 {
		return ErrInvalidTotalTimeout
	}
	if c.SendInterval <= 0 {
		return ErrInvalidSendInterval
	}
	if c.PollTimeout <= 0 {
		return ErrInvalidPollTimeout
	}
	return nil
}

// UnmarshalYAML fills omitted keys from DefaultConfig.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type raw Config
	r := raw(*DefaultConfig())

	if err := value.Decode(&r); err != nil {
		return err
	}

	*c = Config(r)
	return nil
}

// LoadConfigFile reads a YAML config. Durations are strings such as "2s".
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// CoordinatorOptions maps the timing and policy fields onto barrier options.
func (c *Config) CoordinatorOptions() barrier.Options {
	return barrier.Options{
		TotalTimeout:      c.TotalTimeout,
		SendInterval:      c.SendInterval,
		PollTimeout:       c.PollTimeout,
		ExitOnReady:       c.ExitOnReady,
		AckEveryHeartbeat: c.AckEveryHeartbeat,
	}
}
