package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"GroundLink/internal/link"
	"GroundLink/internal/logger"
	"GroundLink/internal/models"
	"GroundLink/internal/mqttbridge"
	"GroundLink/internal/protocol"
	"GroundLink/internal/store"
	"GroundLink/internal/supervisor"
)

// Config represents the application configuration
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Mavlink    MavlinkConfig    `yaml:"mavlink"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Links      []LinkConfig     `yaml:"links"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level           string `yaml:"level"`            // debug, info, warn, error
	TimestampFormat string `yaml:"timestamp_format"` // "time" or "unix"
	StatsInterval   int    `yaml:"stats_interval"`   // Interval in seconds for printing stats (default: 30)
}

// MavlinkConfig contains protocol settings shared by every link
type MavlinkConfig struct {
	SystemID               uint8    `yaml:"system_id"`
	ComponentID            uint8    `yaml:"component_id"`
	AutoAddVehicles        *bool    `yaml:"auto_add_vehicles"` // default true
	MaxCommandSendAttempts uint8    `yaml:"max_command_send_attempts"`
	CommandResendInterval  Duration `yaml:"command_resend_interval"`
	MissionResendInterval  Duration `yaml:"mission_resend_interval"`
	OnlineInterval         Duration `yaml:"online_interval"`
	ResetStatsInterval     Duration `yaml:"reset_stats_interval"`
	PollInterval           Duration `yaml:"poll_interval"`
	TickInterval           Duration `yaml:"tick_interval"`
	DialTimeout            Duration `yaml:"dial_timeout"`
}

// SupervisorConfig contains link supervision settings
type SupervisorConfig struct {
	TickInterval Duration `yaml:"tick_interval"`
}

// LinkConfig describes one link seeded into the store
type LinkConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	URI         string `yaml:"uri"`     // udpout:host:port, tcpout:host:port, serial:device:baud
	Version     string `yaml:"version"` // v1 or v2
	Autoconnect bool   `yaml:"autoconnect"`
}

// MQTTConfig contains the optional broker export settings
type MQTTConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Broker       string `yaml:"broker"`
	ClientID     string `yaml:"client_id"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	TopicPrefix  string `yaml:"topic_prefix"`
	ClientEvents bool   `yaml:"client_events"` // accept operator requests on <prefix>/client
}

// Duration is a time.Duration written as a string ("2s", "100ms") in YAML
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load reads configuration from a YAML file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// SetDefaults fills every unset field
func (c *Config) SetDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.StatsInterval <= 0 {
		c.Log.StatsInterval = 30
	}

	m := &c.Mavlink
	if m.SystemID == 0 {
		m.SystemID = 255
	}
	if m.ComponentID == 0 {
		m.ComponentID = 190
	}
	if m.AutoAddVehicles == nil {
		autoAdd := true
		m.AutoAddVehicles = &autoAdd
	}
	if m.MaxCommandSendAttempts == 0 {
		m.MaxCommandSendAttempts = 5
	}
	setDuration(&m.CommandResendInterval, 2*time.Second)
	setDuration(&m.MissionResendInterval, 2*time.Second)
	setDuration(&m.OnlineInterval, 2*time.Second)
	setDuration(&m.ResetStatsInterval, time.Second)
	setDuration(&m.PollInterval, 5*time.Millisecond)
	setDuration(&m.TickInterval, 100*time.Millisecond)
	setDuration(&m.DialTimeout, 5*time.Second)
	setDuration(&c.Supervisor.TickInterval, 100*time.Millisecond)

	for i := range c.Links {
		if c.Links[i].Version == "" {
			c.Links[i].Version = string(models.MavlinkV2)
		}
		if c.Links[i].Name == "" {
			c.Links[i].Name = c.Links[i].ID
		}
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "groundlink"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "groundlink"
	}
}

func setDuration(d *Duration, def time.Duration) {
	if *d <= 0 {
		*d = Duration(def)
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, ok := logger.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	if c.Mavlink.MaxCommandSendAttempts == 0 {
		return fmt.Errorf("mavlink.max_command_send_attempts must be greater than 0")
	}

	seen := make(map[string]bool, len(c.Links))
	for i, l := range c.Links {
		if l.ID == "" {
			return fmt.Errorf("links[%d].id cannot be empty", i)
		}
		if seen[l.ID] {
			return fmt.Errorf("links[%d].id %q is duplicated", i, l.ID)
		}
		seen[l.ID] = true
		if _, err := link.ParseURI(l.URI); err != nil {
			return fmt.Errorf("links[%d].uri: %w", i, err)
		}
		if l.Version != string(models.MavlinkV1) && l.Version != string(models.MavlinkV2) {
			return fmt.Errorf("links[%d].version must be v1 or v2", i)
		}
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker cannot be empty when mqtt is enabled")
	}
	return nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LinkDescription converts a configured link into its stored form
func (l LinkConfig) LinkDescription() (models.LinkDescription, error) {
	endpoint, err := link.ParseURI(l.URI)
	if err != nil {
		return models.LinkDescription{}, err
	}
	return models.LinkDescription{
		ID:          l.ID,
		Name:        l.Name,
		Protocol:    endpoint.Model(models.MavlinkVersion(l.Version)),
		Autoconnect: l.Autoconnect,
	}, nil
}

// SeedLinks creates the configured links missing from the store and
// returns how many were added
func (c *Config) SeedLinks(ctx context.Context, tables *store.Tables) (int, error) {
	added := 0
	for _, l := range c.Links {
		desc, err := l.LinkDescription()
		if err != nil {
			return added, fmt.Errorf("link %s: %w", l.ID, err)
		}
		if _, err := tables.LinkDescriptions.SelectOne(ctx, l.ID); err == nil {
			continue
		}
		if _, err := tables.LinkDescriptions.Create(ctx, &desc); err != nil {
			return added, fmt.Errorf("failed to seed link %s: %w", l.ID, err)
		}
		added++
	}
	return added, nil
}

// ConnectionConfig returns the connection settings shared by every link
func (c *Config) ConnectionConfig() link.Config {
	return link.Config{
		SystemID:           c.Mavlink.SystemID,
		ComponentID:        c.Mavlink.ComponentID,
		PollInterval:       c.Mavlink.PollInterval.Std(),
		OnlineInterval:     c.Mavlink.OnlineInterval.Std(),
		ResetStatsInterval: c.Mavlink.ResetStatsInterval.Std(),
		DialTimeout:        c.Mavlink.DialTimeout.Std(),
	}
}

// HandlerConfig returns the protocol handler settings
func (c *Config) HandlerConfig() protocol.Config {
	return protocol.Config{
		AutoAddVehicles:        c.Mavlink.AutoAddVehicles == nil || *c.Mavlink.AutoAddVehicles,
		MaxCommandSendAttempts: c.Mavlink.MaxCommandSendAttempts,
		CommandResendInterval:  c.Mavlink.CommandResendInterval.Std(),
		MissionResendInterval:  c.Mavlink.MissionResendInterval.Std(),
		TickInterval:           c.Mavlink.TickInterval.Std(),
	}
}

// SupervisorSettings returns the supervisor settings
func (c *Config) SupervisorSettings() supervisor.Config {
	cfg := supervisor.DefaultConfig()
	cfg.TickInterval = c.Supervisor.TickInterval.Std()
	cfg.StatsInterval = c.Log.StatsInterval
	cfg.Handler = c.HandlerConfig()
	return cfg
}

// BridgeConfig returns the MQTT bridge settings
func (c *Config) BridgeConfig() mqttbridge.Config {
	return mqttbridge.Config{
		Broker:       c.MQTT.Broker,
		ClientID:     c.MQTT.ClientID,
		Username:     c.MQTT.Username,
		Password:     c.MQTT.Password,
		TopicPrefix:  c.MQTT.TopicPrefix,
		ClientEvents: c.MQTT.ClientEvents,
	}
}
