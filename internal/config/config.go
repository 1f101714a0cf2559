package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AMI      AMIConfig      `yaml:"ami"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	PBX      PBXConfig      `yaml:"pbx"`
}

type AMIConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Secret         string        `yaml:"secret"`
	ActionTimeout  time.Duration `yaml:"action_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// MQTTConfig is the domain event sink. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// RedisConfig is the recording set mirror. An empty URL disables it.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// PostgresConfig backs pause history and the caller directory. An empty
// DSN disables both.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PBXConfig struct {
	Topology             string        `yaml:"topology"`
	Prefix               string        `yaml:"prefix"`
	InternalContext      string        `yaml:"internal_context"`
	QueueContext         string        `yaml:"queue_context"`
	VoicemailContext     string        `yaml:"voicemail_context"`
	ParkLot              string        `yaml:"park_lot"`
	HangupExten          string        `yaml:"hangup_exten"`
	RecordDir            string        `yaml:"record_dir"`
	QueueRefreshInterval time.Duration `yaml:"queue_refresh_interval"`
	DTMFDelay            time.Duration `yaml:"dtmf_delay"`
	ExternalContexts     []string      `yaml:"external_contexts"`
}

func (c *AMIConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{
		AMI: AMIConfig{
			Host:           "127.0.0.1",
			Port:           5038,
			ActionTimeout:  10 * time.Second,
			ReconnectDelay: 5 * time.Second,
		},
		MQTT: MQTTConfig{
			ClientID:    "asterisk-proxy",
			TopicPrefix: "asterisk",
		},
		Redis: RedisConfig{
			KeyPrefix: "pbx:",
		},
		Postgres: PostgresConfig{
			MaxConns: 4,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		PBX: PBXConfig{
			Topology:             "topology.yaml",
			InternalContext:      "from-internal",
			QueueContext:         "from-queue",
			VoicemailContext:     "ext-local",
			ParkLot:              "default",
			HangupExten:          "hangup-nonexistent",
			RecordDir:            "/var/spool/asterisk/monitor",
			QueueRefreshInterval: 60 * time.Second,
			DTMFDelay:            300 * time.Millisecond,
			ExternalContexts:     []string{"from-trunk", "from-pstn"},
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.AMI.Host == "" {
		return fmt.Errorf("ami.host is required")
	}
	if c.AMI.Port < 1 || c.AMI.Port > 65535 {
		return fmt.Errorf("ami.port must be between 1 and 65535, got %d", c.AMI.Port)
	}
	if c.AMI.Username == "" {
		return fmt.Errorf("ami.username is required")
	}
	if c.AMI.Secret == "" {
		return fmt.Errorf("ami.secret is required")
	}
	if c.MQTT.Broker != "" {
		if c.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt.client_id is required")
		}
		if c.MQTT.TopicPrefix == "" {
			return fmt.Errorf("mqtt.topic_prefix is required")
		}
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.PBX.Topology == "" {
		return fmt.Errorf("pbx.topology is required")
	}
	if c.PBX.InternalContext == "" {
		return fmt.Errorf("pbx.internal_context is required")
	}
	if c.PBX.QueueRefreshInterval <= 0 {
		return fmt.Errorf("pbx.queue_refresh_interval must be positive, got %s", c.PBX.QueueRefreshInterval)
	}
	if c.PBX.DTMFDelay < 0 {
		return fmt.Errorf("pbx.dtmf_delay must not be negative, got %s", c.PBX.DTMFDelay)
	}
	return nil
}
