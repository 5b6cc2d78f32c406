// Package main provides the TuskGuard server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/tuskguard/internal/alerting"
	"github.com/good-yellow-bee/tuskguard/internal/ingest"
)

// Secrets read from the environment. They override the config file.
const (
	envJWTSecret     = "TUSKGUARD_JWT_SECRET"
	envSMTPPassword  = "TUSKGUARD_SMTP_PASSWORD"
	envMQTTPassword  = "TUSKGUARD_MQTT_PASSWORD"
	envRedisPassword = "TUSKGUARD_REDIS_PASSWORD"
	envSMSAPIKey     = "TUSKGUARD_SMS_API_KEY"
)

// minJWTSecretLen is the shortest accepted HS256 secret.
const minJWTSecretLen = 32

// Config represents the server configuration.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Database  DatabaseConfig          `yaml:"database"`
	MQTT      MQTTConfig              `yaml:"mqtt"`
	Redis     RedisConfig             `yaml:"redis"`
	SMTP      SMTPConfig              `yaml:"smtp"`
	SMS       SMSConfig               `yaml:"sms"`
	Notifier  NotifierConfig          `yaml:"notifier"`
	Scheduler SchedulerConfig         `yaml:"scheduler"`
	Policy    alerting.PolicyConfig   `yaml:"policy"`
	Ingest    IngestConfig            `yaml:"ingest"`
	Providers []ingest.ProviderConfig `yaml:"providers"`
	Fleet     FleetConfig             `yaml:"fleet"`
	Logging   LoggingConfig           `yaml:"logging"`
	Verbose   bool                    `yaml:"-"` // set via CLI flag
}

// ServerConfig contains HTTP settings.
type ServerConfig struct {
	HTTPAddress        string        `yaml:"http_address"`          // API listen address (default: :8080)
	MetricsAddress     string        `yaml:"metrics_address"`       // Prometheus listen address, empty disables
	JWTSecret          string        `yaml:"-"`                     // from TUSKGUARD_JWT_SECRET
	TokenTTL           time.Duration `yaml:"token_ttl"`             // default: 24h
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"` // ingest requests per client IP (default: 600)
	RateLimitBurst     int           `yaml:"rate_limit_burst"`      // default: 60
	RequestTimeout     time.Duration `yaml:"request_timeout"`       // default: 30s
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // default: ./data/tuskguard.db
}

// MQTTConfig contains broker settings for collar ingestion.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // tcp://host:1883
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"` // default: collars/+/gps
	QoS      byte   `yaml:"qos"`
}

// RedisConfig enables cross-replica cooldown claims and alert fan-out.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// SMTPConfig contains email delivery settings.
type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// SMSConfig contains HTTP SMS gateway settings.
type SMSConfig struct {
	Enabled  bool          `yaml:"enabled"`
	BaseURL  string        `yaml:"base_url"`
	Path     string        `yaml:"path"`
	APIKey   string        `yaml:"api_key"`
	SenderID string        `yaml:"sender_id"`
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
}

// NotifierConfig tunes alert fan-out.
type NotifierConfig struct {
	Concurrency  int           `yaml:"concurrency"`    // default: 8
	Timeout      time.Duration `yaml:"timeout"`        // per delivery (default: 15s)
	MaxPerWindow int           `yaml:"max_per_window"` // per channel (default: 30)
	Window       time.Duration `yaml:"window"`         // default: 1m
}

// SchedulerConfig drives the periodic check.
type SchedulerConfig struct {
	Interval    time.Duration `yaml:"interval"`    // 0 disables the periodic check
	Concurrency int           `yaml:"concurrency"` // entities checked in parallel (default: 8)
}

// IngestConfig tunes payload validation.
type IngestConfig struct {
	MaxClockSkew time.Duration `yaml:"max_clock_skew"` // future timestamps allowed (default: 5m)
}

// FleetConfig registers entities, their collars and the alert recipients.
type FleetConfig struct {
	Entities   []EntitySeed    `yaml:"entities"`
	Recipients []RecipientSeed `yaml:"recipients"`
}

// EntitySeed is a tracked animal and its collars.
type EntitySeed struct {
	ID      string       `yaml:"id"`
	Name    string       `yaml:"name"`
	Species string       `yaml:"species"`
	Devices []DeviceSeed `yaml:"devices"`
}

// DeviceSeed is a collar registered to an entity.
type DeviceSeed struct {
	ID       string `yaml:"id"`
	Provider string `yaml:"provider"`
}

// RecipientSeed is an authority that receives alerts.
type RecipientSeed struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Phone        string `yaml:"phone"`
	Email        string `yaml:"email"`
	SMSEnabled   *bool  `yaml:"sms_enabled"`   // default: true
	EmailEnabled *bool  `yaml:"email_enabled"` // default: true
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.setDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envJWTSecret); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv(envSMTPPassword); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv(envMQTTPassword); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv(envRedisPassword); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv(envSMSAPIKey); v != "" {
		c.SMS.APIKey = v
	}
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Server.TokenTTL <= 0 {
		c.Server.TokenTTL = 24 * time.Hour
	}
	if c.Server.RateLimitPerMinute <= 0 {
		c.Server.RateLimitPerMinute = 600
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 60
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 30 * time.Second
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/tuskguard.db"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "collars/+/gps"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "tuskguard-server"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "tuskguard"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Notifier.Concurrency <= 0 {
		c.Notifier.Concurrency = 8
	}
	if c.Notifier.Timeout <= 0 {
		c.Notifier.Timeout = 15 * time.Second
	}
	if c.Notifier.MaxPerWindow <= 0 {
		c.Notifier.MaxPerWindow = 30
	}
	if c.Notifier.Window <= 0 {
		c.Notifier.Window = time.Minute
	}
	if c.Ingest.MaxClockSkew <= 0 {
		c.Ingest.MaxClockSkew = ingest.DefaultMaxClockSkew
	}
	if c.Scheduler.Concurrency <= 0 {
		c.Scheduler.Concurrency = alerting.DefaultConcurrency
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return fmt.Errorf("server.http_address is required")
	}
	if c.Server.JWTSecret != "" && len(c.Server.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("%s must be at least %d bytes", envJWTSecret, minJWTSecretLen)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}
	if c.SMTP.Enabled {
		if c.SMTP.Host == "" {
			return fmt.Errorf("smtp.host is required when smtp is enabled")
		}
		if c.SMTP.From == "" {
			return fmt.Errorf("smtp.from is required when smtp is enabled")
		}
	}
	if c.SMS.Enabled {
		if c.SMS.BaseURL == "" {
			return fmt.Errorf("sms.base_url is required when sms is enabled")
		}
		if c.SMS.SenderID == "" {
			return fmt.Errorf("sms.sender_id is required when sms is enabled")
		}
	}
	if c.Scheduler.Interval < 0 {
		return fmt.Errorf("scheduler.interval must not be negative")
	}
	if _, err := c.Policy.Build(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d].name is required", i)
		}
	}
	return c.Fleet.validate()
}

func (f *FleetConfig) validate() error {
	entities := make(map[string]bool)
	devices := make(map[string]bool)
	for i, e := range f.Entities {
		if e.ID == "" {
			return fmt.Errorf("fleet.entities[%d].id is required", i)
		}
		if e.Name == "" {
			return fmt.Errorf("fleet.entities[%d].name is required", i)
		}
		if entities[e.ID] {
			return fmt.Errorf("fleet.entities[%d]: duplicate id %q", i, e.ID)
		}
		entities[e.ID] = true
		for j, d := range e.Devices {
			if d.ID == "" {
				return fmt.Errorf("fleet.entities[%d].devices[%d].id is required", i, j)
			}
			if devices[d.ID] {
				return fmt.Errorf("fleet.entities[%d].devices[%d]: collar %q is registered twice", i, j, d.ID)
			}
			devices[d.ID] = true
		}
	}
	for i, r := range f.Recipients {
		if r.ID == "" {
			return fmt.Errorf("fleet.recipients[%d].id is required", i)
		}
		if r.Phone == "" && r.Email == "" {
			return fmt.Errorf("fleet.recipients[%d] needs a phone or email", i)
		}
	}
	return nil
}

// BuildPolicy builds the cooldown policy.
func (c *Config) BuildPolicy() (*alerting.Policy, error) {
	return c.Policy.Build()
}
