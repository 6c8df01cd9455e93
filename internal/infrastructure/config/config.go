package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // school.timezone must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the beadle slip service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	School    SchoolConfig    `yaml:"school"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SchoolConfig contains school-specific information.
type SchoolConfig struct {
	Name     string         `yaml:"name"`
	Timezone string         `yaml:"timezone"`
	Periods  []PeriodConfig `yaml:"periods"`
}

// PeriodConfig is one entry of the daily bell schedule.
// Start and End use 24-hour "HH:MM".
type PeriodConfig struct {
	Number int    `yaml:"number"`
	Start  string `yaml:"start"`
	End    string `yaml:"end"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the supervisor live feed.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// The event bus is optional; when disabled, events only reach WebSocket clients.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains session, ticket and seeding settings.
type SecurityConfig struct {
	Session SessionConfig `yaml:"session"`
	Ticket  TicketConfig  `yaml:"ticket"`
	Seed    SeedConfig    `yaml:"seed"`
}

// SessionConfig controls login sessions and the session cookie.
type SessionConfig struct {
	// TTLHours is how long a session stays valid after login.
	// Zero disables expiry: sessions live until logout.
	TTLHours int `yaml:"ttl_hours"`

	CookieName   string `yaml:"cookie_name"`
	HashKey      string `yaml:"hash_key"`
	BlockKey     string `yaml:"block_key"`
	SecureCookie bool   `yaml:"secure_cookie"`
}

// TicketConfig controls WebSocket tickets.
type TicketConfig struct {
	Secret     string `yaml:"secret"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// SeedConfig controls first-boot account creation.
type SeedConfig struct {
	AdminEmail string `yaml:"admin_email"`
}

// envPrefix is prepended to every environment override.
const envPrefix = "BEADLE_"

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. .env file in the working directory (never overrides the real environment)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: BEADLE_SECTION_KEY
// For example: BEADLE_DATABASE_PATH, BEADLE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv populates the process environment from a dotenv file.
// A missing file is fine; a malformed one is not.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		School: SchoolConfig{
			Name:     "Campion College",
			Timezone: "America/Jamaica",
			Periods:  DefaultPeriods(),
		},
		Database: DatabaseConfig{
			Path:        "./data/beadle.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "beadle-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			Session: SessionConfig{
				TTLHours:     720,
				CookieName:   "ebs_session",
				SecureCookie: true,
			},
			Ticket: TicketConfig{
				TTLSeconds: 60,
			},
		},
	}
}

// DefaultPeriods is the college's standard eight-period day with
// morning break after period 3 and lunch after period 6.
func DefaultPeriods() []PeriodConfig {
	return []PeriodConfig{
		{Number: 1, Start: "08:00", End: "08:40"},
		{Number: 2, Start: "08:40", End: "09:20"},
		{Number: 3, Start: "09:20", End: "10:00"},
		{Number: 4, Start: "10:20", End: "11:00"},
		{Number: 5, Start: "11:00", End: "11:40"},
		{Number: 6, Start: "11:40", End: "12:20"},
		{Number: 7, Start: "13:00", End: "13:40"},
		{Number: 8, Start: "13:40", End: "14:20"},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(envPrefix + "DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv(envPrefix + "API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv(envPrefix + "API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %sAPI_PORT: %w", envPrefix, err)
		}
		cfg.API.Port = port
	}

	if v := os.Getenv(envPrefix + "MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv(envPrefix + "MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv(envPrefix + "MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv(envPrefix + "INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Secrets belong in the environment, not in config.yaml.
	if v := os.Getenv(envPrefix + "SESSION_HASH_KEY"); v != "" {
		cfg.Security.Session.HashKey = v
	}
	if v := os.Getenv(envPrefix + "SESSION_BLOCK_KEY"); v != "" {
		cfg.Security.Session.BlockKey = v
	}
	if v := os.Getenv(envPrefix + "TICKET_SECRET"); v != "" {
		cfg.Security.Ticket.Secret = v
	}
	if v := os.Getenv(envPrefix + "ADMIN_EMAIL"); v != "" {
		cfg.Security.Seed.AdminEmail = v
	}

	return nil
}

// Minimum secret lengths.
const (
	minHashKeyLength      = 32
	minTicketSecretLength = 32
)

// Validate checks the configuration for errors and security issues.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.School.Name == "" {
		errs = append(errs, "school.name is required")
	}
	if c.School.Timezone != "" {
		if _, err := time.LoadLocation(c.School.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("school.timezone %q is not a known location", c.School.Timezone))
		}
	}
	errs = append(errs, validatePeriods(c.School.Periods)...)

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Security.Session.CookieName == "" {
		errs = append(errs, "security.session.cookie_name is required")
	}
	if c.Security.Session.TTLHours < 0 {
		errs = append(errs, "security.session.ttl_hours cannot be negative")
	}
	if len(c.Security.Session.HashKey) < minHashKeyLength {
		errs = append(errs, "security.session.hash_key must be at least 32 characters (set BEADLE_SESSION_HASH_KEY)")
	}
	switch len(c.Security.Session.BlockKey) {
	case 0, 16, 24, 32:
	default:
		errs = append(errs, "security.session.block_key must be empty or 16, 24 or 32 characters")
	}
	if len(c.Security.Ticket.Secret) < minTicketSecretLength {
		errs = append(errs, "security.ticket.secret must be at least 32 characters (set BEADLE_TICKET_SECRET)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validatePeriods checks that the bell schedule is numbered 1..n in order
// and that each period ends after it starts and does not overlap the next.
func validatePeriods(periods []PeriodConfig) []string {
	if len(periods) == 0 {
		return []string{"school.periods must not be empty"}
	}

	var errs []string
	var prevEnd time.Time
	for i, p := range periods {
		if p.Number != i+1 {
			errs = append(errs, fmt.Sprintf("school.periods[%d].number must be %d", i, i+1))
		}
		start, err1 := time.Parse("15:04", p.Start)
		end, err2 := time.Parse("15:04", p.End)
		if err1 != nil || err2 != nil {
			errs = append(errs, fmt.Sprintf("school.periods[%d] times must be HH:MM", i))
			continue
		}
		if !end.After(start) {
			errs = append(errs, fmt.Sprintf("school.periods[%d] must end after it starts", i))
		}
		if i > 0 && start.Before(prevEnd) {
			errs = append(errs, fmt.Sprintf("school.periods[%d] overlaps the previous period", i))
		}
		prevEnd = end
	}
	return errs
}

// SessionTTL returns the session lifetime, or zero when sessions never expire.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Security.Session.TTLHours) * time.Hour
}

// TTL returns the ticket lifetime, or zero when none is configured.
func (t TicketConfig) TTL() time.Duration {
	return time.Duration(t.TTLSeconds) * time.Second
}

// ReadTimeout returns the read timeout as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the idle timeout as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
