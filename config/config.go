package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL      = "http://localhost:8080"
	DefaultSocketPath   = "/ws/chat"
	DefaultPageSize     = 30
	DefaultMaxAttempts  = 5
	DefaultBaseDelay    = time.Second
	DefaultQueueLimit   = 500
	DefaultPort         = "8080"
	DefaultDatabasePath = "courtside.db"
	DefaultFrameRate    = 5.0
	DefaultFrameBurst   = 10
)

// Config holds client and relay settings.
type Config struct {
	BaseURL  string `yaml:"base_url"`
	Token    string `yaml:"token"`
	UserID   int64  `yaml:"user_id"`
	LogLevel string `yaml:"log_level"`
	PageSize int    `yaml:"page_size"`

	Socket SocketConfig `yaml:"socket"`
	Relay  RelayConfig  `yaml:"relay"`
}

type SocketConfig struct {
	Path        string        `yaml:"path"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	// QueueLimit caps frames held while disconnected; 0 means unbounded.
	QueueLimit *int `yaml:"queue_limit"`
}

type RelayConfig struct {
	Port         string `yaml:"port"`
	DatabasePath string `yaml:"database_path"`
	// FrameRate and FrameBurst limit inbound socket frames per connection.
	FrameRate  float64 `yaml:"frame_rate"`
	FrameBurst int     `yaml:"frame_burst"`
}

// Load reads .env (if any), then the YAML file at path (if non-empty), then
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString("COURTSIDE_BASE_URL", &c.BaseURL)
	setString("COURTSIDE_TOKEN", &c.Token)
	setString("COURTSIDE_LOG_LEVEL", &c.LogLevel)
	setString("COURTSIDE_SOCKET_PATH", &c.Socket.Path)
	setString("DATABASE_PATH", &c.Relay.DatabasePath)
	setString("PORT", &c.Relay.Port)

	if v, ok := os.LookupEnv("COURTSIDE_QUEUE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("COURTSIDE_QUEUE_LIMIT: %w", err)
		}
		c.Socket.QueueLimit = &n
	}
	if v, ok := os.LookupEnv("COURTSIDE_USER_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("COURTSIDE_USER_ID: %w", err)
		}
		c.UserID = id
	}
	return nil
}

// Validate fills defaults and rejects settings the client cannot run with.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url: scheme must be http or https, got %q", u.Scheme)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageSize < 0 || c.PageSize > 100 {
		return fmt.Errorf("page_size must be between 1 and 100, got %d", c.PageSize)
	}

	if c.Socket.Path == "" {
		c.Socket.Path = DefaultSocketPath
	}
	if c.Socket.MaxAttempts == 0 {
		c.Socket.MaxAttempts = DefaultMaxAttempts
	}
	if c.Socket.BaseDelay == 0 {
		c.Socket.BaseDelay = DefaultBaseDelay
	}
	if c.Socket.QueueLimit == nil {
		n := DefaultQueueLimit
		c.Socket.QueueLimit = &n
	}
	if c.Socket.MaxAttempts < 0 || c.Socket.BaseDelay < 0 || *c.Socket.QueueLimit < 0 {
		return errors.New("socket: max_attempts, base_delay and queue_limit must not be negative")
	}

	if c.Relay.Port == "" {
		c.Relay.Port = DefaultPort
	}
	if c.Relay.DatabasePath == "" {
		c.Relay.DatabasePath = DefaultDatabasePath
	}
	if c.Relay.FrameRate == 0 {
		c.Relay.FrameRate = DefaultFrameRate
	}
	if c.Relay.FrameBurst == 0 {
		c.Relay.FrameBurst = DefaultFrameBurst
	}
	return nil
}

// QueueLimit returns the validated outbound queue limit.
func (c *Config) QueueLimit() int {
	if c.Socket.QueueLimit == nil {
		return DefaultQueueLimit
	}
	return *c.Socket.QueueLimit
}
