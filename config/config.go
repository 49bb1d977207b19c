// Package config provides YAML configuration parsing for tailgate.
//
// This package enables running tailgate as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	name: WebUI
//	port: 8832
//	realm: tailgate
//	web_root: ./web
//
//	users:
//	  "admin:${TAILGATE_PASSWORD}": admin
//	  "viewer:viewer": read
//
//	log_buffer:
//	  max_length: 1000
//	  purge_size: 100
//
//	history_file: /var/lib/tailgate/history.zst
//	shutdown_timeout: 10s
//
//	mirror:
//	  redis_addr: localhost:6379
//	  stream: tailgate:log
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Parse].
const (
	DefaultName            = "WebUI"
	DefaultPort            = 8832
	DefaultRealm           = "tailgate"
	DefaultWebRoot         = "./web"
	DefaultDocument        = "/static/init/init.htm"
	DefaultMaxLength       = 1000
	DefaultPurgeSize       = 100
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "info"
)

// Config is the root configuration structure for tailgate.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Name prefixes the access lines published into the log. Defaults to "WebUI".
	Name string `yaml:"name"`

	// Port is the HTTP server port. Defaults to 8832.
	Port int `yaml:"port"`

	// ListenAddr overrides Port with a full address, e.g. "127.0.0.1:8832".
	ListenAddr string `yaml:"listen_addr"`

	// Realm is named in the authentication challenge. Defaults to "tailgate".
	Realm string `yaml:"realm"`

	// WebRoot is the static file directory. Defaults to "./web".
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	WebRoot string `yaml:"web_root"`

	// DefaultDocument is served for "/". Defaults to "/static/init/init.htm".
	DefaultDocument string `yaml:"default_document"`

	// StreamPaths are the GET paths serving the log stream.
	// Defaults to ["/api/log/stream"].
	StreamPaths []string `yaml:"stream_paths"`

	// Users maps "username:password" to a privilege label.
	// Keys and values support environment variable substitution.
	Users map[string]string `yaml:"users"`

	// LogBuffer bounds the replay history.
	LogBuffer LogBufferConfig `yaml:"log_buffer"`

	// HistoryFile persists the replay history across restarts when set.
	HistoryFile string `yaml:"history_file"`

	// ShutdownTimeout bounds graceful shutdown. Defaults to 10s.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	// LogLevel is the minimum level of the process's own logging:
	// debug, info, warn, or error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// Handlers configures the built-in POST handlers.
	Handlers HandlersConfig `yaml:"handlers"`

	// Mirror, when present, copies every record into a Redis stream.
	Mirror *MirrorConfig `yaml:"mirror"`
}

// LogBufferConfig bounds the replay history.
type LogBufferConfig struct {
	// MaxLength is the number of records kept. Defaults to 1000.
	MaxLength int `yaml:"max_length"`

	// PurgeSize is how many of the oldest records are dropped at once when
	// MaxLength is exceeded. Defaults to 100.
	PurgeSize int `yaml:"purge_size"`
}

// HandlersConfig configures the built-in POST handlers.
type HandlersConfig struct {
	// Disabled turns off /api/log/publish and /api/status.
	Disabled bool `yaml:"disabled"`

	// PublishPrivileges may publish records. Defaults to ["admin"].
	PublishPrivileges []string `yaml:"publish_privileges"`
}

// MirrorConfig configures the Redis stream mirror.
type MirrorConfig struct {
	// RedisAddr is a single Redis address.
	RedisAddr string `yaml:"redis_addr"`

	// RedisAddrs lists cluster addresses.
	RedisAddrs []string `yaml:"redis_addrs"`

	Username string `yaml:"username"`

	// Password supports environment variable substitution.
	Password string `yaml:"password"`

	// Stream is the stream key. Defaults to "tailgate:log".
	Stream string `yaml:"stream"`

	// MaxLen approximately bounds the stream. Defaults to 10000.
	MaxLen int64 `yaml:"max_len"`

	// DialTimeout defaults to 5s.
	DialTimeout Duration `yaml:"dial_timeout"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		// submatches[2] is ":-..." (non-empty if default syntax was used)
		// submatches[3] is the actual default value (may be empty for ${VAR:-})
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables are expanded per field after parsing; see [Parse].
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in users, web_root, history_file, and
// the mirror address and password. Defaults are applied to every unset field.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Realm == "" {
		c.Realm = DefaultRealm
	}
	if c.WebRoot == "" {
		c.WebRoot = DefaultWebRoot
	}
	if c.DefaultDocument == "" {
		c.DefaultDocument = DefaultDocument
	}
	if c.LogBuffer.MaxLength == 0 {
		c.LogBuffer.MaxLength = DefaultMaxLength
	}
	if c.LogBuffer.PurgeSize == 0 {
		c.LogBuffer.PurgeSize = min(DefaultPurgeSize, c.LogBuffer.MaxLength)
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	var err error
	if c.WebRoot, err = expandEnvVars(c.WebRoot); err != nil {
		return fmt.Errorf("web_root: %w", err)
	}
	if c.HistoryFile, err = expandEnvVars(c.HistoryFile); err != nil {
		return fmt.Errorf("history_file: %w", err)
	}

	if !strings.HasPrefix(c.DefaultDocument, "/") {
		return fmt.Errorf("default_document must start with '/', got %q", c.DefaultDocument)
	}
	for i, p := range c.StreamPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("stream_paths[%d]: must start with '/', got %q", i, p)
		}
	}

	users := make(map[string]string, len(c.Users))
	for key, privilege := range c.Users {
		expandedKey, err := expandEnvVars(key)
		if err != nil {
			return fmt.Errorf("users[%s]: %w", key, err)
		}
		expandedPriv, err := expandEnvVars(privilege)
		if err != nil {
			return fmt.Errorf("users[%s]: %w", key, err)
		}
		user, _, ok := strings.Cut(expandedKey, ":")
		if !ok || user == "" {
			return fmt.Errorf("users[%s]: key must have the form username:password", key)
		}
		if expandedPriv == "" {
			return fmt.Errorf("users[%s]: privilege cannot be empty", user)
		}
		if _, dup := users[expandedKey]; dup {
			return fmt.Errorf("users[%s]: duplicate credential after expansion", key)
		}
		users[expandedKey] = expandedPriv
	}
	if c.Users != nil {
		c.Users = users
	}

	if c.LogBuffer.MaxLength < 1 {
		return fmt.Errorf("log_buffer.max_length must be positive, got %d", c.LogBuffer.MaxLength)
	}
	if c.LogBuffer.PurgeSize < 1 || c.LogBuffer.PurgeSize > c.LogBuffer.MaxLength {
		return fmt.Errorf("log_buffer.purge_size must be between 1 and %d, got %d",
			c.LogBuffer.MaxLength, c.LogBuffer.PurgeSize)
	}

	if c.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout.Duration())
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Mirror != nil {
		if err := c.Mirror.expandAndValidate(); err != nil {
			return fmt.Errorf("mirror: %w", err)
		}
	}

	return nil
}

func (m *MirrorConfig) expandAndValidate() error {
	var err error
	if m.RedisAddr, err = expandEnvVars(m.RedisAddr); err != nil {
		return fmt.Errorf("redis_addr: %w", err)
	}
	for i, addr := range m.RedisAddrs {
		if m.RedisAddrs[i], err = expandEnvVars(addr); err != nil {
			return fmt.Errorf("redis_addrs[%d]: %w", i, err)
		}
	}
	if m.Password, err = expandEnvVars(m.Password); err != nil {
		return fmt.Errorf("password: %w", err)
	}

	if strings.TrimSpace(m.RedisAddr) == "" && len(m.RedisAddrs) == 0 {
		return errors.New("redis_addr or redis_addrs is required")
	}
	if m.MaxLen < 0 {
		return fmt.Errorf("max_len cannot be negative, got %d", m.MaxLen)
	}
	if m.DialTimeout.Duration() < 0 {
		return fmt.Errorf("dial_timeout cannot be negative, got %s", m.DialTimeout.Duration())
	}
	return nil
}
