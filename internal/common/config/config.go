// internal/common/config/config.go
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PortPlaceholder is replaced with Server.Port in the configured URLs.
const PortPlaceholder = "{port}"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Session       SessionConfig       `mapstructure:"session"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Mail          MailConfig          `mapstructure:"mail"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Notifications NotificationConfig  `mapstructure:"notifications"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Resolutions   ResolutionsConfig   `mapstructure:"resolutions"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig locates the campaign generation backend.
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	BaseURL      string `mapstructure:"base_url"`
	WebSocketURL string `mapstructure:"websocket_url"`
}

// ResolvedBaseURL returns BaseURL with the port placeholder substituted and a trailing slash.
func (s ServerConfig) ResolvedBaseURL() string {
	u := s.substitutePort(s.BaseURL)
	if u != "" && !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

// ResolvedWebSocketURL returns WebSocketURL with the port placeholder substituted.
func (s ServerConfig) ResolvedWebSocketURL() string {
	return s.substitutePort(s.WebSocketURL)
}

func (s ServerConfig) substitutePort(u string) string {
	if s.Port == 0 {
		return u
	}
	return strings.ReplaceAll(u, PortPlaceholder, strconv.Itoa(s.Port))
}

type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// SessionConfig drives the streaming session reconnect policy.
type SessionConfig struct {
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectDelay    time.Duration `mapstructure:"max_reconnect_delay"`
	BackoffMultiplier    float64       `mapstructure:"backoff_multiplier"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"` // 0 = unbounded
	ReadLimit            int64         `mapstructure:"read_limit"`             // bytes
}

// AuthConfig holds the optional service credentials for the backend.
type AuthConfig struct {
	Keycloak struct {
		URL          string `mapstructure:"url"`
		Realm        string `mapstructure:"realm"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
	} `mapstructure:"keycloak"`
}

// Enabled reports whether a Keycloak realm is configured.
func (a AuthConfig) Enabled() bool {
	return a.Keycloak.URL != "" && a.Keycloak.Realm != ""
}

// MailConfig selects how generated emails are dispatched.
type MailConfig struct {
	Transport string `mapstructure:"transport"` // "rest" or "ses"
	AWS       struct {
		Region    string   `mapstructure:"region"`
		FromEmail string   `mapstructure:"from_email"`
		To        []string `mapstructure:"to"`
	} `mapstructure:"aws"`
}

type CacheConfig struct {
	Redis RedisConfig   `mapstructure:"redis"`
	TTL   time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ArchiveConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// NotificationConfig holds the optional completion publisher.
type NotificationConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ResolutionsConfig points at an optional resolution catalog file.
type ResolutionsConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`
}
