// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	MailTransportREST = "rest"
	MailTransportSES  = "ses"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml, applies
// environment overrides and defaults, and validates the result.
func Load() (*Config, error) {
	return LoadWith(viper.New(), "")
}

// LoadWith loads configuration into v. A non-empty path reads exactly that file.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	loadEnvFile()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../../configs")
		v.AddConfigPath(".")
	}

	// Enable ENV override like SERVER_BASE_URL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	if path == "" {
		env := os.Getenv("APP_ENVIRONMENT")
		if env == "" {
			env = "development"
		}
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		_ = v.MergeInConfig() // ignore error if not found
	}

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// bindEnvKeys registers the keys AutomaticEnv must see even when absent from the file.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"server.port", "server.base_url", "server.websocket_url",
		"auth.keycloak.url", "auth.keycloak.realm", "auth.keycloak.client_id", "auth.keycloak.client_secret",
		"mail.transport", "mail.aws.region", "mail.aws.from_email",
		"cache.redis.enabled", "cache.redis.address", "cache.redis.password",
		"archive.postgres.enabled", "archive.postgres.host", "archive.postgres.password",
		"notifications.sns.enabled", "notifications.sns.topic_arn",
		"observability.metrics_addr", "observability.jaeger_endpoint",
		"logging.level", "logging.format",
	} {
		_ = v.BindEnv(key)
	}
}

// loadEnvFile loads .env from the working directory or the project root.
func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "campaign-client"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.HTTP.Timeout <= 0 {
		cfg.HTTP.Timeout = 60 * time.Second
	}

	if cfg.Session.HandshakeTimeout <= 0 {
		cfg.Session.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Session.ReconnectDelay <= 0 {
		cfg.Session.ReconnectDelay = 500 * time.Millisecond
	}
	if cfg.Session.MaxReconnectDelay <= 0 {
		cfg.Session.MaxReconnectDelay = 30 * time.Second
	}
	if cfg.Session.BackoffMultiplier < 1 {
		cfg.Session.BackoffMultiplier = 2
	}
	if cfg.Session.MaxReconnectAttempts < 0 {
		cfg.Session.MaxReconnectAttempts = 0
	}
	if cfg.Session.ReadLimit <= 0 {
		cfg.Session.ReadLimit = 32 << 20
	}

	if cfg.Mail.Transport == "" {
		cfg.Mail.Transport = MailTransportREST
	}
	if cfg.Mail.AWS.Region == "" {
		cfg.Mail.AWS.Region = "us-east-1"
	}

	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = 24 * time.Hour
	}

	if cfg.Archive.Postgres.Port == 0 {
		cfg.Archive.Postgres.Port = 5432
	}
	if cfg.Archive.Postgres.SSLMode == "" {
		cfg.Archive.Postgres.SSLMode = "disable"
	}
	if cfg.Archive.Postgres.MaxConnections == 0 {
		cfg.Archive.Postgres.MaxConnections = 5
	}
	if cfg.Archive.Postgres.MaxIdle == 0 {
		cfg.Archive.Postgres.MaxIdle = 2
	}

	if cfg.Notifications.SNS.Region == "" {
		cfg.Notifications.SNS.Region = cfg.Mail.AWS.Region
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if cfg.Server.WebSocketURL == "" {
		return fmt.Errorf("server.websocket_url is required")
	}
	if strings.Contains(cfg.Server.BaseURL, PortPlaceholder) && cfg.Server.Port == 0 {
		return fmt.Errorf("server.port is required when base_url contains %s", PortPlaceholder)
	}
	if strings.Contains(cfg.Server.WebSocketURL, PortPlaceholder) && cfg.Server.Port == 0 {
		return fmt.Errorf("server.port is required when websocket_url contains %s", PortPlaceholder)
	}

	switch cfg.Mail.Transport {
	case MailTransportREST:
	case MailTransportSES:
		if cfg.Mail.AWS.FromEmail == "" {
			return fmt.Errorf("mail.aws.from_email is required for the ses transport")
		}
		if len(cfg.Mail.AWS.To) == 0 {
			return fmt.Errorf("mail.aws.to is required for the ses transport")
		}
	default:
		return fmt.Errorf("unsupported mail.transport %q", cfg.Mail.Transport)
	}

	if cfg.Cache.Redis.Enabled && cfg.Cache.Redis.Address == "" {
		return fmt.Errorf("cache.redis.address is required when redis is enabled")
	}
	if cfg.Archive.Postgres.Enabled && cfg.Archive.Postgres.Host == "" {
		return fmt.Errorf("archive.postgres.host is required when the archive is enabled")
	}
	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required when sns is enabled")
	}
	if cfg.Auth.Keycloak.URL != "" && cfg.Auth.Keycloak.ClientID == "" {
		return fmt.Errorf("auth.keycloak.client_id is required when keycloak is configured")
	}
	return nil
}
