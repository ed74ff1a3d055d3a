package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
server:
  port: 9000
  base_url: http://localhost:{port}/api
  websocket_url: ws://localhost:{port}/ws
`

func TestLoadWith_Defaults(t *testing.T) {
	cfg, err := LoadWith(viper.New(), writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000/api/", cfg.Server.ResolvedBaseURL())
	assert.Equal(t, "ws://localhost:9000/ws", cfg.Server.ResolvedWebSocketURL())

	assert.Equal(t, "campaign-client", cfg.App.Name)
	assert.Equal(t, 60*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Session.HandshakeTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.ReconnectDelay)
	assert.Equal(t, 30*time.Second, cfg.Session.MaxReconnectDelay)
	assert.Equal(t, 2.0, cfg.Session.BackoffMultiplier)
	assert.Equal(t, int64(32<<20), cfg.Session.ReadLimit)
	assert.Equal(t, MailTransportREST, cfg.Mail.Transport)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "disable", cfg.Archive.Postgres.SSLMode)
	assert.Equal(t, "us-east-1", cfg.Notifications.SNS.Region)
	assert.Equal(t, "campaign-client", cfg.Observability.ServiceName)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Auth.Enabled())
}

func TestLoadWith_Overrides(t *testing.T) {
	t.Setenv("CAMPAIGN_TEST_SECRET", "s3cr3t")
	t.Setenv("SERVER_WEBSOCKET_URL", "wss://generation.example.com/ws")

	cfg, err := LoadWith(viper.New(), writeConfig(t, minimalConfig+`
session:
  reconnect_delay: 250ms
  max_reconnect_attempts: 3
auth:
  keycloak:
    url: https://sso.example.com
    realm: marketing
    client_id: campaign-client
    client_secret: ${CAMPAIGN_TEST_SECRET}
`))
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Session.ReconnectDelay)
	assert.Equal(t, 3, cfg.Session.MaxReconnectAttempts)
	assert.Equal(t, "s3cr3t", cfg.Auth.Keycloak.ClientSecret)
	assert.True(t, cfg.Auth.Enabled())
	assert.Equal(t, "wss://generation.example.com/ws", cfg.Server.ResolvedWebSocketURL())
}

func TestLoadWith_UnsetVariableExpandsEmpty(t *testing.T) {
	cfg, err := LoadWith(viper.New(), writeConfig(t, minimalConfig+`
auth:
  keycloak:
    url: ${CAMPAIGN_TEST_UNSET_URL}
`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Auth.Keycloak.URL)
	assert.False(t, cfg.Auth.Enabled())
}

func TestLoadWith_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing base url",
			body:    "server:\n  websocket_url: ws://localhost/ws\n",
			wantErr: "server.base_url is required",
		},
		{
			name:    "missing websocket url",
			body:    "server:\n  base_url: http://localhost/\n",
			wantErr: "server.websocket_url is required",
		},
		{
			name:    "placeholder without port",
			body:    "server:\n  base_url: http://localhost:{port}/\n  websocket_url: ws://localhost/ws\n",
			wantErr: "server.port is required",
		},
		{
			name:    "ses without sender",
			body:    minimalConfig + "mail:\n  transport: ses\n  aws:\n    to: [ops@example.com]\n",
			wantErr: "mail.aws.from_email",
		},
		{
			name:    "ses without recipients",
			body:    minimalConfig + "mail:\n  transport: ses\n  aws:\n    from_email: noreply@example.com\n",
			wantErr: "mail.aws.to",
		},
		{
			name:    "unknown transport",
			body:    minimalConfig + "mail:\n  transport: smtp\n",
			wantErr: "unsupported mail.transport",
		},
		{
			name:    "redis without address",
			body:    minimalConfig + "cache:\n  redis:\n    enabled: true\n",
			wantErr: "cache.redis.address",
		},
		{
			name:    "archive without host",
			body:    minimalConfig + "archive:\n  postgres:\n    enabled: true\n",
			wantErr: "archive.postgres.host",
		},
		{
			name:    "sns without topic",
			body:    minimalConfig + "notifications:\n  sns:\n    enabled: true\n",
			wantErr: "notifications.sns.topic_arn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWith(viper.New(), writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "campaigns", SSLMode: "require"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=campaigns sslmode=require", p.GetDSN())
}
