package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// clearConfigEnv unsets all config env vars so tests start clean.
func clearConfigEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"SERVICE_PORT",
		"SERVICE_REMOTE_TARGET",
		"SERVICE_SHUTDOWN_TIMEOUT",
		"SERVICE_READINESS_DRAIN_DELAY",
		"LOG_LEVEL",
		"TRACING_SAMPLE_RATE",
		"DATABASE_DRIVER",
		"DATABASE_URL",
		"AUTH_TOKEN_SECRET",
		"AUTH_LOGIN_TTL",
		"AUTH_INSECURE_TRANSPORT",
		"GOOGLE_OAUTH_CLIENT_ID",
		"GOOGLE_OAUTH_CLIENT_SECRET",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("AUTH_TOKEN_SECRET", testSecret)
}

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.Service.Port)
	assert.Equal(t, TargetLocal, cfg.Service.RemoteTarget)
	assert.Equal(t, 14*24*time.Hour, cfg.Auth.LoginTTL)
	assert.False(t, cfg.Auth.InsecureTransport)
	assert.False(t, cfg.GoogleOAuth.Enabled())
	assert.Equal(t, "https://www.googleapis.com/oauth2/v3/certs", cfg.GoogleOAuth.JWKSURL)
	assert.Equal(t, 10*time.Second, cfg.GetShutdownTimeoutDuration())
	assert.Equal(t, time.Duration(0), cfg.GetReadinessDrainDelayDuration())
}

func TestLoad_GoogleOAuthEnabled(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("GOOGLE_OAUTH_CLIENT_ID", "client")
	t.Setenv("GOOGLE_OAUTH_CLIENT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.GoogleOAuth.Enabled())
}

func TestValidate_GoogleOAuthHalfConfigured(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("GOOGLE_OAUTH_CLIENT_ID", "client")

	cfg, err := Load()
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set together")
}

func TestValidate_TokenSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{name: "missing", secret: "", want: "32 bytes"},
		{name: "not hex", secret: strings.Repeat("zz", 32), want: "hex encoded"},
		{name: "short", secret: "0001", want: "32 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			setMinimalEnv(t)
			t.Setenv("AUTH_TOKEN_SECRET", tt.secret)

			cfg, err := Load()
			require.NoError(t, err)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_PostgresRequiresURL(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("DATABASE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidate_InsecureTransportOnlyLocal(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("SERVICE_REMOTE_TARGET", "release")
	t.Setenv("AUTH_INSECURE_TRANSPORT", "true")

	cfg, err := Load()
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_INSECURE_TRANSPORT")
}

func TestValidate_UnknownRemoteTarget(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("SERVICE_REMOTE_TARGET", "Staging")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Service.RemoteTarget)
	require.Error(t, cfg.Validate())
}

func TestDurationsFallBackOnGarbage(t *testing.T) {
	cfg := &Config{Service: ServiceConfig{ShutdownTimeout: "soon", ReadinessDrainDelay: "-1s"}}
	assert.Equal(t, 10*time.Second, cfg.GetShutdownTimeoutDuration())
	assert.Equal(t, time.Duration(0), cfg.GetReadinessDrainDelayDuration())
}
