package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/nexus")
	t.Setenv("AUTHENTIK_BASE_URL", "https://auth.example.com/")
	t.Setenv("TOKEN_ENCRYPTION_KEY", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("FRONTEND_URL", "https://app.example.com/")
	t.Setenv("GOOGLE_CLIENT_ID", "gid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "gsecret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://auth.example.com", cfg.AuthentikBaseURL)
	require.Equal(t, "https://app.example.com", cfg.FrontendURL)
	require.Equal(t, []string{"https://app.example.com"}, cfg.OAuthAllowedOrigins)
	require.Equal(t, 10*time.Minute, cfg.OAuthStateTTL)
	require.True(t, cfg.OAuthProviders["google"].Configured())
	require.False(t, cfg.OAuthProviders["slack"].Configured())
	require.False(t, cfg.UsesBroker("google"))
	require.False(t, cfg.RedisEnabled())
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.EqualError(t, err, "DATABASE_URL is required")
}

func TestLoadBrokerNeedsSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("OAUTH_BROKER_URL", "https://broker.example.com")
	t.Setenv("OAUTH_BROKER_SECRET", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("OAUTH_BROKER_SECRET", "s3cret")
	t.Setenv("OAUTH_BROKER_PROVIDERS", "google, hubspot")
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.UsesBroker("Google"))
	require.True(t, cfg.UsesBroker("hubspot"))
	require.False(t, cfg.UsesBroker("slack"))
}

func TestGetList(t *testing.T) {
	t.Setenv("SOME_LIST", " a, ,b ,")
	require.Equal(t, []string{"a", "b"}, getList("SOME_LIST", nil))
	t.Setenv("SOME_LIST", " , ")
	require.Equal(t, []string{"x"}, getList("SOME_LIST", []string{"x"}))
}

func TestGetFloat(t *testing.T) {
	t.Setenv("SOME_RATIO", "0.25")
	require.Equal(t, 0.25, getFloat("SOME_RATIO", 1))
	t.Setenv("SOME_RATIO", "lots")
	require.Equal(t, 1.0, getFloat("SOME_RATIO", 1))
}
