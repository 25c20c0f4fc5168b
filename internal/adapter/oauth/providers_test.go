package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-bff/internal/config"
	domainoauth "github.com/smallbiznis/valora-bff/internal/domain/oauth"
)

func testConfig() config.Config {
	return config.Config{
		MicrosoftTenant: "common",
		OAuthProviders: map[string]config.OAuthClientCredentials{
			"slack":   {ClientID: "slack-id", ClientSecret: "slack-secret"},
			"hubspot": {ClientID: "hub-id"},
			"paypal":  {ClientID: "pp-id", ClientSecret: "pp-secret", Scopes: []string{"openid"}},
		},
	}
}

func TestRegistryEnablesConfiguredProviders(t *testing.T) {
	r := NewRegistry(testConfig())

	slugs := []string{}
	for _, p := range r.List() {
		slugs = append(slugs, p.Slug)
	}
	require.Equal(t, []string{"paypal", "slack"}, slugs)

	pp, err := r.Get("PayPal")
	require.NoError(t, err)
	require.Equal(t, []string{"openid"}, pp.Scopes)
	require.Equal(t, "pp-secret", pp.ClientSecret)

	_, err = r.Get("hubspot")
	require.ErrorIs(t, err, domainoauth.ErrProviderNotFound)
}

func TestRegistryRoutesBrokerProviders(t *testing.T) {
	cfg := testConfig()
	cfg.OAuthBrokerURL = "https://broker.example.com"
	cfg.OAuthBrokerProviders = []string{"google"}

	r := NewRegistry(cfg)
	google, err := r.Get("google")
	require.NoError(t, err)
	require.Equal(t, domainoauth.FlowBroker, google.Flow)
	require.True(t, google.PKCE)
	require.Empty(t, google.ClientSecret)

	slack, err := r.Get("slack")
	require.NoError(t, err)
	require.Equal(t, domainoauth.FlowDirect, slack.Flow)
}

func TestBrokerAuthorizeURL(t *testing.T) {
	broker := NewHTTPBrokerClient("https://broker.example.com/", "s3cret", nil)
	raw, err := broker.AuthorizeURL(domainoauth.ProviderConfig{Slug: "google", Scopes: []string{"openid", "email"}},
		"st", "challenge", "https://api.example.com/api/oauth/callback")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "/oauth/google/start", u.Path)
	q := u.Query()
	require.Equal(t, "st", q.Get("state"))
	require.Equal(t, "challenge", q.Get("code_challenge"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, "https://api.example.com/api/oauth/callback", q.Get("redirect_uri"))
	require.Equal(t, "openid email", q.Get("scope"))

	_, err = NewHTTPBrokerClient("", "", nil).AuthorizeURL(domainoauth.ProviderConfig{Slug: "google"}, "st", "c", "r")
	require.Error(t, err)
}

func TestBrokerRedeem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/relay/redeem", r.URL.Path)
		require.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "relay-1", body["relay_code"])
		require.Equal(t, "verifier", body["code_verifier"])
		require.Equal(t, "google", body["provider"])
		_, _ = w.Write([]byte(`{"tokens":{"access_token":"ya29","refresh_token":"1//r","scope":"openid","expires_in":3599}}`))
	}))
	defer srv.Close()

	broker := NewHTTPBrokerClient(srv.URL, "s3cret", srv.Client())
	tok, err := broker.Redeem(context.Background(), domainoauth.ProviderConfig{Slug: "google"}, "relay-1", "verifier")
	require.NoError(t, err)
	require.Equal(t, "ya29", tok.AccessToken)
	require.Equal(t, "1//r", tok.RefreshToken)
	require.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, time.Minute)
}

func TestBrokerRedeemFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"error":"relay_code_used"}`))
	}))
	defer srv.Close()

	broker := NewHTTPBrokerClient(srv.URL, "s3cret", srv.Client())
	_, err := broker.Redeem(context.Background(), domainoauth.ProviderConfig{Slug: "google"}, "relay-1", "verifier")
	require.ErrorContains(t, err, "relay_code_used")
}

func TestParseBrokerTokenFlatPayload(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tok, err := parseBrokerToken([]byte(`{"access_token":"a","expires_at":"2025-01-01T01:00:00Z"}`), now)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Hour), tok.Expiry)

	_, err = parseBrokerToken([]byte(`{"refresh_token":"r"}`), now)
	require.ErrorIs(t, err, domainoauth.ErrTokenInvalid)
}
