package handler_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-bff/internal/adapter/cache"
	oauthadapter "github.com/smallbiznis/valora-bff/internal/adapter/oauth"
	"github.com/smallbiznis/valora-bff/internal/audit"
	"github.com/smallbiznis/valora-bff/internal/config"
	domainoauth "github.com/smallbiznis/valora-bff/internal/domain/oauth"
	"github.com/smallbiznis/valora-bff/internal/http/handler"
	"github.com/smallbiznis/valora-bff/internal/secret"
	oauthsvc "github.com/smallbiznis/valora-bff/internal/service/oauth"
)

type stubProviderClient struct{}

func (stubProviderClient) AuthCodeURL(p domainoauth.ProviderConfig, state, _, redirectURI string) string {
	return p.AuthURL + "?state=" + url.QueryEscape(state) + "&redirect_uri=" + url.QueryEscape(redirectURI)
}

func (stubProviderClient) ExchangeCode(_ context.Context, _ domainoauth.ProviderConfig, code, _, _ string) (*domainoauth.TokenSet, error) {
	if code == "bad" {
		return &domainoauth.TokenSet{}, nil
	}
	return &domainoauth.TokenSet{AccessToken: "xoxb-" + code, TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}, nil
}

func (stubProviderClient) RefreshToken(_ context.Context, _ domainoauth.ProviderConfig, current domainoauth.TokenSet) (*domainoauth.TokenSet, error) {
	return &current, nil
}

func (stubProviderClient) FetchUserInfo(context.Context, domainoauth.ProviderConfig, string) (*domainoauth.UserInfo, error) {
	return &domainoauth.UserInfo{ExternalID: "U1", Email: "slack@example.com", Name: "Slack User"}, nil
}

type oauthFixture struct {
	engine http.Handler
	conns  *memConnRepo
	audit  *memAuditRepo
}

func newOAuthFixture(t *testing.T, userID string) oauthFixture {
	t.Helper()
	registry := oauthadapter.NewRegistryFrom(domainoauth.ProviderConfig{
		Slug:     "slack",
		Name:     "Slack",
		Category: "communication",
		Flow:     domainoauth.FlowDirect,
		ClientID: "client",
		AuthURL:  "https://slack.example.com/oauth/authorize",
		TokenURL: "https://slack.example.com/oauth/token",
	})
	sealer, err := secret.NewSealer("handler-test-secret")
	require.NoError(t, err)

	conns := newMemConnRepo()
	auditRepo := &memAuditRepo{}
	cfg := config.Config{
		FrontendURL:          "https://app.example.com",
		OAuthRedirectBaseURL: "https://api.example.com",
		OAuthAllowedOrigins:  []string{"https://app.example.com"},
		OAuthStateTTL:        10 * time.Minute,
	}
	svc := oauthsvc.NewService(registry, stubProviderClient{}, nil, cache.NewMemoryStateStore(), conns, sealer,
		audit.NewRecorder(auditRepo, zap.NewNop()), cfg, zap.NewNop())

	h := handler.NewOAuthHandler(svc)
	r := newEngine(testCaller(userID, false))
	r.GET("/api/oauth/providers", h.Providers)
	r.GET("/api/oauth/connections", h.Connections)
	r.GET("/api/oauth/callback", h.Callback)
	r.POST("/api/oauth/state", h.CreateState)
	r.POST("/api/oauth/token", h.Token)
	r.GET("/api/oauth/:slug/start", h.Start)
	r.POST("/api/oauth/:slug/sync", h.Sync)
	r.DELETE("/api/oauth/:slug", h.Disconnect)
	return oauthFixture{engine: r, conns: conns, audit: auditRepo}
}

func TestOAuthCreateStateReturnsChallenge(t *testing.T) {
	f := newOAuthFixture(t, "user-1")

	w := doJSON(t, f.engine, http.MethodPost, "/api/oauth/state", map[string]string{
		"integration": "slack",
		"redirectUri": "https://app.example.com/settings",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	require.NotEmpty(t, body["state"])
	require.Equal(t, "S256", body["codeChallengeMethod"])
	require.NotEmpty(t, body["codeChallenge"])

	expires, err := time.Parse(time.RFC3339Nano, body["expiresAt"].(string))
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), expires, 5*time.Second)
}

func TestOAuthCreateStateValidation(t *testing.T) {
	f := newOAuthFixture(t, "user-1")

	w := doJSON(t, f.engine, http.MethodPost, "/api/oauth/state", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_request", decode(t, w)["error"])

	w = doJSON(t, f.engine, http.MethodPost, "/api/oauth/state", map[string]string{"integration": "Not A Slug"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, f.engine, http.MethodPost, "/api/oauth/state", map[string]string{"integration": "dropbox"})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "provider_not_found", decode(t, w)["error"])

	w = doJSON(t, f.engine, http.MethodPost, "/api/oauth/state", map[string]string{
		"integration": "slack",
		"redirectUri": "https://evil.example.net/steal",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_request", decode(t, w)["error"])
}

func TestOAuthTokenConsumesStateOnce(t *testing.T) {
	f := newOAuthFixture(t, "user-1")

	w := doJSON(t, f.engine, http.MethodPost, "/api/oauth/state", map[string]string{"integration": "slack"})
	require.Equal(t, http.StatusCreated, w.Code)
	state := decode(t, w)["state"].(string)

	w = doJSON(t, f.engine, http.MethodPost, "/api/oauth/token", map[string]string{"state": state, "code": "abc"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	require.Equal(t, true, body["connected"])
	integration := body["integration"].(map[string]any)
	require.Equal(t, "slack", integration["integration_slug"])
	require.Equal(t, "slack@example.com", integration["external_email"])

	tok, err := f.conns.GetToken(context.Background(), "user-1", "slack")
	require.NoError(t, err)
	require.NotEqual(t, "xoxb-abc", tok.AccessToken)
	require.Contains(t, f.audit.actions(), "integration.connected")

	w = doJSON(t, f.engine, http.MethodPost, "/api/oauth/token", map[string]string{"state": state, "code": "abc"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_state", decode(t, w)["error"])
}

func TestOAuthTokenWithoutUsableAccessToken(t *testing.T) {
	f := newOAuthFixture(t, "user-1")

	w := doJSON(t, f.engine, http.MethodPost, "/api/oauth/state", map[string]string{"integration": "slack"})
	state := decode(t, w)["state"].(string)

	w = doJSON(t, f.engine, http.MethodPost, "/api/oauth/token", map[string]string{"state": state, "code": "bad"})
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Equal(t, "token_invalid", decode(t, w)["error"])
}

func TestOAuthStartModes(t *testing.T) {
	f := newOAuthFixture(t, "user-1")

	w := doJSON(t, f.engine, http.MethodGet, "/api/oauth/slack/start?mode=json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Contains(t, body["authorizationUrl"], "https://slack.example.com/oauth/authorize")
	require.NotContains(t, body, "codeChallenge")

	w = doJSON(t, f.engine, http.MethodGet, "/api/oauth/slack/start", nil)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "slack.example.com", loc.Host)
	require.Equal(t, "https://api.example.com/api/oauth/callback", loc.Query().Get("redirect_uri"))
}

func TestOAuthCallbackRedirectsToFrontend(t *testing.T) {
	f := newOAuthFixture(t, "user-1")

	w := doJSON(t, f.engine, http.MethodPost, "/api/oauth/state", map[string]string{
		"integration": "slack",
		"redirectUri": "https://app.example.com/settings",
	})
	state := decode(t, w)["state"].(string)

	w = doJSON(t, f.engine, http.MethodGet, "/api/oauth/callback?state="+url.QueryEscape(state)+"&code=xyz", nil)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "https://app.example.com/settings?connected=slack", w.Header().Get("Location"))

	// Replayed state lands on the default page with an error.
	w = doJSON(t, f.engine, http.MethodGet, "/api/oauth/callback?state="+url.QueryEscape(state)+"&code=xyz", nil)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "https://app.example.com/integrations?error=invalid_state", w.Header().Get("Location"))
}

func TestOAuthCallbackProviderDenied(t *testing.T) {
	f := newOAuthFixture(t, "user-1")

	w := doJSON(t, f.engine, http.MethodPost, "/api/oauth/state", map[string]string{"integration": "slack"})
	state := decode(t, w)["state"].(string)

	w = doJSON(t, f.engine, http.MethodGet, "/api/oauth/callback?state="+url.QueryEscape(state)+"&error=access_denied", nil)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "https://app.example.com/integrations?error=access_denied", w.Header().Get("Location"))
	require.Empty(t, f.conns.tokens)
}

func TestOAuthConnectionsSyncDisconnect(t *testing.T) {
	f := newOAuthFixture(t, "user-1")

	w := doJSON(t, f.engine, http.MethodPost, "/api/oauth/slack/sync", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "not_connected", decode(t, w)["error"])

	w = doJSON(t, f.engine, http.MethodPost, "/api/oauth/state", map[string]string{"integration": "slack"})
	state := decode(t, w)["state"].(string)
	w = doJSON(t, f.engine, http.MethodPost, "/api/oauth/token", map[string]string{"state": state, "code": "abc"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, f.engine, http.MethodGet, "/api/oauth/connections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode(t, w)["connections"], 1)

	w = doJSON(t, f.engine, http.MethodPost, "/api/oauth/slack/sync", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, true, decode(t, w)["synced"])

	w = doJSON(t, f.engine, http.MethodDelete, "/api/oauth/slack", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decode(t, w)["disconnected"])

	w = doJSON(t, f.engine, http.MethodDelete, "/api/oauth/slack", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "not_connected", decode(t, w)["error"])
}

func TestOAuthProvidersListsPublicView(t *testing.T) {
	f := newOAuthFixture(t, "user-1")

	w := doJSON(t, f.engine, http.MethodGet, "/api/oauth/providers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	providers := decode(t, w)["providers"].([]any)
	require.Len(t, providers, 1)
	p := providers[0].(map[string]any)
	require.Equal(t, "slack", p["slug"])
	require.NotContains(t, p, "ClientSecret")
}
