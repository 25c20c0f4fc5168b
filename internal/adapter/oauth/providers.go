package oauth

import (
	"net/http"
	"sort"
	"strings"

	"golang.org/x/oauth2/endpoints"
	"golang.org/x/oauth2/google"

	"github.com/smallbiznis/valora-bff/internal/config"
	domainoauth "github.com/smallbiznis/valora-bff/internal/domain/oauth"
)

// Registry holds the providers enabled by configuration.
type Registry struct {
	providers map[string]domainoauth.ProviderConfig
}

// NewRegistry builds the provider table. A provider is enabled when it has
// client credentials, or when it is routed through a configured broker.
func NewRegistry(cfg config.Config) *Registry {
	r := &Registry{providers: map[string]domainoauth.ProviderConfig{}}
	for _, p := range BuiltinProviders(cfg) {
		creds := cfg.OAuthProviders[p.Slug]
		if len(creds.Scopes) > 0 {
			p.Scopes = creds.Scopes
		}
		if cfg.UsesBroker(p.Slug) {
			p.Flow = domainoauth.FlowBroker
			p.PKCE = true
		} else if !creds.Configured() {
			continue
		}
		p.ClientID = creds.ClientID
		p.ClientSecret = creds.ClientSecret
		r.providers[p.Slug] = p
	}
	return r
}

// NewRegistryFrom wraps an explicit provider list.
func NewRegistryFrom(providers ...domainoauth.ProviderConfig) *Registry {
	r := &Registry{providers: make(map[string]domainoauth.ProviderConfig, len(providers))}
	for _, p := range providers {
		r.providers[p.Slug] = p
	}
	return r
}

// Get returns the provider registered under slug.
func (r *Registry) Get(slug string) (domainoauth.ProviderConfig, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return domainoauth.ProviderConfig{}, domainoauth.ErrProviderNotFound
	}
	return p, nil
}

// List returns the enabled providers ordered by slug.
func (r *Registry) List() []domainoauth.ProviderConfig {
	out := make([]domainoauth.ProviderConfig, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// BuiltinProviders lists every provider the service can connect, enabled or not.
func BuiltinProviders(cfg config.Config) []domainoauth.ProviderConfig {
	paypal := endpoints.PayPal
	paypalAPI := "https://api-m.paypal.com"
	if cfg.PayPalSandbox {
		paypal = endpoints.PayPalSandbox
		paypalAPI = "https://api-m.sandbox.paypal.com"
	}
	microsoft := endpoints.AzureAD(cfg.MicrosoftTenant)

	return []domainoauth.ProviderConfig{
		{
			Slug:     "google",
			Name:     "Google Workspace",
			Category: "productivity",
			Flow:     domainoauth.FlowDirect,
			AuthURL:  google.Endpoint.AuthURL,
			TokenURL: google.Endpoint.TokenURL,
			Scopes: []string{
				"openid", "email", "profile",
				"https://www.googleapis.com/auth/calendar.readonly",
				"https://www.googleapis.com/auth/gmail.readonly",
			},
			PKCE:       true,
			AuthParams: map[string]string{"access_type": "offline", "prompt": "consent"},
			UserInfo: domainoauth.UserInfoSpec{
				Method:         http.MethodGet,
				URL:            "https://openidconnect.googleapis.com/v1/userinfo",
				IDPaths:        []string{"sub"},
				EmailPaths:     []string{"email"},
				NamePaths:      []string{"name"},
				PicturePaths:   []string{"picture"},
				AccountIDPaths: []string{"hd"},
				AccountPaths:   []string{"hd"},
			},
		},
		{
			Slug:     "microsoft",
			Name:     "Microsoft 365",
			Category: "productivity",
			Flow:     domainoauth.FlowDirect,
			AuthURL:  microsoft.AuthURL,
			TokenURL: microsoft.TokenURL,
			Scopes:   []string{"openid", "email", "profile", "offline_access", "User.Read", "Mail.Read", "Calendars.Read"},
			PKCE:     true,
			// Token requests carry the client credentials in the form body.
			SecretInParams: true,
			UserInfo: domainoauth.UserInfoSpec{
				Method:         http.MethodGet,
				URL:            "https://graph.microsoft.com/v1.0/me",
				IDPaths:        []string{"id"},
				EmailPaths:     []string{"mail", "userPrincipalName"},
				NamePaths:      []string{"displayName"},
				AccountIDPaths: []string{"id"},
				AccountPaths:   []string{"userPrincipalName"},
			},
		},
		{
			Slug:           "hubspot",
			Name:           "HubSpot",
			Category:       "crm",
			Flow:           domainoauth.FlowDirect,
			AuthURL:        "https://app.hubspot.com/oauth/authorize",
			TokenURL:       "https://api.hubapi.com/oauth/v1/token",
			Scopes:         []string{"oauth", "crm.objects.contacts.read", "crm.objects.companies.read", "crm.objects.deals.read"},
			SecretInParams: true,
			UserInfo: domainoauth.UserInfoSpec{
				Method:         http.MethodGet,
				URL:            "https://api.hubapi.com/oauth/v1/access-tokens/{token}",
				TokenInURL:     true,
				IDPaths:        []string{"user_id"},
				EmailPaths:     []string{"user"},
				NamePaths:      []string{"user"},
				AccountIDPaths: []string{"hub_id"},
				AccountPaths:   []string{"hub_domain"},
			},
		},
		{
			Slug:           "slack",
			Name:           "Slack",
			Category:       "communication",
			Flow:           domainoauth.FlowDirect,
			AuthURL:        "https://slack.com/oauth/v2/authorize",
			TokenURL:       "https://slack.com/api/oauth.v2.access",
			Scopes:         []string{"channels:read", "chat:write", "users:read", "team:read"},
			SecretInParams: true,
			UserInfo: domainoauth.UserInfoSpec{
				Method:         http.MethodPost,
				URL:            "https://slack.com/api/auth.test",
				OKPath:         "ok",
				IDPaths:        []string{"user_id"},
				NamePaths:      []string{"user"},
				AccountIDPaths: []string{"team_id"},
				AccountPaths:   []string{"team"},
			},
		},
		{
			Slug:     "paypal",
			Name:     "PayPal",
			Category: "finance",
			Flow:     domainoauth.FlowDirect,
			AuthURL:  paypal.AuthURL,
			TokenURL: paypal.TokenURL,
			Scopes:   []string{"openid", "email", "profile", "https://uri.paypal.com/services/paypalattributes"},
			UserInfo: domainoauth.UserInfoSpec{
				Method:         http.MethodGet,
				URL:            paypalAPI + "/v1/identity/oauth2/userinfo?schema=paypalv1.1",
				IDPaths:        []string{"user_id", "payer_id"},
				EmailPaths:     []string{"emails.#(primary==true).value", "emails.0.value", "email"},
				NamePaths:      []string{"name"},
				AccountIDPaths: []string{"payer_id"},
				AccountPaths:   []string{"name"},
			},
		},
	}
}
