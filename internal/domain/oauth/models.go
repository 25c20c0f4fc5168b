package oauth

import "time"

// Flow identifies how a provider's authorization code is obtained.
type Flow string

const (
	// FlowDirect is a plain authorization-code grant against the provider.
	FlowDirect Flow = "direct"
	// FlowBroker relays the grant through an external broker that returns a relay code.
	FlowBroker Flow = "broker"
)

// Provider is the public view of a connectable provider.
type Provider struct {
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Flow     Flow     `json:"flow"`
	Scopes   []string `json:"scopes"`
}

// ProviderConfig is the resolved registration used to talk to a provider.
type ProviderConfig struct {
	Slug         string
	Name         string
	Category     string
	Flow         Flow
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	PKCE         bool
	// SecretInParams sends client credentials in the form body instead of basic auth.
	SecretInParams bool
	AuthParams     map[string]string
	UserInfo       UserInfoSpec
}

// Public strips credentials.
func (p ProviderConfig) Public() Provider {
	return Provider{Slug: p.Slug, Name: p.Name, Category: p.Category, Flow: p.Flow, Scopes: p.Scopes}
}

// UserInfoSpec describes where a provider exposes the connected identity and
// which JSON paths hold each normalized field. Paths are tried in order.
type UserInfoSpec struct {
	Method string
	// URL may contain {token}, replaced with the access token.
	URL string
	// TokenInURL skips the bearer header.
	TokenInURL     bool
	OKPath         string
	IDPaths        []string
	EmailPaths     []string
	NamePaths      []string
	PicturePaths   []string
	AccountIDPaths []string
	AccountPaths   []string
}

// State captures the per-flow record persisted between start and callback.
type State struct {
	State           string    `json:"state"`
	CodeVerifier    string    `json:"code_verifier"`
	UserID          string    `json:"user_id"`
	IntegrationSlug string    `json:"integration_slug"`
	RedirectURI     string    `json:"redirect_uri"`
	Timestamp       time.Time `json:"timestamp"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its deadline.
func (s State) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// TokenSet is the normalized token response from a provider or broker.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	Expiry       time.Time
}

// UserInfo is the provider identity normalized across providers.
type UserInfo struct {
	ExternalID  string
	Email       string
	Name        string
	Picture     string
	AccountID   string
	AccountName string
	Raw         []byte
}

// StoredToken is an oauth_tokens row after unsealing.
type StoredToken struct {
	UserID          string
	IntegrationSlug string
	TokenSet
	UpdatedAt time.Time
}
