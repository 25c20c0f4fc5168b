package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	domainoauth "github.com/smallbiznis/valora-bff/internal/domain/oauth"
)

// ProviderClient encapsulates outbound calls to third-party OAuth providers.
type ProviderClient interface {
	AuthCodeURL(provider domainoauth.ProviderConfig, state, codeVerifier, redirectURI string) string
	ExchangeCode(ctx context.Context, provider domainoauth.ProviderConfig, code, codeVerifier, redirectURI string) (*domainoauth.TokenSet, error)
	RefreshToken(ctx context.Context, provider domainoauth.ProviderConfig, current domainoauth.TokenSet) (*domainoauth.TokenSet, error)
	FetchUserInfo(ctx context.Context, provider domainoauth.ProviderConfig, accessToken string) (*domainoauth.UserInfo, error)
}

// HTTPProviderClient is the default implementation on top of x/oauth2.
type HTTPProviderClient struct {
	httpClient *http.Client
}

var _ ProviderClient = (*HTTPProviderClient)(nil)

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{httpClient: client}
}

func (c *HTTPProviderClient) oauthConfig(p domainoauth.ProviderConfig, redirectURI string) *oauth2.Config {
	style := oauth2.AuthStyleAutoDetect
	if p.SecretInParams {
		style = oauth2.AuthStyleInParams
	}
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.AuthURL,
			TokenURL:  p.TokenURL,
			AuthStyle: style,
		},
		RedirectURL: redirectURI,
		Scopes:      p.Scopes,
	}
}

func (c *HTTPProviderClient) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// AuthCodeURL builds the provider consent URL, adding the S256 challenge when
// the provider supports PKCE.
func (c *HTTPProviderClient) AuthCodeURL(p domainoauth.ProviderConfig, state, codeVerifier, redirectURI string) string {
	opts := make([]oauth2.AuthCodeOption, 0, len(p.AuthParams)+1)
	if p.PKCE && codeVerifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(codeVerifier))
	}
	for k, v := range p.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return c.oauthConfig(p, redirectURI).AuthCodeURL(state, opts...)
}

// ExchangeCode performs the authorization-code grant.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, p domainoauth.ProviderConfig, code, codeVerifier, redirectURI string) (*domainoauth.TokenSet, error) {
	var opts []oauth2.AuthCodeOption
	if p.PKCE && codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}
	tok, err := c.oauthConfig(p, redirectURI).Exchange(c.withClient(ctx), code, opts...)
	if err != nil {
		return nil, describeTokenError("token exchange", err)
	}
	return tokenSetFrom(tok), nil
}

// RefreshToken trades the stored refresh token for a fresh access token.
// Providers that do not rotate refresh tokens keep the current one.
func (c *HTTPProviderClient) RefreshToken(ctx context.Context, p domainoauth.ProviderConfig, current domainoauth.TokenSet) (*domainoauth.TokenSet, error) {
	if current.RefreshToken == "" {
		return nil, domainoauth.ErrTokenInvalid
	}
	src := c.oauthConfig(p, "").TokenSource(c.withClient(ctx), &oauth2.Token{
		RefreshToken: current.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, describeTokenError("token refresh", err)
	}
	out := tokenSetFrom(tok)
	if out.RefreshToken == "" {
		out.RefreshToken = current.RefreshToken
	}
	if out.Scope == "" {
		out.Scope = current.Scope
	}
	return out, nil
}

// FetchUserInfo loads the connected identity and normalizes it with the
// provider's JSON paths.
func (c *HTTPProviderClient) FetchUserInfo(ctx context.Context, p domainoauth.ProviderConfig, accessToken string) (*domainoauth.UserInfo, error) {
	spec := p.UserInfo
	if strings.TrimSpace(spec.URL) == "" {
		return nil, fmt.Errorf("userinfo url missing")
	}
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	endpoint := strings.ReplaceAll(spec.URL, "{token}", url.PathEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	if !spec.TokenInURL {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("userinfo failed: status=%d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode userinfo: invalid json")
	}
	if spec.OKPath != "" && !gjson.GetBytes(body, spec.OKPath).Bool() {
		return nil, fmt.Errorf("userinfo rejected: %s", gjson.GetBytes(body, "error").String())
	}

	return NormalizeUserInfo(spec, body), nil
}

// NormalizeUserInfo maps a provider payload onto UserInfo.
func NormalizeUserInfo(spec domainoauth.UserInfoSpec, body []byte) *domainoauth.UserInfo {
	return &domainoauth.UserInfo{
		ExternalID:  firstPath(body, spec.IDPaths),
		Email:       firstPath(body, spec.EmailPaths),
		Name:        firstPath(body, spec.NamePaths),
		Picture:     firstPath(body, spec.PicturePaths),
		AccountID:   firstPath(body, spec.AccountIDPaths),
		AccountName: firstPath(body, spec.AccountPaths),
		Raw:         body,
	}
}

func firstPath(body []byte, paths []string) string {
	for _, p := range paths {
		if v := strings.TrimSpace(gjson.GetBytes(body, p).String()); v != "" {
			return v
		}
	}
	return ""
}

func tokenSetFrom(tok *oauth2.Token) *domainoauth.TokenSet {
	out := &domainoauth.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scope = scope
	}
	return out
}

func describeTokenError(op string, err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.ErrorCode != "" {
		return fmt.Errorf("%s failed: %s: %w", op, rErr.ErrorCode, err)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
