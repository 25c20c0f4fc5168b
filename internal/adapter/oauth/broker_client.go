package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	domainoauth "github.com/smallbiznis/valora-bff/internal/domain/oauth"
)

// BrokerClient talks to the relay broker that holds the app registration for
// brokered providers. The broker runs the consent screen and hands back a
// one-time relay code bound to our PKCE challenge.
type BrokerClient interface {
	AuthorizeURL(provider domainoauth.ProviderConfig, state, codeChallenge, returnTo string) (string, error)
	Redeem(ctx context.Context, provider domainoauth.ProviderConfig, relayCode, codeVerifier string) (*domainoauth.TokenSet, error)
	Refresh(ctx context.Context, provider domainoauth.ProviderConfig, refreshToken string) (*domainoauth.TokenSet, error)
}

// HTTPBrokerClient is the default BrokerClient.
type HTTPBrokerClient struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

var _ BrokerClient = (*HTTPBrokerClient)(nil)

// NewHTTPBrokerClient constructs a broker client for baseURL.
func NewHTTPBrokerClient(baseURL, secret string, client *http.Client) *HTTPBrokerClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPBrokerClient{baseURL: strings.TrimRight(baseURL, "/"), secret: secret, httpClient: client}
}

func (c *HTTPBrokerClient) AuthorizeURL(p domainoauth.ProviderConfig, state, codeChallenge, returnTo string) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("broker url missing")
	}
	u, err := url.Parse(c.baseURL + "/oauth/" + url.PathEscape(p.Slug) + "/start")
	if err != nil {
		return "", fmt.Errorf("parse broker url: %w", err)
	}
	q := u.Query()
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "S256")
	q.Set("redirect_uri", returnTo)
	if len(p.Scopes) > 0 {
		q.Set("scope", strings.Join(p.Scopes, " "))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *HTTPBrokerClient) Redeem(ctx context.Context, p domainoauth.ProviderConfig, relayCode, codeVerifier string) (*domainoauth.TokenSet, error) {
	return c.post(ctx, "/relay/redeem", map[string]string{
		"provider":      p.Slug,
		"relay_code":    relayCode,
		"code_verifier": codeVerifier,
	})
}

func (c *HTTPBrokerClient) Refresh(ctx context.Context, p domainoauth.ProviderConfig, refreshToken string) (*domainoauth.TokenSet, error) {
	if refreshToken == "" {
		return nil, domainoauth.ErrTokenInvalid
	}
	tok, err := c.post(ctx, "/relay/refresh", map[string]string{
		"provider":      p.Slug,
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

func (c *HTTPBrokerClient) post(ctx context.Context, path string, payload map[string]string) (*domainoauth.TokenSet, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode broker request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build broker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read broker response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("broker %s failed: status=%d error=%s", path, resp.StatusCode, gjson.GetBytes(raw, "error").String())
	}
	return parseBrokerToken(raw, time.Now())
}

func parseBrokerToken(raw []byte, now time.Time) (*domainoauth.TokenSet, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("decode broker response: invalid json")
	}
	tokens := gjson.GetBytes(raw, "tokens")
	if !tokens.Exists() {
		tokens = gjson.ParseBytes(raw)
	}
	out := &domainoauth.TokenSet{
		AccessToken:  tokens.Get("access_token").String(),
		RefreshToken: tokens.Get("refresh_token").String(),
		TokenType:    tokens.Get("token_type").String(),
		Scope:        tokens.Get("scope").String(),
	}
	switch {
	case tokens.Get("expires_at").Exists():
		if t, err := time.Parse(time.RFC3339, tokens.Get("expires_at").String()); err == nil {
			out.Expiry = t
		}
	case tokens.Get("expires_in").Int() > 0:
		out.Expiry = now.Add(time.Duration(tokens.Get("expires_in").Int()) * time.Second)
	}
	if out.AccessToken == "" {
		return nil, domainoauth.ErrTokenInvalid
	}
	return out, nil
}
