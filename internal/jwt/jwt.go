package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("jwt: invalid token")

var allowedAlgorithms = []gojose.SignatureAlgorithm{gojose.RS256, gojose.RS384, gojose.RS512, gojose.ES256, gojose.ES384, gojose.PS256}

// Verifier checks Authentik access tokens.
type Verifier struct {
	keys     *KeySet
	issuer   string
	audience string
	leeway   time.Duration
}

// NewVerifier constructs a Verifier. An empty audience skips the aud check.
func NewVerifier(keys *KeySet, issuer, audience string) *Verifier {
	return &Verifier{keys: keys, issuer: issuer, audience: audience, leeway: 30 * time.Second}
}

// IssuerURL is the issuer Authentik stamps on tokens of an OAuth2 provider
// bound to application slug.
func IssuerURL(baseURL, slug string) string {
	return strings.TrimRight(baseURL, "/") + "/application/o/" + slug + "/"
}

// JWKSURL is where that provider publishes its keys.
func JWKSURL(baseURL, slug string) string {
	return IssuerURL(baseURL, slug) + "jwks/"
}

// AccessTokenClaims are the profile claims Authentik adds to access tokens.
type AccessTokenClaims struct {
	Email             string   `json:"email"`
	Name              string   `json:"name"`
	PreferredUsername string   `json:"preferred_username"`
	Groups            []string `json:"groups"`
}

// Verify checks signature, issuer, audience and lifetime and returns the caller.
func (v *Verifier) Verify(ctx context.Context, token string) (domain.Principal, error) {
	parsed, err := gojwt.ParseSigned(token, allowedAlgorithms)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: parse: %v", ErrInvalidToken, err)
	}
	if len(parsed.Headers) == 0 {
		return domain.Principal{}, fmt.Errorf("%w: missing header", ErrInvalidToken)
	}
	key, err := v.keys.Key(ctx, parsed.Headers[0].KeyID)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var std gojwt.Claims
	var custom AccessTokenClaims
	if err := parsed.Claims(key.Key, &std, &custom); err != nil {
		return domain.Principal{}, fmt.Errorf("%w: verify: %v", ErrInvalidToken, err)
	}

	expected := gojwt.Expected{Issuer: v.issuer, Time: time.Now()}
	if v.audience != "" {
		expected.AnyAudience = gojwt.Audience{v.audience}
	}
	if err := std.ValidateWithLeeway(expected, v.leeway); err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if std.Subject == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return domain.Principal{
		Subject:           std.Subject,
		Email:             custom.Email,
		Name:              custom.Name,
		PreferredUsername: custom.PreferredUsername,
		Groups:            custom.Groups,
	}, nil
}
