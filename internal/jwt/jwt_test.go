package jwt_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	customjwt "github.com/smallbiznis/valora-bff/internal/jwt"
)

const testIssuer = "https://auth.example.com/application/o/nexus/"

type jwksServer struct {
	*httptest.Server
	keys  atomic.Value
	calls atomic.Int32
}

func newJWKSServer(t *testing.T, keys ...gojose.JSONWebKey) *jwksServer {
	t.Helper()
	s := &jwksServer{}
	s.setKeys(keys...)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		_ = json.NewEncoder(w).Encode(s.keys.Load())
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setKeys(keys ...gojose.JSONWebKey) {
	public := make([]gojose.JSONWebKey, 0, len(keys))
	for _, k := range keys {
		public = append(public, k.Public())
	}
	s.keys.Store(gojose.JSONWebKeySet{Keys: public})
}

func newKey(t *testing.T, kid string) gojose.JSONWebKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return gojose.JSONWebKey{Key: priv, KeyID: kid, Algorithm: string(gojose.RS256), Use: "sig"}
}

func sign(t *testing.T, key gojose.JSONWebKey, std gojwt.Claims, custom any) string {
	t.Helper()
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.RS256, Key: key},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)
	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	require.NoError(t, err)
	return token
}

func validClaims() gojwt.Claims {
	now := time.Now()
	return gojwt.Claims{
		Subject:  "ak-123",
		Issuer:   testIssuer,
		Audience: gojwt.Audience{"client-id"},
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func TestVerifierRoundTrip(t *testing.T) {
	key := newKey(t, "k1")
	srv := newJWKSServer(t, key)
	verifier := customjwt.NewVerifier(customjwt.NewKeySet(srv.URL, srv.Client()), testIssuer, "client-id")

	token := sign(t, key, validClaims(), customjwt.AccessTokenClaims{
		Email:             "ada@example.com",
		Name:              "Ada",
		PreferredUsername: "ada",
		Groups:            []string{"nexus-admins"},
	})
	principal, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "ak-123", principal.Subject)
	require.Equal(t, "ada@example.com", principal.Email)
	require.True(t, principal.InGroup("nexus-admins"))
}

func TestVerifierRejectsBadClaims(t *testing.T) {
	key := newKey(t, "k1")
	srv := newJWKSServer(t, key)
	verifier := customjwt.NewVerifier(customjwt.NewKeySet(srv.URL, srv.Client()), testIssuer, "client-id")

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "https://elsewhere/"
	expired := validClaims()
	expired.Expiry = gojwt.NewNumericDate(time.Now().Add(-time.Hour))
	wrongAudience := validClaims()
	wrongAudience.Audience = gojwt.Audience{"other"}

	for name, claims := range map[string]gojwt.Claims{
		"issuer":   wrongIssuer,
		"expired":  expired,
		"audience": wrongAudience,
	} {
		_, err := verifier.Verify(context.Background(), sign(t, key, claims, struct{}{}))
		require.ErrorIs(t, err, customjwt.ErrInvalidToken, name)
	}

	_, err := verifier.Verify(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, customjwt.ErrInvalidToken)
}

func TestVerifierRejectsForeignSignature(t *testing.T) {
	trusted := newKey(t, "k1")
	srv := newJWKSServer(t, trusted)
	verifier := customjwt.NewVerifier(customjwt.NewKeySet(srv.URL, srv.Client()), testIssuer, "")

	forged := newKey(t, "k1")
	_, err := verifier.Verify(context.Background(), sign(t, forged, validClaims(), struct{}{}))
	require.ErrorIs(t, err, customjwt.ErrInvalidToken)
}

func TestKeySetRefreshesOnUnknownKid(t *testing.T) {
	first := newKey(t, "k1")
	srv := newJWKSServer(t, first)
	keys := customjwt.NewKeySet(srv.URL, srv.Client())
	ctx := context.Background()

	_, err := keys.Key(ctx, "k1")
	require.NoError(t, err)
	require.EqualValues(t, 1, srv.calls.Load())

	// A rotated key is picked up only once the refresh interval has passed.
	srv.setKeys(first, newKey(t, "k2"))
	_, err = keys.Key(ctx, "k2")
	require.ErrorIs(t, err, customjwt.ErrUnknownKey)
	require.EqualValues(t, 1, srv.calls.Load())

	require.NoError(t, keys.Refresh(ctx))
	_, err = keys.Key(ctx, "k2")
	require.NoError(t, err)
}

func TestIssuerURLs(t *testing.T) {
	require.Equal(t, testIssuer, customjwt.IssuerURL("https://auth.example.com/", "nexus"))
	require.Equal(t, testIssuer+"jwks/", customjwt.JWKSURL("https://auth.example.com", "nexus"))
}
