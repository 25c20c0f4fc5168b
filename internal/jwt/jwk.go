package jwt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"
)

// ErrUnknownKey means the token's kid is not in the issuer's key set, even
// after a refresh.
var ErrUnknownKey = errors.New("jwt: unknown signing key")

// KeySet caches a remote JWKS document. Lookups for an unknown kid trigger a
// refresh, at most once per minRefresh.
type KeySet struct {
	url        string
	httpClient *http.Client
	minRefresh time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	keys      jose.JSONWebKeySet
	fetchedAt time.Time
	group     singleflight.Group
}

// NewKeySet constructs a KeySet for the JWKS at url.
func NewKeySet(url string, httpClient *http.Client) *KeySet {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &KeySet{url: url, httpClient: httpClient, minRefresh: 30 * time.Second, now: time.Now}
}

// Key returns the verification key for kid. An empty kid matches the only key
// of a single-key set.
func (s *KeySet) Key(ctx context.Context, kid string) (*jose.JSONWebKey, error) {
	if key := s.lookup(kid); key != nil {
		return key, nil
	}
	if !s.refreshDue() {
		return nil, ErrUnknownKey
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	if key := s.lookup(kid); key != nil {
		return key, nil
	}
	return nil, ErrUnknownKey
}

// Refresh reloads the key set. Concurrent callers share one request.
func (s *KeySet) Refresh(ctx context.Context) error {
	_, err, _ := s.group.Do("jwks", func() (any, error) {
		keys, err := s.fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.keys = keys
		s.fetchedAt = s.now()
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

func (s *KeySet) lookup(kid string) *jose.JSONWebKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if kid == "" {
		if len(s.keys.Keys) == 1 {
			return &s.keys.Keys[0]
		}
		return nil
	}
	if found := s.keys.Key(kid); len(found) > 0 {
		return &found[0]
	}
	return nil
}

func (s *KeySet) refreshDue() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt.IsZero() || s.now().Sub(s.fetchedAt) >= s.minRefresh
}

func (s *KeySet) fetch(ctx context.Context) (jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("build jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return jose.JSONWebKeySet{}, fmt.Errorf("fetch jwks: status=%d", resp.StatusCode)
	}
	var keys jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&keys); err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("decode jwks: %w", err)
	}
	return keys, nil
}
