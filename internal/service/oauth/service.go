package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	oauthadapter "github.com/smallbiznis/valora-bff/internal/adapter/oauth"
	"github.com/smallbiznis/valora-bff/internal/audit"
	"github.com/smallbiznis/valora-bff/internal/config"
	"github.com/smallbiznis/valora-bff/internal/domain"
	domainoauth "github.com/smallbiznis/valora-bff/internal/domain/oauth"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

// Service orchestrates connecting third-party accounts.
type Service interface {
	ListProviders(ctx context.Context) []domainoauth.Provider
	Start(ctx context.Context, in StartInput) (*Authorization, error)
	CreateState(ctx context.Context, in StartInput) (*Authorization, error)
	HandleCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error)
	ExchangeToken(ctx context.Context, userID string, in ExchangeInput) (*domain.UserIntegration, error)
	Sync(ctx context.Context, userID, slug string) (*domain.UserIntegration, error)
	ListConnections(ctx context.Context, userID string) ([]domain.UserIntegration, error)
	Disconnect(ctx context.Context, userID, slug string) error
}

// TokenSealer encrypts provider tokens before they reach the database.
type TokenSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// StartInput begins a connect flow for UserID.
type StartInput struct {
	UserID      string
	Slug        string
	RedirectURI string
}

// Authorization is a freshly issued state together with where to send the user.
type Authorization struct {
	AuthorizationURL    string    `json:"authorizationUrl"`
	State               string    `json:"state"`
	CodeChallenge       string    `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string    `json:"codeChallengeMethod,omitempty"`
	ExpiresAt           time.Time `json:"expiresAt"`
}

// CallbackInput carries the query of a provider or broker redirect.
type CallbackInput struct {
	State            string
	Code             string
	RelayCode        string
	Error            string
	ErrorDescription string
}

// CallbackResult tells the handler where to send the browser. RedirectURL is
// always set, also when the flow failed.
type CallbackResult struct {
	RedirectURL string
	Connection  *domain.UserIntegration
}

// ExchangeInput completes a flow from an authenticated client.
type ExchangeInput struct {
	State     string
	Code      string
	RelayCode string
}

const statePrefix = "oauth:state:"

var flowOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bff_oauth_flows_total",
	Help: "OAuth connect flows by provider and outcome.",
}, []string{"provider", "outcome"})

type service struct {
	registry   *oauthadapter.Registry
	client     oauthadapter.ProviderClient
	broker     oauthadapter.BrokerClient
	states     repository.OAuthStateStore
	conns      repository.ConnectionRepository
	sealer     TokenSealer
	audit      *audit.Recorder
	cfg        config.Config
	logger     *zap.Logger
	now        func() time.Time
	allowed    map[string]struct{}
	defaultURL string
}

// NewService wires the OAuth service implementation.
func NewService(
	registry *oauthadapter.Registry,
	client oauthadapter.ProviderClient,
	broker oauthadapter.BrokerClient,
	states repository.OAuthStateStore,
	conns repository.ConnectionRepository,
	sealer TokenSealer,
	recorder *audit.Recorder,
	cfg config.Config,
	logger *zap.Logger,
) Service {
	allowed := make(map[string]struct{}, len(cfg.OAuthAllowedOrigins))
	for _, origin := range cfg.OAuthAllowedOrigins {
		allowed[strings.TrimRight(strings.ToLower(origin), "/")] = struct{}{}
	}
	return &service{
		registry:   registry,
		client:     client,
		broker:     broker,
		states:     states,
		conns:      conns,
		sealer:     sealer,
		audit:      recorder,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		allowed:    allowed,
		defaultURL: cfg.FrontendURL + "/integrations",
	}
}

func (s *service) ListProviders(context.Context) []domainoauth.Provider {
	providers := s.registry.List()
	out := make([]domainoauth.Provider, 0, len(providers))
	for _, p := range providers {
		out = append(out, p.Public())
	}
	return out
}

func (s *service) Start(ctx context.Context, in StartInput) (*Authorization, error) {
	authz, err := s.CreateState(ctx, in)
	if err != nil {
		return nil, err
	}
	return &Authorization{AuthorizationURL: authz.AuthorizationURL, State: authz.State, ExpiresAt: authz.ExpiresAt}, nil
}

func (s *service) CreateState(ctx context.Context, in StartInput) (*Authorization, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, domainoauth.ErrInvalidRequest
	}
	provider, err := s.registry.Get(in.Slug)
	if err != nil {
		return nil, err
	}
	redirect, err := s.resolveRedirect(in.RedirectURI)
	if err != nil {
		return nil, err
	}

	state, err := secureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()
	challenge := oauth2.S256ChallengeFromVerifier(verifier)

	now := s.now().UTC()
	record := domainoauth.State{
		State:           state,
		CodeVerifier:    verifier,
		UserID:          in.UserID,
		IntegrationSlug: provider.Slug,
		RedirectURI:     redirect,
		Timestamp:       now,
		ExpiresAt:       now.Add(s.cfg.OAuthStateTTL),
	}

	var authURL string
	if provider.Flow == domainoauth.FlowBroker {
		authURL, err = s.broker.AuthorizeURL(provider, state, challenge, s.callbackURL())
		if err != nil {
			return nil, fmt.Errorf("broker authorize url: %w", err)
		}
	} else {
		authURL = s.client.AuthCodeURL(provider, state, verifier, s.callbackURL())
	}

	if err := s.states.SaveState(ctx, buildStateKey(state), record, s.cfg.OAuthStateTTL); err != nil {
		return nil, fmt.Errorf("persist state: %w", err)
	}
	flowOutcomes.WithLabelValues(provider.Slug, "started").Inc()
	s.log().Info("oauth flow started",
		zap.String("provider", provider.Slug),
		zap.String("flow", string(provider.Flow)),
		zap.String("user_id", in.UserID),
	)

	return &Authorization{
		AuthorizationURL:    authURL,
		State:               state,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		ExpiresAt:           record.ExpiresAt,
	}, nil
}

func (s *service) HandleCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	if strings.TrimSpace(in.State) == "" {
		return &CallbackResult{RedirectURL: withQuery(s.defaultURL, "error", ErrorCode(domainoauth.ErrInvalidRequest))}, domainoauth.ErrInvalidRequest
	}
	state, err := s.consumeState(ctx, in.State)
	if err != nil {
		return &CallbackResult{RedirectURL: withQuery(s.defaultURL, "error", ErrorCode(err))}, err
	}
	target := state.RedirectURI
	if target == "" {
		target = s.defaultURL
	}

	if in.Error != "" {
		flowOutcomes.WithLabelValues(state.IntegrationSlug, "denied").Inc()
		s.log().Info("oauth provider returned error",
			zap.String("provider", state.IntegrationSlug),
			zap.String("error", in.Error),
			zap.String("error_description", in.ErrorDescription),
		)
		return &CallbackResult{RedirectURL: withQuery(target, "error", in.Error)},
			fmt.Errorf("%w: %s", domainoauth.ErrProviderDenied, in.Error)
	}

	conn, err := s.complete(ctx, state, in.Code, in.RelayCode)
	if err != nil {
		return &CallbackResult{RedirectURL: withQuery(target, "error", ErrorCode(err))}, err
	}
	return &CallbackResult{RedirectURL: withQuery(target, "connected", state.IntegrationSlug), Connection: conn}, nil
}

func (s *service) ExchangeToken(ctx context.Context, userID string, in ExchangeInput) (*domain.UserIntegration, error) {
	if strings.TrimSpace(in.State) == "" || (in.Code == "" && in.RelayCode == "") {
		return nil, domainoauth.ErrInvalidRequest
	}
	state, err := s.consumeState(ctx, in.State)
	if err != nil {
		return nil, err
	}
	if state.UserID != userID {
		s.log().Warn("oauth state presented by another user",
			zap.String("provider", state.IntegrationSlug),
			zap.String("user_id", userID),
		)
		return nil, domainoauth.ErrInvalidState
	}
	return s.complete(ctx, state, in.Code, in.RelayCode)
}

func (s *service) Sync(ctx context.Context, userID, slug string) (*domain.UserIntegration, error) {
	provider, err := s.registry.Get(slug)
	if err != nil {
		return nil, err
	}
	sealed, err := s.conns.GetToken(ctx, userID, provider.Slug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domainoauth.ErrNotConnected
		}
		return nil, fmt.Errorf("load token: %w", err)
	}
	token, err := s.openToken(sealed)
	if err != nil {
		return nil, err
	}

	if !token.Expiry.IsZero() && !token.Expiry.After(s.now().Add(time.Minute)) {
		refreshed, err := s.refresh(ctx, provider, *token)
		if err != nil {
			s.markError(ctx, userID, provider.Slug)
			flowOutcomes.WithLabelValues(provider.Slug, "refresh_failed").Inc()
			return nil, fmt.Errorf("%w: %v", domainoauth.ErrTokenInvalid, err)
		}
		next, err := s.sealToken(*refreshed)
		if err != nil {
			return nil, err
		}
		if err := s.conns.SaveToken(ctx, userID, provider.Slug, next); err != nil {
			return nil, fmt.Errorf("persist refreshed token: %w", err)
		}
		token = refreshed
	}

	info, err := s.client.FetchUserInfo(ctx, provider, token.AccessToken)
	if err != nil {
		s.markError(ctx, userID, provider.Slug)
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}

	conn := connectionFrom(userID, provider.Slug, info)
	syncedAt := s.now().UTC()
	if err := s.conns.MarkSynced(ctx, conn, syncedAt); err != nil {
		return nil, fmt.Errorf("mark synced: %w", err)
	}
	conn.LastSyncedAt = &syncedAt

	flowOutcomes.WithLabelValues(provider.Slug, "synced").Inc()
	s.audit.Record(ctx, audit.Event{
		ActorID:      userID,
		Action:       "integration.synced",
		ResourceType: "integration",
		ResourceID:   provider.Slug,
	})
	return &conn, nil
}

func (s *service) ListConnections(ctx context.Context, userID string) ([]domain.UserIntegration, error) {
	conns, err := s.conns.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return conns, nil
}

func (s *service) Disconnect(ctx context.Context, userID, slug string) error {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return domainoauth.ErrInvalidRequest
	}
	if err := s.conns.Delete(ctx, userID, slug); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domainoauth.ErrNotConnected
		}
		return fmt.Errorf("disconnect: %w", err)
	}
	flowOutcomes.WithLabelValues(slug, "disconnected").Inc()
	s.audit.Record(ctx, audit.Event{
		ActorID:      userID,
		Action:       "integration.disconnected",
		ResourceType: "integration",
		ResourceID:   slug,
	})
	return nil
}

// consumeState removes the record whatever its condition; a state can be
// presented only once.
func (s *service) consumeState(ctx context.Context, raw string) (*domainoauth.State, error) {
	state, err := s.states.ConsumeState(ctx, buildStateKey(raw))
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		return nil, domainoauth.ErrInvalidState
	}
	if state.Expired(s.now()) {
		flowOutcomes.WithLabelValues(state.IntegrationSlug, "expired").Inc()
		return nil, domainoauth.ErrStateExpired
	}
	return state, nil
}

func (s *service) complete(ctx context.Context, state *domainoauth.State, code, relayCode string) (*domain.UserIntegration, error) {
	provider, err := s.registry.Get(state.IntegrationSlug)
	if err != nil {
		return nil, err
	}

	token, err := s.exchange(ctx, provider, state, code, relayCode)
	if err != nil {
		flowOutcomes.WithLabelValues(provider.Slug, "exchange_failed").Inc()
		return nil, err
	}

	info, err := s.client.FetchUserInfo(ctx, provider, token.AccessToken)
	if err != nil {
		// The grant is already spent; keep the tokens and let a later sync fill the identity.
		s.log().Warn("oauth userinfo unavailable",
			zap.String("provider", provider.Slug),
			zap.Error(err),
		)
		info = &domainoauth.UserInfo{}
	}

	sealed, err := s.sealToken(*token)
	if err != nil {
		return nil, err
	}
	conn := connectionFrom(state.UserID, provider.Slug, info)
	if err := s.conns.SaveConnection(ctx, conn, sealed); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}
	conn.ConnectedAt = s.now().UTC()

	flowOutcomes.WithLabelValues(provider.Slug, "connected").Inc()
	s.audit.Record(ctx, audit.Event{
		ActorID:      state.UserID,
		Action:       "integration.connected",
		ResourceType: "integration",
		ResourceID:   provider.Slug,
		Metadata:     map[string]any{"flow": string(provider.Flow), "external_email": info.Email},
	})
	s.log().Info("oauth connection saved",
		zap.String("provider", provider.Slug),
		zap.String("user_id", state.UserID),
	)
	return &conn, nil
}

func (s *service) exchange(ctx context.Context, p domainoauth.ProviderConfig, state *domainoauth.State, code, relayCode string) (*domainoauth.TokenSet, error) {
	var (
		token *domainoauth.TokenSet
		err   error
	)
	if p.Flow == domainoauth.FlowBroker {
		if relayCode == "" {
			relayCode = code
		}
		if relayCode == "" {
			return nil, domainoauth.ErrInvalidRequest
		}
		token, err = s.broker.Redeem(ctx, p, relayCode, state.CodeVerifier)
	} else {
		if code == "" {
			return nil, domainoauth.ErrInvalidRequest
		}
		token, err = s.client.ExchangeCode(ctx, p, code, state.CodeVerifier, s.callbackURL())
	}
	if err != nil {
		if errors.Is(err, domainoauth.ErrTokenInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return nil, domainoauth.ErrTokenInvalid
	}
	return token, nil
}

func (s *service) refresh(ctx context.Context, p domainoauth.ProviderConfig, current domainoauth.TokenSet) (*domainoauth.TokenSet, error) {
	if p.Flow == domainoauth.FlowBroker {
		return s.broker.Refresh(ctx, p, current.RefreshToken)
	}
	return s.client.RefreshToken(ctx, p, current)
}

func (s *service) markError(ctx context.Context, userID, slug string) {
	if err := s.conns.MarkStatus(ctx, userID, slug, domain.IntegrationError); err != nil {
		s.log().Warn("mark integration error", zap.String("provider", slug), zap.Error(err))
	}
}

func (s *service) sealToken(t domainoauth.TokenSet) (repository.SealedToken, error) {
	access, err := s.sealer.Seal(t.AccessToken)
	if err != nil {
		return repository.SealedToken{}, fmt.Errorf("seal access token: %w", err)
	}
	out := repository.SealedToken{
		AccessToken: access,
		TokenType:   optional(t.TokenType),
		Scope:       optional(t.Scope),
	}
	if t.RefreshToken != "" {
		refresh, err := s.sealer.Seal(t.RefreshToken)
		if err != nil {
			return repository.SealedToken{}, fmt.Errorf("seal refresh token: %w", err)
		}
		out.RefreshToken = &refresh
	}
	if !t.Expiry.IsZero() {
		expiry := t.Expiry.UTC()
		out.ExpiresAt = &expiry
	}
	return out, nil
}

func (s *service) openToken(sealed repository.SealedToken) (*domainoauth.TokenSet, error) {
	access, err := s.sealer.Open(sealed.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	out := &domainoauth.TokenSet{AccessToken: access}
	if sealed.RefreshToken != nil {
		if out.RefreshToken, err = s.sealer.Open(*sealed.RefreshToken); err != nil {
			return nil, fmt.Errorf("open refresh token: %w", err)
		}
	}
	if sealed.TokenType != nil {
		out.TokenType = *sealed.TokenType
	}
	if sealed.Scope != nil {
		out.Scope = *sealed.Scope
	}
	if sealed.ExpiresAt != nil {
		out.Expiry = *sealed.ExpiresAt
	}
	return out, nil
}

// resolveRedirect accepts only absolute http(s) URLs on an allowed origin.
// An empty value falls back to the frontend integrations page.
func (s *service) resolveRedirect(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.defaultURL, nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", domainoauth.ErrInvalidRequest
	}
	origin := strings.ToLower(u.Scheme + "://" + u.Host)
	if _, ok := s.allowed[origin]; !ok {
		return "", domainoauth.ErrInvalidRequest
	}
	return u.String(), nil
}

func (s *service) callbackURL() string {
	return s.cfg.OAuthRedirectBaseURL + "/api/oauth/callback"
}

func (s *service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func connectionFrom(userID, slug string, info *domainoauth.UserInfo) domain.UserIntegration {
	conn := domain.UserIntegration{
		UserID:          userID,
		IntegrationSlug: slug,
		Status:          domain.IntegrationConnected,
		ExternalID:      optional(info.ExternalID),
		ExternalEmail:   optional(info.Email),
		ExternalName:    optional(info.Name),
		AccountID:       optional(info.AccountID),
		AccountName:     optional(info.AccountName),
	}
	if len(info.Raw) > 0 {
		conn.Metadata = domain.JSON(info.Raw)
	}
	return conn
}

// ErrorCode maps a flow error onto the short code sent back to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domainoauth.ErrStateExpired):
		return "state_expired"
	case errors.Is(err, domainoauth.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domainoauth.ErrProviderNotFound):
		return "provider_not_found"
	case errors.Is(err, domainoauth.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, domainoauth.ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, domainoauth.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, domainoauth.ErrProviderDenied):
		return "access_denied"
	default:
		return "server_error"
	}
}

func withQuery(target, key, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func buildStateKey(state string) string {
	return statePrefix + strings.TrimSpace(state)
}

func secureRandomString(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
