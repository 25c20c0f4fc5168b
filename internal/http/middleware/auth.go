package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-bff/internal/audit"
	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/org"
)

const callerKey = "caller"

// TokenVerifier validates Authentik access tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.Principal, error)
}

// CallerResolver maps a verified principal onto local records.
type CallerResolver interface {
	Resolve(ctx context.Context, principal domain.Principal) (*org.Context, error)
}

// Auth validates the Authorization header and attaches the resolved caller.
type Auth struct {
	Verifier TokenVerifier
	Resolver CallerResolver
	Logger   *zap.Logger
}

func NewAuth(verifier TokenVerifier, resolver CallerResolver, logger *zap.Logger) *Auth {
	return &Auth{Verifier: verifier, Resolver: resolver, Logger: logger}
}

// RequireUser ensures the request carries a valid bearer token.
func (m *Auth) RequireUser(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	principal, err := m.Verifier.Verify(c.Request.Context(), strings.TrimSpace(parts[1]))
	if err != nil {
		m.log().Debug("access token rejected", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid access token."})
		return
	}

	caller, err := m.Resolver.Resolve(c.Request.Context(), principal)
	if err != nil {
		m.log().Error("resolve caller", zap.String("subject", principal.Subject), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Unable to load profile."})
		return
	}

	c.Request = c.Request.WithContext(audit.WithClientIP(c.Request.Context(), c.ClientIP()))
	c.Set(callerKey, caller)
	c.Next()
}

// RequireAdmin rejects callers outside the Authentik admin group. It must run after RequireUser.
func (m *Auth) RequireAdmin(c *gin.Context) {
	caller, ok := GetCaller(c)
	if !ok || !caller.IsAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Admin access required."})
		return
	}
	c.Next()
}

// GetCaller exposes the resolved caller to handlers.
func GetCaller(c *gin.Context) (*org.Context, bool) {
	value, ok := c.Get(callerKey)
	if !ok {
		return nil, false
	}
	caller, ok := value.(*org.Context)
	return caller, ok && caller != nil
}

// SetCaller attaches a caller to the gin context.
func SetCaller(c *gin.Context, caller *org.Context) {
	c.Set(callerKey, caller)
}

func (m *Auth) log() *zap.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return zap.L()
}
