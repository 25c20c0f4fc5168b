package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-bff/internal/adapter/authentik"
	"github.com/smallbiznis/valora-bff/internal/adapter/openclaw"
	"github.com/smallbiznis/valora-bff/internal/apperr"
	"github.com/smallbiznis/valora-bff/internal/domain"
	domainoauth "github.com/smallbiznis/valora-bff/internal/domain/oauth"
	"github.com/smallbiznis/valora-bff/internal/http/middleware"
	"github.com/smallbiznis/valora-bff/internal/org"
	oauthsvc "github.com/smallbiznis/valora-bff/internal/service/oauth"
)

// respondError writes the JSON error shape for err. Anything without a known
// mapping is logged and hidden behind a generic 500.
func respondError(c *gin.Context, err error) {
	status, code, description := classify(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("request_id", middleware.RequestID(c)),
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
	} else {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code, "error_description": description})
}

func classify(err error) (int, string, string) {
	if appErr, ok := apperr.As(err); ok {
		return appErr.Status, appErr.Code, appErr.Message
	}

	var (
		upstream    *openclaw.UpstreamError
		identityErr *authentik.APIError
	)

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found", "Resource not found."
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden", "You do not have access to this resource."
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict", "Resource already exists."
	case errors.Is(err, domain.ErrUnknownTable):
		return http.StatusNotFound, "unknown_table", "Table is not exposed."
	case errors.Is(err, domain.ErrInvalidValue):
		return http.StatusBadRequest, "invalid_request", "A value has the wrong format for its column."
	case errors.Is(err, domain.ErrUnknownColumn):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, domain.ErrReadOnly):
		return http.StatusMethodNotAllowed, "read_only", "Table is read-only."
	case errors.Is(err, domain.ErrUnknownFunction):
		return http.StatusNotFound, "unknown_function", "Function is not exposed."
	case errors.Is(err, domainoauth.ErrProviderNotFound):
		return http.StatusNotFound, oauthsvc.ErrorCode(err), "OAuth provider not configured."
	case errors.Is(err, domainoauth.ErrInvalidState),
		errors.Is(err, domainoauth.ErrStateExpired),
		errors.Is(err, domainoauth.ErrInvalidRequest),
		errors.Is(err, domainoauth.ErrProviderDenied):
		return http.StatusBadRequest, oauthsvc.ErrorCode(err), err.Error()
	case errors.Is(err, domainoauth.ErrTokenInvalid):
		return http.StatusBadGateway, oauthsvc.ErrorCode(err), "Provider returned no usable token."
	case errors.Is(err, domainoauth.ErrNotConnected):
		return http.StatusNotFound, oauthsvc.ErrorCode(err), "Integration is not connected."
	case errors.As(err, &upstream):
		return http.StatusBadGateway, "upstream_error", upstream.Error()
	case errors.As(err, &identityErr):
		return http.StatusBadGateway, "upstream_error", identityErr.Error()
	default:
		return http.StatusInternalServerError, "server_error", "Internal server error."
	}
}

func badRequest(c *gin.Context, description string) {
	respondError(c, apperr.BadRequest(description))
}

// caller returns the authenticated caller or aborts with 401.
func caller(c *gin.Context) (*org.Context, bool) {
	cl, ok := middleware.GetCaller(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authentication required."})
		return nil, false
	}
	return cl, true
}

func queryInt(c *gin.Context, key string, def, max int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

// queryPositive is queryInt for limits and page numbers, which are at least 1.
func queryPositive(c *gin.Context, key string, def, max int) int {
	n := queryInt(c, key, def, max)
	if n < 1 {
		return 1
	}
	return n
}

func queryBool(c *gin.Context, key string) *bool {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}
