package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-bff/internal/config"
)

// CORS applies the configured cross-origin policy.
func CORS(cfg config.Config) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:     cfg.CORSAllowedMethods,
		AllowHeaders:     cfg.CORSAllowedHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: cfg.CORSAllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	if containsWildcard(cfg.CORSAllowedOrigins) && !cfg.CORSAllowCredentials {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = withoutWildcard(cfg.CORSAllowedOrigins)
	}
	return cors.New(conf)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func withoutWildcard(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o != "*" && o != "" {
			out = append(out, o)
		}
	}
	return out
}
