package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-bff/internal/config"
	"github.com/smallbiznis/valora-bff/internal/http/handler"
	"github.com/smallbiznis/valora-bff/internal/http/middleware"
)

// Handlers groups every route handler for injection.
type Handlers struct {
	fx.In

	Auth          *handler.AuthHandler
	OAuth         *handler.OAuthHandler
	DB            *handler.DBHandler
	Conversations *handler.ConversationHandler
	Thoughts      *handler.ThoughtHandler
	Integrations  *handler.IntegrationHandler
	RPC           *handler.RPCHandler
	Chat          *handler.ChatHandler
	Organizations *handler.OrganizationHandler
	Vector        *handler.VectorHandler
	Push          *handler.PushHandler
	Reports       *handler.ReportHandler
	Health        *handler.HealthHandler
}

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, h Handlers, authMiddleware *middleware.Auth, rateLimiter *middleware.RateLimiter, logger *zap.Logger) (*gin.Engine, error) {
	if err := middleware.RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName, otelgin.WithFilter(func(req *http.Request) bool {
		return req.URL.Path != "/metrics"
	})))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg))

	r.GET("/metrics", middleware.MetricsHandler())

	api := r.Group("/api")

	// Unauthenticated: probes and the provider redirect, whose state binds the user.
	public := api.Group("", rateLimiter.Handler())
	{
		public.GET("/health", h.Health.Health)
		public.GET("/oauth/callback", h.OAuth.Callback)
	}

	authed := api.Group("", authMiddleware.RequireUser, rateLimiter.Handler())
	admin := authed.Group("", authMiddleware.RequireAdmin)

	auth := authed.Group("/auth")
	{
		auth.GET("/me", h.Auth.Me)
	}
	adminAuth := admin.Group("/auth")
	{
		adminAuth.GET("/users", h.Auth.Users)
		adminAuth.GET("/groups", h.Auth.Groups)
		adminAuth.POST("/groups/:id/members", h.Auth.AddGroupMember)
	}

	oauth := authed.Group("/oauth")
	{
		oauth.GET("/providers", h.OAuth.Providers)
		oauth.GET("/connections", h.OAuth.Connections)
		oauth.POST("/state", h.OAuth.CreateState)
		oauth.POST("/token", h.OAuth.Token)
		oauth.GET("/:slug/start", h.OAuth.Start)
		oauth.POST("/:slug/sync", h.OAuth.Sync)
		oauth.DELETE("/:slug", h.OAuth.Disconnect)
	}

	db := authed.Group("/db")
	{
		db.GET("/:table", h.DB.List)
		db.GET("/:table/:id", h.DB.Get)
		db.POST("/:table", h.DB.Create)
		db.PATCH("/:table/:id", h.DB.Update)
		db.DELETE("/:table/:id", h.DB.Delete)
	}

	conversations := authed.Group("/conversations")
	{
		conversations.GET("", h.Conversations.List)
		conversations.POST("", h.Conversations.Create)
		conversations.GET("/:id", h.Conversations.Get)
		conversations.PATCH("/:id", h.Conversations.Update)
		conversations.DELETE("/:id", h.Conversations.Delete)
		conversations.GET("/:id/messages", h.Conversations.Messages)
		conversations.POST("/:id/messages", h.Conversations.AppendMessage)
	}

	thoughts := authed.Group("/thoughts")
	{
		thoughts.GET("", h.Thoughts.List)
		thoughts.POST("", h.Thoughts.Create)
		thoughts.GET("/:id", h.Thoughts.Get)
		thoughts.PATCH("/:id", h.Thoughts.Update)
		thoughts.DELETE("/:id", h.Thoughts.Delete)
	}

	integrations := authed.Group("/integrations")
	{
		integrations.GET("", h.Integrations.List)
		integrations.GET("/:slug", h.Integrations.Get)
	}

	authed.POST("/rpc/:fn", h.RPC.Call)

	chat := authed.Group("/chat")
	{
		chat.POST("/completions", h.Chat.Completions)
		chat.GET("/models", h.Chat.Models)
		chat.GET("/health", h.Chat.Health)
	}

	orgs := authed.Group("/organizations")
	{
		orgs.GET("", h.Organizations.List)
		orgs.POST("", h.Organizations.Create)
		orgs.GET("/:id", h.Organizations.Get)
		orgs.PATCH("/:id", h.Organizations.Update)
		orgs.GET("/:id/members", h.Organizations.Members)
	}

	vector := authed.Group("/vector")
	{
		vector.POST("/documents", h.Vector.Insert)
		vector.POST("/search", h.Vector.Search)
		vector.DELETE("/documents/:id", h.Vector.Delete)
	}

	push := authed.Group("/push")
	{
		push.POST("/tokens", h.Push.RegisterToken)
		push.DELETE("/tokens/:token", h.Push.DeleteToken)
		push.POST("/send", h.Push.Send)
	}

	authed.GET("/usage", h.Reports.UsageSummary)
	admin.GET("/audit", h.Reports.AuditLog)

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Route not found."})
			return
		}
		c.Status(http.StatusNotFound)
	})

	return r, nil
}
