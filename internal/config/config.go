package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment   string
	HTTPPort      string
	ServiceName   string
	DatabaseURL   string
	AutoMigrate   bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RateLimitRPM  int
	NodeID        int64

	FrontendURL string

	OpenClawURL            string
	OpenClawAPIKey         string
	OpenClawDefaultModel   string
	OpenClawEmbeddingModel string
	OpenClawTimeout        time.Duration

	AuthentikBaseURL    string
	AuthentikAppSlug    string
	AuthentikClientID   string
	AuthentikAPIToken   string
	AuthentikAdminGroup string

	TokenEncryptionKey string

	OAuthRedirectBaseURL string
	OAuthAllowedOrigins  []string
	OAuthBrokerURL       string
	OAuthBrokerSecret    string
	OAuthBrokerProviders []string
	OAuthStateTTL        time.Duration
	OAuthProviders       map[string]OAuthClientCredentials
	MicrosoftTenant      string
	PayPalSandbox        bool

	PushGatewayURL   string
	PushGatewayToken string

	TelemetryEndpoint    string
	TelemetryInsecure    bool
	TelemetrySampleRatio float64
	ServiceVersion       string
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// OAuthClientCredentials holds the app registration for one third-party provider.
type OAuthClientCredentials struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Configured reports whether both halves of the registration are present.
func (c OAuthClientCredentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// ProviderSlugs lists the third-party providers the service knows how to connect.
var ProviderSlugs = []string{"google", "microsoft", "hubspot", "slack", "paypal"}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:   getEnv("APP_ENV", "development"),
		HTTPPort:      getEnv("HTTP_PORT", "3001"),
		ServiceName:   getEnv("SERVICE_NAME", "valora-bff"),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AutoMigrate:   getBool("DB_AUTO_MIGRATE", true),
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		RateLimitRPM:  getInt("RATE_LIMIT_RPM", 600),
		NodeID:        int64(getInt("NODE_ID", 1)),

		FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),

		OpenClawURL:            strings.TrimRight(getEnv("OPENCLAW_API_URL", "http://localhost:18789"), "/"),
		OpenClawAPIKey:         os.Getenv("OPENCLAW_API_KEY"),
		OpenClawDefaultModel:   getEnv("OPENCLAW_DEFAULT_MODEL", "openclaw:main"),
		OpenClawEmbeddingModel: getEnv("OPENCLAW_EMBEDDING_MODEL", "text-embedding-3-small"),
		OpenClawTimeout:        getDuration("OPENCLAW_TIMEOUT", 2*time.Minute),

		AuthentikBaseURL:    strings.TrimRight(strings.TrimSpace(os.Getenv("AUTHENTIK_BASE_URL")), "/"),
		AuthentikAppSlug:    getEnv("AUTHENTIK_APP_SLUG", "nexus"),
		AuthentikClientID:   os.Getenv("AUTHENTIK_CLIENT_ID"),
		AuthentikAPIToken:   os.Getenv("AUTHENTIK_API_TOKEN"),
		AuthentikAdminGroup: getEnv("AUTHENTIK_ADMIN_GROUP", "authentik Admins"),

		TokenEncryptionKey: os.Getenv("TOKEN_ENCRYPTION_KEY"),

		OAuthBrokerURL:       strings.TrimRight(strings.TrimSpace(os.Getenv("OAUTH_BROKER_URL")), "/"),
		OAuthBrokerSecret:    os.Getenv("OAUTH_BROKER_SECRET"),
		OAuthBrokerProviders: getList("OAUTH_BROKER_PROVIDERS", []string{"google"}),
		OAuthStateTTL:        getDuration("OAUTH_STATE_TTL", 10*time.Minute),
		MicrosoftTenant:      getEnv("MICROSOFT_TENANT", "common"),
		PayPalSandbox:        getBool("PAYPAL_SANDBOX", false),

		PushGatewayURL:   getEnv("PUSH_GATEWAY_URL", "https://exp.host/--/api/v2/push/send"),
		PushGatewayToken: os.Getenv("PUSH_GATEWAY_TOKEN"),

		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		TelemetrySampleRatio: getFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		ServiceVersion:       getEnv("SERVICE_VERSION", "dev"),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Request-ID"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", true),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AuthentikBaseURL == "" {
		return Config{}, fmt.Errorf("AUTHENTIK_BASE_URL is required")
	}
	if strings.TrimSpace(cfg.TokenEncryptionKey) == "" {
		return Config{}, fmt.Errorf("TOKEN_ENCRYPTION_KEY is required")
	}
	if cfg.OAuthBrokerURL != "" && cfg.OAuthBrokerSecret == "" {
		return Config{}, fmt.Errorf("OAUTH_BROKER_SECRET is required when OAUTH_BROKER_URL is set")
	}

	cfg.CORSAllowedOrigins = getList("CORS_ALLOWED_ORIGINS", []string{cfg.FrontendURL})
	cfg.OAuthRedirectBaseURL = strings.TrimRight(getEnv("OAUTH_REDIRECT_BASE_URL", "http://localhost:"+cfg.HTTPPort), "/")
	cfg.OAuthAllowedOrigins = getList("OAUTH_ALLOWED_REDIRECT_ORIGINS", []string{originOf(cfg.FrontendURL)})

	cfg.OAuthProviders = make(map[string]OAuthClientCredentials, len(ProviderSlugs))
	for _, slug := range ProviderSlugs {
		prefix := strings.ToUpper(slug)
		cfg.OAuthProviders[slug] = OAuthClientCredentials{
			ClientID:     strings.TrimSpace(os.Getenv(prefix + "_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(os.Getenv(prefix + "_CLIENT_SECRET")),
			Scopes:       getList(prefix+"_SCOPES", nil),
		}
	}

	if cfg.OAuthStateTTL <= 0 {
		cfg.OAuthStateTTL = 10 * time.Minute
	}

	return cfg, nil
}

// UsesBroker reports whether the provider is connected through the relay broker.
func (c Config) UsesBroker(slug string) bool {
	if c.OAuthBrokerURL == "" {
		return false
	}
	for _, p := range c.OAuthBrokerProviders {
		if strings.EqualFold(p, slug) {
			return true
		}
	}
	return false
}

// RedisEnabled reports whether a Redis address was configured.
func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
