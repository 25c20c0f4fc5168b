package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-bff/internal/adapter/authentik"
	cacheadapter "github.com/smallbiznis/valora-bff/internal/adapter/cache"
	oauthadapter "github.com/smallbiznis/valora-bff/internal/adapter/oauth"
	"github.com/smallbiznis/valora-bff/internal/adapter/openclaw"
	pushadapter "github.com/smallbiznis/valora-bff/internal/adapter/push"
	"github.com/smallbiznis/valora-bff/internal/audit"
	"github.com/smallbiznis/valora-bff/internal/bootstrap"
	"github.com/smallbiznis/valora-bff/internal/config"
	httptransport "github.com/smallbiznis/valora-bff/internal/http"
	"github.com/smallbiznis/valora-bff/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/valora-bff/internal/http/middleware"
	"github.com/smallbiznis/valora-bff/internal/jwt"
	"github.com/smallbiznis/valora-bff/internal/org"
	"github.com/smallbiznis/valora-bff/internal/repository"
	"github.com/smallbiznis/valora-bff/internal/secret"
	"github.com/smallbiznis/valora-bff/internal/server"
	oauthsvc "github.com/smallbiznis/valora-bff/internal/service/oauth"
	pushsvc "github.com/smallbiznis/valora-bff/internal/service/push"
	"github.com/smallbiznis/valora-bff/internal/store"
	"github.com/smallbiznis/valora-bff/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			telemetry.NewWithLifecycle,
			newTracer,
			newSnowflake,
			newPGXPool,
			store.NewDB,
			newRedisClient,

			newProfileRepository,
			newOrganizationRepository,
			newConversationRepository,
			newThoughtRepository,
			newIntegrationRepository,
			newConnectionRepository,
			newTableRepository,
			newRPCRepository,
			newPushTokenRepository,
			newAuditRepository,
			newUsageRepository,
			newDocumentRepository,
			newOAuthStateStore,
			repository.DefaultTables,
			repository.DefaultFunctions,

			audit.NewRecorder,
			newSealer,
			oauthadapter.NewRegistry,
			newOAuthProviderClient,
			newOAuthBrokerClient,
			newOAuthService,
			newOpenClawClient,
			newAuthentikClient,
			newPushDeliverer,
			newPushDispatcher,

			newKeySet,
			newVerifier,
			newResolver,
			newAuthMiddleware,
			newRateLimiter,

			newAuthHandler,
			handler.NewOAuthHandler,
			handler.NewDBHandler,
			handler.NewConversationHandler,
			handler.NewThoughtHandler,
			handler.NewIntegrationHandler,
			handler.NewRPCHandler,
			newChatHandler,
			handler.NewOrganizationHandler,
			newVectorHandler,
			handler.NewPushHandler,
			handler.NewReportHandler,
			newHealthHandler,

			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(bootstrap.SeedIntegrations, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTracer(p *telemetry.Provider) trace.Tracer {
	return p.Tracer()
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := store.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := store.Migrate(pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

// newRedisClient returns nil when Redis is not configured; callers fall back
// to in-process implementations.
func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	if !cfg.RedisEnabled() {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newProfileRepository(db *sqlx.DB) repository.ProfileRepository {
	return repository.NewPostgresProfileRepo(db)
}

func newOrganizationRepository(db *sqlx.DB) repository.OrganizationRepository {
	return repository.NewPostgresOrganizationRepo(db)
}

func newConversationRepository(db *sqlx.DB) repository.ConversationRepository {
	return repository.NewPostgresConversationRepo(db)
}

func newThoughtRepository(db *sqlx.DB) repository.ThoughtRepository {
	return repository.NewPostgresThoughtRepo(db)
}

func newIntegrationRepository(db *sqlx.DB) repository.IntegrationRepository {
	return repository.NewPostgresIntegrationRepo(db)
}

func newConnectionRepository(db *sqlx.DB) repository.ConnectionRepository {
	return repository.NewPostgresConnectionRepo(db)
}

func newTableRepository(db *sqlx.DB) repository.TableRepository {
	return repository.NewPostgresTableRepo(db)
}

func newRPCRepository(db *sqlx.DB) repository.RPCRepository {
	return repository.NewPostgresRPCRepo(db)
}

func newPushTokenRepository(db *sqlx.DB) repository.PushTokenRepository {
	return repository.NewPostgresPushTokenRepo(db)
}

func newAuditRepository(db *sqlx.DB, node *snowflake.Node) repository.AuditRepository {
	return repository.NewPostgresAuditRepo(db, node)
}

func newUsageRepository(db *sqlx.DB) repository.UsageRepository {
	return repository.NewPostgresUsageRepo(db)
}

func newDocumentRepository(db *sqlx.DB) repository.DocumentRepository {
	return repository.NewPostgresDocumentRepo(db)
}

func newOAuthStateStore(client redis.UniversalClient, logger *zap.Logger) repository.OAuthStateStore {
	if client == nil {
		logger.Warn("REDIS_ADDR not set; oauth states are kept in memory and do not survive restarts")
		return cacheadapter.NewMemoryStateStore()
	}
	return cacheadapter.NewRedisStateStore(client)
}

func newSealer(cfg config.Config) (oauthsvc.TokenSealer, error) {
	return secret.NewSealer(cfg.TokenEncryptionKey)
}

func newOAuthProviderClient() oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(nil)
}

func newOAuthBrokerClient(cfg config.Config) oauthadapter.BrokerClient {
	return oauthadapter.NewHTTPBrokerClient(cfg.OAuthBrokerURL, cfg.OAuthBrokerSecret, nil)
}

func newOAuthService(
	registry *oauthadapter.Registry,
	client oauthadapter.ProviderClient,
	broker oauthadapter.BrokerClient,
	states repository.OAuthStateStore,
	conns repository.ConnectionRepository,
	sealer oauthsvc.TokenSealer,
	recorder *audit.Recorder,
	cfg config.Config,
	logger *zap.Logger,
) oauthsvc.Service {
	return oauthsvc.NewService(registry, client, broker, states, conns, sealer, recorder, cfg, logger)
}

func newOpenClawClient(cfg config.Config) *openclaw.Client {
	return openclaw.NewClient(openclaw.Options{
		BaseURL:        cfg.OpenClawURL,
		APIKey:         cfg.OpenClawAPIKey,
		EmbeddingModel: cfg.OpenClawEmbeddingModel,
		HeaderTimeout:  cfg.OpenClawTimeout,
	})
}

func newAuthentikClient(cfg config.Config) *authentik.Client {
	return authentik.NewClient(cfg.AuthentikBaseURL, cfg.AuthentikAPIToken, nil)
}

func newPushDeliverer(cfg config.Config, tokens repository.PushTokenRepository, logger *zap.Logger) *pushsvc.Deliverer {
	sender := pushadapter.NewExpoClient(cfg.PushGatewayURL, cfg.PushGatewayToken, nil)
	return pushsvc.NewDeliverer(tokens, sender, logger)
}

// newPushDispatcher queues deliveries on asynq when Redis is available and
// runs the worker in-process; otherwise sends inline.
func newPushDispatcher(lc fx.Lifecycle, cfg config.Config, deliverer *pushsvc.Deliverer, logger *zap.Logger) pushsvc.Dispatcher {
	if !cfg.RedisEnabled() {
		return pushsvc.NewInlineDispatcher(deliverer)
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	client := asynq.NewClient(redisOpt)
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{pushsvc.QueueName: 1},
		Logger:      logger.Sugar(),
	})
	mux := asynq.NewServeMux()
	pushsvc.NewWorker(deliverer, logger).Register(mux)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return srv.Start(mux)
		},
		OnStop: func(context.Context) error {
			srv.Shutdown()
			return client.Close()
		},
	})
	return pushsvc.NewQueueDispatcher(client)
}

func newKeySet(cfg config.Config) *jwt.KeySet {
	return jwt.NewKeySet(jwt.JWKSURL(cfg.AuthentikBaseURL, cfg.AuthentikAppSlug), nil)
}

func newVerifier(keys *jwt.KeySet, cfg config.Config) *jwt.Verifier {
	return jwt.NewVerifier(keys, jwt.IssuerURL(cfg.AuthentikBaseURL, cfg.AuthentikAppSlug), cfg.AuthentikClientID)
}

func newResolver(profiles repository.ProfileRepository, cfg config.Config) *org.Resolver {
	return org.NewResolver(profiles, cfg.AuthentikAdminGroup)
}

func newAuthMiddleware(verifier *jwt.Verifier, resolver *org.Resolver, logger *zap.Logger) *httpmiddleware.Auth {
	return httpmiddleware.NewAuth(verifier, resolver, logger)
}

func newRateLimiter(cfg config.Config) *httpmiddleware.RateLimiter {
	return httpmiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthHandler(client *authentik.Client, recorder *audit.Recorder) *handler.AuthHandler {
	return handler.NewAuthHandler(client, recorder)
}

func newChatHandler(client *openclaw.Client, conversations repository.ConversationRepository, usage repository.UsageRepository, tracer trace.Tracer, cfg config.Config, logger *zap.Logger) *handler.ChatHandler {
	return handler.NewChatHandler(client, conversations, usage, tracer, cfg.OpenClawDefaultModel, logger)
}

func newVectorHandler(client *openclaw.Client, docs repository.DocumentRepository) *handler.VectorHandler {
	return handler.NewVectorHandler(client, docs)
}

func newHealthHandler(pool *pgxpool.Pool, rdb redis.UniversalClient, claw *openclaw.Client, ak *authentik.Client, tracer trace.Tracer) *handler.HealthHandler {
	checks := []handler.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "openclaw", Check: claw.Health},
		{Name: "authentik", Check: ak.Health},
	}
	if rdb != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return handler.NewHealthHandler(tracer, checks...)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			logger.Info("nexus bff listening", zap.String("addr", addr), zap.String("env", cfg.Environment))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
