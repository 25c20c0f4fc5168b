package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	oauthadapter "github.com/smallbiznis/valora-bff/internal/adapter/oauth"
	"github.com/smallbiznis/valora-bff/internal/config"
	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

const authTypeOAuth2 = "oauth2"

// SeedIntegrations keeps the integration catalog in line with the provider
// registry on every start.
func SeedIntegrations(lc fx.Lifecycle, cfg config.Config, registry *oauthadapter.Registry, repo repository.IntegrationRepository, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return seedIntegrations(ctx, cfg, registry, repo, logger)
		},
	})
}

func seedIntegrations(ctx context.Context, cfg config.Config, registry *oauthadapter.Registry, repo repository.IntegrationRepository, logger *zap.Logger) error {
	catalog := CatalogEntries(cfg, registry)
	if err := repo.Seed(ctx, catalog); err != nil {
		return fmt.Errorf("bootstrap seed integrations: %w", err)
	}

	if logger != nil {
		enabled := 0
		for _, entry := range catalog {
			if entry.Enabled {
				enabled++
			}
		}
		logger.Info("integration catalog seeded",
			zap.Int("providers", len(catalog)),
			zap.Int("enabled", enabled),
		)
	}
	return nil
}

// CatalogEntries builds one catalog row per known provider.
func CatalogEntries(cfg config.Config, registry *oauthadapter.Registry) []domain.Integration {
	providers := oauthadapter.BuiltinProviders(cfg)
	out := make([]domain.Integration, 0, len(providers))
	for _, p := range providers {
		_, err := registry.Get(p.Slug)
		out = append(out, domain.Integration{
			Slug:        p.Slug,
			Name:        p.Name,
			Category:    p.Category,
			AuthType:    authTypeOAuth2,
			Description: "Connect your " + p.Name + " account.",
			Enabled:     err == nil,
		})
	}
	return out
}
