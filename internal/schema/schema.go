// Package schema lists every package migration in dependency order.
package schema

import (
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/database"
	"carbon-scribe/marketplace/marketplace-backend/internal/documents"
	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
	"carbon-scribe/marketplace/marketplace-backend/internal/notifications"
	"carbon-scribe/marketplace/marketplace-backend/internal/projects"
	"carbon-scribe/marketplace/marketplace-backend/internal/settings"
)

func Migrations() []database.MigrateFunc {
	return []database.MigrateFunc{
		auth.Migrate,
		settings.Migrate,
		projects.Migrate,
		marketplace.Migrate,
		notifications.Migrate,
		documents.Migrate,
	}
}
