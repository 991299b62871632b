package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// Seed populates the database with initial development data: one sample
// source template and one consumer pointed at a second local instance.
// No-op if data already exists.
func Seed(db *sql.DB) error {
	// Check if any source templates exist already.
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM source_templates").Scan(&count); err != nil {
		return fmt.Errorf("seed check source templates: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	_, err := db.Exec(`
		INSERT INTO source_templates (slug, name, type, payload, display_conditions)
		VALUES ($1, $2, $3, $4, $5)
	`, "site-header", "Site Header", "header",
		`{"elements":[{"widget":"nav","settings":{"logo":{"url":"https://publisher.local/media/logo.png"}}}]}`,
		`[{"include":"entire_site"}]`,
	)
	if err != nil {
		return fmt.Errorf("seed insert source template: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO consumers (site_name, base_url, shared_secret, status)
		VALUES ($1, $2, $3, $4)
	`, "Local Consumer", "http://localhost:8081", "dev-shared-secret", "active")
	if err != nil {
		return fmt.Errorf("seed insert consumer: %w", err)
	}

	slog.Info("database seeded with development data")
	return nil
}
