// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"syncpress/internal/models"
)

// templateColumns lists all columns for templates SELECTs.
const templateColumns = `id, global_template_id, slug, name, type, created_at, updated_at`

// TemplateStore handles the publisher-side template lineage table and its
// immutable artifact version rows.
type TemplateStore struct {
	db *sql.DB
}

// NewTemplateStore creates a new TemplateStore with the given database connection.
func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// scanTemplate scans a single templates row.
func scanTemplate(scanner interface{ Scan(...any) error }) (*models.Template, error) {
	var t models.Template
	err := scanner.Scan(
		&t.ID, &t.GlobalTemplateID, &t.Slug, &t.Name, &t.Type,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindByGlobalID retrieves a lineage by its global template id. Returns nil
// if not found.
func (s *TemplateStore) FindByGlobalID(globalID uuid.UUID) (*models.Template, error) {
	row := s.db.QueryRow(`SELECT `+templateColumns+` FROM templates WHERE global_template_id = $1`, globalID)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find template by global id: %w", err)
	}
	return t, nil
}

// List returns all lineages ordered by type and name.
func (s *TemplateStore) List() ([]models.Template, error) {
	rows, err := s.db.Query(`SELECT ` + templateColumns + ` FROM templates ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// EnsureLineage upserts the lineage row for a global template id, refreshing
// its presentation metadata from the current source.
func (s *TemplateStore) EnsureLineage(globalID uuid.UUID, slug, name string, tmplType models.TemplateType) (*models.Template, error) {
	row := s.db.QueryRow(`
		INSERT INTO templates (global_template_id, slug, name, type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (global_template_id) DO UPDATE SET
			slug = EXCLUDED.slug, name = EXCLUDED.name, type = EXCLUDED.type,
			updated_at = now()
		RETURNING `+templateColumns,
		globalID, slug, name, tmplType,
	)
	t, err := scanTemplate(row)
	if err != nil {
		return nil, fmt.Errorf("ensure template lineage: %w", err)
	}
	return t, nil
}

// AppendVersion inserts a new immutable artifact version row under the
// lineage. Versions are never deduplicated: a repeated version string still
// appends a new row, and the newest row is always the lineage's latest.
func (s *TemplateStore) AppendVersion(templateID uuid.UUID, artifact *models.Artifact) error {
	raw, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("marshal artifact version: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO template_versions (template_id, version, checksum, artifact)
		VALUES ($1, $2, $3, $4)
	`, templateID, artifact.Version, artifact.Checksum, raw)
	if err != nil {
		return fmt.Errorf("append template version: %w", err)
	}
	return nil
}

// LatestArtifact returns the highest-inserted-order artifact for a lineage.
// Returns nil if the lineage has no versions or does not exist.
func (s *TemplateStore) LatestArtifact(globalID uuid.UUID) (*models.Artifact, error) {
	var raw []byte
	err := s.db.QueryRow(`
		SELECT v.artifact
		FROM template_versions v
		JOIN templates t ON t.id = v.template_id
		WHERE t.global_template_id = $1
		ORDER BY v.id DESC
		LIMIT 1
	`, globalID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest artifact: %w", err)
	}

	var a models.Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("unmarshal stored artifact: %w", err)
	}
	return &a, nil
}

// ListVersions returns a lineage's version metadata, newest first.
func (s *TemplateStore) ListVersions(globalID uuid.UUID) ([]models.Artifact, error) {
	rows, err := s.db.Query(`
		SELECT v.artifact, v.created_at
		FROM template_versions v
		JOIN templates t ON t.id = v.template_id
		WHERE t.global_template_id = $1
		ORDER BY v.id DESC
	`, globalID)
	if err != nil {
		return nil, fmt.Errorf("list template versions: %w", err)
	}
	defer rows.Close()

	var versions []models.Artifact
	for rows.Next() {
		var raw []byte
		var a models.Artifact
		if err := rows.Scan(&raw, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template version: %w", err)
		}
		createdAt := a.CreatedAt
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("unmarshal stored artifact: %w", err)
		}
		a.CreatedAt = createdAt
		versions = append(versions, a)
	}
	return versions, rows.Err()
}
