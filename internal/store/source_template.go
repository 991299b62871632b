// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"syncpress/internal/models"
)

// sourceTemplateColumns lists all columns for source_templates SELECTs.
const sourceTemplateColumns = `id, global_template_id, slug, name, type,
	payload, display_conditions, created_at, updated_at`

// SourceTemplateStore provides access to the live, editable template source
// content the registry builds artifacts from.
type SourceTemplateStore struct {
	db *sql.DB
}

// NewSourceTemplateStore creates a new SourceTemplateStore backed by the given database.
func NewSourceTemplateStore(db *sql.DB) *SourceTemplateStore {
	return &SourceTemplateStore{db: db}
}

// scanSourceTemplate scans a single source_templates row.
func scanSourceTemplate(scanner interface{ Scan(...any) error }) (*models.SourceTemplate, error) {
	var t models.SourceTemplate
	err := scanner.Scan(
		&t.ID, &t.GlobalTemplateID, &t.Slug, &t.Name, &t.Type,
		&t.Payload, &t.DisplayConditions, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a new source template and returns it with the generated ID.
func (s *SourceTemplateStore) Create(t *models.SourceTemplate) (*models.SourceTemplate, error) {
	row := s.db.QueryRow(`
		INSERT INTO source_templates (slug, name, type, payload, display_conditions)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+sourceTemplateColumns,
		t.Slug, t.Name, t.Type, []byte(t.Payload), nullableJSON(t.DisplayConditions),
	)
	created, err := scanSourceTemplate(row)
	if err != nil {
		return nil, fmt.Errorf("create source template: %w", err)
	}
	return created, nil
}

// FindByID retrieves a source template by its UUID. Returns nil if not found.
func (s *SourceTemplateStore) FindByID(id uuid.UUID) (*models.SourceTemplate, error) {
	row := s.db.QueryRow(`SELECT `+sourceTemplateColumns+` FROM source_templates WHERE id = $1`, id)
	t, err := scanSourceTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find source template by id: %w", err)
	}
	return t, nil
}

// FindByGlobalID retrieves a source template by its allocated global
// template id. Returns nil if not found.
func (s *SourceTemplateStore) FindByGlobalID(globalID uuid.UUID) (*models.SourceTemplate, error) {
	row := s.db.QueryRow(`SELECT `+sourceTemplateColumns+` FROM source_templates WHERE global_template_id = $1`, globalID)
	t, err := scanSourceTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find source template by global id: %w", err)
	}
	return t, nil
}

// List returns all source templates ordered by type and name.
func (s *SourceTemplateStore) List() ([]models.SourceTemplate, error) {
	rows, err := s.db.Query(`SELECT ` + sourceTemplateColumns + ` FROM source_templates ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("list source templates: %w", err)
	}
	defer rows.Close()

	var templates []models.SourceTemplate
	for rows.Next() {
		t, err := scanSourceTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// Update modifies a source template's editable content fields.
func (s *SourceTemplateStore) Update(t *models.SourceTemplate) error {
	_, err := s.db.Exec(`
		UPDATE source_templates SET
			name = $1, payload = $2, display_conditions = $3, updated_at = now()
		WHERE id = $4
	`, t.Name, []byte(t.Payload), nullableJSON(t.DisplayConditions), t.ID)
	if err != nil {
		return fmt.Errorf("update source template: %w", err)
	}
	return nil
}

// AllocateGlobalID assigns a global template id to a source that has never
// been published. No-op if one is already set; returns the effective id.
func (s *SourceTemplateStore) AllocateGlobalID(id uuid.UUID) (uuid.UUID, error) {
	candidate := uuid.New()
	var globalID uuid.UUID
	err := s.db.QueryRow(`
		UPDATE source_templates
		SET global_template_id = COALESCE(global_template_id, $1), updated_at = now()
		WHERE id = $2
		RETURNING global_template_id
	`, candidate, id).Scan(&globalID)
	if err == sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("allocate global id: source template %s not found", id)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("allocate global id: %w", err)
	}
	return globalID, nil
}

// nullableJSON converts an empty raw JSON value to NULL for storage.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
