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

// localTemplateColumns lists all columns for local_templates SELECTs.
const localTemplateColumns = `id, global_template_id, name, type, payload,
	display_conditions, installed_version, checksum, created_at, updated_at`

// LocalTemplateStore handles the consumer-side materialized template
// content the apply engine creates and updates.
type LocalTemplateStore struct {
	db *sql.DB
}

// NewLocalTemplateStore creates a new LocalTemplateStore with the given database connection.
func NewLocalTemplateStore(db *sql.DB) *LocalTemplateStore {
	return &LocalTemplateStore{db: db}
}

// scanLocalTemplate scans a single local_templates row.
func scanLocalTemplate(scanner interface{ Scan(...any) error }) (*models.LocalTemplate, error) {
	var t models.LocalTemplate
	var globalID uuid.NullUUID
	var installedVersion, checksum sql.NullString
	err := scanner.Scan(
		&t.ID, &globalID, &t.Name, &t.Type, &t.Payload,
		&t.DisplayConditions, &installedVersion, &checksum,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if globalID.Valid {
		t.GlobalTemplateID = &globalID.UUID
	}
	t.InstalledVersion = installedVersion.String
	t.Checksum = checksum.String
	return &t, nil
}

// Create inserts a new local template and returns it with the generated ID.
func (s *LocalTemplateStore) Create(t *models.LocalTemplate) (*models.LocalTemplate, error) {
	row := s.db.QueryRow(`
		INSERT INTO local_templates (global_template_id, name, type, payload,
			display_conditions, installed_version, checksum)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+localTemplateColumns,
		t.GlobalTemplateID, t.Name, t.Type, []byte(t.Payload),
		nullableJSON(t.DisplayConditions), t.InstalledVersion, t.Checksum,
	)
	created, err := scanLocalTemplate(row)
	if err != nil {
		return nil, fmt.Errorf("create local template: %w", err)
	}
	return created, nil
}

// Update overwrites a local template's managed fields.
func (s *LocalTemplateStore) Update(t *models.LocalTemplate) error {
	result, err := s.db.Exec(`
		UPDATE local_templates SET
			global_template_id = $1, name = $2, type = $3, payload = $4,
			display_conditions = $5, installed_version = $6, checksum = $7,
			updated_at = now()
		WHERE id = $8
	`, t.GlobalTemplateID, t.Name, t.Type, []byte(t.Payload),
		nullableJSON(t.DisplayConditions), t.InstalledVersion, t.Checksum, t.ID)
	if err != nil {
		return fmt.Errorf("update local template: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("update local template: %s not found", t.ID)
	}
	return nil
}

// FindByID retrieves a local template by its UUID. Returns nil if not found.
func (s *LocalTemplateStore) FindByID(id uuid.UUID) (*models.LocalTemplate, error) {
	row := s.db.QueryRow(`SELECT `+localTemplateColumns+` FROM local_templates WHERE id = $1`, id)
	t, err := scanLocalTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find local template by id: %w", err)
	}
	return t, nil
}

// List returns all local templates ordered by type and name.
func (s *LocalTemplateStore) List() ([]models.LocalTemplate, error) {
	rows, err := s.db.Query(`SELECT ` + localTemplateColumns + ` FROM local_templates ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("list local templates: %w", err)
	}
	defer rows.Close()

	var templates []models.LocalTemplate
	for rows.Next() {
		t, err := scanLocalTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan local template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}
