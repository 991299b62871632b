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

// mappingColumns lists all columns for template_mappings SELECTs.
const mappingColumns = `global_template_id, local_template_id, installed_version,
	last_checksum, status, last_sync_at`

// MappingStore handles the consumer-side table linking artifact identities
// to their locally materialized templates.
type MappingStore struct {
	db *sql.DB
}

// NewMappingStore creates a new MappingStore with the given database connection.
func NewMappingStore(db *sql.DB) *MappingStore {
	return &MappingStore{db: db}
}

// scanMapping scans a single template_mappings row.
func scanMapping(scanner interface{ Scan(...any) error }) (*models.Mapping, error) {
	var m models.Mapping
	err := scanner.Scan(
		&m.GlobalTemplateID, &m.LocalTemplateID, &m.InstalledVersion,
		&m.LastChecksum, &m.Status, &m.LastSyncAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindByGlobalID retrieves the mapping for an artifact identity. Returns nil
// if this site has never applied that identity.
func (s *MappingStore) FindByGlobalID(globalID uuid.UUID) (*models.Mapping, error) {
	row := s.db.QueryRow(`SELECT `+mappingColumns+` FROM template_mappings WHERE global_template_id = $1`, globalID)
	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find mapping by global id: %w", err)
	}
	return m, nil
}

// List returns all mappings ordered by last sync, newest first.
func (s *MappingStore) List() ([]models.Mapping, error) {
	rows, err := s.db.Query(`SELECT ` + mappingColumns + ` FROM template_mappings ORDER BY last_sync_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []models.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}

// Upsert writes the mapping row for an artifact identity, creating it on
// first apply and overwriting the installed version/checksum on every
// subsequent one. The primary key keeps it at one row per identity.
func (s *MappingStore) Upsert(m *models.Mapping) error {
	if m.Status == "" {
		m.Status = models.MappingStatusActive
	}
	_, err := s.db.Exec(`
		INSERT INTO template_mappings (global_template_id, local_template_id,
			installed_version, last_checksum, status, last_sync_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (global_template_id) DO UPDATE SET
			local_template_id = EXCLUDED.local_template_id,
			installed_version = EXCLUDED.installed_version,
			last_checksum = EXCLUDED.last_checksum,
			status = EXCLUDED.status,
			last_sync_at = now()
	`, m.GlobalTemplateID, m.LocalTemplateID, m.InstalledVersion, m.LastChecksum, m.Status)
	if err != nil {
		return fmt.Errorf("upsert mapping: %w", err)
	}
	return nil
}
