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

// snapshotColumns lists all columns for template_snapshots SELECTs.
const snapshotColumns = `id, global_template_id, artifact_version, snapshot, created_at`

// SnapshotStore handles the append-only pre-apply snapshot history used for
// rollback. Snapshots are read, never deleted.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore creates a new SnapshotStore with the given database connection.
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// scanSnapshot scans a single template_snapshots row.
func scanSnapshot(scanner interface{ Scan(...any) error }) (*models.Snapshot, error) {
	var snap models.Snapshot
	err := scanner.Scan(
		&snap.ID, &snap.GlobalTemplateID, &snap.ArtifactVersion,
		&snap.State, &snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Append records a pre-mutation snapshot of a local template's state.
func (s *SnapshotStore) Append(snap *models.Snapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO template_snapshots (global_template_id, artifact_version, snapshot)
		VALUES ($1, $2, $3)
	`, snap.GlobalTemplateID, snap.ArtifactVersion, []byte(snap.State))
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for an artifact identity, or nil
// if none was ever taken.
func (s *SnapshotStore) Latest(globalID uuid.UUID) (*models.Snapshot, error) {
	row := s.db.QueryRow(`
		SELECT `+snapshotColumns+` FROM template_snapshots
		WHERE global_template_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, globalID)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, nil
}

// ListByGlobalID returns all snapshots for an artifact identity, newest first.
func (s *SnapshotStore) ListByGlobalID(globalID uuid.UUID) ([]models.Snapshot, error) {
	rows, err := s.db.Query(`
		SELECT `+snapshotColumns+` FROM template_snapshots
		WHERE global_template_id = $1
		ORDER BY id DESC
	`, globalID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []models.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, rows.Err()
}
