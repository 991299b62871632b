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

// consumerColumns lists all columns for consumers SELECTs.
const consumerColumns = `id, site_name, base_url, shared_secret, status,
	last_seen_at, created_at, updated_at`

// ConsumerStore handles all registered-consumer database operations.
type ConsumerStore struct {
	db *sql.DB
}

// NewConsumerStore creates a new ConsumerStore with the given database connection.
func NewConsumerStore(db *sql.DB) *ConsumerStore {
	return &ConsumerStore{db: db}
}

// scanConsumer scans a single consumers row.
func scanConsumer(scanner interface{ Scan(...any) error }) (*models.Consumer, error) {
	var c models.Consumer
	err := scanner.Scan(
		&c.ID, &c.SiteName, &c.BaseURL, &c.SharedSecret, &c.Status,
		&c.LastSeenAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new consumer and returns it with the generated ID.
func (s *ConsumerStore) Create(c *models.Consumer) (*models.Consumer, error) {
	if c.Status == "" {
		c.Status = models.ConsumerStatusActive
	}
	row := s.db.QueryRow(`
		INSERT INTO consumers (site_name, base_url, shared_secret, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+consumerColumns,
		c.SiteName, c.BaseURL, c.SharedSecret, c.Status,
	)
	created, err := scanConsumer(row)
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	return created, nil
}

// FindByID retrieves a consumer by its UUID. Returns nil if not found.
func (s *ConsumerStore) FindByID(id uuid.UUID) (*models.Consumer, error) {
	row := s.db.QueryRow(`SELECT `+consumerColumns+` FROM consumers WHERE id = $1`, id)
	c, err := scanConsumer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find consumer by id: %w", err)
	}
	return c, nil
}

// List returns all consumers ordered by site name.
func (s *ConsumerStore) List() ([]models.Consumer, error) {
	rows, err := s.db.Query(`SELECT ` + consumerColumns + ` FROM consumers ORDER BY site_name`)
	if err != nil {
		return nil, fmt.Errorf("list consumers: %w", err)
	}
	defer rows.Close()

	var consumers []models.Consumer
	for rows.Next() {
		c, err := scanConsumer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consumer: %w", err)
		}
		consumers = append(consumers, *c)
	}
	return consumers, rows.Err()
}

// ListActive returns all consumers eligible for deploys.
func (s *ConsumerStore) ListActive() ([]models.Consumer, error) {
	rows, err := s.db.Query(`
		SELECT `+consumerColumns+` FROM consumers
		WHERE status = $1 ORDER BY site_name
	`, models.ConsumerStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active consumers: %w", err)
	}
	defer rows.Close()

	var consumers []models.Consumer
	for rows.Next() {
		c, err := scanConsumer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consumer: %w", err)
		}
		consumers = append(consumers, *c)
	}
	return consumers, rows.Err()
}

// Update modifies a consumer's registration fields.
func (s *ConsumerStore) Update(c *models.Consumer) error {
	_, err := s.db.Exec(`
		UPDATE consumers SET
			site_name = $1, base_url = $2, shared_secret = $3, status = $4,
			updated_at = now()
		WHERE id = $5
	`, c.SiteName, c.BaseURL, c.SharedSecret, c.Status, c.ID)
	if err != nil {
		return fmt.Errorf("update consumer: %w", err)
	}
	return nil
}

// Delete removes a consumer by ID.
func (s *ConsumerStore) Delete(id uuid.UUID) error {
	_, err := s.db.Exec(`DELETE FROM consumers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete consumer: %w", err)
	}
	return nil
}

// TouchLastSeen records a successful round-trip with a consumer.
func (s *ConsumerStore) TouchLastSeen(id uuid.UUID) error {
	_, err := s.db.Exec(`UPDATE consumers SET last_seen_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch consumer last seen: %w", err)
	}
	return nil
}
