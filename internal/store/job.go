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

// jobColumns lists all columns for sync_jobs SELECTs.
const jobColumns = `id, job_type, payload, status, attempts, last_error,
	created_at, updated_at`

// JobStore handles the consumer-side durable job queue. Rows are mutated
// only when a job reaches a terminal state; the table doubles as the audit
// trail of every accepted deploy.
type JobStore struct {
	db *sql.DB
}

// NewJobStore creates a new JobStore with the given database connection.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// scanJob scans a single sync_jobs row.
func scanJob(scanner interface{ Scan(...any) error }) (*models.Job, error) {
	var j models.Job
	err := scanner.Scan(
		&j.ID, &j.JobType, &j.Payload, &j.Status, &j.Attempts, &j.LastError,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Enqueue inserts a new queued job and returns it with the generated ID.
func (s *JobStore) Enqueue(jobType models.JobType, payload []byte) (*models.Job, error) {
	row := s.db.QueryRow(`
		INSERT INTO sync_jobs (job_type, payload, status)
		VALUES ($1, $2, $3)
		RETURNING `+jobColumns,
		jobType, payload, models.JobStatusQueued,
	)
	j, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return j, nil
}

// FindByID retrieves a job by its UUID. Returns nil if not found.
func (s *JobStore) FindByID(id uuid.UUID) (*models.Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM sync_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	return j, nil
}

// List returns jobs ordered by creation date, newest first, with pagination.
func (s *JobStore) List(limit, offset int) ([]models.Job, error) {
	rows, err := s.db.Query(`
		SELECT `+jobColumns+` FROM sync_jobs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// NextQueued returns the oldest queued job, or nil if the queue is empty.
func (s *JobStore) NextQueued() (*models.Job, error) {
	row := s.db.QueryRow(`
		SELECT ` + jobColumns + ` FROM sync_jobs
		WHERE status = 'queued'
		ORDER BY created_at
		LIMIT 1
	`)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued job: %w", err)
	}
	return j, nil
}

// Finish records a job's terminal status. The conditional WHERE guards
// against double-invocation: only a still-queued job can be finished, so a
// second worker run for the same id changes nothing. Returns true if this
// call performed the transition.
func (s *JobStore) Finish(id uuid.UUID, status models.JobStatus, lastError *string) (bool, error) {
	result, err := s.db.Exec(`
		UPDATE sync_jobs SET
			status = $1, last_error = $2, attempts = attempts + 1, updated_at = now()
		WHERE id = $3 AND status = 'queued'
	`, status, lastError, id)
	if err != nil {
		return false, fmt.Errorf("finish job: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}
