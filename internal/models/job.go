// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobType identifies the kind of work a queued job carries.
type JobType string

const (
	// JobTypeApplyArtifact applies a deployed artifact to the local site.
	JobTypeApplyArtifact JobType = "apply_artifact"
)

// JobStatus is the lifecycle state of a queued job. Done and failed are
// terminal; a failed job is retried by enqueuing a fresh job, never by
// mutating the old row.
type JobStatus string

const (
	JobStatusQueued JobStatus = "queued"
	JobStatusDone   JobStatus = "done"
	JobStatusFailed JobStatus = "failed"
)

// Job is a durable unit of asynchronous apply work. The job row doubles as
// the audit trail: it records every accepted deploy and its outcome, and is
// the recovery point if the process dies between acceptance and apply.
type Job struct {
	ID        uuid.UUID       `json:"id"`
	JobType   JobType         `json:"job_type"`
	Payload   json.RawMessage `json:"payload"`
	Status    JobStatus       `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError *string         `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ApplyJobPayload is the JSON payload of an apply_artifact job.
type ApplyJobPayload struct {
	Artifact *Artifact      `json:"artifact"`
	Options  *DeployOptions `json:"options,omitempty"`
}
