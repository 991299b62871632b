// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Snapshot is an append-only, pre-mutation backup of a local template's
// managed fields, captured immediately before every apply that targets an
// already-mapped resource. Rollback restores the most recent snapshot.
type Snapshot struct {
	ID               int64           `json:"id"`
	GlobalTemplateID uuid.UUID       `json:"global_template_id"`
	ArtifactVersion  string          `json:"artifact_version"`
	State            json.RawMessage `json:"state"`
	CreatedAt        time.Time       `json:"created_at"`
}

// SnapshotState is the captured shape of a local template: the core content
// fields plus the sync linkage fields this system manages. Nothing else is
// captured, and rollback writes exactly these fields back.
type SnapshotState struct {
	LocalTemplateID   uuid.UUID       `json:"local_template_id"`
	Name              string          `json:"name"`
	Type              TemplateType    `json:"type"`
	Payload           json.RawMessage `json:"payload"`
	DisplayConditions json.RawMessage `json:"display_conditions,omitempty"`
	InstalledVersion  string          `json:"installed_version,omitempty"`
	Checksum          string          `json:"checksum,omitempty"`
}
