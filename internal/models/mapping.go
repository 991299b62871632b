// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// MappingStatus marks the sync state of a mapped local template.
type MappingStatus string

const (
	MappingStatusActive MappingStatus = "active"
)

// Mapping links an artifact identity to the locally materialized template on
// this consumer. At most one row exists per global template id; its
// last_checksum always equals the checksum of the most recently successfully
// applied artifact.
type Mapping struct {
	GlobalTemplateID uuid.UUID     `json:"global_template_id"`
	LocalTemplateID  uuid.UUID     `json:"local_template_id"`
	InstalledVersion string        `json:"installed_version"`
	LastChecksum     string        `json:"last_checksum"`
	Status           MappingStatus `json:"status"`
	LastSyncAt       time.Time     `json:"last_sync_at"`
}
