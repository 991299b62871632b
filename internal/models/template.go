// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Template is the publisher-side lineage container: the identity that spans
// all versions of "the same" artifact over time. One Template has many
// ordered artifact versions; latest = highest insertion order.
type Template struct {
	ID               uuid.UUID    `json:"id"`
	GlobalTemplateID uuid.UUID    `json:"global_template_id"`
	Slug             string       `json:"slug"`
	Name             string       `json:"name"`
	Type             TemplateType `json:"type"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// SourceTemplate is the live, editable template content on the publisher —
// the source the registry reads when building an artifact version. A source
// gets its global template id allocated on first publish.
type SourceTemplate struct {
	ID                uuid.UUID       `json:"id"`
	GlobalTemplateID  *uuid.UUID      `json:"global_template_id,omitempty"`
	Slug              string          `json:"slug"`
	Name              string          `json:"name"`
	Type              TemplateType    `json:"type"`
	Payload           json.RawMessage `json:"payload"`
	DisplayConditions json.RawMessage `json:"display_conditions,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// LocalTemplate is the consumer-side materialized resource an artifact is
// applied onto: the template content as installed on this site, plus the
// sync linkage fields tying it back to its artifact lineage.
type LocalTemplate struct {
	ID                uuid.UUID       `json:"id"`
	GlobalTemplateID  *uuid.UUID      `json:"global_template_id,omitempty"`
	Name              string          `json:"name"`
	Type              TemplateType    `json:"type"`
	Payload           json.RawMessage `json:"payload"`
	DisplayConditions json.RawMessage `json:"display_conditions,omitempty"`
	InstalledVersion  string          `json:"installed_version,omitempty"`
	Checksum          string          `json:"checksum,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
