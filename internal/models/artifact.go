// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TemplateType categorizes templates by their role in page composition.
type TemplateType string

const (
	TemplateTypeHeader  TemplateType = "header"
	TemplateTypeFooter  TemplateType = "footer"
	TemplateTypeSection TemplateType = "section"
	TemplateTypePopup   TemplateType = "popup"
	TemplateTypeSingle  TemplateType = "single"
	TemplateTypeArchive TemplateType = "archive"
)

// ConditionsMode governs how an artifact's bundled display conditions are
// applied on top of a consumer's existing local conditions.
type ConditionsMode string

const (
	// ConditionsModeReplace overwrites local conditions wholesale.
	ConditionsModeReplace ConditionsMode = "replace"
	// ConditionsModeMerge unions the artifact's condition groups into the
	// existing local set, deduplicating structurally identical groups.
	ConditionsModeMerge ConditionsMode = "merge"
	// ConditionsModeSkip leaves local conditions untouched.
	ConditionsModeSkip ConditionsMode = "skip"
)

// Artifact is one immutable, checksummed snapshot of a template's content at
// one version. The payload is an opaque structured tree; this system never
// interprets it beyond pass-through and media-URL remapping.
type Artifact struct {
	GlobalTemplateID  uuid.UUID       `json:"global_template_id"`
	Version           string          `json:"version"`
	Name              string          `json:"name"`
	Slug              string          `json:"slug,omitempty"`
	Type              TemplateType    `json:"type"`
	Payload           json.RawMessage `json:"payload"`
	Checksum          string          `json:"checksum,omitempty"`
	DisplayConditions json.RawMessage `json:"display_conditions,omitempty"`
	ApplyConditions   bool            `json:"apply_conditions,omitempty"`
	ConditionsMode    ConditionsMode  `json:"conditions_mode,omitempty"`
	CreatedAt         time.Time       `json:"created_at,omitempty"`
}

// DeployRequest is the JSON body of a deploy webhook call.
type DeployRequest struct {
	Artifact *Artifact      `json:"artifact"`
	DryRun   bool           `json:"dry_run,omitempty"`
	Options  *DeployOptions `json:"options,omitempty"`
}

// DeployOptions carry per-deploy toggles forwarded into the apply job.
type DeployOptions struct {
	// Async controls whether the consumer applies the artifact out-of-band
	// (default) or inline before responding.
	Async *bool `json:"async,omitempty"`
	// SkipMedia disables media reference remapping for this deploy.
	SkipMedia bool `json:"skip_media,omitempty"`
}

// IsAsync reports whether the apply should run out-of-band. Nil means yes.
func (o *DeployOptions) IsAsync() bool {
	if o == nil || o.Async == nil {
		return true
	}
	return *o.Async
}
