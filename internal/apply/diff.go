// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package apply

import (
	"fmt"

	"syncpress/internal/checksum"
	"syncpress/internal/models"
	"syncpress/internal/store"
)

// Diff previews what applying an artifact would do, without mutating
// anything. It is the response body of a dry-run deploy.
type Diff struct {
	WillCreate       bool     `json:"will_create"`
	WillUpdate       bool     `json:"will_update"`
	Unchanged        bool     `json:"unchanged"`
	CurrentVersion   string   `json:"current_version,omitempty"`
	IncomingVersion  string   `json:"incoming_version"`
	IncomingChecksum string   `json:"incoming_checksum"`
	Notes            []string `json:"notes,omitempty"`
}

// Calculator computes dry-run diffs against the current local state.
type Calculator struct {
	locals   *store.LocalTemplateStore
	mappings *store.MappingStore
}

// NewCalculator creates a diff Calculator.
func NewCalculator(locals *store.LocalTemplateStore, mappings *store.MappingStore) *Calculator {
	return &Calculator{locals: locals, mappings: mappings}
}

// Diff reports whether the artifact would create a new local template,
// update the mapped one, or change nothing. The artifact is validated the
// same way a real apply validates it.
func (c *Calculator) Diff(artifact *models.Artifact) (*Diff, error) {
	if err := checksum.Validate(artifact); err != nil {
		return nil, err
	}
	if err := checksum.VerifyArtifact(artifact); err != nil {
		return nil, err
	}

	diff := &Diff{
		IncomingVersion:  artifact.Version,
		IncomingChecksum: artifact.Checksum,
	}

	mapping, err := c.mappings.FindByGlobalID(artifact.GlobalTemplateID)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		diff.WillCreate = true
		diff.Notes = append(diff.Notes, "no existing mapping for this artifact identity")
		return diff, nil
	}

	local, err := c.locals.FindByID(mapping.LocalTemplateID)
	if err != nil {
		return nil, err
	}
	if local == nil {
		diff.WillCreate = true
		diff.Notes = append(diff.Notes,
			fmt.Sprintf("mapped local template %s no longer exists", mapping.LocalTemplateID))
		return diff, nil
	}

	diff.CurrentVersion = mapping.InstalledVersion
	if mapping.LastChecksum == artifact.Checksum {
		diff.Unchanged = true
		diff.Notes = append(diff.Notes, "installed checksum already matches")
		return diff, nil
	}

	diff.WillUpdate = true
	if local.Name != artifact.Name {
		diff.Notes = append(diff.Notes,
			fmt.Sprintf("name changes from %q to %q", local.Name, artifact.Name))
	}
	if local.Type != artifact.Type {
		diff.Notes = append(diff.Notes,
			fmt.Sprintf("type changes from %q to %q", local.Type, artifact.Type))
	}
	if artifact.ApplyConditions && artifact.ConditionsMode != models.ConditionsModeSkip {
		diff.Notes = append(diff.Notes,
			fmt.Sprintf("display conditions will be applied in %q mode", artifact.ConditionsMode))
	}
	return diff, nil
}
