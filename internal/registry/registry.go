// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package registry builds and stores artifact versions on the publisher.
// An artifact is an immutable, checksummed snapshot of one source
// template's content; the registry owns lineage allocation, version
// history, and the "deploy what's on screen right now" rebuild path.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"syncpress/internal/checksum"
	"syncpress/internal/models"
	"syncpress/internal/store"
)

// ErrNotFound marks an unknown source reference or lineage.
var ErrNotFound = errors.New("template not found")

// Extra carries the deploy policy flags merged into a built artifact.
type Extra struct {
	DisplayConditions json.RawMessage
	ApplyConditions   bool
	ConditionsMode    models.ConditionsMode
}

// Registry creates artifact versions from source templates and serves the
// stored version history.
type Registry struct {
	templates *store.TemplateStore
	sources   *store.SourceTemplateStore
}

// New creates a Registry over the lineage and source stores.
func New(templates *store.TemplateStore, sources *store.SourceTemplateStore) *Registry {
	return &Registry{templates: templates, sources: sources}
}

// PublishVersion builds an artifact from the current source content and
// appends it as a new version row under the source's lineage, creating the
// lineage (and allocating the global template id) if this is the source's
// first publish. Repeated version strings are not deduplicated: the newly
// stored row becomes the lineage's latest regardless.
func (r *Registry) PublishVersion(sourceID uuid.UUID, version string, extra Extra) (*models.Artifact, error) {
	src, err := r.sources.FindByID(sourceID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: source %s", ErrNotFound, sourceID)
	}

	globalID, err := r.sources.AllocateGlobalID(src.ID)
	if err != nil {
		return nil, err
	}

	artifact, err := buildArtifact(src, globalID, version, extra)
	if err != nil {
		return nil, err
	}

	lineage, err := r.templates.EnsureLineage(globalID, src.Slug, src.Name, src.Type)
	if err != nil {
		return nil, err
	}

	if err := r.templates.AppendVersion(lineage.ID, artifact); err != nil {
		return nil, err
	}

	return artifact, nil
}

// LatestArtifact returns the newest stored artifact version for a lineage.
func (r *Registry) LatestArtifact(globalID uuid.UUID) (*models.Artifact, error) {
	artifact, err := r.templates.LatestArtifact(globalID)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, fmt.Errorf("%w: lineage %s", ErrNotFound, globalID)
	}
	return artifact, nil
}

// PreviewVersion builds the artifact a publish would produce, without
// writing anything: no lineage row, no version row, and no global id
// allocation. A source that has never been published gets a throwaway
// identity in the preview; the real id is assigned on first publish.
func (r *Registry) PreviewVersion(sourceID uuid.UUID, version string, extra Extra) (*models.Artifact, error) {
	src, err := r.sources.FindByID(sourceID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: source %s", ErrNotFound, sourceID)
	}

	globalID := uuid.New()
	if src.GlobalTemplateID != nil {
		globalID = *src.GlobalTemplateID
	}
	return buildArtifact(src, globalID, version, extra)
}

// buildArtifact copies the source's current fields into an artifact, merges
// the policy flags, and stamps the checksum.
func buildArtifact(src *models.SourceTemplate, globalID uuid.UUID, version string, extra Extra) (*models.Artifact, error) {
	conditions := extra.DisplayConditions
	if len(conditions) == 0 {
		conditions = src.DisplayConditions
	}

	mode := extra.ConditionsMode
	if mode == "" {
		mode = models.ConditionsModeReplace
	}

	artifact := &models.Artifact{
		CreatedAt:         time.Now().UTC(),
		GlobalTemplateID:  globalID,
		Version:           version,
		Name:              src.Name,
		Slug:              src.Slug,
		Type:              src.Type,
		Payload:           src.Payload,
		DisplayConditions: conditions,
		ApplyConditions:   extra.ApplyConditions,
		ConditionsMode:    mode,
	}

	if err := checksum.Stamp(artifact); err != nil {
		return nil, err
	}
	if err := checksum.Validate(artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}
