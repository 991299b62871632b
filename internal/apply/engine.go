// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package apply materializes received artifacts into local templates. The
// engine is the consumer's core: it is idempotent per artifact checksum,
// serializes concurrent applies per artifact identity, snapshots before
// every overwrite, and keeps the identity mapping current.
package apply

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/google/uuid"

	"syncpress/internal/bus"
	"syncpress/internal/checksum"
	"syncpress/internal/media"
	"syncpress/internal/metrics"
	"syncpress/internal/models"
	"syncpress/internal/store"
)

// Outcome reports what one apply did.
type Outcome struct {
	Created         bool         `json:"created"`
	Unchanged       bool         `json:"unchanged"`
	LocalTemplateID uuid.UUID    `json:"local_template_id"`
	Version         string       `json:"version"`
	Checksum        string       `json:"checksum"`
	Media           media.Report `json:"media"`
}

// Engine applies artifacts to this site's local templates.
type Engine struct {
	db        *sql.DB
	locals    *store.LocalTemplateStore
	mappings  *store.MappingStore
	snapshots *store.SnapshotStore
	remapper  *media.Remapper
	pages     *cacheInvalidator
	metrics   metrics.Metrics
	events    *bus.Bus
	logger    *slog.Logger
}

// PageInvalidator flushes rendered-page caches after template content
// changes. Implemented by the valkey page cache.
type PageInvalidator interface {
	InvalidateAll(ctx context.Context)
}

// cacheInvalidator makes the page cache optional without nil checks at
// every call site.
type cacheInvalidator struct {
	inner PageInvalidator
}

func (c *cacheInvalidator) invalidate(ctx context.Context) {
	if c.inner != nil {
		c.inner.InvalidateAll(ctx)
	}
}

// NewEngine creates an apply Engine. The remapper, page cache, and event
// bus may each be nil; metrics falls back to a no-op collector.
func NewEngine(db *sql.DB, locals *store.LocalTemplateStore, mappings *store.MappingStore,
	snapshots *store.SnapshotStore, remapper *media.Remapper, pages PageInvalidator,
	collector metrics.Metrics, events *bus.Bus, logger *slog.Logger) *Engine {
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Engine{
		db:        db,
		locals:    locals,
		mappings:  mappings,
		snapshots: snapshots,
		remapper:  remapper,
		pages:     &cacheInvalidator{inner: pages},
		metrics:   collector,
		events:    events,
		logger:    logger,
	}
}

// Apply materializes one artifact into the local template it maps to,
// creating the template on first contact. Re-applying an artifact whose
// checksum already matches the installed one is a no-op beyond refreshing
// the mapping's sync time. Concurrent applies for the same artifact
// identity are serialized with an advisory lock.
func (e *Engine) Apply(ctx context.Context, artifact *models.Artifact, options *models.DeployOptions) (*Outcome, error) {
	if err := checksum.Validate(artifact); err != nil {
		return nil, err
	}
	if err := checksum.VerifyArtifact(artifact); err != nil {
		return nil, err
	}

	unlock, err := e.lockIdentity(ctx, artifact.GlobalTemplateID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	mapping, err := e.mappings.FindByGlobalID(artifact.GlobalTemplateID)
	if err != nil {
		return nil, err
	}

	var local *models.LocalTemplate
	if mapping != nil {
		local, err = e.locals.FindByID(mapping.LocalTemplateID)
		if err != nil {
			return nil, err
		}
		// A mapping whose template was deleted out from under us falls
		// through to the create path.
	}

	if mapping != nil && local != nil && mapping.LastChecksum == artifact.Checksum {
		if err := e.mappings.Upsert(mapping); err != nil {
			return nil, err
		}
		e.metrics.IncApplies("unchanged")
		return &Outcome{
			Unchanged:       true,
			LocalTemplateID: local.ID,
			Version:         artifact.Version,
			Checksum:        artifact.Checksum,
		}, nil
	}

	payload := artifact.Payload
	var report media.Report
	if e.remapper.Enabled() && (options == nil || !options.SkipMedia) {
		remapped, r, err := e.remapper.Remap(ctx, payload)
		if err != nil {
			e.logger.Warn("media remap skipped", "global_template_id", artifact.GlobalTemplateID, "error", err)
		} else {
			payload = remapped
			report = r
		}
		if report.Failed > 0 {
			e.metrics.IncMediaRemaps("partial")
		} else if report.Rewritten > 0 {
			e.metrics.IncMediaRemaps("ok")
		}
	}

	outcome := &Outcome{Version: artifact.Version, Checksum: artifact.Checksum, Media: report}

	if local == nil {
		created, err := e.createLocal(artifact, payload)
		if err != nil {
			e.metrics.IncApplies("error")
			return nil, err
		}
		local = created
		outcome.Created = true
	} else {
		if err := e.updateLocal(artifact, payload, local); err != nil {
			e.metrics.IncApplies("error")
			return nil, err
		}
	}
	outcome.LocalTemplateID = local.ID

	if err := e.mappings.Upsert(&models.Mapping{
		GlobalTemplateID: artifact.GlobalTemplateID,
		LocalTemplateID:  local.ID,
		InstalledVersion: artifact.Version,
		LastChecksum:     artifact.Checksum,
		Status:           models.MappingStatusActive,
	}); err != nil {
		e.metrics.IncApplies("error")
		return nil, err
	}

	e.pages.invalidate(ctx)
	e.metrics.IncApplies("ok")
	e.events.Publish(ctx, bus.SubjectArtifactApplied, map[string]any{
		"global_template_id": artifact.GlobalTemplateID,
		"version":            artifact.Version,
		"checksum":           artifact.Checksum,
		"created":            outcome.Created,
	})
	e.logger.Info("artifact applied",
		"global_template_id", artifact.GlobalTemplateID,
		"version", artifact.Version,
		"created", outcome.Created,
		"media_rewritten", report.Rewritten,
		"media_failed", report.Failed,
	)
	return outcome, nil
}

// createLocal materializes a first-contact artifact as a new local template.
// The conditions policy applies here too: skip (or a disabled policy) means
// the fresh template starts with no conditions at all.
func (e *Engine) createLocal(artifact *models.Artifact, payload json.RawMessage) (*models.LocalTemplate, error) {
	conditions, err := resolveConditions(nil, artifact.DisplayConditions,
		artifact.ApplyConditions, artifact.ConditionsMode)
	if err != nil {
		return nil, err
	}
	globalID := artifact.GlobalTemplateID
	return e.locals.Create(&models.LocalTemplate{
		GlobalTemplateID:  &globalID,
		Name:              artifact.Name,
		Type:              artifact.Type,
		Payload:           payload,
		DisplayConditions: conditions,
		InstalledVersion:  artifact.Version,
		Checksum:          artifact.Checksum,
	})
}

// updateLocal snapshots the current state, then overwrites the managed
// fields with the artifact's content.
func (e *Engine) updateLocal(artifact *models.Artifact, payload json.RawMessage, local *models.LocalTemplate) error {
	if err := e.snapshot(artifact, local); err != nil {
		return err
	}

	conditions, err := resolveConditions(local.DisplayConditions, artifact.DisplayConditions,
		artifact.ApplyConditions, artifact.ConditionsMode)
	if err != nil {
		return err
	}

	globalID := artifact.GlobalTemplateID
	local.GlobalTemplateID = &globalID
	local.Name = artifact.Name
	local.Type = artifact.Type
	local.Payload = payload
	local.DisplayConditions = conditions
	local.InstalledVersion = artifact.Version
	local.Checksum = artifact.Checksum
	return e.locals.Update(local)
}

// snapshot appends the local template's pre-apply state to the rollback
// history. Failing to snapshot aborts the apply: overwriting without a
// restore point is worse than failing the job.
func (e *Engine) snapshot(artifact *models.Artifact, local *models.LocalTemplate) error {
	state, err := json.Marshal(models.SnapshotState{
		LocalTemplateID:   local.ID,
		Name:              local.Name,
		Type:              local.Type,
		Payload:           local.Payload,
		DisplayConditions: local.DisplayConditions,
		InstalledVersion:  local.InstalledVersion,
		Checksum:          local.Checksum,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return e.snapshots.Append(&models.Snapshot{
		GlobalTemplateID: artifact.GlobalTemplateID,
		ArtifactVersion:  artifact.Version,
		State:            state,
	})
}

// lockIdentity takes a session advisory lock keyed on the artifact identity
// and returns its release func. The lock pins a dedicated connection so
// lock and unlock land on the same backend session.
func (e *Engine) lockIdentity(ctx context.Context, globalID uuid.UUID) (func(), error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	key := lockKey(globalID)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		conn.Close()
		return nil, fmt.Errorf("acquire apply lock: %w", err)
	}
	return func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, key); err != nil {
			e.logger.Error("failed to release apply lock", "key", key, "error", err)
		}
		conn.Close()
	}, nil
}

// lockKey folds an artifact identity into the bigint keyspace Postgres
// advisory locks use.
func lockKey(globalID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(globalID[:])
	return int64(h.Sum64())
}
