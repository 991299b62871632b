// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package apply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"syncpress/internal/bus"
	"syncpress/internal/models"
)

var (
	// ErrNoSnapshot means the identity has no rollback history: either it
	// was never applied here, or every apply so far was a create.
	ErrNoSnapshot = errors.New("no snapshot to roll back to")
	// ErrInvalidSnapshot means the stored snapshot state does not decode.
	ErrInvalidSnapshot = errors.New("snapshot state is invalid")
)

// Rollback restores the mapped local template to its most recent pre-apply
// snapshot. The snapshot's fields are written back verbatim, including the
// linkage fields, so the template reports the version it carried before the
// last apply. The mapping row is left untouched: it keeps recording the
// last artifact this site accepted, which a later re-deploy will correct.
func (e *Engine) Rollback(ctx context.Context, globalID uuid.UUID) (*models.Snapshot, error) {
	unlock, err := e.lockIdentity(ctx, globalID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	snap, err := e.snapshots.Latest(globalID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, globalID)
	}

	var state models.SnapshotState
	if err := json.Unmarshal(snap.State, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if state.LocalTemplateID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing local template id", ErrInvalidSnapshot)
	}

	local, err := e.locals.FindByID(state.LocalTemplateID)
	if err != nil {
		return nil, err
	}
	if local == nil {
		return nil, fmt.Errorf("local template %s from snapshot no longer exists", state.LocalTemplateID)
	}

	local.Name = state.Name
	local.Type = state.Type
	local.Payload = state.Payload
	local.DisplayConditions = state.DisplayConditions
	local.InstalledVersion = state.InstalledVersion
	local.Checksum = state.Checksum
	if err := e.locals.Update(local); err != nil {
		return nil, err
	}

	e.pages.invalidate(ctx)
	e.events.Publish(ctx, bus.SubjectRolledBack, map[string]any{
		"global_template_id": globalID,
		"restored_version":   state.InstalledVersion,
		"snapshot_id":        snap.ID,
	})
	e.logger.Info("template rolled back",
		"global_template_id", globalID,
		"restored_version", state.InstalledVersion,
		"snapshot_id", snap.ID,
	)
	return snap, nil
}
