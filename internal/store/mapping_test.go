// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"syncpress/internal/models"
)

func TestMappingUpsertKeepsOneRow(t *testing.T) {
	db := testDB(t)
	mappings := NewMappingStore(db)
	locals := NewLocalTemplateStore(db)

	local, err := locals.Create(&models.LocalTemplate{
		Name:    "Mapped Header",
		Type:    models.TemplateTypeHeader,
		Payload: json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("create local template: %v", err)
	}
	globalID := uuid.New()
	t.Cleanup(func() {
		db.Exec("DELETE FROM template_mappings WHERE global_template_id = $1", globalID)
		db.Exec("DELETE FROM local_templates WHERE id = $1", local.ID)
	})

	for _, version := range []string{"1.0.0", "1.1.0", "2.0.0"} {
		err := mappings.Upsert(&models.Mapping{
			GlobalTemplateID: globalID,
			LocalTemplateID:  local.ID,
			InstalledVersion: version,
			LastChecksum:     "sum-" + version,
		})
		if err != nil {
			t.Fatalf("upsert %s: %v", version, err)
		}
	}

	var count int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM template_mappings WHERE global_template_id = $1", globalID,
	).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one mapping row, got %d", count)
	}

	m, err := mappings.FindByGlobalID(globalID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if m.InstalledVersion != "2.0.0" || m.LastChecksum != "sum-2.0.0" {
		t.Errorf("mapping not updated to latest apply: %+v", m)
	}
	if m.Status != models.MappingStatusActive {
		t.Errorf("default status: got %q", m.Status)
	}
}

func TestMappingFindUnknownIdentity(t *testing.T) {
	db := testDB(t)
	mappings := NewMappingStore(db)

	m, err := mappings.FindByGlobalID(uuid.New())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil for never-applied identity, got %+v", m)
	}
}
