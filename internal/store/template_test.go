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

func TestEnsureLineageIsIdempotent(t *testing.T) {
	db := testDB(t)
	s := NewTemplateStore(db)
	globalID := uuid.New()
	t.Cleanup(func() {
		db.Exec("DELETE FROM template_versions WHERE template_id IN (SELECT id FROM templates WHERE global_template_id = $1)", globalID)
		db.Exec("DELETE FROM templates WHERE global_template_id = $1", globalID)
	})

	first, err := s.EnsureLineage(globalID, "hdr", "Header", models.TemplateTypeHeader)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := s.EnsureLineage(globalID, "hdr-v2", "Header v2", models.TemplateTypeHeader)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}

	if first.ID != second.ID {
		t.Error("repeated EnsureLineage created a second lineage row")
	}
	if second.Name != "Header v2" {
		t.Error("EnsureLineage did not refresh metadata")
	}
}

func TestAppendVersionAndLatest(t *testing.T) {
	db := testDB(t)
	s := NewTemplateStore(db)
	globalID := uuid.New()
	t.Cleanup(func() {
		db.Exec("DELETE FROM template_versions WHERE template_id IN (SELECT id FROM templates WHERE global_template_id = $1)", globalID)
		db.Exec("DELETE FROM templates WHERE global_template_id = $1", globalID)
	})

	lineage, err := s.EnsureLineage(globalID, "sec", "Section", models.TemplateTypeSection)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	for _, version := range []string{"1.0.0", "1.1.0"} {
		artifact := &models.Artifact{
			GlobalTemplateID: globalID,
			Version:          version,
			Name:             "Section",
			Type:             models.TemplateTypeSection,
			Payload:          json.RawMessage(`{"v":"` + version + `"}`),
			Checksum:         "sum-" + version,
		}
		if err := s.AppendVersion(lineage.ID, artifact); err != nil {
			t.Fatalf("append %s: %v", version, err)
		}
	}

	latest, err := s.LatestArtifact(globalID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.Version != "1.1.0" {
		t.Errorf("latest: got %+v, want 1.1.0", latest)
	}

	versions, err := s.ListVersions(globalID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 2 || versions[0].Version != "1.1.0" {
		t.Errorf("versions not newest-first: %+v", versions)
	}
}

func TestRepublishedVersionBecomesLatest(t *testing.T) {
	db := testDB(t)
	s := NewTemplateStore(db)
	globalID := uuid.New()
	t.Cleanup(func() {
		db.Exec("DELETE FROM template_versions WHERE template_id IN (SELECT id FROM templates WHERE global_template_id = $1)", globalID)
		db.Exec("DELETE FROM templates WHERE global_template_id = $1", globalID)
	})

	lineage, err := s.EnsureLineage(globalID, "pop", "Popup", models.TemplateTypePopup)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	// Same version string twice, different content: no dedup, newest wins.
	for i, sum := range []string{"sum-a", "sum-b"} {
		artifact := &models.Artifact{
			GlobalTemplateID: globalID,
			Version:          "2.0.0",
			Name:             "Popup",
			Type:             models.TemplateTypePopup,
			Payload:          json.RawMessage(`{"rev":` + string(rune('0'+i)) + `}`),
			Checksum:         sum,
		}
		if err := s.AppendVersion(lineage.ID, artifact); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	versions, err := s.ListVersions(globalID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected both rows kept, got %d", len(versions))
	}

	latest, _ := s.LatestArtifact(globalID)
	if latest.Checksum != "sum-b" {
		t.Errorf("latest should be the re-published row, got %s", latest.Checksum)
	}
}

func TestLatestArtifactUnknownLineage(t *testing.T) {
	db := testDB(t)
	s := NewTemplateStore(db)

	latest, err := s.LatestArtifact(uuid.New())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil for unknown lineage, got %+v", latest)
	}
}
