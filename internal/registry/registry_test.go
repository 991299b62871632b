// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Registry tests are integration tests that require a running PostgreSQL
// instance; they skip when the database is unreachable.
package registry

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"syncpress/internal/checksum"
	"syncpress/internal/database"
	"syncpress/internal/models"
	"syncpress/internal/store"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "postgres://" + envOr("POSTGRES_USER", "syncpress") + ":" + envOr("POSTGRES_PASSWORD", "changeme") +
		"@" + envOr("POSTGRES_HOST", "localhost") + ":" + envOr("POSTGRES_PORT", "5432") +
		"/" + envOr("POSTGRES_DB", "syncpress") + "?sslmode=disable"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

type registryFixture struct {
	registry *Registry
	sources  *store.SourceTemplateStore
	db       *sql.DB
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	db := testDB(t)
	sources := store.NewSourceTemplateStore(db)
	templates := store.NewTemplateStore(db)
	return &registryFixture{registry: New(templates, sources), sources: sources, db: db}
}

func (f *registryFixture) newSource(t *testing.T) *models.SourceTemplate {
	t.Helper()
	src, err := f.sources.Create(&models.SourceTemplate{
		Slug:    "registry-test-header",
		Name:    "Registry Test Header",
		Type:    models.TemplateTypeHeader,
		Payload: json.RawMessage(`{"blocks":["logo"]}`),
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	t.Cleanup(func() {
		f.db.Exec("DELETE FROM template_versions WHERE template_id IN (SELECT id FROM templates WHERE global_template_id = (SELECT global_template_id FROM source_templates WHERE id = $1))", src.ID)
		f.db.Exec("DELETE FROM templates WHERE global_template_id = (SELECT global_template_id FROM source_templates WHERE id = $1)", src.ID)
		f.db.Exec("DELETE FROM source_templates WHERE id = $1", src.ID)
	})
	return src
}

func TestPublishVersionAllocatesLineage(t *testing.T) {
	f := newRegistryFixture(t)
	src := f.newSource(t)

	if src.GlobalTemplateID != nil {
		t.Fatal("fresh source should have no global id")
	}

	artifact, err := f.registry.PublishVersion(src.ID, "1.0.0", Extra{})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if artifact.GlobalTemplateID == uuid.Nil {
		t.Fatal("publish did not allocate a global id")
	}
	if artifact.Checksum == "" {
		t.Fatal("published artifact has no checksum")
	}
	if err := checksum.VerifyArtifact(artifact); err != nil {
		t.Errorf("published artifact does not verify: %v", err)
	}

	// The allocation must stick to the source.
	reloaded, _ := f.sources.FindByID(src.ID)
	if reloaded.GlobalTemplateID == nil || *reloaded.GlobalTemplateID != artifact.GlobalTemplateID {
		t.Error("global id not persisted on the source")
	}

	// A second publish reuses the same identity.
	again, err := f.registry.PublishVersion(src.ID, "1.1.0", Extra{})
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if again.GlobalTemplateID != artifact.GlobalTemplateID {
		t.Error("second publish changed the artifact identity")
	}

	latest, err := f.registry.LatestArtifact(artifact.GlobalTemplateID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Version != "1.1.0" {
		t.Errorf("latest: got %s, want 1.1.0", latest.Version)
	}
}

func TestPublishVersionCarriesConditionsPolicy(t *testing.T) {
	f := newRegistryFixture(t)
	src := f.newSource(t)

	artifact, err := f.registry.PublishVersion(src.ID, "1.0.0", Extra{
		DisplayConditions: json.RawMessage(`[{"rule":"front_page"}]`),
		ApplyConditions:   true,
		ConditionsMode:    models.ConditionsModeMerge,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !artifact.ApplyConditions || artifact.ConditionsMode != models.ConditionsModeMerge {
		t.Errorf("policy flags lost: %+v", artifact)
	}
}

func TestPreviewVersionDoesNotPersist(t *testing.T) {
	f := newRegistryFixture(t)
	src := f.newSource(t)

	artifact, err := f.registry.PreviewVersion(src.ID, "0.9.0-preview", Extra{})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if artifact.Version != "0.9.0-preview" || artifact.Checksum == "" {
		t.Errorf("unexpected built artifact: %+v", artifact)
	}

	// A preview of a never-published source must not allocate its identity.
	reloaded, err := f.sources.FindByID(src.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reload source: %v", err)
	}
	if reloaded.GlobalTemplateID != nil {
		t.Errorf("preview allocated a global id: %s", *reloaded.GlobalTemplateID)
	}

	if _, err := f.registry.LatestArtifact(artifact.GlobalTemplateID); !errors.Is(err, ErrNotFound) {
		t.Errorf("preview should not persist a version, got %v", err)
	}
}

func TestPreviewVersionReusesPublishedIdentity(t *testing.T) {
	f := newRegistryFixture(t)
	src := f.newSource(t)

	published, err := f.registry.PublishVersion(src.ID, "1.0.0", Extra{})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	preview, err := f.registry.PreviewVersion(src.ID, "1.1.0", Extra{})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.GlobalTemplateID != published.GlobalTemplateID {
		t.Errorf("preview identity %s does not match published %s",
			preview.GlobalTemplateID, published.GlobalTemplateID)
	}
}

func TestPublishVersionUnknownSource(t *testing.T) {
	f := newRegistryFixture(t)

	_, err := f.registry.PublishVersion(uuid.New(), "1.0.0", Extra{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
