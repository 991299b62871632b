// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Worker tests are integration tests that require a running PostgreSQL
// instance; they skip when the database is unreachable.
package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"syncpress/internal/apply"
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

type workerFixture struct {
	worker   *Worker
	jobs     *store.JobStore
	mappings *store.MappingStore
	db       *sql.DB
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	db := testDB(t)
	jobs := store.NewJobStore(db)
	locals := store.NewLocalTemplateStore(db)
	mappings := store.NewMappingStore(db)
	snapshots := store.NewSnapshotStore(db)
	engine := apply.NewEngine(db, locals, mappings, snapshots, nil, nil, nil, nil, slog.Default())
	return &workerFixture{
		worker:   New(jobs, engine, nil, slog.Default()),
		jobs:     jobs,
		mappings: mappings,
		db:       db,
	}
}

func (f *workerFixture) cleanup(t *testing.T, globalID, jobID uuid.UUID) {
	t.Cleanup(func() {
		f.db.Exec("DELETE FROM sync_jobs WHERE id = $1", jobID)
		f.db.Exec("DELETE FROM template_snapshots WHERE global_template_id = $1", globalID)
		f.db.Exec("DELETE FROM local_templates WHERE id IN (SELECT local_template_id FROM template_mappings WHERE global_template_id = $1)", globalID)
		f.db.Exec("DELETE FROM template_mappings WHERE global_template_id = $1", globalID)
	})
}

func enqueueApply(t *testing.T, f *workerFixture, artifact *models.Artifact) *models.Job {
	t.Helper()
	payload, err := json.Marshal(models.ApplyJobPayload{Artifact: artifact})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	job, err := f.jobs.Enqueue(models.JobTypeApplyArtifact, payload)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return job
}

func TestRunAppliesQueuedJob(t *testing.T) {
	f := newWorkerFixture(t)
	globalID := uuid.New()

	artifact := &models.Artifact{
		GlobalTemplateID: globalID,
		Version:          "1.0.0",
		Name:             "Worker Test Section",
		Type:             models.TemplateTypeSection,
		Payload:          json.RawMessage(`{"blocks":[]}`),
	}
	if err := checksum.Stamp(artifact); err != nil {
		t.Fatalf("stamp: %v", err)
	}
	job := enqueueApply(t, f, artifact)
	f.cleanup(t, globalID, job.ID)

	if err := f.worker.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	done, _ := f.jobs.FindByID(job.ID)
	if done.Status != models.JobStatusDone {
		t.Errorf("job status: got %q, want done (last_error=%v)", done.Status, done.LastError)
	}

	mapping, err := f.mappings.FindByGlobalID(globalID)
	if err != nil || mapping == nil {
		t.Fatalf("apply did not create a mapping: %v", err)
	}
}

func TestRunRecordsFailure(t *testing.T) {
	f := newWorkerFixture(t)
	globalID := uuid.New()

	artifact := &models.Artifact{
		GlobalTemplateID: globalID,
		Version:          "1.0.0",
		Name:             "Worker Test Broken",
		Type:             models.TemplateTypeSection,
		Payload:          json.RawMessage(`{"blocks":[]}`),
		Checksum:         "0000000000000000000000000000000000000000000000000000000000000000",
	}
	job := enqueueApply(t, f, artifact)
	f.cleanup(t, globalID, job.ID)

	if err := f.worker.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	failed, _ := f.jobs.FindByID(job.ID)
	if failed.Status != models.JobStatusFailed {
		t.Errorf("job status: got %q, want failed", failed.Status)
	}
	if failed.LastError == nil || *failed.LastError == "" {
		t.Error("failed job should record its error")
	}
}

func TestRunIsNoOpOnFinishedJob(t *testing.T) {
	f := newWorkerFixture(t)
	globalID := uuid.New()

	artifact := &models.Artifact{
		GlobalTemplateID: globalID,
		Version:          "1.0.0",
		Name:             "Worker Test Rerun",
		Type:             models.TemplateTypeSection,
		Payload:          json.RawMessage(`{"blocks":[]}`),
	}
	if err := checksum.Stamp(artifact); err != nil {
		t.Fatalf("stamp: %v", err)
	}
	job := enqueueApply(t, f, artifact)
	f.cleanup(t, globalID, job.ID)

	if err := f.worker.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := f.jobs.FindByID(job.ID)

	if err := f.worker.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := f.jobs.FindByID(job.ID)

	if second.Attempts != first.Attempts || second.UpdatedAt != first.UpdatedAt {
		t.Errorf("second run mutated a finished job: %+v vs %+v", first, second)
	}
}

func TestRunUnknownJob(t *testing.T) {
	f := newWorkerFixture(t)
	if err := f.worker.Run(context.Background(), uuid.New()); err == nil {
		t.Error("expected error for unknown job id")
	}
}
