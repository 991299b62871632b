// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package worker drains the durable job queue. Jobs move straight from
// queued to a terminal status; a crash mid-apply leaves the job queued,
// which is safe to re-run because the apply engine is idempotent.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"syncpress/internal/apply"
	"syncpress/internal/metrics"
	"syncpress/internal/models"
	"syncpress/internal/store"
)

// DefaultPollInterval is how often the background loop checks for queued
// jobs when no interval is configured.
const DefaultPollInterval = 5 * time.Second

// Worker executes queued jobs against the apply engine.
type Worker struct {
	jobs    *store.JobStore
	engine  *apply.Engine
	metrics metrics.Metrics
	logger  *slog.Logger
}

// New creates a Worker. A nil metrics collector falls back to no-op.
func New(jobs *store.JobStore, engine *apply.Engine, collector metrics.Metrics, logger *slog.Logger) *Worker {
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Worker{jobs: jobs, engine: engine, metrics: collector, logger: logger}
}

// Run executes one job by id. Jobs not in the queued state are skipped
// without error, so running the same id twice is harmless. The job reaches
// done or failed based on the apply outcome; apply errors are recorded on
// the job row, not returned.
func (w *Worker) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := w.jobs.FindByID(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Status != models.JobStatusQueued {
		w.logger.Debug("job already finished", "job_id", job.ID, "status", job.Status)
		return nil
	}
	return w.execute(ctx, job)
}

// RunNext picks up and executes the oldest queued job. Returns false if the
// queue was empty.
func (w *Worker) RunNext(ctx context.Context) (bool, error) {
	job, err := w.jobs.NextQueued()
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	if err := w.execute(ctx, job); err != nil {
		return true, err
	}
	return true, nil
}

// Poll drains the queue on a fixed interval until the context is cancelled.
// Each tick runs jobs back-to-back until the queue is empty, so a burst of
// deploys never waits a full interval per job.
func (w *Worker) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("job worker started", "poll_interval", interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("job worker stopped")
			return
		case <-ticker.C:
			for {
				ran, err := w.RunNext(ctx)
				if err != nil {
					w.logger.Error("job run failed", "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// execute dispatches one queued job by type and records its terminal state.
func (w *Worker) execute(ctx context.Context, job *models.Job) error {
	w.logger.Info("running job", "job_id", job.ID, "job_type", job.JobType, "attempts", job.Attempts)

	var applyErr error
	switch job.JobType {
	case models.JobTypeApplyArtifact:
		applyErr = w.applyArtifact(ctx, job)
	default:
		applyErr = fmt.Errorf("unknown job type %q", job.JobType)
	}

	status := models.JobStatusDone
	var lastError *string
	if applyErr != nil {
		status = models.JobStatusFailed
		msg := applyErr.Error()
		lastError = &msg
	}

	finished, err := w.jobs.Finish(job.ID, status, lastError)
	if err != nil {
		return err
	}
	if !finished {
		// Another invocation finished this job while we ran it; its
		// outcome stands and ours is discarded.
		w.logger.Warn("job finished elsewhere", "job_id", job.ID)
		return nil
	}

	w.metrics.IncJobs(string(job.JobType), string(status))
	if applyErr != nil {
		w.logger.Error("job failed", "job_id", job.ID, "error", applyErr)
	} else {
		w.logger.Info("job done", "job_id", job.ID)
	}
	return nil
}

// applyArtifact decodes and applies an apply_artifact job payload.
func (w *Worker) applyArtifact(ctx context.Context, job *models.Job) error {
	var payload models.ApplyJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode job payload: %w", err)
	}
	if payload.Artifact == nil {
		return fmt.Errorf("job payload has no artifact")
	}
	_, err := w.engine.Apply(ctx, payload.Artifact, payload.Options)
	return err
}
