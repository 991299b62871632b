// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"syncpress/internal/apply"
	"syncpress/internal/checksum"
	"syncpress/internal/deploy"
	"syncpress/internal/models"
	"syncpress/internal/registry"
	"syncpress/internal/store"
)

// Admin groups the operator JSON API handlers. Publisher-facing and
// consumer-facing handlers live on the same struct; the router mounts only
// the routes the configured role serves, so unused dependencies may be nil.
type Admin struct {
	consumers *store.ConsumerStore
	sources   *store.SourceTemplateStore
	templates *store.TemplateStore
	registry  *registry.Registry
	sender    *deploy.Sender
	mappings  *store.MappingStore
	locals    *store.LocalTemplateStore
	jobs      *store.JobStore
	snapshots *store.SnapshotStore
	engine    *apply.Engine
	logger    *slog.Logger
}

// NewAdmin creates the admin handler group with the given dependencies.
func NewAdmin(consumers *store.ConsumerStore, sources *store.SourceTemplateStore,
	templates *store.TemplateStore, reg *registry.Registry, sender *deploy.Sender,
	mappings *store.MappingStore, locals *store.LocalTemplateStore, jobs *store.JobStore,
	snapshots *store.SnapshotStore, engine *apply.Engine, logger *slog.Logger) *Admin {
	return &Admin{
		consumers: consumers,
		sources:   sources,
		templates: templates,
		registry:  reg,
		sender:    sender,
		mappings:  mappings,
		locals:    locals,
		jobs:      jobs,
		snapshots: snapshots,
		engine:    engine,
		logger:    logger,
	}
}

// --- Consumers CRUD (publisher) ---

// consumerBody is the create/update request shape. The shared secret is
// write-only: it is accepted here but never serialized back out.
type consumerBody struct {
	SiteName     string                `json:"site_name"`
	BaseURL      string                `json:"base_url"`
	SharedSecret string                `json:"shared_secret"`
	Status       models.ConsumerStatus `json:"status"`
}

// ConsumersList handles GET /api/consumers.
func (a *Admin) ConsumersList(w http.ResponseWriter, r *http.Request) {
	consumers, err := a.consumers.List()
	if err != nil {
		a.logger.Error("list consumers failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list consumers")
		return
	}
	writeJSON(w, http.StatusOK, consumers)
}

// ConsumerCreate handles POST /api/consumers.
func (a *Admin) ConsumerCreate(w http.ResponseWriter, r *http.Request) {
	var body consumerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if strings.TrimSpace(body.SiteName) == "" || strings.TrimSpace(body.BaseURL) == "" || body.SharedSecret == "" {
		writeError(w, http.StatusUnprocessableEntity, "site_name, base_url, and shared_secret are required")
		return
	}
	if body.Status == "" {
		body.Status = models.ConsumerStatusActive
	}

	created, err := a.consumers.Create(&models.Consumer{
		SiteName:     body.SiteName,
		BaseURL:      strings.TrimRight(body.BaseURL, "/"),
		SharedSecret: body.SharedSecret,
		Status:       body.Status,
	})
	if err != nil {
		a.logger.Error("create consumer failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create consumer")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ConsumerUpdate handles PUT /api/consumers/{id}. Omitting the shared
// secret keeps the current one.
func (a *Admin) ConsumerUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	consumer, err := a.consumers.FindByID(id)
	if err != nil {
		a.logger.Error("find consumer failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load consumer")
		return
	}
	if consumer == nil {
		writeError(w, http.StatusNotFound, "consumer not found")
		return
	}

	var body consumerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if body.SiteName != "" {
		consumer.SiteName = body.SiteName
	}
	if body.BaseURL != "" {
		consumer.BaseURL = strings.TrimRight(body.BaseURL, "/")
	}
	if body.SharedSecret != "" {
		consumer.SharedSecret = body.SharedSecret
	}
	if body.Status != "" {
		consumer.Status = body.Status
	}

	if err := a.consumers.Update(consumer); err != nil {
		a.logger.Error("update consumer failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update consumer")
		return
	}
	writeJSON(w, http.StatusOK, consumer)
}

// ConsumerDelete handles DELETE /api/consumers/{id}.
func (a *Admin) ConsumerDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := a.consumers.Delete(id); err != nil {
		a.logger.Error("delete consumer failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete consumer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Source templates (publisher) ---

// sourceBody is the source template create/update request shape.
type sourceBody struct {
	Slug              string              `json:"slug"`
	Name              string              `json:"name"`
	Type              models.TemplateType `json:"type"`
	Payload           json.RawMessage     `json:"payload"`
	DisplayConditions json.RawMessage     `json:"display_conditions,omitempty"`
}

// SourcesList handles GET /api/templates.
func (a *Admin) SourcesList(w http.ResponseWriter, r *http.Request) {
	sources, err := a.sources.List()
	if err != nil {
		a.logger.Error("list source templates failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list templates")
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

// SourceCreate handles POST /api/templates.
func (a *Admin) SourceCreate(w http.ResponseWriter, r *http.Request) {
	var body sourceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if strings.TrimSpace(body.Name) == "" || body.Type == "" || len(body.Payload) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "name, type, and payload are required")
		return
	}

	created, err := a.sources.Create(&models.SourceTemplate{
		Slug:              body.Slug,
		Name:              body.Name,
		Type:              body.Type,
		Payload:           body.Payload,
		DisplayConditions: body.DisplayConditions,
	})
	if err != nil {
		a.logger.Error("create source template failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create template")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// SourceUpdate handles PUT /api/templates/{id}.
func (a *Admin) SourceUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	src, err := a.sources.FindByID(id)
	if err != nil {
		a.logger.Error("find source template failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load template")
		return
	}
	if src == nil {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}

	var body sourceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if body.Slug != "" {
		src.Slug = body.Slug
	}
	if body.Name != "" {
		src.Name = body.Name
	}
	if body.Type != "" {
		src.Type = body.Type
	}
	if len(body.Payload) > 0 {
		src.Payload = body.Payload
	}
	if len(body.DisplayConditions) > 0 {
		src.DisplayConditions = body.DisplayConditions
	}

	if err := a.sources.Update(src); err != nil {
		a.logger.Error("update source template failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update template")
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// VersionsList handles GET /api/templates/{id}/versions: the published
// artifact history of one source template, newest first.
func (a *Admin) VersionsList(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	src, err := a.sources.FindByID(id)
	if err != nil {
		a.logger.Error("find source template failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load template")
		return
	}
	if src == nil {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	if src.GlobalTemplateID == nil {
		writeJSON(w, http.StatusOK, []models.Artifact{})
		return
	}

	versions, err := a.templates.ListVersions(*src.GlobalTemplateID)
	if err != nil {
		a.logger.Error("list versions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list versions")
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// --- Deploy trigger (publisher) ---

// deployBody is the POST /api/templates/{id}/deploy request shape.
type deployBody struct {
	Version           string                `json:"version"`
	DryRun            bool                  `json:"dry_run,omitempty"`
	Options           *models.DeployOptions `json:"options,omitempty"`
	DisplayConditions json.RawMessage       `json:"display_conditions,omitempty"`
	ApplyConditions   bool                  `json:"apply_conditions,omitempty"`
	ConditionsMode    models.ConditionsMode `json:"conditions_mode,omitempty"`
	ConsumerIDs       []uuid.UUID           `json:"consumer_ids,omitempty"`
}

// Deploy handles POST /api/templates/{id}/deploy: publish a new artifact
// version from the source template (or rebuild it without persisting, for
// dry runs) and fan it out to the targeted consumers.
func (a *Admin) Deploy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body deployBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if strings.TrimSpace(body.Version) == "" {
		writeError(w, http.StatusUnprocessableEntity, "version is required")
		return
	}

	extra := registry.Extra{
		DisplayConditions: body.DisplayConditions,
		ApplyConditions:   body.ApplyConditions,
		ConditionsMode:    body.ConditionsMode,
	}

	var artifact *models.Artifact
	var err error
	if body.DryRun {
		// Previews must not mutate anything, so no global id allocation here.
		artifact, err = a.registry.PreviewVersion(id, body.Version, extra)
	} else {
		artifact, err = a.registry.PublishVersion(id, body.Version, extra)
	}
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if errors.Is(err, checksum.ErrValidation) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		a.logger.Error("publish version failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to publish version")
		return
	}

	targets, err := a.deployTargets(body.ConsumerIDs)
	if err != nil {
		a.logger.Error("resolve deploy targets failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve consumers")
		return
	}

	results := a.sender.SendAll(r.Context(), targets, &models.DeployRequest{
		Artifact: artifact,
		DryRun:   body.DryRun,
		Options:  body.Options,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"artifact": artifact,
		"dry_run":  body.DryRun,
		"results":  results,
	})
}

// deployTargets resolves the consumer set a deploy addresses: all active
// consumers by default, or the explicitly listed ids.
func (a *Admin) deployTargets(ids []uuid.UUID) ([]models.Consumer, error) {
	if len(ids) == 0 {
		return a.consumers.ListActive()
	}
	targets := make([]models.Consumer, 0, len(ids))
	for _, id := range ids {
		c, err := a.consumers.FindByID(id)
		if err != nil {
			return nil, err
		}
		if c != nil {
			targets = append(targets, *c)
		}
	}
	return targets, nil
}

// --- Consumer-side state ---

// MappingsList handles GET /api/mappings.
func (a *Admin) MappingsList(w http.ResponseWriter, r *http.Request) {
	mappings, err := a.mappings.List()
	if err != nil {
		a.logger.Error("list mappings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list mappings")
		return
	}
	writeJSON(w, http.StatusOK, mappings)
}

// LocalTemplatesList handles GET /api/local-templates.
func (a *Admin) LocalTemplatesList(w http.ResponseWriter, r *http.Request) {
	templates, err := a.locals.List()
	if err != nil {
		a.logger.Error("list local templates failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list local templates")
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

// JobsList handles GET /api/jobs with limit/offset paging.
func (a *Admin) JobsList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	jobs, err := a.jobs.List(limit, offset)
	if err != nil {
		a.logger.Error("list jobs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// JobGet handles GET /api/jobs/{id}.
func (a *Admin) JobGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	job, err := a.jobs.FindByID(id)
	if err != nil {
		a.logger.Error("find job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// JobRetry handles POST /api/jobs/{id}/retry. Failed jobs are terminal;
// retrying enqueues a fresh job carrying the same payload.
func (a *Admin) JobRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	job, err := a.jobs.FindByID(id)
	if err != nil {
		a.logger.Error("find job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != models.JobStatusFailed {
		writeError(w, http.StatusConflict, "only failed jobs can be retried")
		return
	}

	retried, err := a.jobs.Enqueue(job.JobType, job.Payload)
	if err != nil {
		a.logger.Error("retry enqueue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue retry")
		return
	}
	a.logger.Info("job retried", "failed_job_id", job.ID, "new_job_id", retried.ID)
	writeJSON(w, http.StatusCreated, retried)
}

// SnapshotsList handles GET /api/snapshots/{globalID}.
func (a *Admin) SnapshotsList(w http.ResponseWriter, r *http.Request) {
	globalID, ok := pathUUID(w, r, "globalID")
	if !ok {
		return
	}
	snapshots, err := a.snapshots.ListByGlobalID(globalID)
	if err != nil {
		a.logger.Error("list snapshots failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// Rollback handles POST /api/rollback/{globalID}: restore the mapped local
// template to its most recent pre-apply snapshot.
func (a *Admin) Rollback(w http.ResponseWriter, r *http.Request) {
	globalID, ok := pathUUID(w, r, "globalID")
	if !ok {
		return
	}
	snap, err := a.engine.Rollback(r.Context(), globalID)
	if err != nil {
		switch {
		case errors.Is(err, apply.ErrNoSnapshot):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, apply.ErrInvalidSnapshot):
			writeError(w, http.StatusConflict, err.Error())
		default:
			a.logger.Error("rollback failed", "global_template_id", globalID, "error", err)
			writeError(w, http.StatusInternalServerError, "rollback failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "rolled_back",
		"snapshot_id":      snap.ID,
		"artifact_version": snap.ArtifactVersion,
	})
}

// --- request helpers ---

// pathUUID parses a UUID chi route param, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// queryInt parses an integer query param with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
