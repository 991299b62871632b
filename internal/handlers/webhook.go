// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers contains the HTTP handlers for the syncpress server.
// Handlers are grouped by concern (webhook, admin) and receive their
// dependencies through the handler struct.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"syncpress/internal/apply"
	"syncpress/internal/bus"
	"syncpress/internal/checksum"
	"syncpress/internal/metrics"
	"syncpress/internal/models"
	"syncpress/internal/signature"
	"syncpress/internal/store"
	"syncpress/internal/worker"
)

// maxDeployBody caps the deploy request body. Artifacts are template
// payloads, not media blobs; anything larger is rejected outright.
const maxDeployBody = 4 << 20

// Webhook receives signed deploy requests from the publisher.
type Webhook struct {
	verifier *signature.Verifier
	jobs     *store.JobStore
	runner   *worker.Worker
	diff     *apply.Calculator
	metrics  metrics.Metrics
	events   *bus.Bus
	logger   *slog.Logger
}

// NewWebhook creates the deploy webhook handler group. A nil metrics
// collector falls back to no-op.
func NewWebhook(verifier *signature.Verifier, jobs *store.JobStore, runner *worker.Worker,
	diff *apply.Calculator, collector metrics.Metrics, events *bus.Bus, logger *slog.Logger) *Webhook {
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Webhook{
		verifier: verifier,
		jobs:     jobs,
		runner:   runner,
		diff:     diff,
		metrics:  collector,
		events:   events,
		logger:   logger,
	}
}

// deployResponse is the consumer's acknowledgment body.
type deployResponse struct {
	Status string      `json:"status"`
	JobID  *uuid.UUID  `json:"job_id,omitempty"`
	Diff   *apply.Diff `json:"diff,omitempty"`
}

// Deploy handles POST /sync/deploy: authenticate the signed request, parse
// and validate the artifact, then either answer with a dry-run diff or
// enqueue a durable apply job. The signature covers the exact body bytes,
// so the body is read before any decoding.
func (h *Webhook) Deploy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDeployBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	if len(body) > maxDeployBody {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	hdr := signature.Headers{
		Token:     r.Header.Get(signature.HeaderToken),
		Timestamp: r.Header.Get(signature.HeaderTimestamp),
		Nonce:     r.Header.Get(signature.HeaderNonce),
		Signature: r.Header.Get(signature.HeaderSignature),
	}
	if err := h.verifier.VerifyRequest(r.Context(), r.Method, signature.DeployRoute, hdr, body); err != nil {
		h.logger.Warn("deploy rejected", "remote", r.RemoteAddr, "error", err)
		h.metrics.IncDeploys("unauthorized")
		writeDeployError(w, err)
		return
	}

	var deploy models.DeployRequest
	if err := json.Unmarshal(body, &deploy); err != nil {
		h.metrics.IncDeploys("malformed")
		writeError(w, http.StatusBadRequest, "malformed deploy request")
		return
	}

	if err := checksum.Validate(deploy.Artifact); err != nil {
		h.metrics.IncDeploys("invalid")
		writeDeployError(w, err)
		return
	}
	if err := checksum.VerifyArtifact(deploy.Artifact); err != nil {
		h.metrics.IncDeploys("invalid")
		writeDeployError(w, err)
		return
	}

	if deploy.DryRun {
		diff, err := h.diff.Diff(deploy.Artifact)
		if err != nil {
			h.logger.Error("dry-run diff failed", "error", err)
			writeError(w, http.StatusInternalServerError, "diff failed")
			return
		}
		h.metrics.IncDeploys("dry_run")
		writeJSON(w, http.StatusOK, deployResponse{Status: "dry_run", Diff: diff})
		return
	}

	payload, err := json.Marshal(models.ApplyJobPayload{Artifact: deploy.Artifact, Options: deploy.Options})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode job payload")
		return
	}
	job, err := h.jobs.Enqueue(models.JobTypeApplyArtifact, payload)
	if err != nil {
		h.logger.Error("enqueue apply job failed", "error", err)
		h.metrics.IncDeploys("error")
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	h.logger.Info("deploy accepted",
		"global_template_id", deploy.Artifact.GlobalTemplateID,
		"version", deploy.Artifact.Version,
		"job_id", job.ID,
	)
	h.metrics.IncDeploys("accepted")
	h.events.Publish(r.Context(), bus.SubjectDeploySent, map[string]any{
		"global_template_id": deploy.Artifact.GlobalTemplateID,
		"version":            deploy.Artifact.Version,
		"job_id":             job.ID,
	})

	if !deploy.Options.IsAsync() {
		if err := h.runner.Run(r.Context(), job.ID); err != nil {
			h.logger.Error("inline apply failed", "job_id", job.ID, "error", err)
		}
		writeJSON(w, http.StatusOK, deployResponse{Status: "applied", JobID: &job.ID})
		return
	}

	writeJSON(w, http.StatusAccepted, deployResponse{Status: "queued", JobID: &job.ID})
}

// writeDeployError maps pipeline sentinel errors onto webhook status codes.
func writeDeployError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, signature.ErrAuthentication):
		writeError(w, http.StatusUnauthorized, "authentication failed")
	case errors.Is(err, checksum.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "deploy failed")
	}
}
