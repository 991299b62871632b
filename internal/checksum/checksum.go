// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package checksum canonicalizes artifacts and computes their content hash.
// The publisher stamps the hash when it creates an artifact version; the
// consumer recomputes it on receipt, so a checksum is never trusted verbatim
// from the wire.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"syncpress/internal/models"
)

// ErrValidation marks a structurally invalid artifact. Wrapped errors name
// the offending field.
var ErrValidation = errors.New("invalid artifact")

// Compute returns the SHA-256 hex digest of the artifact's canonical JSON
// with the checksum field removed. Canonicalization round-trips the artifact
// through a generic map so keys serialize in stable sorted order regardless
// of struct field order, matching what a remote peer computes over the same
// content.
func Compute(a *models.Artifact) (string, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("checksum marshal: %w", err)
	}

	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return "", fmt.Errorf("checksum canonicalize: %w", err)
	}
	delete(tree, "checksum")
	delete(tree, "created_at")

	canonical, err := json.Marshal(tree)
	if err != nil {
		return "", fmt.Errorf("checksum marshal canonical: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Stamp computes the artifact's checksum and writes it to the struct.
func Stamp(a *models.Artifact) error {
	sum, err := Compute(a)
	if err != nil {
		return err
	}
	a.Checksum = sum
	return nil
}

// VerifyArtifact recomputes the checksum over the received artifact and
// compares it to the checksum carried on the wire. A mismatch means the
// artifact was corrupted or tampered with in transit, independent of the
// transport signature check.
func VerifyArtifact(a *models.Artifact) error {
	sum, err := Compute(a)
	if err != nil {
		return err
	}
	if a.Checksum == "" {
		return fmt.Errorf("%w: missing checksum", ErrValidation)
	}
	if !strings.EqualFold(sum, a.Checksum) {
		return fmt.Errorf("%w: checksum mismatch (computed %s, wire %s)", ErrValidation, sum, a.Checksum)
	}
	return nil
}

// Validate checks the artifact's required structure: identity, version,
// name, type, and a payload must all be present.
func Validate(a *models.Artifact) error {
	if a == nil {
		return fmt.Errorf("%w: missing artifact", ErrValidation)
	}
	if a.GlobalTemplateID == uuid.Nil {
		return fmt.Errorf("%w: missing global_template_id", ErrValidation)
	}
	if strings.TrimSpace(a.Version) == "" {
		return fmt.Errorf("%w: missing version", ErrValidation)
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrValidation)
	}
	if a.Type == "" {
		return fmt.Errorf("%w: missing type", ErrValidation)
	}
	if len(a.Payload) == 0 || string(a.Payload) == "null" {
		return fmt.Errorf("%w: missing payload", ErrValidation)
	}
	if !json.Valid(a.Payload) {
		return fmt.Errorf("%w: payload is not valid JSON", ErrValidation)
	}
	return nil
}
