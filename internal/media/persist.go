// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"syncpress/internal/models"
	"syncpress/internal/storage"
	"syncpress/internal/store"
)

// S3Persister stores media copies in S3-compatible object storage and
// records their metadata in PostgreSQL. A repeated source URL reuses the
// existing copy instead of uploading again.
type S3Persister struct {
	storage *storage.Client
	media   *store.MediaStore
}

// NewS3Persister creates a persister over the given storage client and
// media metadata store.
func NewS3Persister(storageClient *storage.Client, mediaStore *store.MediaStore) *S3Persister {
	return &S3Persister{storage: storageClient, media: mediaStore}
}

// Persist uploads the media bytes under a fresh key and returns the public
// URL. The source URL is recorded so later deploys referencing the same
// remote file resolve to the existing local copy.
func (p *S3Persister) Persist(ctx context.Context, data []byte, contentType, sourceURL string) (string, error) {
	if existing, err := p.media.FindBySourceURL(sourceURL); err == nil && existing != nil {
		return p.storage.FileURL(existing.S3Key), nil
	}

	now := time.Now()
	fileID := uuid.New().String()
	ext := extensionFor(sourceURL, contentType)
	key := fmt.Sprintf("media/%d/%02d/%s%s", now.Year(), now.Month(), fileID, ext)

	if err := p.storage.Upload(ctx, key, contentType, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", fmt.Errorf("persist media: %w", err)
	}

	_, err := p.media.Create(&models.Media{
		Filename:    fileID + ext,
		SourceURL:   sourceURL,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Bucket:      p.storage.Bucket(),
		S3Key:       key,
	})
	if err != nil {
		// The object is already uploaded and servable; a metadata insert
		// failure only loses dedup for future deploys.
		slog.Warn("media metadata insert failed", "error", err, "key", key)
	}

	return p.storage.FileURL(key), nil
}

// extensionFor derives a file extension from the source URL path, falling
// back to the content type.
func extensionFor(sourceURL, contentType string) string {
	if u, err := url.Parse(sourceURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 6 {
			return strings.ToLower(ext)
		}
	}
	switch {
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/gif"):
		return ".gif"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(contentType, "image/svg"):
		return ".svg"
	case strings.HasPrefix(contentType, "application/pdf"):
		return ".pdf"
	default:
		return ""
	}
}
