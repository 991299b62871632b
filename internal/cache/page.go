// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// page.go provides the Valkey-backed full-page HTML cache the site's
// renderer populates. The sync engine only invalidates it: after a template
// apply or rollback any rendered page could be stale, so the whole prefix
// is cleared (best-effort).
package cache

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// pageKeyPrefix is the Valkey key prefix for cached pages.
const pageKeyPrefix = "page:"

// PageCache manages full-page HTML cache entries in Valkey.
type PageCache struct {
	client *redis.Client
}

// NewPageCache creates a page cache backed by the given Valkey client.
func NewPageCache(client *redis.Client) *PageCache {
	return &PageCache{client: client}
}

// InvalidateAll removes all cached pages by scanning for the prefix.
// Errors are logged and swallowed; a stale cache entry is preferable to a
// failed apply.
func (pc *PageCache) InvalidateAll(ctx context.Context) {
	var cursor uint64
	var deleted int
	for {
		keys, nextCursor, err := pc.client.Scan(ctx, cursor, pageKeyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("page cache scan error", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := pc.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("page cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Info("page cache cleared after template apply", "deleted", deleted)
	}
}
