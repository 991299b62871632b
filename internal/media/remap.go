// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
)

// mediaExtensions are the URL path suffixes treated as media references
// inside an artifact payload. Anything else (page links, API endpoints)
// passes through untouched.
var mediaExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".svg": true, ".ico": true, ".mp4": true, ".webm": true, ".mp3": true,
	".pdf": true, ".woff": true, ".woff2": true, ".ttf": true,
}

// Report summarizes one payload remap pass.
type Report struct {
	Rewritten int `json:"rewritten"`
	Failed    int `json:"failed"`
}

// Remapper walks artifact payloads and substitutes remote media URLs with
// locally hosted copies. The payload is an opaque tree; the remapper keys
// off string values alone, never off the payload's schema.
type Remapper struct {
	fetcher   Fetcher
	persister Persister
	// localPrefix marks URLs already hosted by this site; they are skipped.
	localPrefix string
}

// NewRemapper creates a remapper. Either collaborator being nil disables
// remapping entirely (Remap returns the payload unchanged).
func NewRemapper(fetcher Fetcher, persister Persister, localPrefix string) *Remapper {
	return &Remapper{fetcher: fetcher, persister: persister, localPrefix: localPrefix}
}

// Enabled reports whether this remapper can do any work.
func (r *Remapper) Enabled() bool {
	return r != nil && r.fetcher != nil && r.persister != nil
}

// Remap rewrites every remote media reference in the payload to a local
// copy. A failed fetch or persist leaves that single reference unchanged
// and is counted in the report; it never fails the call. The only error
// case is a payload that does not decode, which callers treat as
// "nothing to remap".
func (r *Remapper) Remap(ctx context.Context, payload json.RawMessage) (json.RawMessage, Report, error) {
	var report Report
	if !r.Enabled() || len(payload) == 0 {
		return payload, report, nil
	}

	var tree any
	if err := json.Unmarshal(payload, &tree); err != nil {
		return payload, report, fmt.Errorf("remap decode payload: %w", err)
	}

	// One fetch per distinct URL per pass, failures cached too.
	resolved := make(map[string]string)

	tree = r.walk(ctx, tree, resolved, &report)

	out, err := json.Marshal(tree)
	if err != nil {
		return payload, report, fmt.Errorf("remap encode payload: %w", err)
	}
	return out, report, nil
}

// walk recursively visits the decoded payload tree, substituting string
// values that look like remote media references.
func (r *Remapper) walk(ctx context.Context, node any, resolved map[string]string, report *Report) any {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			v[key] = r.walk(ctx, child, resolved, report)
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = r.walk(ctx, child, resolved, report)
		}
		return v
	case string:
		if !r.isRemoteMediaURL(v) {
			return v
		}
		return r.substitute(ctx, v, resolved, report)
	default:
		return node
	}
}

// substitute resolves one media URL to its local copy, fetching and
// persisting on first sight within this pass.
func (r *Remapper) substitute(ctx context.Context, ref string, resolved map[string]string, report *Report) string {
	if local, ok := resolved[ref]; ok {
		if local == "" {
			report.Failed++
			return ref
		}
		report.Rewritten++
		return local
	}

	data, contentType, err := r.fetcher.Fetch(ctx, ref)
	if err != nil {
		slog.Warn("media fetch failed, reference left unchanged", "url", ref, "error", err)
		resolved[ref] = ""
		report.Failed++
		return ref
	}

	local, err := r.persister.Persist(ctx, data, contentType, ref)
	if err != nil {
		slog.Warn("media persist failed, reference left unchanged", "url", ref, "error", err)
		resolved[ref] = ""
		report.Failed++
		return ref
	}

	resolved[ref] = local
	report.Rewritten++
	return local
}

// isRemoteMediaURL reports whether a string value is an absolute http(s)
// URL pointing at a media file not already hosted locally.
func (r *Remapper) isRemoteMediaURL(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	if r.localPrefix != "" && strings.HasPrefix(s, r.localPrefix) {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return mediaExtensions[strings.ToLower(path.Ext(u.Path))]
}
