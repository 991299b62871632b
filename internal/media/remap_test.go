// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package media

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakePersister maps fetched bytes to deterministic local URLs.
type fakePersister struct {
	persisted int
}

func (p *fakePersister) Persist(_ context.Context, _ []byte, _ string, sourceURL string) (string, error) {
	p.persisted++
	return "https://media.local.test/stored/" + fmt.Sprintf("%d", p.persisted) + ".png", nil
}

func testRemapper(t *testing.T) (*Remapper, *httptest.Server, *fakePersister) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "missing.png") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	t.Cleanup(srv.Close)

	persister := &fakePersister{}
	remapper := NewRemapper(NewHTTPFetcher(5*time.Second, 1<<20), persister, "https://media.local.test")
	return remapper, srv, persister
}

func remap(t *testing.T, r *Remapper, payload string) (map[string]any, Report) {
	t.Helper()
	out, report, err := r.Remap(context.Background(), json.RawMessage(payload))
	if err != nil {
		t.Fatalf("remap: %v", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(out, &tree); err != nil {
		t.Fatalf("decode remapped payload: %v", err)
	}
	return tree, report
}

func TestRemapRewritesRemoteMediaURL(t *testing.T) {
	r, srv, persister := testRemapper(t)

	payload := fmt.Sprintf(`{"blocks":[{"kind":"image","src":"%s/logo.png"}]}`, srv.URL)
	tree, report := remap(t, r, payload)

	src := tree["blocks"].([]any)[0].(map[string]any)["src"].(string)
	if !strings.HasPrefix(src, "https://media.local.test/stored/") {
		t.Errorf("remote URL not rewritten: %s", src)
	}
	if report.Rewritten != 1 || report.Failed != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	if persister.persisted != 1 {
		t.Errorf("expected 1 persist call, got %d", persister.persisted)
	}
}

func TestRemapFailureIsNonFatal(t *testing.T) {
	r, srv, _ := testRemapper(t)

	okURL := srv.URL + "/hero.jpg"
	badURL := srv.URL + "/missing.png"
	payload := fmt.Sprintf(`{"a":"%s","b":"%s"}`, okURL, badURL)
	tree, report := remap(t, r, payload)

	if tree["a"].(string) == okURL {
		t.Error("reachable URL was not rewritten")
	}
	if tree["b"].(string) != badURL {
		t.Errorf("failed URL should stay unchanged, got %s", tree["b"])
	}
	if report.Rewritten != 1 || report.Failed != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestRemapCachesRepeatedURLs(t *testing.T) {
	r, srv, persister := testRemapper(t)

	url := srv.URL + "/logo.png"
	payload := fmt.Sprintf(`{"header":"%s","footer":"%s"}`, url, url)
	tree, report := remap(t, r, payload)

	if tree["header"] != tree["footer"] {
		t.Error("same source URL mapped to different local URLs")
	}
	if persister.persisted != 1 {
		t.Errorf("repeated URL persisted %d times", persister.persisted)
	}
	if report.Rewritten != 2 {
		t.Errorf("expected both references counted, got %+v", report)
	}
}

func TestRemapSkipsNonMediaAndLocalURLs(t *testing.T) {
	r, _, persister := testRemapper(t)

	payload := `{
		"link": "https://example.com/about",
		"own": "https://media.local.test/stored/1.png",
		"relative": "/assets/logo.png",
		"text": "plain words"
	}`
	tree, report := remap(t, r, payload)

	if tree["link"] != "https://example.com/about" ||
		tree["own"] != "https://media.local.test/stored/1.png" ||
		tree["relative"] != "/assets/logo.png" {
		t.Errorf("non-candidate strings were touched: %v", tree)
	}
	if report.Rewritten != 0 || report.Failed != 0 || persister.persisted != 0 {
		t.Errorf("expected no remap activity, got %+v, persists=%d", report, persister.persisted)
	}
}

func TestRemapDisabledWithoutCollaborators(t *testing.T) {
	r := NewRemapper(nil, nil, "")
	payload := json.RawMessage(`{"src":"https://example.com/a.png"}`)

	out, report, err := r.Remap(context.Background(), payload)
	if err != nil {
		t.Fatalf("remap: %v", err)
	}
	if string(out) != string(payload) {
		t.Error("disabled remapper changed the payload")
	}
	if report.Rewritten != 0 || report.Failed != 0 {
		t.Errorf("disabled remapper reported activity: %+v", report)
	}
}

func TestRemapWalksNestedStructures(t *testing.T) {
	r, srv, _ := testRemapper(t)

	payload := fmt.Sprintf(`{"rows":[{"cols":[{"bg":"%s/bg.webp"}]}]}`, srv.URL)
	tree, report := remap(t, r, payload)

	bg := tree["rows"].([]any)[0].(map[string]any)["cols"].([]any)[0].(map[string]any)["bg"].(string)
	if !strings.HasPrefix(bg, "https://media.local.test/") {
		t.Errorf("nested URL not rewritten: %s", bg)
	}
	if report.Rewritten != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
}
