package actions

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rigup/rigup/pkg/registry"
)

func TestFetchCachesArtifacts(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		fmt.Fprint(w, "artifact body")
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Minute, zerolog.Nop())

	first, err := f.Fetch(context.Background(), srv.URL+"/tool.tar.gz")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	body, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(body) != "artifact body" {
		t.Errorf("cached artifact = %q", body)
	}

	second, err := f.Fetch(context.Background(), srv.URL+"/tool.tar.gz")
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if second != first {
		t.Errorf("cache miss: %s vs %s", second, first)
	}
	if hits != 1 {
		t.Errorf("expected one upstream request, got %d", hits)
	}
}

func TestFetchStripsQueryFromCacheName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "body")
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Minute, zerolog.Nop())
	path, err := f.Fetch(context.Background(), srv.URL+"/installer.exe?token=abc")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Base(path) != "installer.exe" {
		t.Errorf("cache name kept the query string: %s", path)
	}
}

func TestFetchRejectsNonOKResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Minute, zerolog.Nop())
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.tar.gz"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestResolvePrefersDirectURL(t *testing.T) {
	f := NewFetcher(t.TempDir(), time.Minute, zerolog.Nop())
	src := &registry.ReleaseSource{
		URL:  "https://example.com/direct.tar.gz",
		Repo: "owner/name",
	}
	url, err := f.Resolve(context.Background(), src)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if url != src.URL {
		t.Errorf("Resolve = %s, want direct URL", url)
	}
}

func TestResolveFindsAssetBySuffix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/owner/name/releases/latest" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{
			"tag_name": "v2.1.0",
			"assets": [
				{"name": "tool-darwin-arm64.tar.gz", "browser_download_url": "https://dl.example.com/darwin"},
				{"name": "tool-linux-amd64.tar.gz", "browser_download_url": "https://dl.example.com/linux"}
			]
		}`)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Minute, zerolog.Nop())
	f.apiBase = srv.URL

	url, err := f.Resolve(context.Background(), &registry.ReleaseSource{
		Repo:        "owner/name",
		AssetSuffix: "linux-amd64.tar.gz",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if url != "https://dl.example.com/linux" {
		t.Errorf("Resolve = %s, want linux asset", url)
	}
}

func TestResolveFailsWithoutMatchingAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"tag_name": "v1.0.0", "assets": []}`)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Minute, zerolog.Nop())
	f.apiBase = srv.URL

	if _, err := f.Resolve(context.Background(), &registry.ReleaseSource{
		Repo:        "owner/name",
		AssetSuffix: ".tar.gz",
	}); err == nil {
		t.Fatal("expected error when no asset matches")
	}
}
