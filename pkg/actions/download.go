package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rigup/rigup/pkg/registry"
)

// githubAPI is the base URL for release resolution, overridable in tests.
const githubAPI = "https://api.github.com"

// Fetcher downloads release artifacts with explicit network timeouts.
// Package-manager operations inherit the package manager's own behavior,
// but artifact fetches are plain HTTP and get a configurable ceiling.
type Fetcher struct {
	client   *http.Client
	apiBase  string
	cacheDir string
	logger   zerolog.Logger
}

// NewFetcher creates a fetcher writing into cacheDir. timeout bounds each
// HTTP request, API call and artifact download alike.
func NewFetcher(cacheDir string, timeout time.Duration, logger zerolog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		apiBase:  githubAPI,
		cacheDir: cacheDir,
		logger:   logger.With().Str("component", "fetcher").Logger(),
	}
}

// releaseAsset is the subset of the GitHub release asset payload we need.
type releaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type release struct {
	TagName string         `json:"tag_name"`
	Assets  []releaseAsset `json:"assets"`
}

// Resolve turns a ReleaseSource into a concrete artifact URL.
func (f *Fetcher) Resolve(ctx context.Context, src *registry.ReleaseSource) (string, error) {
	if src.URL != "" {
		return src.URL, nil
	}
	if src.Repo == "" {
		return "", fmt.Errorf("release source has neither url nor repo")
	}

	url := fmt.Sprintf("%s/repos/%s/releases/latest", f.apiBase, src.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("release lookup for %s failed: %w", src.Repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release lookup for %s: unexpected status %s", src.Repo, resp.Status)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return "", fmt.Errorf("release lookup for %s: decode: %w", src.Repo, err)
	}

	for _, asset := range rel.Assets {
		if strings.HasSuffix(asset.Name, src.AssetSuffix) {
			f.logger.Info().
				Str("repo", src.Repo).
				Str("tag", rel.TagName).
				Str("asset", asset.Name).
				Msg("Resolved release asset")
			return asset.BrowserDownloadURL, nil
		}
	}

	return "", fmt.Errorf("release %s of %s has no asset matching %q",
		rel.TagName, src.Repo, src.AssetSuffix)
}

// Fetch downloads the URL into the cache directory and returns the local
// path. An existing cache entry is reused so re-runs converge without
// re-downloading.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		return "", err
	}

	dest := filepath.Join(f.cacheDir, filepath.Base(strings.SplitN(url, "?", 2)[0]))
	if _, err := os.Stat(dest); err == nil {
		f.logger.Debug().Str("path", dest).Msg("Artifact already cached")
		return dest, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	// Write via a temp file so an interrupted download never masquerades
	// as a cached artifact.
	tmp, err := os.CreateTemp(f.cacheDir, ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}

	f.logger.Info().Str("url", url).Str("path", dest).Msg("Downloaded artifact")
	return dest, nil
}
