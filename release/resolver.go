package release

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/getpup/pupsourcing/es"

	"github.com/getpup/glpi-bootstrap"
)

// Latest is the version alias resolved through the release listing.
const Latest = "latest"

const (
	defaultAPIBaseURL  = "https://api.github.com"
	defaultRepository  = "glpi-project/glpi"
	defaultURLTemplate = "https://github.com/{repository}/releases/download/{version}/glpi-{version}.tgz"
	defaultAssetGlob   = "glpi-*.tgz"
)

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Client performs the HTTP requests (default: client with a 30s timeout).
	Client *http.Client

	// APIBaseURL is the GitHub API root (default: "https://api.github.com").
	APIBaseURL string

	// Repository is the owner/name of the upstream project (default: "glpi-project/glpi").
	Repository string

	// URLTemplate builds the download URL of a pinned version. The
	// placeholders {repository} and {version} are substituted.
	URLTemplate string

	// AssetGlob selects the archive among the assets of the latest release
	// (default: "glpi-*.tgz").
	AssetGlob string

	// Token is an optional GitHub token, sent as a bearer token to lift the
	// anonymous rate limit.
	Token string

	// Logger is an optional logger for observability.
	Logger es.Logger
}

// Resolver turns a version string into a downloadable Release.
type Resolver struct {
	config ResolverConfig
}

// NewResolver creates a Resolver, applying defaults for zero-valued fields.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.Repository == "" {
		cfg.Repository = defaultRepository
	}
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = defaultURLTemplate
	}
	if cfg.AssetGlob == "" {
		cfg.AssetGlob = defaultAssetGlob
	}

	return &Resolver{config: cfg}
}

type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// Resolve returns the release to download for version. An empty version
// means Latest.
func (r *Resolver) Resolve(ctx context.Context, version string) (bootstrap.Release, error) {
	version = strings.TrimSpace(version)
	if version == "" || version == Latest {
		return r.resolveLatest(ctx)
	}

	rel := bootstrap.Release{
		Version: version,
		URL: strings.NewReplacer(
			"{repository}", r.config.Repository,
			"{version}", version,
		).Replace(r.config.URLTemplate),
	}
	if r.config.Logger != nil {
		r.config.Logger.Debug(ctx, "resolved pinned release", "version", rel.Version, "url", rel.URL)
	}
	return rel, nil
}

func (r *Resolver) resolveLatest(ctx context.Context) (bootstrap.Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", r.config.APIBaseURL, r.config.Repository)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return bootstrap.Release{}, fmt.Errorf("failed to build release listing request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if r.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.Token)
	}

	resp, err := r.config.Client.Do(req)
	if err != nil {
		return bootstrap.Release{}, fmt.Errorf("failed to query release listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return bootstrap.Release{}, fmt.Errorf("%w: no published release for %s", bootstrap.ErrReleaseNotFound, r.config.Repository)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return bootstrap.Release{}, fmt.Errorf("failed to query release listing: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var listing githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return bootstrap.Release{}, fmt.Errorf("%w: malformed release listing: %v", bootstrap.ErrReleaseNotFound, err)
	}

	for _, asset := range listing.Assets {
		ok, err := path.Match(r.config.AssetGlob, asset.Name)
		if err != nil {
			return bootstrap.Release{}, fmt.Errorf("invalid asset pattern %q: %w", r.config.AssetGlob, err)
		}
		if !ok || asset.BrowserDownloadURL == "" {
			continue
		}

		rel := bootstrap.Release{
			Version: listing.TagName,
			URL:     asset.BrowserDownloadURL,
			Size:    asset.Size,
		}
		if r.config.Logger != nil {
			r.config.Logger.Info(ctx, "resolved latest release", "version", rel.Version, "url", rel.URL)
		}
		return rel, nil
	}

	return bootstrap.Release{}, fmt.Errorf("%w: release %s has no asset matching %s",
		bootstrap.ErrReleaseNotFound, listing.TagName, r.config.AssetGlob)
}
