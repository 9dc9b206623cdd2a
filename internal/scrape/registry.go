// Package scrape retrieves video listings from the configured source sites.
// A fixed registry of allowed origins is loaded at process start; fetching
// happens per site with rate limiting, retries, and a dynamic-then-static
// fallback.
package scrape

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed sites.yaml
var defaultSitesYAML []byte

// Selectors holds the per-site DOM selectors used to extract candidates.
type Selectors struct {
	VideoContainer string `yaml:"videoContainer" json:"videoContainer"`
	Title          string `yaml:"title" json:"title"`
	Thumbnail      string `yaml:"thumbnail" json:"thumbnail"`
	VideoURL       string `yaml:"videoUrl" json:"videoUrl"`
}

// SiteConfig describes one allowed origin. The registry is immutable for a
// running process.
type SiteConfig struct {
	URL       string    `yaml:"url" json:"url"`
	Name      string    `yaml:"name" json:"name"`
	MaxVideos int       `yaml:"maxVideos" json:"maxVideos"`
	Selectors Selectors `yaml:"selectors" json:"selectors"`
}

// VideoCandidate is a video observed on a source site before scoring.
type VideoCandidate struct {
	ID                 string
	Title              string
	ThumbnailURL       string
	VideoURL           string
	SourceSite         string
	LocalThumbnailPath string
}

type registryFile struct {
	Sites []SiteConfig `yaml:"sites"`
}

// LoadRegistry parses the site registry. An empty path loads the embedded
// default; otherwise the file at path is used.
func LoadRegistry(path string) ([]SiteConfig, error) {
	data := defaultSitesYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path) //nolint:gosec // path comes from operator config
		if err != nil {
			return nil, fmt.Errorf("cannot read site registry: %w", err)
		}
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("cannot parse site registry: %w", err)
	}
	if len(file.Sites) == 0 {
		return nil, fmt.Errorf("site registry is empty")
	}

	for i := range file.Sites {
		if err := validateSite(&file.Sites[i]); err != nil {
			return nil, fmt.Errorf("site %d: %w", i, err)
		}
	}
	return file.Sites, nil
}

// validateSite checks a registry entry and applies defaults.
func validateSite(site *SiteConfig) error {
	if site.Name == "" {
		return fmt.Errorf("missing name")
	}
	u, err := url.Parse(site.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url %q", site.URL)
	}
	if site.MaxVideos <= 0 {
		site.MaxVideos = 10
	}
	s := site.Selectors
	if s.VideoContainer == "" || s.Title == "" || s.Thumbnail == "" || s.VideoURL == "" {
		return fmt.Errorf("incomplete selectors for %s", site.Name)
	}
	return nil
}

// ResolveSiteURL resolves a scraped link against the site origin. Only links
// that parse relative to the origin with an http(s) scheme are accepted.
func ResolveSiteURL(site SiteConfig, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty link")
	}
	base, err := url.Parse(site.URL)
	if err != nil {
		return "", fmt.Errorf("invalid site url: %w", err)
	}
	resolved, err := base.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("unparseable link %q: %w", ref, err)
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", resolved.Scheme)
	}
	return resolved.String(), nil
}
