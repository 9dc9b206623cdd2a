package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// DynamicFetcher renders a site's listing page in a headless browser so
// JavaScript-populated listings are visible, then evaluates the selectors
// in the page itself. Browser launch failure for one fetch is isolated to
// that fetch.
type DynamicFetcher struct {
	execOpts []chromedp.ExecAllocatorOption
	// settle is how long to wait after navigation for network activity to
	// quiet down before evaluating selectors.
	settle time.Duration
}

// NewDynamicFetcher creates a headless-browser fetcher.
func NewDynamicFetcher() *DynamicFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	return &DynamicFetcher{execOpts: opts, settle: 500 * time.Millisecond}
}

// rawCandidate is the JSON shape produced by the in-page extraction script.
type rawCandidate struct {
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	VideoURL  string `json:"videoUrl"`
}

// Fetch navigates to the site, waits for the page to settle, and extracts
// up to MaxVideos candidates with document.querySelectorAll.
func (f *DynamicFetcher) Fetch(ctx context.Context, site SiteConfig) ([]VideoCandidate, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, f.execOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var raw []rawCandidate
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(site.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.settle),
		chromedp.Evaluate(extractionScript(site), &raw),
	)
	if err != nil {
		return nil, fmt.Errorf("dynamic fetch of %s failed: %w", site.Name, err)
	}

	candidates := make([]VideoCandidate, 0, len(raw))
	for _, r := range raw {
		thumbURL, err := ResolveSiteURL(site, r.Thumbnail)
		if err != nil {
			continue
		}
		videoURL, err := ResolveSiteURL(site, r.VideoURL)
		if err != nil {
			continue
		}
		candidates = append(candidates, VideoCandidate{
			Title:        strings.TrimSpace(r.Title),
			ThumbnailURL: thumbURL,
			VideoURL:     videoURL,
			SourceSite:   site.Name,
		})
	}
	return candidates, nil
}

// extractionScript builds the in-page JS that walks the container nodes and
// collects candidate fields. Selector strings are JSON-encoded so arbitrary
// registry values cannot break out of the script.
func extractionScript(site SiteConfig) string {
	container := jsString(site.Selectors.VideoContainer)
	title := jsString(site.Selectors.Title)
	thumb := jsString(site.Selectors.Thumbnail)
	link := jsString(site.Selectors.VideoURL)

	return fmt.Sprintf(`(() => {
		const out = [];
		const containers = document.querySelectorAll(%s);
		for (const el of containers) {
			if (out.length >= %d) break;
			const titleEl = el.querySelector(%s);
			const thumbEl = el.querySelector(%s);
			const linkEl = el.querySelector(%s) || (el.tagName === 'A' ? el : null);
			out.push({
				title: titleEl ? (titleEl.textContent || titleEl.getAttribute('title') || '').trim() : '',
				thumbnail: thumbEl ? (thumbEl.getAttribute('src') || thumbEl.getAttribute('data-src') || '') : '',
				videoUrl: linkEl ? (linkEl.getAttribute('href') || '') : '',
			});
		}
		return out;
	})()`, container, site.MaxVideos, title, thumb, link)
}

// jsString encodes a Go string as a JS string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
