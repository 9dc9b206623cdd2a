package scrape

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-finder/internal/constants"
)

// Fetcher retrieves video candidates for a single site.
type Fetcher interface {
	Fetch(ctx context.Context, site SiteConfig) ([]VideoCandidate, error)
}

// Client fetches all configured sites in parallel with rate limiting,
// per-site retries, and a dynamic-to-static fallback. Failure of one site
// never cancels its peers.
type Client struct {
	dynamic Fetcher
	static  Fetcher
	limiter *Limiter

	retries int
	backoff time.Duration
	timeout time.Duration
}

// NewClient creates a fetcher client with the default dynamic and static
// fetchers and limits.
func NewClient() *Client {
	return &Client{
		dynamic: NewDynamicFetcher(),
		static:  NewStaticFetcher(),
		limiter: NewDefaultLimiter(),
		retries: constants.SiteFetchRetries,
		backoff: constants.SiteRetryBackoff,
		timeout: constants.SiteFetchTimeout,
	}
}

// NewClientWith creates a client with explicit fetchers and limiter,
// bypassing browser startup. Used by tests and the CLI's static-only mode.
func NewClientWith(dynamic, static Fetcher, limiter *Limiter) *Client {
	if limiter == nil {
		limiter = NewDefaultLimiter()
	}
	return &Client{
		dynamic: dynamic,
		static:  static,
		limiter: limiter,
		retries: constants.SiteFetchRetries,
		backoff: constants.SiteRetryBackoff,
		timeout: constants.SiteFetchTimeout,
	}
}

// Result aggregates the outcome across all sites. Errors are human-readable,
// one per failed site; candidates only come from sites that succeeded.
type Result struct {
	Candidates     []VideoCandidate
	ProcessedSites []string
	Errors         []string
}

// FetchAll retrieves candidates from every site concurrently with
// all-settled semantics. It never fails as a whole: a run where every site
// errored still returns a Result with an empty candidate list.
func (c *Client) FetchAll(ctx context.Context, sites []SiteConfig) Result {
	type siteOutcome struct {
		index      int
		site       string
		candidates []VideoCandidate
		err        error
	}

	outcomes := make([]siteOutcome, len(sites))
	var wg sync.WaitGroup
	for i, site := range sites {
		wg.Add(1)
		go func(i int, site SiteConfig) {
			defer wg.Done()
			candidates, err := c.fetchSite(ctx, site)
			outcomes[i] = siteOutcome{index: i, site: site.Name, candidates: candidates, err: err}
		}(i, site)
	}
	wg.Wait()

	var result Result
	for _, o := range outcomes {
		result.ProcessedSites = append(result.ProcessedSites, o.site)
		if o.err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", o.site, o.err))
			continue
		}
		result.Candidates = append(result.Candidates, o.candidates...)
	}

	// Deterministic candidate order regardless of goroutine scheduling.
	sort.SliceStable(result.Candidates, func(i, j int) bool {
		if result.Candidates[i].SourceSite != result.Candidates[j].SourceSite {
			return result.Candidates[i].SourceSite < result.Candidates[j].SourceSite
		}
		return result.Candidates[i].VideoURL < result.Candidates[j].VideoURL
	})
	for i := range result.Candidates {
		result.Candidates[i].ID = uuid.NewString()
	}

	return result
}

// fetchSite runs the retry loop for one site. Each attempt holds a limiter
// slot, tries the dynamic fetcher, and falls back to the static one.
func (c *Client) fetchSite(ctx context.Context, site SiteConfig) ([]VideoCandidate, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * c.backoff
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		candidates, err := c.fetchOnce(ctx, site)
		if err == nil {
			return candidates, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("site %s attempt %d/%d failed: %v", site.Name, attempt, c.retries, err)
	}
	return nil, lastErr
}

// fetchOnce performs a single rate-limited attempt.
func (c *Client) fetchOnce(ctx context.Context, site SiteConfig) ([]VideoCandidate, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.limiter.Release()

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.dynamic != nil {
		candidates, err := c.dynamic.Fetch(attemptCtx, site)
		if err == nil {
			return capCandidates(candidates, site.MaxVideos), nil
		}
		if attemptCtx.Err() != nil && ctx.Err() != nil {
			return nil, err
		}
		log.Printf("dynamic fetch of %s failed, falling back to static: %v", site.Name, err)
	}

	staticCtx, cancelStatic := context.WithTimeout(ctx, c.timeout)
	defer cancelStatic()

	candidates, err := c.static.Fetch(staticCtx, site)
	if err != nil {
		return nil, err
	}
	return capCandidates(candidates, site.MaxVideos), nil
}

func capCandidates(candidates []VideoCandidate, maxVideos int) []VideoCandidate {
	if len(candidates) > maxVideos {
		return candidates[:maxVideos]
	}
	return candidates
}
