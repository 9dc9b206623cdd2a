package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// StaticFetcher retrieves a site's listing page with a plain HTTP GET and
// extracts candidates from the parsed HTML. It is the fallback when the
// dynamic fetcher fails; it cannot see JavaScript-rendered content.
type StaticFetcher struct {
	client *http.Client
}

// NewStaticFetcher creates a static fetcher.
func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{client: &http.Client{}}
}

// Fetch downloads and parses the site page, returning up to MaxVideos
// candidates extracted with the site's selectors.
func (f *StaticFetcher) Fetch(ctx context.Context, site SiteConfig) ([]VideoCandidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, site.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; face-finder/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch %s: %w", site.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", site.Name, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", site.Name, err)
	}

	return extractCandidates(doc, site)
}

// extractCandidates walks the document for container nodes and pulls one
// candidate out of each.
func extractCandidates(doc *html.Node, site SiteConfig) ([]VideoCandidate, error) {
	containerSel, err := parseSelector(site.Selectors.VideoContainer)
	if err != nil {
		return nil, err
	}
	titleSel, err := parseSelector(site.Selectors.Title)
	if err != nil {
		return nil, err
	}
	thumbSel, err := parseSelector(site.Selectors.Thumbnail)
	if err != nil {
		return nil, err
	}
	linkSel, err := parseSelector(site.Selectors.VideoURL)
	if err != nil {
		return nil, err
	}

	containers := findAll(doc, containerSel, site.MaxVideos)
	candidates := make([]VideoCandidate, 0, len(containers))

	for _, container := range containers {
		title := nodeTitle(findFirst(container, titleSel))

		thumbNode := findFirst(container, thumbSel)
		thumbRef := imageRef(thumbNode)

		linkNode := findFirst(container, linkSel)
		linkRef := attrValue(linkNode, "href")
		if linkRef == "" && matchesSelector(container, selector{tag: "a"}) {
			linkRef = attrValue(container, "href")
		}

		thumbURL, err := ResolveSiteURL(site, thumbRef)
		if err != nil {
			continue
		}
		videoURL, err := ResolveSiteURL(site, linkRef)
		if err != nil {
			continue
		}

		candidates = append(candidates, VideoCandidate{
			Title:        strings.TrimSpace(title),
			ThumbnailURL: thumbURL,
			VideoURL:     videoURL,
			SourceSite:   site.Name,
		})
	}

	return candidates, nil
}

// selector is a minimal CSS-style selector: an optional tag with optional
// id and class requirements (e.g. "img.thumb", ".video-item", "#main").
// The static path supports this subset; full CSS runs in the dynamic path.
type selector struct {
	tag     string
	id      string
	classes []string
}

func parseSelector(s string) (selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return selector{}, fmt.Errorf("empty selector")
	}
	if strings.ContainsAny(s, " >[]:,+~") {
		return selector{}, fmt.Errorf("unsupported selector %q for static parsing", s)
	}

	var sel selector
	rest := s
	if i := strings.IndexAny(rest, ".#"); i > 0 {
		sel.tag = rest[:i]
		rest = rest[i:]
	} else if i < 0 {
		sel.tag = rest
		rest = ""
	}

	for rest != "" {
		kind := rest[0]
		rest = rest[1:]
		end := strings.IndexAny(rest, ".#")
		var token string
		if end < 0 {
			token, rest = rest, ""
		} else {
			token, rest = rest[:end], rest[end:]
		}
		if token == "" {
			return selector{}, fmt.Errorf("malformed selector %q", s)
		}
		switch kind {
		case '.':
			sel.classes = append(sel.classes, token)
		case '#':
			sel.id = token
		}
	}

	return sel, nil
}

// matchesSelector reports whether an element node satisfies the selector.
func matchesSelector(n *html.Node, sel selector) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if sel.tag != "" && n.Data != sel.tag {
		return false
	}
	if sel.id != "" && attrValue(n, "id") != sel.id {
		return false
	}
	if len(sel.classes) > 0 {
		classAttr := attrValue(n, "class")
		classes := strings.Fields(classAttr)
		for _, want := range sel.classes {
			found := false
			for _, have := range classes {
				if have == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// findAll collects up to limit nodes matching the selector, in document
// order. Matching nodes are not descended into, so nested containers yield
// one candidate each.
func findAll(root *html.Node, sel selector, limit int) []*html.Node {
	var found []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(found) >= limit {
			return
		}
		if matchesSelector(n, sel) {
			found = append(found, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}

// findFirst returns the first node under root matching the selector,
// including root itself.
func findFirst(root *html.Node, sel selector) *html.Node {
	if matchesSelector(root, sel) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if n := findFirst(c, sel); n != nil {
			return n
		}
	}
	return nil
}

// attrValue returns the named attribute of a node or "".
func attrValue(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// imageRef extracts an image URL, preferring src and falling back to
// lazy-load attributes.
func imageRef(n *html.Node) string {
	if n == nil {
		return ""
	}
	for _, key := range []string{"src", "data-src", "data-original"} {
		if v := attrValue(n, key); v != "" {
			return v
		}
	}
	return ""
}

// nodeTitle extracts visible text from a node, falling back to common
// attribute carriers.
func nodeTitle(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	if text := strings.TrimSpace(sb.String()); text != "" {
		return text
	}
	for _, key := range []string{"title", "alt"} {
		if v := attrValue(n, key); v != "" {
			return v
		}
	}
	return ""
}
