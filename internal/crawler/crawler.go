package crawler

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/user/contact-enricher/internal/domain"
	"github.com/user/contact-enricher/internal/extractor"
	"github.com/user/contact-enricher/internal/fetch"
	"github.com/user/contact-enricher/internal/monitoring"
	"github.com/user/contact-enricher/pkg/utils"
	"go.uber.org/zap"
)

// DefaultMaxPages is the page budget used when callers pass a non-positive one.
const DefaultMaxPages = 5

// Fetcher is the subset of fetch.Client used by the crawler.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*fetch.Page, error)
}

// Crawler visits a bounded number of same-host pages of one site breadth-first
// and collects the contact details found on them. A Crawler holds no per-crawl
// state and can be shared by many goroutines.
type Crawler struct {
	fetcher Fetcher
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

func NewCrawler(f Fetcher, m *monitoring.Metrics, l *zap.Logger) *Crawler {
	return &Crawler{fetcher: f, metrics: m, logger: l}
}

// Crawl starts from seedURL (https:// is assumed when no scheme is given) and
// fetches at most maxPages URLs. The result accumulated so far is always returned.
func (c *Crawler) Crawl(ctx context.Context, seedURL string, maxPages int) *domain.CrawlResult {
	return c.run(ctx, utils.EnsureScheme(seedURL), nil, maxPages)
}

// CrawlFrom is Crawl with the seed page already fetched; it counts as the first visit.
func (c *Crawler) CrawlFrom(ctx context.Context, seed *fetch.Page, maxPages int) *domain.CrawlResult {
	return c.run(ctx, seed.URL, seed, maxPages)
}

// frontier is the FIFO queue of one crawl plus the set of every URL ever queued.
type frontier struct {
	queue []string
	seen  map[string]struct{}
}

func newFrontier(seed string) *frontier {
	return &frontier{queue: []string{seed}, seen: map[string]struct{}{seed: {}}}
}

func (f *frontier) push(u string) {
	if _, ok := f.seen[u]; ok {
		return
	}
	f.seen[u] = struct{}{}
	f.queue = append(f.queue, u)
}

func (f *frontier) pop() (string, bool) {
	if len(f.queue) == 0 {
		return "", false
	}
	u := f.queue[0]
	f.queue = f.queue[1:]
	return u, true
}

func (c *Crawler) run(ctx context.Context, seedURL string, seedPage *fetch.Page, maxPages int) *domain.CrawlResult {
	result := domain.NewCrawlResult()
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	seed, err := url.Parse(seedURL)
	if err != nil || seed.Host == "" {
		c.logger.Error("cannot crawl unparsable seed", zap.String("url", seedURL), zap.Error(err))
		return result
	}
	host := seed.Host

	c.logger.Info("starting to scrape", zap.String("url", seedURL), zap.Int("max_pages", maxPages))
	queue := newFrontier(seedURL)

	for result.PagesVisited < maxPages {
		if ctx.Err() != nil {
			c.logger.Warn("crawl interrupted", zap.String("url", seedURL), zap.Error(ctx.Err()))
			break
		}
		current, ok := queue.pop()
		if !ok {
			break
		}
		result.PagesVisited++

		var page *fetch.Page
		if seedPage != nil && current == seedURL {
			page = seedPage
		} else {
			c.logger.Debug("visiting", zap.String("url", current))
			page, err = c.fetcher.Get(ctx, current)
			if err != nil {
				c.metrics.IncPages("fetch_error")
				c.logger.Warn("error scraping page", zap.String("url", current), zap.Error(err))
				continue
			}
		}
		if page.StatusCode >= http.StatusBadRequest {
			c.metrics.IncPages("http_error")
			c.logger.Warn("page returned error status", zap.String("url", current), zap.Int("status", page.StatusCode))
			continue
		}
		// The seed page is always read, wherever it redirected to.
		if current != seedURL {
			if u, err := url.Parse(page.URL); err == nil && u.Host != host {
				c.metrics.IncPages("off_host")
				c.logger.Info("redirected off the seed host, skipping", zap.String("url", current), zap.String("final_url", page.URL))
				continue
			}
			if !isMarkup(page.ContentType) {
				c.metrics.IncPages("skipped_type")
				c.logger.Debug("skipping non-text page", zap.String("url", current), zap.String("content_type", page.ContentType))
				continue
			}
		}
		c.metrics.IncPages("ok")

		doc, err := extractor.Parse(page.URL, page.Body)
		if err != nil {
			c.logger.Warn("failed to parse page", zap.String("url", current), zap.Error(err))
			continue
		}
		found := doc.Contacts()
		if !found.Empty() {
			c.logger.Debug("found contacts",
				zap.String("url", current),
				zap.Strings("emails", found.Emails.Sorted()),
				zap.Strings("phones", found.Phones.Sorted()),
				zap.Strings("linkedin", found.LinkedIn.Sorted()),
				zap.Strings("instagram", found.Instagram.Sorted()),
			)
		}
		result.Contacts.Merge(found)

		if result.PagesVisited < maxPages {
			for _, link := range sameHostLinks(page.URL, doc.Links, host) {
				queue.push(link)
			}
		}
	}

	c.logger.Info("finished scraping",
		zap.String("url", seedURL),
		zap.Int("pages", result.PagesVisited),
		zap.Int("emails", len(result.Contacts.Emails)),
		zap.Int("phones", len(result.Contacts.Phones)),
	)
	return result
}

// sameHostLinks resolves hrefs against pageURL and keeps http(s) links whose
// host equals host exactly. Fragments are dropped.
func sameHostLinks(pageURL string, hrefs []string, host string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var out []string
	for _, href := range hrefs {
		u, err := utils.ToAbsoluteURL(base, href)
		if err != nil {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		if u.Host != host {
			continue
		}
		u.Fragment = ""
		u.RawFragment = ""
		out = append(out, u.String())
	}
	return out
}

// isMarkup reports whether a response of this content type is worth parsing.
// A missing header is given the benefit of the doubt.
func isMarkup(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "text/") ||
		strings.Contains(mediaType, "html") ||
		strings.HasSuffix(mediaType, "xml")
}
