package prober

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/user/contact-enricher/internal/fetch"
	"github.com/user/contact-enricher/internal/monitoring"
	"github.com/user/contact-enricher/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/net/idna"
)

const (
	ReasonInvalidURL   = "Invalid URL"
	ReasonNoContent    = "No content found"
	ReasonUnableToConn = "Unable to connect"

	// DefaultMinContentLength is the body length a page must exceed to count as live.
	DefaultMinContentLength = 100
)

// Fetcher is the subset of fetch.Client used by the prober.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*fetch.Page, error)
}

// Outcome is the result of probing one website.
type Outcome struct {
	Reachable   bool
	ResolvedURL string      // set when Reachable
	Page        *fetch.Page // set when Reachable
	Reason      string      // set when not Reachable
}

func Reachable(page *fetch.Page) Outcome {
	return Outcome{Reachable: true, ResolvedURL: page.URL, Page: page}
}

func Unreachable(reason string) Outcome {
	return Outcome{Reason: reason}
}

// Prober decides whether a website answers with real content.
type Prober struct {
	fetcher    Fetcher
	minContent int
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

func New(f Fetcher, minContent int, m *monitoring.Metrics, l *zap.Logger) *Prober {
	if minContent <= 0 {
		minContent = DefaultMinContentLength
	}
	return &Prober{fetcher: f, minContent: minContent, metrics: m, logger: l}
}

// Probe tries https:// then http:// for scheme-less input, or only the given
// scheme otherwise, and accepts the first non-404 response with a body longer
// than the content threshold.
func (p *Prober) Probe(ctx context.Context, rawURL string) Outcome {
	candidates, ok := Candidates(rawURL)
	if !ok {
		p.metrics.IncProbes("invalid")
		return Unreachable(ReasonInvalidURL)
	}

	var reason string
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			reason = err.Error()
			break
		}

		p.logger.Debug("trying to connect", zap.String("url", candidate))
		page, err := p.fetcher.Get(ctx, candidate)
		if err != nil {
			reason = err.Error()
			p.logger.Warn("failed to connect", zap.String("url", candidate), zap.Error(err))
			continue
		}

		if page.StatusCode == http.StatusNotFound {
			reason = fmt.Sprintf("Error %d", page.StatusCode)
			p.logger.Warn("site answered 404", zap.String("url", candidate))
			continue
		}
		if utf8.RuneCountInString(page.Body) <= p.minContent {
			reason = ReasonNoContent
			p.logger.Warn("site has no content", zap.String("url", candidate), zap.Int("status", page.StatusCode))
			continue
		}

		p.logger.Debug("successfully connected", zap.String("url", candidate), zap.String("resolved", page.URL))
		p.metrics.IncProbes("reachable")
		return Reachable(page)
	}

	p.metrics.IncProbes("unreachable")
	if reason == "" {
		reason = ReasonUnableToConn
	}
	return Unreachable(reason)
}

// Candidates returns the URLs to probe for rawURL, in order. ok is false for
// input that cannot name a host.
func Candidates(rawURL string) ([]string, bool) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return nil, false
	}

	var schemes []string
	rest := raw
	switch lower := strings.ToLower(raw); {
	case strings.HasPrefix(lower, "https://"):
		schemes, rest = []string{"https"}, raw[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		schemes, rest = []string{"http"}, raw[len("http://"):]
	default:
		schemes = []string{"https", "http"}
	}

	out := make([]string, 0, len(schemes))
	for _, scheme := range schemes {
		candidate, ok := normalize(scheme + "://" + rest)
		if !ok {
			return nil, false
		}
		out = append(out, candidate)
	}
	return out, true
}

// normalize validates the URL and converts an internationalized host to ASCII.
func normalize(raw string) (string, bool) {
	if !utils.HasHTTPScheme(raw) {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", false
	}

	host := u.Hostname()
	if isASCII(host) {
		return raw, true
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", false
	}
	if port := u.Port(); port != "" {
		u.Host = ascii + ":" + port
	} else {
		u.Host = ascii
	}
	return u.String(), true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
