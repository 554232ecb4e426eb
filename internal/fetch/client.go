package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"
)

// Page is a fetched document decoded to UTF-8.
type Page struct {
	URL         string // final URL after redirects
	StatusCode  int
	ContentType string
	Body        string
}

// Options configures a Client.
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	MaxRedirects int
	Proxy        func(*http.Request) (*url.URL, error)
}

// Client issues GET requests with fixed identification headers. It is safe for
// concurrent use by multiple goroutines.
type Client struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	timeout   time.Duration
}

func NewClient(opts Options) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	proxy := opts.Proxy
	if proxy == nil {
		proxy = http.ProxyFromEnvironment
	}
	transport := &http.Transport{
		Proxy: proxy,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}

	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 5 << 20
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
			Jar:       jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		maxBody:   maxBody,
		timeout:   opts.Timeout,
	}, nil
}

// Get fetches rawURL. A non-2xx status is not an error; callers decide what
// status codes they accept.
func (c *Client) Get(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.client.Do(req)
	if err != nil {
		if IsTimeout(err) {
			return nil, fmt.Errorf("request timed out after %s: %w", c.timeout, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	// A body cut short is an error even when some bytes arrived.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		if IsTimeout(err) {
			return nil, fmt.Errorf("request timed out after %s reading body (%d bytes): %w", c.timeout, len(raw), err)
		}
		return nil, fmt.Errorf("read body after %d bytes: %w", len(raw), err)
	}

	contentType := resp.Header.Get("Content-Type")
	return &Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        decode(raw, contentType),
	}, nil
}

// decode converts raw to UTF-8 using the Content-Type charset, a BOM or a
// <meta charset> declaration, falling back to the bytes as-is.
func decode(raw []byte, contentType string) string {
	if len(raw) == 0 {
		return ""
	}
	enc, _, _ := charset.DetermineEncoding(raw, contentType)
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
