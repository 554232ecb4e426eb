// Package extractor pulls contact details out of raw page markup.
//
// Every function is pure and safe for concurrent use.
package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/contact-enricher/internal/domain"
	"github.com/user/contact-enricher/pkg/utils"
)

// Platform selects the social network for ExtractSocialLinks.
type Platform string

const (
	LinkedIn  Platform = "linkedin"
	Instagram Platform = "instagram"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// phonePatterns are applied in order and their matches unioned. They overlap on
// purpose: one number may be reported by several families.
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\+[0-9]{1,3}[\s\v\p{Z}.-][0-9]{3}[\s\v\p{Z}.-][0-9]{3}[\s\v\p{Z}.-][0-9]{4}`),
	regexp.MustCompile(`\+[0-9]{1,3}[\s\v\p{Z}.-][0-9]{3}[\s\v\p{Z}.-][0-9]{4}`),
	regexp.MustCompile(`\([0-9]{3}\)[\s\v\p{Z}.-][0-9]{3}[\s\v\p{Z}.-][0-9]{4}`),
	regexp.MustCompile(`[0-9]{3}[\s\v\p{Z}.-][0-9]{3}[\s\v\p{Z}.-][0-9]{4}`),
	regexp.MustCompile(`[0-9]{10,12}`),
}

// Social patterns run against host+path of the resolved link, so a link is
// only attributed to the network that actually serves it.
var socialPatterns = map[Platform]*regexp.Regexp{
	LinkedIn:  regexp.MustCompile(`(?i)^(?:[a-z0-9-]+\.)*linkedin\.com/(?:company|in)/[a-z0-9._-]+`),
	Instagram: regexp.MustCompile(`(?i)^(?:[a-z0-9-]+\.)*(?:instagram\.com|instagr\.am)/[a-z0-9._-]+`),
}

// bareSocialHref matches hrefs written without a scheme, e.g. "linkedin.com/in/jane".
var bareSocialHref = regexp.MustCompile(`(?i)^(?:www\.)?(?:linkedin\.com|instagram\.com|instagr\.am)/`)

// ExtractEmails returns every email-looking substring of text, case preserved.
func ExtractEmails(text string) domain.StringSet {
	return domain.NewStringSet(emailPattern.FindAllString(text, -1)...)
}

// ExtractPhones returns the union of all phone pattern matches in text.
func ExtractPhones(text string) domain.StringSet {
	phones := domain.StringSet{}
	for _, p := range phonePatterns {
		phones.Add(p.FindAllString(text, -1)...)
	}
	return phones
}

// ExtractSocialLinks resolves links against baseURL and keeps those pointing
// at a profile on platform. The resolved URLs are returned.
func ExtractSocialLinks(links []string, baseURL string, platform Platform) domain.StringSet {
	found := domain.StringSet{}
	pattern, ok := socialPatterns[platform]
	if !ok {
		return found
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return found
	}

	for _, href := range links {
		href = strings.TrimSpace(href)
		if bareSocialHref.MatchString(href) {
			href = "https://" + href
		}
		resolved, err := utils.ToAbsoluteURL(base, href)
		if err != nil {
			continue
		}
		if pattern.MatchString(resolved.Host + resolved.Path) {
			found.Add(resolved.String())
		}
	}
	return found
}

// Document is a parsed page.
type Document struct {
	URL   string
	Raw   string
	Links []string // href values of <a> elements, document order
}

// Parse reads the anchors of an HTML page served from pageURL.
func Parse(pageURL, body string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	d := &Document{URL: pageURL, Raw: body}
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href = strings.TrimSpace(href); href != "" {
			d.Links = append(d.Links, href)
		}
	})
	return d, nil
}

// Contacts runs every extractor against the page.
func (d *Document) Contacts() domain.ContactBundle {
	return domain.ContactBundle{
		Emails:    ExtractEmails(d.Raw),
		Phones:    ExtractPhones(d.Raw),
		LinkedIn:  ExtractSocialLinks(d.Links, d.URL, LinkedIn),
		Instagram: ExtractSocialLinks(d.Links, d.URL, Instagram),
	}
}
