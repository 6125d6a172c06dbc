// Package extract reads the few facts the order flow needs out of raw HTML
// returned by the remote portal.
package extract

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrLinkNotFound means no anchor on the page looked like a confirmation link.
var ErrLinkNotFound = errors.New("link not found")

// DefaultKeywords are the href fragments that identify a confirmation link.
var DefaultKeywords = []string{"confirmation", "validation", "order"}

// ConfirmationLink returns the first anchor whose href contains one of
// keywords (case-insensitive), resolved against baseURL. Document order
// decides between several matches.
func ConfirmationLink(html, baseURL string, keywords []string) (string, error) {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return true
		}
		if !matchesAny(href, keywords) {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		link = base.ResolveReference(ref).String()
		return false
	})
	if link == "" {
		return "", ErrLinkNotFound
	}
	return link, nil
}

func matchesAny(href string, keywords []string) bool {
	lower := strings.ToLower(href)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// CSRFToken finds the anti-forgery token of a form page, looking at the
// hidden input first and the meta tag second. It returns "" when absent.
func CSRFToken(html, field string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	if field == "" {
		field = "_token"
	}
	for _, sel := range []string{
		fmt.Sprintf("input[name=%q]", field),
		`input[name="csrf_token"]`,
		`meta[name="csrf-token"]`,
	} {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if v := strings.TrimSpace(s.AttrOr("value", s.AttrOr("content", ""))); v != "" {
			return v
		}
	}
	return ""
}

// HasPasswordField reports whether the page still shows a password input,
// which after a login attempt means the credentials were refused.
func HasPasswordField(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return doc.Find(`input[type="password"]`).Length() > 0
}
