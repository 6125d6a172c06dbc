package markdown

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

var (
	blankLines = regexp.MustCompile(`\n{3,}`)
	spaces     = regexp.MustCompile(`[ \t\r\f\v]+`)
	imageLine  = regexp.MustCompile(`^!\[[^\]]*\]\([^\)]+\)$`)
)

// VisibleText returns the text a user would read on the page: scripts,
// styles and templates removed, whitespace collapsed.
func VisibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, template").Remove()
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	return collapse(root.Text())
}

// Title returns the document title, trimmed.
func Title(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// Excerpt converts the main content of a page to markdown and cuts it to at
// most max runes. Forms stay in, they are usually what failed.
func Excerpt(html string, max int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var content *goquery.Selection
	for _, tag := range []string{"main", `[role="main"]`, "#content", "#main"} {
		if s := doc.Find(tag); s.Length() > 0 {
			content = s.First()
			break
		}
	}
	if content == nil {
		content = doc.Find("body")
	}
	content.Find("script, style, noscript, svg, iframe").Remove()

	body, err := content.Html()
	if err != nil {
		return ""
	}
	out, err := md.NewConverter("", true, nil).ConvertString(body)
	if err != nil {
		return ""
	}
	out = clean(out)
	if max > 0 {
		if r := []rune(out); len(r) > max {
			out = strings.TrimSpace(string(r[:max])) + "…"
		}
	}
	return out
}

func clean(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		line := strings.TrimSpace(l)
		if imageLine.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(out, "\n"), "\n\n"))
}

func collapse(s string) string {
	s = spaces.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
