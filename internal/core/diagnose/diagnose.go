// Package diagnose replays portal URLs with and without injected session
// cookies to tell authentication failures apart from bot detection.
package diagnose

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"orderbridge/internal/core/extract"
	"orderbridge/internal/core/session"
	"orderbridge/internal/logger"
	"orderbridge/internal/utils/markdown"
)

const (
	ConclusionAuthFixes    = "authentication resolves the issue"
	ConclusionBotDetection = "bot-detection persists regardless"
	ConclusionNoEffect     = "no auth effect"
)

// Excerpt lengths, in runes, for the report and for the one-line details.
const (
	excerptRunes = 1000
	detailRunes  = 160
)

// authMarkers are lower-case phrases of pages asking the visitor to log in.
var authMarkers = []string{
	"login required",
	"please log in",
	"please sign in",
	"connexion requise",
	"veuillez vous connecter",
	"vous devez être connecté",
	"session expired",
	"session expirée",
	"unauthorized",
}

// Response is what a probe saw for one URL.
type Response struct {
	Status     int
	Body       []byte
	SetCookies []string
}

// Prober fetches a URL, sending cookies when given.
type Prober interface {
	Probe(ctx context.Context, url string, cookies []*http.Cookie) (Response, error)
}

type TestResult struct {
	URL               string `json:"url"`
	WithAuth          bool   `json:"withAuth"`
	Status            int    `json:"status"`
	Success           bool   `json:"success"`
	ResponseSize      int    `json:"responseSize"`
	HasSessionToken   bool   `json:"hasSessionToken"`
	CloudflareBlocked bool   `json:"cloudflareBlocked"`
	AuthRequired      bool   `json:"authRequired"`
	Details           string `json:"details"`
	Excerpt           string `json:"excerpt,omitempty"`
}

// Comparison pairs the two probes of one URL.
type Comparison struct {
	URL        string     `json:"url"`
	Without    TestResult `json:"without"`
	With       TestResult `json:"with"`
	Conclusion string     `json:"conclusion"`
}

type Report struct {
	Comparisons []Comparison `json:"comparisons"`
	Conclusion  string       `json:"conclusion"`
}

// Classify turns a raw response into a TestResult.
func Classify(url string, withAuth bool, r Response, err error) TestResult {
	res := TestResult{URL: url, WithAuth: withAuth, Status: r.Status, ResponseSize: len(r.Body)}
	if err != nil {
		res.Details = err.Error()
		return res
	}
	body := string(r.Body)
	lower := strings.ToLower(body)
	text := markdown.VisibleText(body)

	res.CloudflareBlocked = session.IsChallenge(text) || session.IsChallenge(markdown.Title(body)) ||
		((r.Status == http.StatusForbidden || r.Status == http.StatusServiceUnavailable) && strings.Contains(lower, "cloudflare"))
	res.AuthRequired = r.Status == http.StatusUnauthorized || containsAny(strings.ToLower(text), authMarkers)
	res.HasSessionToken = hasSessionCookie(r.SetCookies) || extract.CSRFToken(body, "") != ""
	res.Success = r.Status >= 200 && r.Status < 300 && !res.CloudflareBlocked && !res.AuthRequired

	res.Details = fmt.Sprintf("status %d, %d bytes", r.Status, len(r.Body))
	if title := markdown.Title(body); title != "" {
		res.Details += fmt.Sprintf(", title %q", title)
	}
	res.Excerpt = markdown.Excerpt(body, excerptRunes)
	if !res.Success && res.Excerpt != "" {
		res.Details += fmt.Sprintf(", excerpt %q", markdown.Excerpt(body, detailRunes))
	}
	return res
}

// Compare concludes from the two probes of the same URL.
func Compare(without, with TestResult) string {
	switch {
	case without.CloudflareBlocked && with.CloudflareBlocked:
		return ConclusionBotDetection
	case !without.Success && with.Success:
		return ConclusionAuthFixes
	case without.AuthRequired && !with.AuthRequired && !with.CloudflareBlocked:
		return ConclusionAuthFixes
	case with.CloudflareBlocked:
		return ConclusionBotDetection
	}
	return ConclusionNoEffect
}

// Comparator runs the probes and logs every result.
type Comparator struct {
	prober Prober
	log    *logger.Logger
}

func New(p Prober, log *logger.Logger) *Comparator {
	return &Comparator{prober: p, log: log.Named("Diagnostic")}
}

// Run probes every URL without cookies, then with them.
func (c *Comparator) Run(ctx context.Context, urls []string, cookies []*http.Cookie) Report {
	var rep Report
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		r, err := c.prober.Probe(ctx, u, nil)
		without := Classify(u, false, r, err)
		c.logResult(without)

		r, err = c.prober.Probe(ctx, u, cookies)
		with := Classify(u, true, r, err)
		c.logResult(with)

		cmp := Comparison{URL: u, Without: without, With: with, Conclusion: Compare(without, with)}
		c.log.Info().Str("url", u).Str("conclusion", cmp.Conclusion).Msg("comparison")
		rep.Comparisons = append(rep.Comparisons, cmp)
	}
	rep.Conclusion = overall(rep.Comparisons)
	c.log.Info().Int("urls", len(rep.Comparisons)).Str("conclusion", rep.Conclusion).Msg("diagnostic finished")
	return rep
}

func (c *Comparator) logResult(r TestResult) {
	ev := c.log.Info()
	if !r.Success {
		ev = c.log.Warn()
	}
	ev.Str("url", r.URL).
		Bool("with_auth", r.WithAuth).
		Int("status", r.Status).
		Int("size", r.ResponseSize).
		Bool("session_token", r.HasSessionToken).
		Bool("cloudflare", r.CloudflareBlocked).
		Bool("auth_required", r.AuthRequired).
		Msg(r.Details)
}

func overall(cmps []Comparison) string {
	bot := false
	for _, c := range cmps {
		if c.Conclusion == ConclusionAuthFixes {
			return ConclusionAuthFixes
		}
		if c.Conclusion == ConclusionBotDetection {
			bot = true
		}
	}
	if bot {
		return ConclusionBotDetection
	}
	return ConclusionNoEffect
}

func (r Report) String() string {
	var b strings.Builder
	for _, c := range r.Comparisons {
		fmt.Fprintf(&b, "%s\n", c.URL)
		for _, t := range []TestResult{c.Without, c.With} {
			mode := "without auth"
			if t.WithAuth {
				mode = "with auth   "
			}
			fmt.Fprintf(&b, "  %s  ok=%-5t status=%-3d size=%-7d session=%-5t challenge=%-5t login=%-5t %s\n",
				mode, t.Success, t.Status, t.ResponseSize, t.HasSessionToken, t.CloudflareBlocked, t.AuthRequired, t.Details)
		}
		fmt.Fprintf(&b, "  => %s\n", c.Conclusion)
	}
	fmt.Fprintf(&b, "conclusion: %s\n", r.Conclusion)
	return b.String()
}

// ParseCookies reads raw "name=value; name2=value2" strings.
func ParseCookies(raw []string) ([]*http.Cookie, error) {
	var out []*http.Cookie
	for _, line := range raw {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "Cookie:"))
		if line == "" {
			continue
		}
		cookies, err := http.ParseCookie(line)
		if err != nil {
			return nil, fmt.Errorf("parse cookie %q: %w", line, err)
		}
		out = append(out, cookies...)
	}
	return out, nil
}

func hasSessionCookie(setCookies []string) bool {
	for _, sc := range setCookies {
		name, _, _ := strings.Cut(sc, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if strings.Contains(name, "sess") || strings.Contains(name, "token") {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
