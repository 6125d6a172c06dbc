package diagnose

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"orderbridge/internal/core/session"

	"github.com/gocolly/colly"
)

// CollyProber fetches with a fresh collector per probe, so cookies never
// carry over from one auth mode to the other.
type CollyProber struct {
	Timeout time.Duration
	Headers session.HeaderProfile
}

func (p CollyProber) Probe(ctx context.Context, target string, cookies []*http.Cookie) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	headers := p.Headers
	if headers.UserAgent == "" {
		headers = session.DesktopChrome
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}

	c := colly.NewCollector(colly.AllowURLRevisit(), colly.UserAgent(headers.UserAgent))
	c.SetRequestTimeout(timeout)
	c.ParseHTTPErrorResponse = true
	if len(cookies) > 0 {
		if err := c.SetCookies(target, cookies); err != nil {
			return Response{}, fmt.Errorf("inject cookies: %w", err)
		}
	}

	c.OnRequest(func(r *colly.Request) {
		for k, v := range headers.Headers(session.FetchSiteNone) {
			r.Headers.Set(k, v)
		}
	})

	var out Response
	c.OnResponse(func(r *colly.Response) {
		out = Response{Status: r.StatusCode, Body: r.Body}
		if r.Headers != nil {
			out.SetCookies = r.Headers.Values("Set-Cookie")
		}
	})
	var failure error
	c.OnError(func(r *colly.Response, err error) {
		failure = err
		if r != nil && r.StatusCode > 0 {
			out = Response{Status: r.StatusCode, Body: r.Body}
		}
	})

	if err := c.Visit(target); err != nil && failure == nil {
		failure = err
	}
	if out.Status > 0 {
		return out, nil
	}
	return out, failure
}
