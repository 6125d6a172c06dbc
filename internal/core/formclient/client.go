// Package formclient drives the order form with plain form-encoded requests
// over a cookie session, without rendering anything.
package formclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"orderbridge/internal/config"
	"orderbridge/internal/core/extract"
	"orderbridge/internal/core/order"
	"orderbridge/internal/core/session"
	"orderbridge/internal/logger"
	"orderbridge/internal/utils/markdown"

	"github.com/google/uuid"
)

const (
	// maxBody caps how much of a response is kept in memory.
	maxBody      = 5 << 20
	excerptRunes = 2000
)

// ErrNotAuthenticated means the portal sent the session back to its login page.
var ErrNotAuthenticated = errors.New("not authenticated")

type Options struct {
	Site *config.Site
	// Timeout bounds every single request.
	Timeout   time.Duration
	Headers   session.HeaderProfile
	Artifacts order.Artifacts
}

// Client is the HTTP-simulation transport. One Client serves one run.
type Client struct {
	id        string
	site      *config.Site
	creds     order.Credentials
	headers   session.HeaderProfile
	artifacts order.Artifacts
	log       *logger.Logger

	mu        sync.Mutex
	http      *http.Client
	token     string
	navigated bool
	lastURL   string
	lastBody  []byte
}

type response struct {
	status   int
	url      *url.URL
	location string
	body     []byte
}

func New(opts Options, creds order.Credentials, log *logger.Logger) (*Client, error) {
	if opts.Site == nil {
		opts.Site = config.DefaultSite()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Headers.UserAgent == "" {
		opts.Headers = session.DesktopChrome
	}
	hc, err := session.NewClient(opts.Timeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		id:        uuid.NewString()[:8],
		site:      opts.Site,
		creds:     creds,
		headers:   opts.Headers,
		artifacts: opts.Artifacts,
		log:       log.Named("FormClient"),
		http:      hc,
	}, nil
}

func (c *Client) InitializeSession(ctx context.Context) error {
	login, err := c.get(ctx, c.site.Paths.Login)
	if err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if session.IsChallenge(markdown.VisibleText(string(login.body))) {
		return fmt.Errorf("login page: %w (the HTTP backend cannot run a JavaScript challenge)", session.ErrChallenge)
	}
	if err := expectOK("open login page", login); err != nil {
		return err
	}
	c.refreshToken(login.body)

	form := url.Values{}
	form.Set(c.site.Fields.LoginEmail, c.creds.Email)
	form.Set(c.site.Fields.LoginPassword, c.creds.Password)
	res, err := c.post(ctx, c.site.Paths.Login, form)
	if err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	if err := expectOK("submit login", res); err != nil {
		return err
	}
	if res.status == http.StatusOK && extract.HasPasswordField(string(res.body)) {
		return fmt.Errorf("submit login: credentials rejected: %w", ErrNotAuthenticated)
	}

	page, err := c.get(ctx, c.site.Paths.Order)
	if err != nil {
		return fmt.Errorf("open order page: %w", err)
	}
	if isRedirect(page.status) && strings.Contains(page.location, c.site.Paths.Login) {
		return fmt.Errorf("open order page: %w", ErrNotAuthenticated)
	}
	if err := expectOK("open order page", page); err != nil {
		return err
	}
	c.refreshToken(page.body)

	c.log.Info().
		Str("transport", c.id).
		Strs("cookies", session.CookieNames(c.http, c.site.BaseURL)).
		Bool("csrf", c.currentToken() != "").
		Msg("session initialized")
	return nil
}

func (c *Client) SubmitClient(ctx context.Context, cl order.Client) error {
	f := c.site.Fields
	form := url.Values{}
	form.Set(f.Prenom, cl.Prenom)
	form.Set(f.Nom, cl.Nom)
	form.Set(f.Email, cl.Email)
	form.Set(f.Telephone, cl.Telephone)
	form.Set(f.Adresse, cl.Adresse)
	form.Set(f.CodePostal, cl.CodePostal)
	form.Set(f.Departement, cl.Departement)
	form.Set(f.Ville, cl.Ville)
	form.Set(f.Pays, cl.Pays)
	return c.submit(ctx, "submit client", c.site.Paths.Client, form)
}

func (c *Client) AddProduct(ctx context.Context, p order.Product) error {
	form := url.Values{}
	form.Set(c.site.Fields.ProductRef, p.Ref)
	form.Set(c.site.Fields.ProductQuantity, strconv.Itoa(p.Quantite))
	return c.submit(ctx, "add product "+p.Ref, c.site.Paths.Product, form)
}

func (c *Client) SelectShipping(ctx context.Context) error {
	form := url.Values{}
	form.Set(c.site.Fields.Shipping, c.site.ShippingChoice)
	return c.submit(ctx, "select shipping", c.site.Paths.Shipping, form)
}

// Finalize posts the completion form and looks for the confirmation link in
// a redirect to the completion area, then on the completion page. The
// finalize response itself is only scraped when it was served from the
// completion area, since an ordinary page links back to the order form.
func (c *Client) Finalize(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set(c.site.Fields.Finalize, "1")
	res, err := c.post(ctx, c.site.Paths.Finalize, form)
	if err != nil {
		return "", fmt.Errorf("finalize: %w", err)
	}
	if err := expectOK("finalize", res); err != nil {
		return "", err
	}

	if isRedirect(res.status) && res.location != "" {
		if link, err := resolve(res.url, res.location); err == nil && c.completedLink(link) {
			c.log.Debug().Str("transport", c.id).Msg("confirmation link from redirect")
			return link, nil
		}
	}
	if res.status == http.StatusOK && c.onCompletionPage(res.url) {
		if link, err := extract.ConfirmationLink(string(res.body), res.url.String(), c.site.LinkKeywords); err == nil {
			c.log.Debug().Str("transport", c.id).Msg("confirmation link from finalize page")
			return link, nil
		}
	}

	done, err := c.get(ctx, c.site.Paths.Completed)
	if err != nil {
		return "", fmt.Errorf("open completion page: %w", err)
	}
	if err := expectOK("open completion page", done); err != nil {
		return "", err
	}
	link, err := extract.ConfirmationLink(string(done.body), done.url.String(), c.site.LinkKeywords)
	if err != nil {
		return "", fmt.Errorf("completion page: %w", err)
	}
	c.log.Debug().Str("transport", c.id).Msg("confirmation link from completion page")
	return link, nil
}

// completedLink reports whether link points below the completion path.
func (c *Client) completedLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, strings.TrimRight(c.site.Paths.Completed, "/")+"/")
}

func (c *Client) onCompletionPage(u *url.URL) bool {
	return u != nil && strings.HasPrefix(u.Path, c.site.Paths.Completed)
}

func (c *Client) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.http != nil {
		c.http.CloseIdleConnections()
	}
	c.token = ""
	return nil
}

// TestConnection reports whether the portal answers at all.
func (c *Client) TestConnection(ctx context.Context) bool {
	res, err := c.get(ctx, "/")
	if err != nil {
		c.log.Warn().Err(err).Msg("connection test failed")
		return false
	}
	return res.status < 400
}

// CaptureFailure saves the last page the portal returned, along with a
// markdown excerpt of it that reads without a browser.
func (c *Client) CaptureFailure(_ context.Context, state order.State) []string {
	c.mu.Lock()
	body := c.lastBody
	c.mu.Unlock()
	if c.artifacts == nil || len(body) == 0 {
		return nil
	}
	loc, err := c.artifacts.Save(c.id, state.String()+".html", body)
	if err != nil {
		c.log.Warn().Err(err).Msg("could not save failure page")
		return nil
	}
	out := []string{loc}

	excerpt := markdown.Excerpt(string(body), excerptRunes)
	if excerpt == "" {
		return out
	}
	c.log.Warn().Str("transport", c.id).Str("state", state.String()).Msg("failure page:\n" + excerpt)
	if loc, err := c.artifacts.Save(c.id, state.String()+".md", []byte(excerpt)); err == nil {
		out = append(out, loc)
	} else {
		c.log.Warn().Err(err).Msg("could not save failure excerpt")
	}
	return out
}

func (c *Client) submit(ctx context.Context, step, path string, form url.Values) error {
	res, err := c.post(ctx, path, form)
	if err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	if isRedirect(res.status) && strings.Contains(res.location, c.site.Paths.Login) {
		return fmt.Errorf("%s: %w", step, ErrNotAuthenticated)
	}
	if err := expectOK(step, res); err != nil {
		return err
	}
	c.refreshToken(res.body)
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (*response, error) {
	if tok := c.currentToken(); tok != "" && form.Get(c.site.Fields.CSRF) == "" {
		form.Set(c.site.Fields.CSRF, tok)
	}
	return c.do(ctx, http.MethodPost, path, form)
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) (*response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.site.URL(path), body)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	site := session.FetchSiteNone
	if c.navigated {
		site = session.FetchSiteSameOrigin
		req.Header.Set("Referer", c.lastURL)
	}
	c.mu.Unlock()
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Origin", strings.TrimRight(c.site.BaseURL, "/"))
	}
	c.headers.Apply(req, site)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	c.mu.Lock()
	c.navigated = true
	c.lastURL = req.URL.String()
	if len(data) > 0 {
		c.lastBody = data
	}
	c.mu.Unlock()

	c.log.Debug().
		Str("transport", c.id).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Msg("request")

	return &response{
		status:   resp.StatusCode,
		url:      req.URL,
		location: resp.Header.Get("Location"),
		body:     data,
	}, nil
}

func (c *Client) refreshToken(body []byte) {
	if tok := extract.CSRFToken(string(body), c.site.Fields.CSRF); tok != "" {
		c.mu.Lock()
		c.token = tok
		c.mu.Unlock()
	}
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func expectOK(step string, r *response) error {
	if r.status == http.StatusOK || isRedirect(r.status) {
		return nil
	}
	return fmt.Errorf("%s: unexpected status %d", step, r.status)
}

func isRedirect(status int) bool { return status >= 300 && status < 400 }

func resolve(base *url.URL, location string) (string, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

