// Package browser drives the order form in a real Chromium through
// playwright, for the cases where the portal sits behind a JavaScript
// challenge the HTTP backend cannot pass.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"orderbridge/internal/config"
	"orderbridge/internal/core/extract"
	"orderbridge/internal/core/fallback"
	"orderbridge/internal/core/order"
	"orderbridge/internal/core/session"
	"orderbridge/internal/logger"

	"github.com/google/uuid"
)

// ErrNotAuthenticated means the login form was still shown after submitting it.
var ErrNotAuthenticated = errors.New("not authenticated")

type Options struct {
	Site     *config.Site
	Headless bool
	// TypingDelay is the pause between keystrokes.
	TypingDelay time.Duration
	Challenge   session.ChallengeWait
	// AttemptTimeout bounds every selector of a fallback chain.
	AttemptTimeout time.Duration
	Headers        session.HeaderProfile
	Artifacts      order.Artifacts
}

// clientFieldOrder is the order fields are typed into the customer form.
var clientFieldOrder = []string{"prenom", "nom", "email", "telephone", "adresse", "codePostal", "departement", "ville", "pays"}

// Transport is the browser-emulation backend. It owns one browser process
// from InitializeSession until Cleanup.
type Transport struct {
	id     string
	opts   Options
	creds  order.Credentials
	log    *logger.Logger
	launch launcher

	mu   sync.Mutex
	page page
}

func New(opts Options, creds order.Credentials, log *logger.Logger) *Transport {
	if opts.Site == nil {
		opts.Site = config.DefaultSite()
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 5 * time.Second
	}
	if opts.Headers.UserAgent == "" {
		opts.Headers = session.DesktopChrome
	}
	return &Transport{
		id:     uuid.NewString()[:8],
		opts:   opts,
		creds:  creds,
		log:    log.Named("Browser"),
		launch: launchPlaywright,
	}
}

func (t *Transport) InitializeSession(ctx context.Context) error {
	p, err := t.launch(t.opts)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.page = p
	t.mu.Unlock()
	t.log.Info().Str("transport", t.id).Bool("headless", t.opts.Headless).Msg("browser started")

	site := t.opts.Site
	if err := t.open(ctx, p, site.Paths.Login); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	if err := t.fill(ctx, p, "login email", site.Selectors.LoginEmail, t.creds.Email); err != nil {
		return err
	}
	if err := t.fill(ctx, p, "login password", site.Selectors.LoginPassword, t.creds.Password); err != nil {
		return err
	}
	if err := t.click(ctx, p, "login submit", site.Selectors.LoginSubmit, site.LoginPhrases); err != nil {
		return err
	}
	t.settle(ctx, p)

	if strings.Contains(p.URL(), site.Paths.Login) {
		if html, err := p.Content(ctx); err == nil && extract.HasPasswordField(html) {
			return fmt.Errorf("submit login: credentials rejected: %w", ErrNotAuthenticated)
		}
	}

	if err := t.open(ctx, p, site.Paths.Order); err != nil {
		return fmt.Errorf("open order page: %w", err)
	}
	if strings.Contains(p.URL(), site.Paths.Login) {
		return fmt.Errorf("open order page: %w", ErrNotAuthenticated)
	}
	t.log.Info().Str("transport", t.id).Msg("session initialized")
	return nil
}

func (t *Transport) SubmitClient(ctx context.Context, c order.Client) error {
	p, err := t.current()
	if err != nil {
		return err
	}
	values := map[string]string{
		"prenom":      c.Prenom,
		"nom":         c.Nom,
		"email":       c.Email,
		"telephone":   c.Telephone,
		"adresse":     c.Adresse,
		"codePostal":  c.CodePostal,
		"departement": c.Departement,
		"ville":       c.Ville,
		"pays":        c.Pays,
	}
	for _, name := range clientFieldOrder {
		value := values[name]
		if value == "" {
			continue
		}
		if err := t.fill(ctx, p, "client "+name, t.opts.Site.Selectors.ClientFields[name], value); err != nil {
			return err
		}
	}
	if err := t.click(ctx, p, "client submit", t.opts.Site.Selectors.ClientSubmit, nil); err != nil {
		return err
	}
	t.settle(ctx, p)
	return nil
}

func (t *Transport) AddProduct(ctx context.Context, prod order.Product) error {
	p, err := t.current()
	if err != nil {
		return err
	}
	sel := t.opts.Site.Selectors
	if err := t.fill(ctx, p, "product ref", sel.ProductRef, prod.Ref); err != nil {
		return err
	}
	if err := t.fill(ctx, p, "product quantity", sel.ProductQuantity, strconv.Itoa(prod.Quantite)); err != nil {
		return err
	}
	if err := t.click(ctx, p, "add product", sel.ProductAdd, nil); err != nil {
		return err
	}
	t.settle(ctx, p)
	return nil
}

func (t *Transport) SelectShipping(ctx context.Context) error {
	p, err := t.current()
	if err != nil {
		return err
	}
	if err := t.click(ctx, p, "shipping", t.opts.Site.Selectors.Shipping, nil); err != nil {
		return err
	}
	t.settle(ctx, p)
	return nil
}

// Finalize submits the order. A landing page below the completion path is
// itself the confirmation link; otherwise the link is read from the
// completion page, opening it if the browser is not there yet.
func (t *Transport) Finalize(ctx context.Context) (string, error) {
	p, err := t.current()
	if err != nil {
		return "", err
	}
	site := t.opts.Site
	if err := t.click(ctx, p, "finalize", site.Selectors.Finalize, nil); err != nil {
		return "", err
	}
	t.settle(ctx, p)

	completed := site.URL(site.Paths.Completed)
	cur := p.URL()
	if strings.HasPrefix(cur, completed+"/") {
		t.log.Debug().Str("transport", t.id).Msg("confirmation link from redirect")
		return cur, nil
	}
	if strings.HasPrefix(cur, completed) {
		if link, err := t.scrape(ctx, p); err == nil {
			t.log.Debug().Str("transport", t.id).Msg("confirmation link from current page")
			return link, nil
		}
	}
	if err := t.open(ctx, p, site.Paths.Completed); err != nil {
		return "", fmt.Errorf("open completion page: %w", err)
	}
	link, err := t.scrape(ctx, p)
	if err != nil {
		return "", fmt.Errorf("completion page: %w", err)
	}
	t.log.Debug().Str("transport", t.id).Msg("confirmation link from completion page")
	return link, nil
}

// Cleanup closes the browser. It is idempotent.
func (t *Transport) Cleanup() error {
	t.mu.Lock()
	p := t.page
	t.page = nil
	t.mu.Unlock()
	if p == nil {
		return nil
	}
	err := p.Close()
	t.log.Debug().Str("transport", t.id).Err(err).Msg("browser closed")
	return err
}

// TestConnection starts a throwaway browser and opens the portal.
func (t *Transport) TestConnection(ctx context.Context) bool {
	p, err := t.launch(t.opts)
	if err != nil {
		t.log.Warn().Err(err).Msg("connection test: browser launch failed")
		return false
	}
	defer p.Close()
	status, err := p.Goto(ctx, t.opts.Site.URL("/"))
	if err != nil {
		t.log.Warn().Err(err).Msg("connection test failed")
		return false
	}
	return status < 400
}

// CaptureFailure saves a full-page screenshot and the page HTML.
func (t *Transport) CaptureFailure(ctx context.Context, state order.State) []string {
	t.mu.Lock()
	p := t.page
	t.mu.Unlock()
	if p == nil || t.opts.Artifacts == nil {
		return nil
	}
	var out []string
	if png, err := p.Screenshot(ctx); err != nil {
		t.log.Warn().Err(err).Msg("failure screenshot")
	} else if loc, err := t.opts.Artifacts.Save(t.id, state.String()+".png", png); err == nil {
		out = append(out, loc)
	} else {
		t.log.Warn().Err(err).Msg("save failure screenshot")
	}
	if html, err := p.Content(ctx); err == nil && html != "" {
		if loc, err := t.opts.Artifacts.Save(t.id, state.String()+".html", []byte(html)); err == nil {
			out = append(out, loc)
		} else {
			t.log.Warn().Err(err).Msg("save failure page")
		}
	}
	return out
}

func (t *Transport) current() (page, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.page == nil {
		return nil, errors.New("browser session not initialized")
	}
	return t.page, nil
}

// open navigates to a site path and waits out any bot challenge.
func (t *Transport) open(ctx context.Context, p page, path string) error {
	status, err := p.Goto(ctx, t.opts.Site.URL(path))
	if err != nil {
		return err
	}
	if text, err := p.VisibleText(ctx); err == nil && !session.IsChallenge(text) {
		if status >= 400 {
			return fmt.Errorf("unexpected status %d", status)
		}
		return nil
	}

	t.log.Info().Str("transport", t.id).Str("path", path).Msg("bot challenge detected, waiting")
	resolved, err := t.opts.Challenge.Wait(ctx, p)
	if err != nil {
		return err
	}
	if !resolved {
		t.log.Warn().Str("transport", t.id).Str("path", path).Msg("challenge still visible after wait, proceeding")
	}
	return nil
}

func (t *Transport) fill(ctx context.Context, p page, target string, selectors []string, value string) error {
	chain := fallback.Chain{Target: target, PerAttempt: t.opts.AttemptTimeout, OnAttempt: t.observe(target)}
	for _, sel := range selectors {
		chain.Strategies = append(chain.Strategies, fallback.Strategy{
			Name: sel,
			Try:  func(ctx context.Context) error { return p.Fill(ctx, sel, value) },
		})
	}
	_, err := chain.Run(ctx)
	return err
}

// click tries every selector, then the visible text search when phrases
// are given.
func (t *Transport) click(ctx context.Context, p page, target string, selectors, phrases []string) error {
	chain := fallback.Chain{Target: target, PerAttempt: t.opts.AttemptTimeout, OnAttempt: t.observe(target)}
	for _, sel := range selectors {
		chain.Strategies = append(chain.Strategies, fallback.Strategy{
			Name: sel,
			Try:  func(ctx context.Context) error { return p.Click(ctx, sel) },
		})
	}
	if len(phrases) > 0 {
		chain.Strategies = append(chain.Strategies, fallback.Strategy{
			Name: "text search",
			Try:  func(ctx context.Context) error { return p.ClickText(ctx, phrases) },
		})
	}
	_, err := chain.Run(ctx)
	return err
}

func (t *Transport) observe(target string) func(string, error) {
	return func(name string, err error) {
		ev := t.log.Debug().Str("transport", t.id).Str("target", target).Str("strategy", name)
		if err != nil {
			ev.Err(err).Msg("strategy failed")
			return
		}
		ev.Msg("strategy matched")
	}
}

// settle waits for network idle. A timeout is logged, not returned.
func (t *Transport) settle(ctx context.Context, p page) {
	if err := p.WaitLoad(ctx); err != nil {
		t.log.Debug().Str("transport", t.id).Err(err).Msg("page did not settle")
	}
}

func (t *Transport) scrape(ctx context.Context, p page) (string, error) {
	html, err := p.Content(ctx)
	if err != nil {
		return "", err
	}
	return extract.ConfirmationLink(html, p.URL(), t.opts.Site.LinkKeywords)
}
