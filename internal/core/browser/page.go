package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"orderbridge/internal/core/session"

	"github.com/go-rod/stealth"
	"github.com/playwright-community/playwright-go"
)

var errNoTextMatch = errors.New("no control with matching text")

// page is the slice of a rendered tab the transport needs.
type page interface {
	Goto(ctx context.Context, url string) (int, error)
	// Fill types value into the first visible element matching selector.
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// ClickText clicks the first control whose visible text contains one of
	// phrases (lower case).
	ClickText(ctx context.Context, phrases []string) error
	WaitLoad(ctx context.Context) error
	Content(ctx context.Context) (string, error)
	VisibleText(ctx context.Context) (string, error)
	URL() string
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

type launcher func(opts Options) (page, error)

// pwPage is one playwright process with its own browser, context and tab.
type pwPage struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	tab     playwright.Page

	typingDelay time.Duration
}

func launchPlaywright(opts Options) (page, error) {
	p := &pwPage{typingDelay: opts.TypingDelay}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("playwright initialization failed: %w", err)
	}
	p.pw = pw

	p.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-blink-features=AutomationControlled",
			"--disable-features=VizDisplayCompositor",
		},
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("browser launch failed: %w", err), p.Close())
	}

	p.bctx, err = p.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:        playwright.String(opts.Headers.UserAgent),
		Locale:           playwright.String("fr-FR"),
		Viewport:         &playwright.Size{Width: 1366, Height: 768},
		ExtraHttpHeaders: opts.Headers.BrowserHeaders(),
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("browser context creation failed: %w", err), p.Close())
	}

	js := stealth.JS
	if err := p.bctx.AddInitScript(playwright.Script{Content: &js}); err != nil {
		return nil, errors.Join(fmt.Errorf("stealth script: %w", err), p.Close())
	}

	p.tab, err = p.bctx.NewPage()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("page creation failed: %w", err), p.Close())
	}
	return p, nil
}

// budget turns the context deadline into a playwright timeout in ms.
func budget(ctx context.Context, def time.Duration) *float64 {
	d := def
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < d {
			d = left
		}
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return playwright.Float(float64(d.Milliseconds()))
}

// await runs fn, for driver calls that take no timeout, and returns early
// with the context error when ctx ends first. fn is left to finish on its own.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (p *pwPage) Goto(ctx context.Context, url string) (int, error) {
	resp, err := p.tab.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   budget(ctx, 30*time.Second),
	})
	if err != nil {
		return 0, err
	}
	if resp == nil {
		return 0, nil
	}
	return resp.Status(), nil
}

func (p *pwPage) visible(ctx context.Context, selector string) (playwright.Locator, error) {
	loc := p.tab.Locator(selector).First()
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: budget(ctx, 5*time.Second),
	}); err != nil {
		return nil, err
	}
	return loc, nil
}

func (p *pwPage) Fill(ctx context.Context, selector, value string) error {
	loc, err := p.visible(ctx, selector)
	if err != nil {
		return err
	}
	if err := loc.Fill("", playwright.LocatorFillOptions{Timeout: budget(ctx, 5*time.Second)}); err != nil {
		return err
	}
	return loc.PressSequentially(value, playwright.LocatorPressSequentiallyOptions{
		Delay:   playwright.Float(float64(p.typingDelay.Milliseconds())),
		Timeout: budget(ctx, 30*time.Second),
	})
}

func (p *pwPage) Click(ctx context.Context, selector string) error {
	loc, err := p.visible(ctx, selector)
	if err != nil {
		return err
	}
	return loc.Click(playwright.LocatorClickOptions{Timeout: budget(ctx, 5*time.Second)})
}

const clickTextJS = `(phrases) => {
	const nodes = document.querySelectorAll('button, input[type=submit], input[type=button], a, [role=button]');
	for (const el of nodes) {
		const text = String(el.innerText || el.value || '').trim().toLowerCase();
		if (!text) continue;
		if (phrases.some((p) => text.includes(p))) {
			el.click();
			return true;
		}
	}
	return false;
}`

func (p *pwPage) ClickText(ctx context.Context, phrases []string) error {
	lower := make([]string, len(phrases))
	for i, ph := range phrases {
		lower[i] = strings.ToLower(ph)
	}
	res, err := await(ctx, func() (interface{}, error) { return p.tab.Evaluate(clickTextJS, lower) })
	if err != nil {
		return err
	}
	if ok, _ := res.(bool); !ok {
		return errNoTextMatch
	}
	return nil
}

func (p *pwPage) WaitLoad(ctx context.Context) error {
	return p.tab.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: budget(ctx, 10*time.Second),
	})
}

func (p *pwPage) Content(ctx context.Context) (string, error) { return await(ctx, p.tab.Content) }

func (p *pwPage) VisibleText(ctx context.Context) (string, error) {
	return p.tab.Locator("body").InnerText(playwright.LocatorInnerTextOptions{
		Timeout: budget(ctx, 5*time.Second),
	})
}

func (p *pwPage) URL() string { return p.tab.URL() }

func (p *pwPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.tab.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
		Timeout:  budget(ctx, 15*time.Second),
	})
}

// Close releases tab, context, browser and driver, in that order, whatever
// was opened.
func (p *pwPage) Close() error {
	var errs []error
	if p.tab != nil {
		errs = append(errs, p.tab.Close())
		p.tab = nil
	}
	if p.bctx != nil {
		errs = append(errs, p.bctx.Close())
		p.bctx = nil
	}
	if p.browser != nil {
		errs = append(errs, p.browser.Close())
		p.browser = nil
	}
	if p.pw != nil {
		errs = append(errs, p.pw.Stop())
		p.pw = nil
	}
	return errors.Join(errs...)
}

var _ session.TextSource = (*pwPage)(nil)
