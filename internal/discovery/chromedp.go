package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	// selectorWait bounds how long AttrAll waits for a first match before
	// treating the page as empty.
	selectorWait = 10 * time.Second

	// reloadSettle gives the portal time to kick off the listing reload
	// it performs on dropdown change; there is no reliable completion
	// signal to wait on.
	reloadSettle = 3 * time.Second
)

// ChromedpBrowser runs a headless (or headful) Chrome via chromedp.
type ChromedpBrowser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	pageTimeout time.Duration
}

func NewChromedpBrowser(headless bool, pageTimeout time.Duration, userAgent string) *ChromedpBrowser {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromedpBrowser{
		allocCtx:    allocCtx,
		allocCancel: cancel,
		pageTimeout: pageTimeout,
	}
}

func (b *ChromedpBrowser) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	taskCtx, cancel := chromedp.NewContext(b.allocCtx)
	// Run with no actions launches the browser eagerly so a missing
	// Chrome binary surfaces here rather than on the first page.
	if err := chromedp.Run(taskCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return &chromedpPage{ctx: taskCtx, cancel: cancel, timeout: b.pageTimeout}, nil
}

func (b *ChromedpBrowser) Close() error {
	b.allocCancel()
	return nil
}

type chromedpPage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// opCtx derives a per-operation timeout context from the page context and
// bridges the caller's cancellation into it.
func (p *chromedpPage) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	tctx, cancel := p.opCtx(ctx)
	defer cancel()

	return chromedp.Run(tctx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	)
}

func (p *chromedpPage) SelectOption(ctx context.Context, selector, value string) error {
	tctx, cancel := p.opCtx(ctx)
	defer cancel()

	dispatch := fmt.Sprintf(
		`document.querySelector(%q).dispatchEvent(new Event("change", {bubbles: true}))`,
		selector)

	return chromedp.Run(tctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
		chromedp.Evaluate(dispatch, nil),
		chromedp.Sleep(reloadSettle),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	)
}

func (p *chromedpPage) AttrAll(ctx context.Context, selector, attr string) ([]string, error) {
	tctx, cancel := p.opCtx(ctx)
	defer cancel()

	present := fmt.Sprintf(`document.querySelectorAll(%q).length > 0`, selector)
	err := chromedp.Run(tctx,
		chromedp.Poll(present, nil, chromedp.WithPollingTimeout(selectorWait)))
	if err != nil {
		if errors.Is(err, chromedp.ErrPollingTimeout) {
			return nil, nil
		}
		return nil, err
	}

	collect := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q), e => e.getAttribute(%q)).filter(v => v !== null)`,
		selector, attr)

	var values []string
	if err := chromedp.Run(tctx, chromedp.Evaluate(collect, &values)); err != nil {
		return nil, err
	}
	return values, nil
}

func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}
