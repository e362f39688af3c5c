package discovery

import "context"

// Browser abstracts the script-capable rendering engine link discovery
// depends on. The page loop is written against these two interfaces so it
// can run on any engine (and on fakes in tests); chromedp provides the
// production implementation.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one rendered browser tab.
type Page interface {
	// Navigate loads url and waits for the document body to render.
	Navigate(ctx context.Context, url string) error

	// SelectOption picks value in the dropdown matched by selector and
	// waits out the reload the portal triggers on change.
	SelectOption(ctx context.Context, selector, value string) error

	// AttrAll returns the attr values of all elements matching selector.
	// A page with no matches yields an empty result, not an error.
	AttrAll(ctx context.Context, selector, attr string) ([]string, error)

	Close() error
}
