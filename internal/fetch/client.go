package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/user/goszakup-scraper/internal/config"
)

// ajaxLoadLotURL is the portal endpoint serving one lot's detail fragment.
const ajaxLoadLotURL = "https://goszakup.gov.kz/ru/announce/ajax_load_lot/%s?tab=lots"

var (
	// ErrRetriesExhausted marks transient failures (429, 5xx, timeouts,
	// connection errors) that did not resolve within the attempt budget.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrClientStatus marks non-retryable HTTP statuses such as 404.
	ErrClientStatus = errors.New("client error status")
)

// Client issues POST requests against the portal with retry, backoff and
// rate-limit handling. A single Client is shared across the whole run so
// connections are reused.
type Client struct {
	http           *resty.Client
	maxRetries     int
	baseDelay      time.Duration
	rateLimitDelay time.Duration
	logger         *zap.Logger

	// sleep is swappable so tests can record delays instead of waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds the shared HTTP client used for all portal requests.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(cfg.RequestTimeout).
		SetHeaders(map[string]string{
			"Content-Type":     "application/x-www-form-urlencoded",
			"X-Requested-With": "XMLHttpRequest",
			"Referer":          "https://goszakup.gov.kz/",
			"User-Agent":       cfg.UserAgent,
		})
	if cfg.ProxyURL != "" {
		httpClient.SetProxy(cfg.ProxyURL)
	}

	return &Client{
		http:           httpClient,
		maxRetries:     cfg.MaxRetries,
		baseDelay:      cfg.RetryBaseDelay,
		rateLimitDelay: cfg.RateLimitDelay,
		logger:         logger,
		sleep:          Sleep,
	}
}

// LotIDsPage fetches the lots tab of an announcement page. The portal
// serves the tab on a POST with no body.
func (c *Client) LotIDsPage(ctx context.Context, announceURL string) (string, error) {
	return c.PostWithRetry(ctx, announceURL+"?tab=lots#", nil)
}

// LotDetail fetches the detail fragment for a single lot of an announcement.
func (c *Client) LotDetail(ctx context.Context, announceID, lotID string) (string, error) {
	url := fmt.Sprintf(ajaxLoadLotURL, announceID)
	return c.PostWithRetry(ctx, url, map[string]string{"id": lotID})
}

// PostWithRetry issues a form POST and retries transient failures.
// 429 responses back off linearly (rateLimitDelay x attempt), server
// errors and network failures exponentially (baseDelay x 2^(attempt-1)),
// and other 4xx statuses fail immediately. Exhausting the budget returns
// an error wrapping ErrRetriesExhausted; callers treat that as a soft
// failure for the current URL or lot, not a reason to stop the run.
func (c *Client) PostWithRetry(ctx context.Context, url string, form map[string]string) (string, error) {
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		req := c.http.R().SetContext(ctx)
		if len(form) > 0 {
			req.SetFormData(form)
		}

		resp, err := req.Post(url)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Timeouts and connection errors share the server-error
			// backoff policy.
			if attempt < c.maxRetries {
				wait := c.backoff(attempt)
				c.logger.Warn("request error, retrying",
					zap.String("url", url),
					zap.Int("attempt", attempt),
					zap.Int("max_retries", c.maxRetries),
					zap.Duration("wait", wait),
					zap.Error(err))
				if serr := c.sleep(ctx, wait); serr != nil {
					return "", serr
				}
				continue
			}
			return "", fmt.Errorf("%w: POST %s: %v", ErrRetriesExhausted, url, err)
		}

		status := resp.StatusCode()
		switch {
		case status == http.StatusTooManyRequests:
			if attempt < c.maxRetries {
				wait := c.rateLimitDelay * time.Duration(attempt)
				c.logger.Warn("rate limited, backing off",
					zap.String("url", url),
					zap.Int("attempt", attempt),
					zap.Int("max_retries", c.maxRetries),
					zap.Duration("wait", wait))
				if serr := c.sleep(ctx, wait); serr != nil {
					return "", serr
				}
				continue
			}
			return "", fmt.Errorf("%w: POST %s: still rate limited after %d attempts", ErrRetriesExhausted, url, c.maxRetries)

		case status >= 500:
			if attempt < c.maxRetries {
				wait := c.backoff(attempt)
				c.logger.Warn("server error, retrying",
					zap.String("url", url),
					zap.Int("status", status),
					zap.Int("attempt", attempt),
					zap.Int("max_retries", c.maxRetries),
					zap.Duration("wait", wait))
				if serr := c.sleep(ctx, wait); serr != nil {
					return "", serr
				}
				continue
			}
			return "", fmt.Errorf("%w: POST %s: status %d after %d attempts", ErrRetriesExhausted, url, status, c.maxRetries)

		case status >= 200 && status < 300:
			return resp.String(), nil

		default:
			return "", fmt.Errorf("%w: POST %s returned %d", ErrClientStatus, url, status)
		}
	}

	return "", fmt.Errorf("%w: POST %s", ErrRetriesExhausted, url)
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.baseDelay * time.Duration(1<<(attempt-1))
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
// It is also used by the crawl loops for inter-request delays.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
