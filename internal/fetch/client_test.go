package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/goszakup-scraper/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestClient(rt roundTripFunc) (*Client, *[]time.Duration) {
	cfg := &config.Config{
		RequestTimeout: time.Second,
		MaxRetries:     3,
		RetryBaseDelay: 3 * time.Second,
		RateLimitDelay: 10 * time.Second,
		UserAgent:      "test-agent",
	}
	c := NewClient(cfg, zap.NewNop())
	c.http.GetClient().Transport = rt

	slept := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return c, slept
}

func textResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
		Request:    req,
	}
}

func TestPostWithRetryRateLimited(t *testing.T) {
	var calls int
	c, slept := newTestClient(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls <= 2 {
			return textResponse(req, http.StatusTooManyRequests, ""), nil
		}
		return textResponse(req, http.StatusOK, "lot body"), nil
	})

	body, err := c.PostWithRetry(context.Background(), "https://goszakup.gov.kz/ru/announce/index/1?tab=lots#", nil)
	require.NoError(t, err)
	assert.Equal(t, "lot body", body)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second}, *slept)
}

func TestPostWithRetryServerErrorExhausts(t *testing.T) {
	var calls int
	c, slept := newTestClient(func(req *http.Request) (*http.Response, error) {
		calls++
		return textResponse(req, http.StatusBadGateway, ""), nil
	})

	_, err := c.PostWithRetry(context.Background(), "https://goszakup.gov.kz/broken", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second}, *slept)
}

func TestPostWithRetryClientErrorFailsFast(t *testing.T) {
	var calls int
	c, slept := newTestClient(func(req *http.Request) (*http.Response, error) {
		calls++
		return textResponse(req, http.StatusNotFound, ""), nil
	})

	_, err := c.PostWithRetry(context.Background(), "https://goszakup.gov.kz/missing", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClientStatus)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestPostWithRetryConnectionError(t *testing.T) {
	var calls int
	c, slept := newTestClient(func(*http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("connection refused")
	})

	_, err := c.PostWithRetry(context.Background(), "https://goszakup.gov.kz/down", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second}, *slept)
}

func TestPostWithRetryHonorsContext(t *testing.T) {
	c, slept := newTestClient(func(req *http.Request) (*http.Response, error) {
		return nil, req.Context().Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.PostWithRetry(ctx, "https://goszakup.gov.kz/never", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, *slept)
}

func TestLotIDsPage(t *testing.T) {
	var gotURL, gotRequestedWith, gotUA string
	c, _ := newTestClient(func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		gotRequestedWith = req.Header.Get("X-Requested-With")
		gotUA = req.Header.Get("User-Agent")
		return textResponse(req, http.StatusOK, "<html></html>"), nil
	})

	_, err := c.LotIDsPage(context.Background(), "https://goszakup.gov.kz/ru/announce/index/16099116")
	require.NoError(t, err)
	assert.Equal(t, "https://goszakup.gov.kz/ru/announce/index/16099116?tab=lots", gotURL)
	assert.Equal(t, "XMLHttpRequest", gotRequestedWith)
	assert.Equal(t, "test-agent", gotUA)
}

func TestLotDetailPostsLotID(t *testing.T) {
	var gotURL, gotBody string
	c, _ := newTestClient(func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		return textResponse(req, http.StatusOK, "<table></table>"), nil
	})

	_, err := c.LotDetail(context.Background(), "16099116", "31795276")
	require.NoError(t, err)
	assert.Equal(t, "https://goszakup.gov.kz/ru/announce/ajax_load_lot/16099116?tab=lots", gotURL)
	assert.Equal(t, "id=31795276", gotBody)
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Minute), context.Canceled)
}
