package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/user/goszakup-scraper/internal/config"
	"github.com/user/goszakup-scraper/internal/domain"
)

type fakePage struct {
	navigated []string
	selected  [][2]string
	results   [][]string
	onAttrAll func(call int)
	closed    bool
	calls     int
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) SelectOption(_ context.Context, selector, value string) error {
	p.selected = append(p.selected, [2]string{selector, value})
	return nil
}

func (p *fakePage) AttrAll(_ context.Context, _, _ string) ([]string, error) {
	call := p.calls
	p.calls++
	if p.onAttrAll != nil {
		p.onAttrAll(call)
	}
	if call < len(p.results) {
		return p.results[call], nil
	}
	return nil, nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeBrowser struct {
	page   *fakePage
	newErr error
}

func (b *fakeBrowser) NewPage(context.Context) (Page, error) {
	if b.newErr != nil {
		return nil, b.newErr
	}
	return b.page, nil
}

func (b *fakeBrowser) Close() error { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		BaseURL:          "https://goszakup.gov.kz/ru/search/lots",
		URLFilters:       "filter%5Bamount_from%5D=5000000&filter%5Btrade_type%5D=g",
		RecordsPerPage:   2000,
		StartPage:        1,
		SnapshotInterval: 2,
		OutputDir:        t.TempDir(),
	}
}

func TestRunStopsAfterEmptyPageStreak(t *testing.T) {
	page := &fakePage{
		results: [][]string{
			{"/ru/announce/index/101", "/ru/announce/index/100", "%zz"},
			{"/ru/announce/index/100"}, // dup only
			{},
			{},
		},
	}
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewScraper(testConfig(t), &fakeBrowser{page: page}, zap.New(core))

	snap, err := s.Run(context.Background())
	require.NoError(t, err)

	// One non-empty page, then three without new links ends the loop.
	require.Len(t, page.navigated, 4)
	assert.Contains(t, page.navigated[0], "page=1")
	assert.Contains(t, page.navigated[0], "count_record=2000")
	assert.Contains(t, page.navigated[0], "filter%5Bamount_from%5D=5000000")
	assert.Contains(t, page.navigated[3], "page=4")

	// The page-size dropdown is widened exactly once, on the first page.
	require.Len(t, page.selected, 1)
	assert.Equal(t, [2]string{recordsDropdownSelector, "2000"}, page.selected[0])

	// Links are absolutized, deduplicated and sorted; the malformed href
	// is dropped.
	assert.Equal(t, []string{
		"https://goszakup.gov.kz/ru/announce/index/100",
		"https://goszakup.gov.kz/ru/announce/index/101",
	}, snap.Links)
	assert.Equal(t, 2, snap.Metadata.TotalLinks)
	assert.Equal(t, 4, snap.Metadata.PagesScraped)
	assert.Equal(t, 2000, snap.Metadata.RecordsPerPage)
	assert.NotEmpty(t, snap.Metadata.RunID)
	_, terr := time.Parse(time.RFC3339, snap.Metadata.ScrapeDate)
	assert.NoError(t, terr)

	// A checkpoint fired at page 2 (interval 2), plus the final save.
	saves := logs.FilterMessage("snapshot saved").All()
	require.Len(t, saves, 2)
	assert.Equal(t, "checkpoint", saves[0].ContextMap()["kind"])
	assert.Equal(t, "final", saves[1].ContextMap()["kind"])

	assert.True(t, page.closed)
}

func TestRunWritesSnapshotFile(t *testing.T) {
	page := &fakePage{
		results: [][]string{
			{"/ru/announce/index/5", "/ru/announce/index/3"},
			{},
			{},
			{},
		},
	}
	s := NewScraper(testConfig(t), &fakeBrowser{page: page}, zap.NewNop())

	snap, err := s.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, s.OutputPath())

	data, err := os.ReadFile(s.OutputPath())
	require.NoError(t, err)

	var onDisk domain.LinkSnapshot
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, snap.Links, onDisk.Links)
	assert.Equal(t, snap.Metadata.TotalLinks, onDisk.Metadata.TotalLinks)
	assert.Equal(t, "https://goszakup.gov.kz/ru/search/lots", onDisk.Metadata.BaseURL)

	// No stale temp file left behind by the atomic write.
	_, err = os.Stat(s.OutputPath() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestRunStopsAtMaxLinks(t *testing.T) {
	page := &fakePage{
		results: [][]string{
			{"/ru/announce/index/1", "/ru/announce/index/2"},
			{"/ru/announce/index/3", "/ru/announce/index/4"},
			{"/ru/announce/index/5"},
		},
	}
	cfg := testConfig(t)
	cfg.MaxLinks = 3
	s := NewScraper(cfg, &fakeBrowser{page: page}, zap.NewNop())

	snap, err := s.Run(context.Background())
	require.NoError(t, err)

	// Page 2 fills the cap mid-extraction; page 3 is never visited.
	assert.Len(t, page.navigated, 2)
	assert.Equal(t, []string{
		"https://goszakup.gov.kz/ru/announce/index/1",
		"https://goszakup.gov.kz/ru/announce/index/2",
		"https://goszakup.gov.kz/ru/announce/index/3",
	}, snap.Links)
}

func TestRunSavesFinalSnapshotOnInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	page := &fakePage{
		results: [][]string{
			{"/ru/announce/index/8"},
			{"/ru/announce/index/9"},
		},
		onAttrAll: func(int) { cancel() },
	}
	s := NewScraper(testConfig(t), &fakeBrowser{page: page}, zap.NewNop())

	snap, err := s.Run(ctx)
	require.NoError(t, err)

	// The in-flight page completed, then the loop noticed the shutdown.
	assert.Len(t, page.navigated, 1)
	assert.Equal(t, []string{"https://goszakup.gov.kz/ru/announce/index/8"}, snap.Links)

	data, err := os.ReadFile(s.OutputPath())
	require.NoError(t, err)
	var onDisk domain.LinkSnapshot
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, snap.Links, onDisk.Links)
}

func TestRunFailsWhenBrowserCannotOpen(t *testing.T) {
	s := NewScraper(testConfig(t), &fakeBrowser{newErr: errors.New("no chrome binary")}, zap.NewNop())

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open browser page")
}

func TestRunResetsEmptyStreakOnNewLinks(t *testing.T) {
	page := &fakePage{
		results: [][]string{
			{"/ru/announce/index/1"},
			{},
			{},
			{"/ru/announce/index/2"}, // streak resets here
			{},
			{},
			{},
		},
	}
	s := NewScraper(testConfig(t), &fakeBrowser{page: page}, zap.NewNop())

	snap, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, page.navigated, 7)
	assert.Equal(t, 2, snap.Metadata.TotalLinks)
}
