package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/goszakup-scraper/internal/config"
	"github.com/user/goszakup-scraper/internal/domain"
	"github.com/user/goszakup-scraper/internal/fetch"
)

const (
	// linkSelector matches the announcement anchors on a search results
	// page. The style attribute is part of the match because the portal
	// renders other `_blank` anchors in the same list.
	linkSelector = `a[target="_blank"][style="font-size: 13px"]`

	// recordsDropdownSelector is the page-size dropdown widened once on
	// the first page.
	recordsDropdownSelector = `select.form-control.m-b-sm`

	// maxEmptyPages is the streak of pages without new links after which
	// the results are assumed exhausted. The portal offers no explicit
	// last-page signal.
	maxEmptyPages = 3

	outputFilePrefix = "goszakup_links"
)

// Scraper paginates the portal's search UI and accumulates announcement
// links, checkpointing the deduplicated set to a JSON snapshot so an
// interrupted run keeps what it collected.
type Scraper struct {
	browser Browser
	logger  *zap.Logger
	runID   string

	baseURL          string
	filters          string
	recordsPerPage   int
	startPage        int
	maxLinks         int
	pageDelay        time.Duration
	snapshotInterval int
	outDir           string

	links        map[string]struct{}
	pagesScraped int
	outPath      string
}

func NewScraper(cfg *config.Config, browser Browser, logger *zap.Logger) *Scraper {
	runID := uuid.NewString()
	interval := cfg.SnapshotInterval
	if interval < 1 {
		interval = 1
	}
	return &Scraper{
		browser:          browser,
		logger:           logger.With(zap.String("run_id", runID)),
		runID:            runID,
		baseURL:          cfg.BaseURL,
		filters:          cfg.URLFilters,
		recordsPerPage:   cfg.RecordsPerPage,
		startPage:        cfg.StartPage,
		maxLinks:         cfg.MaxLinks,
		pageDelay:        cfg.PageDelay,
		snapshotInterval: interval,
		outDir:           cfg.OutputDir,
		links:            make(map[string]struct{}),
	}
}

// OutputPath is where the snapshot lands; valid once Run has started.
func (s *Scraper) OutputPath() string {
	return s.outPath
}

// Run executes the page loop until the results are exhausted, the link cap
// is reached or ctx is cancelled. The accumulated set is snapshotted every
// snapshotInterval pages and once more at the end, interrupt included.
func (s *Scraper) Run(ctx context.Context) (*domain.LinkSnapshot, error) {
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", s.baseURL, err)
	}

	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	s.outPath = filepath.Join(s.outDir, fmt.Sprintf("%s_%s.json",
		outputFilePrefix, time.Now().Format("20060102_150405")))

	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser page: %w", err)
	}
	defer page.Close()

	s.logger.Info("starting link discovery",
		zap.Int("start_page", s.startPage),
		zap.Int("max_links", s.maxLinks),
		zap.String("out", s.outPath))

	pageNum := s.startPage
	emptyStreak := 0
	for {
		if s.maxLinks > 0 && len(s.links) >= s.maxLinks {
			s.logger.Info("reached max links limit", zap.Int("max_links", s.maxLinks))
			break
		}
		if ctx.Err() != nil {
			s.logger.Warn("shutdown requested, stopping discovery")
			break
		}

		newLinks := s.scrapePage(ctx, page, base, pageNum, pageNum == s.startPage)
		if newLinks == 0 {
			emptyStreak++
			if emptyStreak >= maxEmptyPages {
				s.logger.Info("consecutive pages without new links, assuming end of results",
					zap.Int("pages", emptyStreak))
				break
			}
		} else {
			emptyStreak = 0
		}

		if s.pagesScraped%s.snapshotInterval == 0 {
			if err := s.saveSnapshot(false); err != nil {
				s.logger.Error("checkpoint save failed", zap.Error(err))
			}
		}

		if err := fetch.Sleep(ctx, s.pageDelay); err != nil {
			s.logger.Warn("shutdown requested, stopping discovery")
			break
		}
		pageNum++
	}

	snap := s.snapshot()
	if err := s.saveSnapshot(true); err != nil {
		return snap, fmt.Errorf("final snapshot: %w", err)
	}

	s.logger.Info("link discovery finished",
		zap.Int("total_links", len(s.links)),
		zap.Int("pages_scraped", s.pagesScraped),
		zap.String("out", s.outPath))
	return snap, nil
}

// scrapePage loads one listing page and folds its links into the set,
// returning how many were new. Page-level errors are absorbed as an empty
// page so the streak heuristic decides when to give up.
func (s *Scraper) scrapePage(ctx context.Context, page Page, base *url.URL, pageNum int, first bool) int {
	listingURL := fmt.Sprintf("%s?%s&count_record=%d&page=%d",
		s.baseURL, s.filters, s.recordsPerPage, pageNum)

	s.logger.Info("scraping page", zap.Int("page", pageNum))
	s.logger.Debug("navigating", zap.String("url", listingURL))

	if err := page.Navigate(ctx, listingURL); err != nil {
		s.logger.Error("failed to load page", zap.Int("page", pageNum), zap.Error(err))
		return 0
	}

	if first {
		value := strconv.Itoa(s.recordsPerPage)
		if err := page.SelectOption(ctx, recordsDropdownSelector, value); err != nil {
			// Not fatal: the portal default page size still lists
			// results, just across more pages.
			s.logger.Warn("could not widen page size, keeping portal default", zap.Error(err))
		}
	}

	hrefs, err := page.AttrAll(ctx, linkSelector, "href")
	if err != nil {
		s.logger.Warn("failed to extract links", zap.Int("page", pageNum), zap.Error(err))
		return 0
	}

	added := 0
	for _, href := range hrefs {
		if s.maxLinks > 0 && len(s.links) >= s.maxLinks {
			break
		}
		abs, err := absoluteURL(base, href)
		if err != nil {
			s.logger.Debug("dropping malformed link",
				zap.String("href", href), zap.Error(err))
			continue
		}
		if _, dup := s.links[abs]; dup {
			continue
		}
		s.links[abs] = struct{}{}
		added++
	}

	s.pagesScraped++
	if added == 0 {
		s.logger.Warn("no new links on page", zap.Int("page", pageNum))
	} else {
		s.logger.Info("extracted links",
			zap.Int("page", pageNum),
			zap.Int("new", added),
			zap.Int("total", len(s.links)))
	}
	return added
}

func (s *Scraper) snapshot() *domain.LinkSnapshot {
	links := make([]string, 0, len(s.links))
	for link := range s.links {
		links = append(links, link)
	}
	sort.Strings(links)

	return &domain.LinkSnapshot{
		Metadata: domain.SnapshotMetadata{
			RunID:          s.runID,
			ScrapeDate:     time.Now().Format(time.RFC3339),
			TotalLinks:     len(links),
			PagesScraped:   s.pagesScraped,
			RecordsPerPage: s.recordsPerPage,
			BaseURL:        s.baseURL,
			Filters:        s.filters,
		},
		Links: links,
	}
}

// saveSnapshot writes the snapshot atomically: the previous file survives
// intact if the process dies mid-write.
func (s *Scraper) saveSnapshot(final bool) error {
	data, err := json.MarshalIndent(s.snapshot(), "", "  ")
	if err != nil {
		return err
	}

	tmpPath := s.outPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.outPath); err != nil {
		return err
	}

	kind := "checkpoint"
	if final {
		kind = "final"
	}
	s.logger.Info("snapshot saved",
		zap.String("kind", kind),
		zap.Int("links", len(s.links)),
		zap.String("path", s.outPath))
	return nil
}

func absoluteURL(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
