package crawler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/user/goszakup-scraper/internal/config"
	"github.com/user/goszakup-scraper/internal/domain"
	"github.com/user/goszakup-scraper/internal/extract"
	"github.com/user/goszakup-scraper/internal/fetch"
	"github.com/user/goszakup-scraper/internal/monitoring"
	"github.com/user/goszakup-scraper/internal/storage"
)

// Fetcher is the portal client the pipeline fetches pages through.
type Fetcher interface {
	LotIDsPage(ctx context.Context, announceURL string) (string, error)
	LotDetail(ctx context.Context, announceID, lotID string) (string, error)
}

// Stats are the run-scoped counters reported in the end-of-run summary.
// They are kept apart from the persisted progress rows: a resumed run
// starts them from zero.
type Stats struct {
	URLsProcessed int
	LotsFound     int
	LotsSaved     int
	LotsFailed    int
}

// Crawler drives the extraction pipeline: one announcement URL at a time,
// one lot at a time. A single URL's failure never aborts the batch; it is
// recorded on the URL's progress row and the run moves on.
type Crawler struct {
	store   storage.Store
	fetcher Fetcher
	metrics *monitoring.Metrics
	logger  *zap.Logger

	requestDelay       time.Duration
	checkpointInterval int
	resume             bool

	stats Stats
}

func New(cfg *config.Config, store storage.Store, fetcher Fetcher, m *monitoring.Metrics, logger *zap.Logger, resume bool) *Crawler {
	interval := cfg.CheckpointInterval
	if interval < 1 {
		interval = 1
	}
	return &Crawler{
		store:              store,
		fetcher:            fetcher,
		metrics:            m,
		logger:             logger,
		requestDelay:       cfg.RequestDelay,
		checkpointInterval: interval,
		resume:             resume,
	}
}

// Run processes the given announcement URLs sequentially. Cancellation is
// cooperative: the context is checked before each URL and before each lot,
// and an in-flight lot always finishes before the loop exits.
func (c *Crawler) Run(ctx context.Context, urls []string) Stats {
	c.logger.Info("starting extraction",
		zap.Int("urls", len(urls)),
		zap.Bool("resume", c.resume))

	for i, url := range urls {
		if ctx.Err() != nil {
			c.logger.Warn("shutdown requested, stopping run",
				zap.Int("processed", i),
				zap.Int("total", len(urls)))
			break
		}

		c.processURL(ctx, url)

		if (i+1)%c.checkpointInterval == 0 {
			c.logger.Info("checkpoint",
				zap.Int("processed", i+1),
				zap.Int("total", len(urls)))
		}
	}
	return c.stats
}

func (c *Crawler) processURL(ctx context.Context, announceURL string) {
	announceID := extract.ExtractAnnounceID(announceURL)
	if announceID == "" {
		c.logger.Error("could not extract announce id, skipping",
			zap.String("url", announceURL))
		c.metrics.IncError("announce_id")
		return
	}

	progress, err := c.store.GetOrCreateProgress(ctx, announceURL, announceID)
	if err != nil {
		c.logger.Error("failed to load progress",
			zap.String("url", announceURL), zap.Error(err))
		c.metrics.IncError("store")
		return
	}

	if c.resume && progress.Status == domain.ProgressCompleted {
		c.logger.Debug("skipping completed url", zap.String("url", announceURL))
		c.metrics.IncURL("skipped")
		return
	}

	c.setStatus(ctx, announceURL, domain.ProgressProcessing, nil)

	c.logger.Info("processing announcement",
		zap.String("url", announceURL),
		zap.String("announce_id", announceID))

	start := time.Now()
	html, err := c.fetcher.LotIDsPage(ctx, announceURL)
	c.metrics.ObserveFetch("lots_page", time.Since(start))
	if err != nil {
		c.logger.Error("failed to fetch lot ids page",
			zap.String("url", announceURL), zap.Error(err))
		c.metrics.IncError("fetch_lots_page")
		c.failURL(ctx, announceURL, "failed to fetch lot IDs page: "+err.Error())
		return
	}

	lotIDs := extract.ExtractLotIDs(html)
	if len(lotIDs) == 0 {
		c.logger.Warn("no lot ids found", zap.String("url", announceURL))
		zero := 0
		completed := domain.ProgressCompleted
		c.updateProgress(ctx, announceURL, storage.ProgressUpdate{
			Status:          &completed,
			LotIDsFound:     &zero,
			LotIDsProcessed: &zero,
		})
		c.stats.URLsProcessed++
		c.metrics.IncURL("completed")
		return
	}

	c.logger.Info("found lots",
		zap.String("url", announceURL),
		zap.Int("count", len(lotIDs)))
	found := len(lotIDs)
	c.updateProgress(ctx, announceURL, storage.ProgressUpdate{LotIDsFound: &found})
	c.stats.LotsFound += found

	errCount := progress.ErrorCount
	interrupted := false
	for _, lotID := range lotIDs {
		if ctx.Err() != nil {
			interrupted = true
			break
		}

		c.processLot(ctx, announceURL, announceID, lotID, &errCount)

		if err := fetch.Sleep(ctx, c.requestDelay); err != nil {
			interrupted = true
			break
		}
	}

	if interrupted {
		// An interrupted URL stays retryable: resume picks up failed rows
		// and the unique record constraint makes the rerun idempotent.
		c.logger.Warn("lot loop interrupted by shutdown",
			zap.String("url", announceURL))
		c.failURL(ctx, announceURL, "interrupted by shutdown")
		return
	}

	c.setStatus(ctx, announceURL, domain.ProgressCompleted, nil)
	c.stats.URLsProcessed++
	c.metrics.IncURL("completed")
}

func (c *Crawler) processLot(ctx context.Context, announceURL, announceID, lotID string, errCount *int) {
	lotLogger := c.logger.With(
		zap.String("url", announceURL),
		zap.String("lot_id", lotID))

	start := time.Now()
	html, err := c.fetcher.LotDetail(ctx, announceID, lotID)
	c.metrics.ObserveFetch("lot_detail", time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			// Fetch aborted by shutdown; the lot loop handles the
			// interruption, this is not a lot failure.
			return
		}
		lotLogger.Error("failed to fetch lot detail", zap.Error(err))
		c.metrics.IncError("fetch_lot_detail")
		c.lotFailed(ctx, announceURL, lotID, err.Error(), errCount)
		return
	}

	fields := extract.ParseLotTable(html)
	status, message := extract.ClassifyParse(fields)

	rec := domain.NewLotRecord(announceURL, announceID, lotID, fields)
	rec.ParseStatus = status
	rec.ErrorMessage = message

	// Once the fragment is fetched the lot is the current atomic unit of
	// work: its writes complete even if shutdown fires meanwhile.
	saveCtx := context.WithoutCancel(ctx)
	inserted, err := c.store.InsertLotRecord(saveCtx, rec)
	if err != nil {
		lotLogger.Error("failed to store lot record", zap.Error(err))
		c.metrics.IncError("store")
		c.lotFailed(ctx, announceURL, lotID, err.Error(), errCount)
		return
	}
	if !inserted {
		lotLogger.Debug("skipped duplicate lot")
		return
	}

	if err := c.store.IncrementProcessed(saveCtx, announceURL); err != nil {
		lotLogger.Error("failed to bump processed counter", zap.Error(err))
	}
	c.stats.LotsSaved++
	c.metrics.IncLot(string(status))
	lotLogger.Debug("saved lot", zap.String("parse_status", string(status)))
}

// lotFailed records a per-lot failure on the URL's progress row without
// failing the URL itself.
func (c *Crawler) lotFailed(ctx context.Context, announceURL, lotID, message string, errCount *int) {
	c.stats.LotsFailed++
	*errCount++
	lastError := "lot " + lotID + ": " + message
	c.updateProgress(ctx, announceURL, storage.ProgressUpdate{
		ErrorCount: errCount,
		LastError:  &lastError,
	})
}

func (c *Crawler) failURL(ctx context.Context, announceURL, message string) {
	c.setStatus(ctx, announceURL, domain.ProgressFailed, &message)
	c.metrics.IncURL("failed")
}

func (c *Crawler) setStatus(ctx context.Context, announceURL string, status domain.ProgressStatus, lastError *string) {
	c.updateProgress(ctx, announceURL, storage.ProgressUpdate{
		Status:    &status,
		LastError: lastError,
	})
}

// updateProgress writes progress detached from run cancellation so that a
// shutdown mid-loop can still record its terminal state.
func (c *Crawler) updateProgress(ctx context.Context, announceURL string, upd storage.ProgressUpdate) {
	if err := c.store.UpdateProgress(context.WithoutCancel(ctx), announceURL, upd); err != nil {
		c.logger.Error("failed to update progress",
			zap.String("url", announceURL), zap.Error(err))
		c.metrics.IncError("store")
	}
}
