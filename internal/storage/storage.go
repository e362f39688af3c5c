package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/user/goszakup-scraper/internal/domain"
)

// Store is the durable progress and record store behind the scrape
// pipeline and the stats command. Two implementations exist: SQLite for
// the default single-file deployment and PostgreSQL for server setups.
type Store interface {
	// GetOrCreateProgress returns the progress row for announceURL,
	// creating it as pending with a start timestamp on first encounter.
	GetOrCreateProgress(ctx context.Context, announceURL, announceID string) (*domain.CrawlProgress, error)

	// UpdateProgress applies a sparse update to one progress row.
	// Setting the status to processing without a simultaneous
	// lot_ids_found stamps started_at; setting it to completed stamps
	// completed_at.
	UpdateProgress(ctx context.Context, announceURL string, upd ProgressUpdate) error

	// IncrementProcessed bumps lot_ids_processed by one. Called once per
	// saved lot so a crash keeps the counter honest.
	IncrementProcessed(ctx context.Context, announceURL string) error

	// InsertLotRecord stores a parsed lot. It reports false without an
	// error when the (lot_url, data_lot_id) pair already exists; the
	// UNIQUE constraint is the sole deduplication mechanism.
	InsertLotRecord(ctx context.Context, rec *domain.LotRecord) (bool, error)

	// ListPendingOrFailedURLs returns pending and failed announcement
	// URLs in their original insertion order.
	ListPendingOrFailedURLs(ctx context.Context) ([]string, error)

	// Statistics aggregates both tables without side effects.
	Statistics(ctx context.Context) (*domain.Statistics, error)

	Close() error
}

// ProgressUpdate is a sparse update for one progress row. Nil members are
// left untouched.
type ProgressUpdate struct {
	Status          *domain.ProgressStatus
	LotIDsFound     *int
	LotIDsProcessed *int
	ErrorCount      *int
	LastError       *string
}

// progressSetClauses renders the SET fragments and arguments for a sparse
// progress update. numbered selects $n placeholders (pgx) over ?
// (database/sql). Timestamp stamping follows the status being written:
// processing stamps started_at unless lot_ids_found is set in the same
// update, completed stamps completed_at.
func progressSetClauses(upd ProgressUpdate, now time.Time, numbered bool) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		if numbered {
			sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
		} else {
			sets = append(sets, column+" = ?")
		}
	}

	if upd.Status != nil {
		add("status", string(*upd.Status))
		switch {
		case *upd.Status == domain.ProgressProcessing && upd.LotIDsFound == nil:
			add("started_at", now)
		case *upd.Status == domain.ProgressCompleted:
			add("completed_at", now)
		}
	}
	if upd.LotIDsFound != nil {
		add("lot_ids_found", *upd.LotIDsFound)
	}
	if upd.LotIDsProcessed != nil {
		add("lot_ids_processed", *upd.LotIDsProcessed)
	}
	if upd.ErrorCount != nil {
		add("error_count", *upd.ErrorCount)
	}
	if upd.LastError != nil {
		add("last_error", *upd.LastError)
	}
	return sets, args
}
