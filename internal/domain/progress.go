package domain

import "time"

// ProgressStatus is the lifecycle state of one announcement URL.
// Transitions run pending -> processing -> completed or failed; a failed
// URL may re-enter processing on a later resume run.
type ProgressStatus string

const (
	ProgressPending    ProgressStatus = "pending"
	ProgressProcessing ProgressStatus = "processing"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressFailed     ProgressStatus = "failed"
)

// CrawlProgress mirrors the `scraping_progress` table schema, one row per
// announcement URL. Rows are created lazily on first encounter and never
// deleted.
type CrawlProgress struct {
	ID              int64
	AnnounceURL     string
	AnnounceID      string
	Status          ProgressStatus
	LotIDsFound     int
	LotIDsProcessed int
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ErrorCount      int
	LastError       *string
}
