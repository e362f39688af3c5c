package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/goszakup-scraper/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS lot_details (
	id INTEGER PRIMARY KEY AUTOINCREMENT,

	lot_url TEXT NOT NULL,
	data_lot_id TEXT NOT NULL,
	announce_id TEXT,

	lot_number TEXT,
	lot_status TEXT,
	customer_bin TEXT,
	customer_name TEXT,
	tru_code TEXT,
	tru_name TEXT,
	brief_description TEXT,
	additional_description TEXT,
	price_per_unit TEXT,
	unit_of_measurement TEXT,
	quantity TEXT,
	delivery_location_kato TEXT,

	scraped_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	parse_status TEXT,
	error_message TEXT,

	UNIQUE (lot_url, data_lot_id)
);

CREATE TABLE IF NOT EXISTS scraping_progress (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	lot_url TEXT UNIQUE NOT NULL,
	announce_id TEXT,
	status TEXT NOT NULL,
	lot_ids_found INTEGER DEFAULT 0,
	lot_ids_processed INTEGER DEFAULT 0,
	started_at TIMESTAMP,
	completed_at TIMESTAMP,
	error_count INTEGER DEFAULT 0,
	last_error TEXT
);

CREATE INDEX IF NOT EXISTS idx_announce_id ON lot_details (announce_id);
CREATE INDEX IF NOT EXISTS idx_data_lot_id ON lot_details (data_lot_id);
CREATE INDEX IF NOT EXISTS idx_tru_code ON lot_details (tru_code);
CREATE INDEX IF NOT EXISTS idx_customer_bin ON lot_details (customer_bin);
CREATE INDEX IF NOT EXISTS idx_parse_status ON lot_details (parse_status);
CREATE INDEX IF NOT EXISTS idx_progress_status ON scraping_progress (status);
`

// SQLiteStore is the default single-file Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at path, creating the file,
// its parent directory and the schema as needed. The pool is capped at a
// single connection: the pipeline is a single writer and this keeps
// in-memory test databases coherent.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetOrCreateProgress(ctx context.Context, announceURL, announceID string) (*domain.CrawlProgress, error) {
	progress, err := s.progressByURL(ctx, announceURL)
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scraping_progress (lot_url, announce_id, status, started_at)
		 VALUES (?, ?, ?, ?)`,
		announceURL, announceID, string(domain.ProgressPending), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create progress row: %w", err)
	}
	return s.progressByURL(ctx, announceURL)
}

func (s *SQLiteStore) UpdateProgress(ctx context.Context, announceURL string, upd ProgressUpdate) error {
	sets, args := progressSetClauses(upd, time.Now().UTC(), false)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, announceURL)

	query := "UPDATE scraping_progress SET " + strings.Join(sets, ", ") + " WHERE lot_url = ?"
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IncrementProcessed(ctx context.Context, announceURL string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scraping_progress SET lot_ids_processed = lot_ids_processed + 1 WHERE lot_url = ?`,
		announceURL)
	if err != nil {
		return fmt.Errorf("increment processed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertLotRecord(ctx context.Context, rec *domain.LotRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO lot_details (
			lot_url, data_lot_id, announce_id,
			lot_number, lot_status, customer_bin, customer_name,
			tru_code, tru_name, brief_description, additional_description,
			price_per_unit, unit_of_measurement, quantity, delivery_location_kato,
			parse_status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.LotURL, rec.DataLotID, rec.AnnounceID,
		rec.LotNumber, rec.LotStatus, rec.CustomerBIN, rec.CustomerName,
		rec.TRUCode, rec.TRUName, rec.BriefDescription, rec.AdditionalDescription,
		rec.PricePerUnit, rec.UnitOfMeasurement, rec.Quantity, rec.DeliveryLocationKATO,
		string(rec.ParseStatus), rec.ErrorMessage)
	if err != nil {
		return false, fmt.Errorf("insert lot record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert lot record: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListPendingOrFailedURLs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lot_url FROM scraping_progress
		 WHERE status IN (?, ?)
		 ORDER BY id`,
		string(domain.ProgressPending), string(domain.ProgressFailed))
	if err != nil {
		return nil, fmt.Errorf("list pending urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}

func (s *SQLiteStore) Statistics(ctx context.Context) (*domain.Statistics, error) {
	stats := &domain.Statistics{
		LotsByParse:  make(map[string]int),
		URLsByStatus: make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lot_details`).Scan(&stats.TotalLots); err != nil {
		return nil, fmt.Errorf("count lots: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scraping_progress`).Scan(&stats.TotalURLs); err != nil {
		return nil, fmt.Errorf("count urls: %w", err)
	}

	if err := s.groupCount(ctx,
		`SELECT parse_status, COUNT(*) FROM lot_details GROUP BY parse_status`,
		stats.LotsByParse); err != nil {
		return nil, fmt.Errorf("group lots by parse status: %w", err)
	}
	if err := s.groupCount(ctx,
		`SELECT status, COUNT(*) FROM scraping_progress GROUP BY status`,
		stats.URLsByStatus); err != nil {
		return nil, fmt.Errorf("group urls by status: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) progressByURL(ctx context.Context, announceURL string) (*domain.CrawlProgress, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, lot_url, announce_id, status, lot_ids_found, lot_ids_processed,
		        started_at, completed_at, error_count, last_error
		 FROM scraping_progress WHERE lot_url = ?`,
		announceURL)

	var (
		p           domain.CrawlProgress
		announceID  sql.NullString
		status      string
		startedAt   sql.NullTime
		completedAt sql.NullTime
		lastError   sql.NullString
	)
	err := row.Scan(&p.ID, &p.AnnounceURL, &announceID, &status,
		&p.LotIDsFound, &p.LotIDsProcessed, &startedAt, &completedAt,
		&p.ErrorCount, &lastError)
	if err != nil {
		return nil, err
	}

	p.AnnounceID = announceID.String
	p.Status = domain.ProgressStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		p.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	if lastError.Valid {
		msg := lastError.String
		p.LastError = &msg
	}
	return &p, nil
}

func (s *SQLiteStore) groupCount(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   sql.NullString
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		name := key.String
		if !key.Valid {
			name = "unknown"
		}
		into[name] = count
	}
	return rows.Err()
}
