package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/goszakup-scraper/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS lot_details (
	id BIGSERIAL PRIMARY KEY,

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

	scraped_at TIMESTAMPTZ DEFAULT NOW(),
	parse_status TEXT,
	error_message TEXT,

	UNIQUE (lot_url, data_lot_id)
);

CREATE TABLE IF NOT EXISTS scraping_progress (
	id BIGSERIAL PRIMARY KEY,
	lot_url TEXT UNIQUE NOT NULL,
	announce_id TEXT,
	status TEXT NOT NULL,
	lot_ids_found INTEGER DEFAULT 0,
	lot_ids_processed INTEGER DEFAULT 0,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
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

// PostgresStore is the Store implementation for server deployments.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetOrCreateProgress(ctx context.Context, announceURL, announceID string) (*domain.CrawlProgress, error) {
	progress, err := s.progressByURL(ctx, announceURL)
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO scraping_progress (lot_url, announce_id, status, started_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (lot_url) DO NOTHING`,
		announceURL, announceID, string(domain.ProgressPending), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create progress row: %w", err)
	}
	return s.progressByURL(ctx, announceURL)
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, announceURL string, upd ProgressUpdate) error {
	sets, args := progressSetClauses(upd, time.Now().UTC(), true)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, announceURL)

	query := fmt.Sprintf("UPDATE scraping_progress SET %s WHERE lot_url = $%d",
		strings.Join(sets, ", "), len(args))
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) IncrementProcessed(ctx context.Context, announceURL string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE scraping_progress SET lot_ids_processed = lot_ids_processed + 1 WHERE lot_url = $1`,
		announceURL)
	if err != nil {
		return fmt.Errorf("increment processed: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertLotRecord(ctx context.Context, rec *domain.LotRecord) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO lot_details (
			lot_url, data_lot_id, announce_id,
			lot_number, lot_status, customer_bin, customer_name,
			tru_code, tru_name, brief_description, additional_description,
			price_per_unit, unit_of_measurement, quantity, delivery_location_kato,
			parse_status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (lot_url, data_lot_id) DO NOTHING`,
		rec.LotURL, rec.DataLotID, rec.AnnounceID,
		rec.LotNumber, rec.LotStatus, rec.CustomerBIN, rec.CustomerName,
		rec.TRUCode, rec.TRUName, rec.BriefDescription, rec.AdditionalDescription,
		rec.PricePerUnit, rec.UnitOfMeasurement, rec.Quantity, rec.DeliveryLocationKATO,
		string(rec.ParseStatus), rec.ErrorMessage)
	if err != nil {
		return false, fmt.Errorf("insert lot record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListPendingOrFailedURLs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT lot_url FROM scraping_progress
		 WHERE status IN ($1, $2)
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

func (s *PostgresStore) Statistics(ctx context.Context) (*domain.Statistics, error) {
	stats := &domain.Statistics{
		LotsByParse:  make(map[string]int),
		URLsByStatus: make(map[string]int),
	}

	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM lot_details`).Scan(&stats.TotalLots); err != nil {
		return nil, fmt.Errorf("count lots: %w", err)
	}
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM scraping_progress`).Scan(&stats.TotalURLs); err != nil {
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

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) progressByURL(ctx context.Context, announceURL string) (*domain.CrawlProgress, error) {
	var (
		p          domain.CrawlProgress
		announceID *string
		status     string
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, lot_url, announce_id, status, lot_ids_found, lot_ids_processed,
		        started_at, completed_at, error_count, last_error
		 FROM scraping_progress WHERE lot_url = $1`,
		announceURL).
		Scan(&p.ID, &p.AnnounceURL, &announceID, &status,
			&p.LotIDsFound, &p.LotIDsProcessed, &p.StartedAt, &p.CompletedAt,
			&p.ErrorCount, &p.LastError)
	if err != nil {
		return nil, err
	}

	if announceID != nil {
		p.AnnounceID = *announceID
	}
	p.Status = domain.ProgressStatus(status)
	return &p, nil
}

func (s *PostgresStore) groupCount(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   *string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		name := "unknown"
		if key != nil {
			name = *key
		}
		into[name] = count
	}
	return rows.Err()
}
