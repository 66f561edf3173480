// Package clickhouse persists usage records and analysis runs.
// Columnar storage fits the workload: wide usage exports, append-only
// report history, aggregate queries over months of billing data.
package clickhouse

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"azure-cost/analysis/usage"
)

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "azcost",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// Store wraps a ClickHouse connection.
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

// NewStore opens a ClickHouse connection.
func NewStore(cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// =============================================================================
// USAGE RECORD OPERATIONS
// =============================================================================

// InsertUsageRecords batch-inserts a loaded export under one run ID.
func (s *Store) InsertUsageRecords(ctx context.Context, runID uuid.UUID, records []usage.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO usage_records (
			run_id, instance_name, meter_category, meter_subcategory,
			meter_name, meter_region, unit_of_measure, consumed_service,
			charge_type, product, quantity, cost, effective_price,
			additional_info, usage_date, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	now := time.Now()
	for _, r := range records {
		day := ""
		if d, ok := usage.ResolveDate(r); ok {
			day = d.Format("2006-01-02")
		}
		if err := batch.Append(
			runID, r.InstanceName, r.MeterCategory, r.MeterSubCategory,
			r.MeterName, r.MeterRegion, r.UnitOfMeasure, r.ConsumedService,
			string(r.ChargeType), r.Product, r.Quantity, r.Cost, r.EffectivePrice,
			r.AdditionalInfo, day, now,
		); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// CountUsageRecords returns the stored record count for a run.
func (s *Store) CountUsageRecords(ctx context.Context, runID uuid.UUID) (int, error) {
	row := s.conn.QueryRow(ctx, `SELECT count() FROM usage_records WHERE run_id = ?`, runID)
	var count uint64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count usage records: %w", err)
	}
	return int(count), nil
}

// MonthlyCategoryTotals sums stored cost per month and meter category
// for one run.
func (s *Store) MonthlyCategoryTotals(ctx context.Context, runID uuid.UUID) (map[string]map[string]decimal.Decimal, error) {
	query := `
		SELECT substring(usage_date, 1, 7) AS month, meter_category, sum(cost)
		FROM usage_records
		WHERE run_id = ? AND usage_date != ''
		GROUP BY month, meter_category
		ORDER BY month, meter_category
	`
	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly totals: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]decimal.Decimal)
	for rows.Next() {
		var month, category string
		var cost decimal.Decimal
		if err := rows.Scan(&month, &category, &cost); err != nil {
			return nil, fmt.Errorf("failed to scan monthly total: %w", err)
		}
		if out[month] == nil {
			out[month] = make(map[string]decimal.Decimal)
		}
		out[month][category] = cost
	}
	return out, nil
}

// =============================================================================
// REPORT RUN OPERATIONS
// =============================================================================

// ReportRun records one analysis execution: what was analyzed, over
// which window, and the serialized result.
type ReportRun struct {
	ID          uuid.UUID  `ch:"id"`
	Kind        string     `ch:"kind"`
	SourceFile  string     `ch:"source_file"`
	WindowFrom  *time.Time `ch:"window_from"`
	WindowTo    *time.Time `ch:"window_to"`
	Records     int        `ch:"records"`
	Hash        string     `ch:"hash"`
	Payload     string     `ch:"payload"`
	GeneratedAt time.Time  `ch:"generated_at"`
}

// CreateReportRun inserts a report run.
func (s *Store) CreateReportRun(ctx context.Context, run *ReportRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.GeneratedAt.IsZero() {
		run.GeneratedAt = time.Now()
	}
	query := `
		INSERT INTO report_runs (
			id, kind, source_file, window_from, window_to,
			records, hash, payload, generated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	return s.conn.Exec(ctx, query,
		run.ID, run.Kind, run.SourceFile, run.WindowFrom, run.WindowTo,
		int32(run.Records), run.Hash, run.Payload, run.GeneratedAt,
	)
}

// FindRunByHash returns the run with a matching input hash, or nil.
// Lets callers skip re-analyzing an export that has not changed.
func (s *Store) FindRunByHash(ctx context.Context, kind, hash string) (*ReportRun, error) {
	query := `
		SELECT id, kind, source_file, window_from, window_to,
			   records, hash, payload, generated_at
		FROM report_runs
		WHERE kind = ? AND hash = ?
		ORDER BY generated_at DESC
		LIMIT 1
	`
	row := s.conn.QueryRow(ctx, query, kind, hash)

	var run ReportRun
	var records int32
	err := row.Scan(
		&run.ID, &run.Kind, &run.SourceFile, &run.WindowFrom, &run.WindowTo,
		&records, &run.Hash, &run.Payload, &run.GeneratedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find run by hash: %w", err)
	}
	run.Records = int(records)
	return &run, nil
}

// ListRuns lists the most recent report runs of a kind.
func (s *Store) ListRuns(ctx context.Context, kind string, limit int) ([]*ReportRun, error) {
	query := `
		SELECT id, kind, source_file, window_from, window_to,
			   records, hash, payload, generated_at
		FROM report_runs
		WHERE kind = ?
		ORDER BY generated_at DESC
		LIMIT ?
	`
	rows, err := s.conn.Query(ctx, query, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*ReportRun
	for rows.Next() {
		var run ReportRun
		var records int32
		if err := rows.Scan(
			&run.ID, &run.Kind, &run.SourceFile, &run.WindowFrom, &run.WindowTo,
			&records, &run.Hash, &run.Payload, &run.GeneratedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Records = int(records)
		runs = append(runs, &run)
	}
	return runs, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// HashInput produces the dedup hash for a report run's input document.
func HashInput(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
