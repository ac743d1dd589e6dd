package metadata

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/gaps"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/tables"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

//go:embed schema.sql
var schemaSQL string

var gapColumns = []string{"run_id", "resolution", "pass", "variable", "region", "attribute", "source", "gap_start", "gap_end", "steps"}

// PostgresSink implements Sink using PostgreSQL.
type PostgresSink struct {
	pool *pgxpool.Pool
	cfg  CatalogConfig
	log  *slog.Logger
}

// NewPostgresSink connects to the database and creates the tables if needed.
func NewPostgresSink(ctx context.Context, cfg CatalogConfig) (*PostgresSink, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	if cfg.Namespace != "" {
		poolCfg.ConnConfig.RuntimeParams["search_path"] = cfg.Namespace
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresSink{pool: pool, cfg: cfg, log: slog.Default().With("component", "metadata")}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s.log.Info("connected to PostgreSQL", "namespace", cfg.Namespace)
	return s, nil
}

func (s *PostgresSink) initSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// WriteDataset replaces the contents of the table of ds's resolution.
func (s *PostgresSink) WriteDataset(ctx context.Context, ds *timeseries.Dataset) (int64, error) {
	table := tables.TableName(ds.Resolution)
	rows := tables.Rows(ds)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE "+pgx.Identifier{table}.Sanitize()); err != nil {
		return 0, fmt.Errorf("truncate %s: %w", table, err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, tables.Columns, pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		return rowValues(rows[i]), nil
	}))
	if err != nil {
		return 0, fmt.Errorf("copy %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit %s: %w", table, err)
	}
	s.log.Info("table written", "table", table, "rows", n)
	return n, nil
}

// RecordGaps stores every run of the reports, replacing earlier rows of the
// same run id.
func (s *PostgresSink) RecordGaps(ctx context.Context, runID string, reports []*gaps.Report) error {
	rows := gapRows(runID, reports)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM _meta_gaps WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("clear gaps: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"_meta_gaps"}, gapColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy gaps: %w", err)
	}
	return tx.Commit(ctx)
}

// RecordRun upserts the lineage row of a run.
func (s *PostgresSink) RecordRun(ctx context.Context, rec RunRecord) error {
	series, err := json.Marshal(rec.Series)
	if err != nil {
		return fmt.Errorf("marshal series: %w", err)
	}
	checksums, err := json.Marshal(rec.Checksums)
	if err != nil {
		return fmt.Errorf("marshal checksums: %w", err)
	}

	var version *string
	if rec.ProducerVersion != "" {
		version = &rec.ProducerVersion
	}

	query := `
		INSERT INTO _meta_runs (run_id, started_at, finished_at, status, series, interpolated, guessed, unpatched, checksums, producer_version)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9::jsonb, $10)
		ON CONFLICT (run_id)
		DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			status = EXCLUDED.status,
			series = EXCLUDED.series,
			interpolated = EXCLUDED.interpolated,
			guessed = EXCLUDED.guessed,
			unpatched = EXCLUDED.unpatched,
			checksums = EXCLUDED.checksums,
			producer_version = EXCLUDED.producer_version,
			recorded_at = NOW()
	`
	_, err = s.pool.Exec(ctx, query,
		rec.RunID,
		rec.StartedAt,
		rec.FinishedAt,
		rec.Status,
		string(series),
		rec.Interpolated,
		rec.Guessed,
		rec.Unpatched,
		string(checksums),
		version,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

func rowValues(r tables.Row) []any {
	var value any
	if r.Value != nil {
		value = *r.Value
	}
	return []any{r.Timestamp, r.Variable, r.Region, r.Attribute, r.Source, r.Web, value}
}

func gapRows(runID string, reports []*gaps.Report) [][]any {
	var rows [][]any
	for _, rep := range reports {
		for _, l := range rep.Labels() {
			for _, run := range rep.Runs(l) {
				rows = append(rows, []any{
					runID, string(rep.Resolution), string(rep.Pass),
					l.Variable, l.Region, l.Attribute, l.Source,
					run.Start, run.End, run.Length,
				})
			}
		}
	}
	return rows
}
