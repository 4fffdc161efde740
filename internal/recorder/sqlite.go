package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"Terminal/internal/model"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists decision batches and their apply/learn history to SQLite.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so dashboards can read while batches are written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_batches (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id   TEXT NOT NULL UNIQUE,
			date       TEXT NOT NULL,
			level      TEXT NOT NULL,
			strategy   TEXT,
			summary    TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_date_level ON decision_batches(date, level)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id           TEXT NOT NULL,
			seq                INTEGER NOT NULL,
			decision_id        TEXT NOT NULL,
			entity_id          TEXT NOT NULL,
			level              TEXT,
			account_id         TEXT,
			lane               TEXT,
			action             TEXT,
			budget_multiplier  REAL,
			bid_cap_multiplier REAL,
			spend_delta_usd    REAL,
			reason             TEXT,
			policy_version     TEXT,
			confidence         REAL,
			date               TEXT,
			provenance         TEXT,
			created_at         INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_batch ON decisions(batch_id, seq)`,

		`CREATE TABLE IF NOT EXISTS apply_events (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			batch_id  TEXT,
			date      TEXT,
			level     TEXT,
			applied   INTEGER,
			skipped   INTEGER,
			entities  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_apply_ts ON apply_events(timestamp)`,

		`CREATE TABLE IF NOT EXISTS learn_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			batch_id   TEXT,
			date       TEXT,
			level      TEXT,
			updated    INTEGER,
			no_outcome INTEGER,
			invalid    INTEGER,
			duplicates INTEGER,
			stale      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_learn_ts ON learn_events(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordBatch(ctx context.Context, b *model.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary, err := json.Marshal(b.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO decision_batches
		(batch_id, date, level, strategy, summary, created_at)
		VALUES (?,?,?,?,?,?)`,
		b.BatchID, b.Date, string(b.Level), b.Strategy, string(summary), b.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO decisions
		(batch_id, seq, decision_id, entity_id, level, account_id, lane, action,
		 budget_multiplier, bid_cap_multiplier, spend_delta_usd, reason,
		 policy_version, confidence, date, provenance, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare decisions: %w", err)
	}
	defer stmt.Close()

	for i, d := range b.Decisions {
		var bidCap sql.NullFloat64
		if d.BidCapMultiplier != nil {
			bidCap = sql.NullFloat64{Float64: *d.BidCapMultiplier, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			b.BatchID, i, d.DecisionID, d.ID, string(d.Level), d.AccountID, d.Lane, string(d.Action),
			d.BudgetMultiplier, bidCap, d.SpendDeltaUSD, d.Reason,
			d.PolicyVersion, d.Confidence, d.Date, d.Provenance, d.CreatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert decision %s: %w", d.DecisionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.logger.Debug("batch recorded",
		zap.String("batch_id", b.BatchID), zap.Int("decisions", len(b.Decisions)))
	return nil
}

func (r *SQLiteRecorder) LatestBatch(ctx context.Context, date string, level model.Level) (*model.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := &model.Batch{Date: date, Level: level}
	var summary string
	var created int64
	err := r.db.QueryRowContext(ctx, `SELECT batch_id, strategy, summary, created_at
		FROM decision_batches WHERE date = ? AND level = ?
		ORDER BY id DESC LIMIT 1`, date, string(level),
	).Scan(&b.BatchID, &b.Strategy, &summary, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBatch
	}
	if err != nil {
		return nil, fmt.Errorf("query batch: %w", err)
	}
	b.CreatedAt = time.Unix(0, created).UTC()
	if err := json.Unmarshal([]byte(summary), &b.Summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT decision_id, entity_id, level, account_id, lane, action,
		budget_multiplier, bid_cap_multiplier, spend_delta_usd, reason,
		policy_version, confidence, date, provenance, created_at
		FROM decisions WHERE batch_id = ? ORDER BY seq`, b.BatchID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d model.Decision
		var lvl, action string
		var bidCap sql.NullFloat64
		var ts int64
		if err := rows.Scan(&d.DecisionID, &d.ID, &lvl, &d.AccountID, &d.Lane, &action,
			&d.BudgetMultiplier, &bidCap, &d.SpendDeltaUSD, &d.Reason,
			&d.PolicyVersion, &d.Confidence, &d.Date, &d.Provenance, &ts); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Level = model.Level(lvl)
		d.Action = model.Action(action)
		if bidCap.Valid {
			v := bidCap.Float64
			d.BidCapMultiplier = &v
		}
		d.CreatedAt = time.Unix(0, ts).UTC()
		b.Decisions = append(b.Decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read decisions: %w", err)
	}
	return b, nil
}

func (r *SQLiteRecorder) RecordApply(ctx context.Context, rep *model.ApplyReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entities, err := json.Marshal(rep.Applied)
	if err != nil {
		return fmt.Errorf("encode applied ids: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO apply_events
		(timestamp, batch_id, date, level, applied, skipped, entities)
		VALUES (?,?,?,?,?,?,?)`,
		rep.At.Unix(), rep.BatchID, rep.Date, string(rep.Level), len(rep.Applied), rep.Skipped, string(entities),
	)
	return err
}

func (r *SQLiteRecorder) RecordLearn(ctx context.Context, rep *model.LearnReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO learn_events
		(timestamp, batch_id, date, level, updated, no_outcome, invalid, duplicates, stale)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		rep.At.Unix(), rep.BatchID, rep.Date, string(rep.Level),
		rep.Updated, rep.NoOutcome, rep.Invalid, rep.Duplicates, rep.Stale,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
