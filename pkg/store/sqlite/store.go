// Package sqlite persists cost records, rejected updates, alerts and markup
// overrides so a restarted process can restore its state.
//
// Store implements catalog.Observer and alerts.Notifier; registering it on a
// catalog and alert manager keeps the database in step with memory.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/pricer/pkg/alerts"
	"github.com/pario-ai/pricer/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS cost_records (
	model_id TEXT PRIMARY KEY,
	provider_id TEXT NOT NULL,
	estimated INTEGER NOT NULL,
	record TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS rejected_updates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	model_id TEXT NOT NULL,
	provider_id TEXT,
	field TEXT,
	reason TEXT NOT NULL,
	payload TEXT,
	rejected_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rejected_at ON rejected_updates(rejected_at);
CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	model_id TEXT NOT NULL,
	status TEXT NOT NULL,
	severity TEXT NOT NULL,
	alert TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_model ON alerts(model_id, status);
CREATE TABLE IF NOT EXISTS markup (
	scope TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (scope, key)
);
`

// Markup scopes stored in the markup table.
const (
	scopeDefaults = "defaults"
	scopeProvider = "provider"
	scopeModel    = "model"
)

// Store is a SQLite-backed state store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}
	return &Store{db: db, logger: logger.With("component", "store")}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRecord inserts or replaces a cost record.
func (s *Store) SaveRecord(ctx context.Context, rec models.ModelCostRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cost_records (model_id, provider_id, estimated, record, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ModelID, rec.ProviderID, rec.IsEstimated(), string(b), rec.Provenance.LastUpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.ModelID, err)
	}
	return nil
}

// LoadRecords returns every stored cost record ordered by model ID.
func (s *Store) LoadRecords(ctx context.Context) ([]models.ModelCostRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM cost_records ORDER BY model_id`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []models.ModelCostRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var rec models.ModelCostRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveRejection appends a rejected update.
func (s *Store) SaveRejection(ctx context.Context, r models.RejectedUpdate) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rejected_updates (model_id, provider_id, field, reason, payload, rejected_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ModelID, r.ProviderID, r.Field, r.Reason, r.Payload, r.RejectedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save rejection: %w", err)
	}
	return nil
}

// Rejections returns rejected updates since the given time, newest first.
// A non-positive limit means 100.
func (s *Store) Rejections(ctx context.Context, since time.Time, limit int) ([]models.RejectedUpdate, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT model_id, provider_id, field, reason, payload, rejected_at
		FROM rejected_updates WHERE rejected_at >= ?
		ORDER BY rejected_at DESC, id DESC LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query rejections: %w", err)
	}
	defer rows.Close()

	var out []models.RejectedUpdate
	for rows.Next() {
		var r models.RejectedUpdate
		var provider, field, payload sql.NullString
		if err := rows.Scan(&r.ModelID, &provider, &field, &r.Reason, &payload, &r.RejectedAt); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		r.ProviderID = provider.String
		r.Field = field.String
		r.Payload = payload.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneRejections deletes rejected updates older than before.
func (s *Store) PruneRejections(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rejected_updates WHERE rejected_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune rejections: %w", err)
	}
	return res.RowsAffected()
}

// SaveAlert inserts or replaces an alert.
func (s *Store) SaveAlert(ctx context.Context, a models.EstimatedCostAlert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO alerts (id, model_id, status, severity, alert, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ModelID, string(a.Status), string(a.Severity), string(b), a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save alert %s: %w", a.ID, err)
	}
	return nil
}

// LoadAlerts returns every stored alert, oldest first.
func (s *Store) LoadAlerts(ctx context.Context) ([]models.EstimatedCostAlert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT alert FROM alerts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []models.EstimatedCostAlert
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		var a models.EstimatedCostAlert
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveMarkup replaces the stored markup configuration.
func (s *Store) SaveMarkup(ctx context.Context, cfg models.MarkupConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin markup tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM markup`); err != nil {
		return fmt.Errorf("clear markup: %w", err)
	}
	put := func(scope, key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO markup (scope, key, value) VALUES (?, ?, ?)`, scope, key, string(b))
		return err
	}
	if err := put(scopeDefaults, "", cfg.Defaults); err != nil {
		return fmt.Errorf("save markup defaults: %w", err)
	}
	for id, o := range cfg.ProviderOverrides {
		if err := put(scopeProvider, id, o); err != nil {
			return fmt.Errorf("save provider override %s: %w", id, err)
		}
	}
	for id, o := range cfg.ModelOverrides {
		if err := put(scopeModel, id, o); err != nil {
			return fmt.Errorf("save model override %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// LoadMarkup returns the stored markup configuration. ok is false when
// nothing has been saved yet.
func (s *Store) LoadMarkup(ctx context.Context) (cfg models.MarkupConfig, ok bool, err error) {
	rows, err := s.db.QueryContext(ctx, `SELECT scope, key, value FROM markup`)
	if err != nil {
		return cfg, false, fmt.Errorf("query markup: %w", err)
	}
	defer rows.Close()

	cfg.ProviderOverrides = make(map[string]models.ProviderMarkupOverride)
	cfg.ModelOverrides = make(map[string]models.ModelMarkupOverride)
	for rows.Next() {
		var scope, key, raw string
		if err := rows.Scan(&scope, &key, &raw); err != nil {
			return cfg, false, fmt.Errorf("scan markup: %w", err)
		}
		switch scope {
		case scopeDefaults:
			err = json.Unmarshal([]byte(raw), &cfg.Defaults)
			ok = true
		case scopeProvider:
			var o models.ProviderMarkupOverride
			err = json.Unmarshal([]byte(raw), &o)
			cfg.ProviderOverrides[key] = o
		case scopeModel:
			var o models.ModelMarkupOverride
			err = json.Unmarshal([]byte(raw), &o)
			cfg.ModelOverrides[key] = o
		default:
			err = errors.New("unknown scope " + scope)
		}
		if err != nil {
			return cfg, false, fmt.Errorf("decode markup %s/%s: %w", scope, key, err)
		}
	}
	return cfg, ok, rows.Err()
}

// RecordChanged implements catalog.Observer.
func (s *Store) RecordChanged(ctx context.Context, _ *models.ModelCostRecord, cur models.ModelCostRecord) {
	if err := s.SaveRecord(ctx, cur); err != nil {
		s.logger.ErrorContext(ctx, "persisting record", "model", cur.ModelID, "error", err)
	}
}

// UpdateRejected implements catalog.Observer.
func (s *Store) UpdateRejected(ctx context.Context, r models.RejectedUpdate) {
	if err := s.SaveRejection(ctx, r); err != nil {
		s.logger.ErrorContext(ctx, "persisting rejection", "model", r.ModelID, "error", err)
	}
}

// Notify implements alerts.Notifier.
func (s *Store) Notify(ctx context.Context, ev alerts.Event) {
	if err := s.SaveAlert(ctx, ev.Alert); err != nil {
		s.logger.ErrorContext(ctx, "persisting alert", "alert", ev.Alert.ID, "error", err)
	}
}
