// Package postgres implements the audit store on PostgreSQL for long
// retention. The expected table is defined by Schema; migrations are
// managed by the operator, not the store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "calibra/pkg/platform/audit"
	txcontext "calibra/pkg/platform/tx"
)

// Schema is the DDL the store expects. Tests apply it directly;
// deployments carry it in their migration pipeline.
const Schema = `
CREATE TABLE IF NOT EXISTS calibration_audit (
    id               UUID PRIMARY KEY,
    category         TEXT NOT NULL,
    timestamp        TIMESTAMPTZ NOT NULL,
    action           TEXT NOT NULL,
    method_id        TEXT NOT NULL,
    role             TEXT NOT NULL DEFAULT '',
    certificate_id   TEXT NOT NULL DEFAULT '',
    formula_version  TEXT NOT NULL DEFAULT '',
    final_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
    active_layers    TEXT[] NOT NULL DEFAULT '{}',
    request_id       TEXT NOT NULL DEFAULT '',
    reason           TEXT NOT NULL DEFAULT '',
    detail           JSONB
);
CREATE INDEX IF NOT EXISTS calibration_audit_method_idx ON calibration_audit (method_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS calibration_audit_ts_idx ON calibration_audit (timestamp DESC);
`

// Store implements audit.Store on a PostgreSQL table.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execer joins a caller-managed transaction when one is carried in context.
func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts one audit event.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	var detail []byte
	if len(event.Detail) > 0 {
		var err error
		detail, err = json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
	}

	query := `
		INSERT INTO calibration_audit (
			id, category, timestamp, action, method_id, role,
			certificate_id, formula_version, final_score,
			active_layers, request_id, reason, detail
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		string(event.Category),
		event.Timestamp,
		event.Action,
		event.MethodID,
		event.Role,
		event.CertificateID,
		event.FormulaVersion,
		event.FinalScore,
		pq.Array(event.ActiveLayers),
		event.RequestID,
		event.Reason,
		detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByMethod returns events for a method, most recent first.
func (s *Store) ListByMethod(ctx context.Context, methodID string) ([]audit.Event, error) {
	query := selectColumns + `
		WHERE method_id = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, methodID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events, most recent first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := selectColumns + `
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Health pings the backing database.
func (s *Store) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("audit postgres ping: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT category, timestamp, action, method_id, role,
	       certificate_id, formula_version, final_score,
	       active_layers, request_id, reason, detail
	FROM calibration_audit
`

// scanEvents scans rows into an audit.Event slice.
func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			event    audit.Event
			category string
			layers   pq.StringArray
			detail   []byte
		)

		err := rows.Scan(
			&category,
			&event.Timestamp,
			&event.Action,
			&event.MethodID,
			&event.Role,
			&event.CertificateID,
			&event.FormulaVersion,
			&event.FinalScore,
			&layers,
			&event.RequestID,
			&event.Reason,
			&detail,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.EventCategory(category)
		event.ActiveLayers = []string(layers)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &event.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
