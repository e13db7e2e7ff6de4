package writer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// Schema creates the history tables when they do not exist
const Schema = `
CREATE TABLE IF NOT EXISTS ev_snapshots (
	id            BIGSERIAL PRIMARY KEY,
	record_id     UUID NOT NULL UNIQUE,
	event_id      TEXT NOT NULL,
	home_team     TEXT NOT NULL,
	away_team     TEXT NOT NULL,
	league        TEXT,
	alert_old     TEXT,
	alert_new     TEXT,
	alert_nvp     TEXT,
	alert_arrival TIMESTAMPTZ NOT NULL,
	recorded_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ev_opportunities (
	id           BIGSERIAL PRIMARY KEY,
	snapshot_id  BIGINT NOT NULL REFERENCES ev_snapshots(id) ON DELETE CASCADE,
	market       TEXT NOT NULL,
	selection    TEXT NOT NULL,
	line         DOUBLE PRECISION,
	target_price TEXT NOT NULL,
	fair_decimal NUMERIC(12, 6) NOT NULL,
	fair_american TEXT NOT NULL,
	ev           DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ev_snapshots_event ON ev_snapshots(event_id, recorded_at);
`

// HistoryWriter records positive-EV evaluations in Postgres
type HistoryWriter struct {
	db  *sql.DB
	now func() time.Time
}

// Connect opens and pings a Postgres connection
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

// NewHistoryWriter creates a new history writer
func NewHistoryWriter(db *sql.DB) *HistoryWriter {
	return &HistoryWriter{
		db:  db,
		now: time.Now,
	}
}

// EnsureSchema creates the history tables
func (w *HistoryWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RecordOpportunities writes the snapshot header and each positive-EV market
// in one transaction. Snapshots without positive markets are ignored.
func (w *HistoryWriter) RecordOpportunities(ctx context.Context, snapshot *models.EventSnapshot) error {
	positive := PositiveMarkets(snapshot)
	if len(positive) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback if commit doesn't happen

	snapshotQuery := `
		INSERT INTO ev_snapshots (
			record_id, event_id, home_team, away_team, league,
			alert_old, alert_new, alert_nvp, alert_arrival, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	var snapshotID int64
	err = tx.QueryRowContext(
		ctx,
		snapshotQuery,
		uuid.New(),
		snapshot.EventID,
		snapshot.HomeTeam,
		snapshot.AwayTeam,
		snapshot.League,
		snapshot.LastAlert.OldOdds,
		snapshot.LastAlert.NewOdds,
		snapshot.LastAlert.NoVigPrice,
		snapshot.AlertArrivalTime,
		w.now(),
	).Scan(&snapshotID)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	marketQuery := `
		INSERT INTO ev_opportunities (
			snapshot_id, market, selection, line, target_price,
			fair_decimal, fair_american, ev
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, m := range positive {
		_, err = tx.ExecContext(
			ctx,
			marketQuery,
			snapshotID,
			string(m.Market),
			string(m.Selection),
			m.Line,
			m.TargetPrice,
			m.ReferenceFairPrice.Decimal,
			m.ReferenceFairPrice.American,
			m.EV,
		)
		if err != nil {
			return fmt.Errorf("failed to insert opportunity market: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// PositiveMarkets returns the evaluations with EV above zero
func PositiveMarkets(snapshot *models.EventSnapshot) []models.MarketEvaluation {
	if snapshot == nil {
		return nil
	}
	var out []models.MarketEvaluation
	for _, m := range snapshot.Markets {
		if m.EV > 0 {
			out = append(out, m)
		}
	}
	return out
}
