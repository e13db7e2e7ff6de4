//go:build integration

package writer_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/evaluator"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/writer"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/oddsmath"
)

func TestHistoryWriter_RecordOpportunities(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := writer.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer db.Close()

	w := writer.NewHistoryWriter(db)
	if err := w.EnsureSchema(ctx); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	eventID := "it-" + time.Now().Format("150405.000")
	t.Cleanup(func() {
		db.Exec(`DELETE FROM ev_snapshots WHERE event_id = $1`, eventID)
	})

	snap := &models.EventSnapshot{
		EventID:          eventID,
		HomeTeam:         "Arsenal",
		AwayTeam:         "Chelsea",
		AlertArrivalTime: time.Now(),
		Markets: []models.MarketEvaluation{
			{Market: models.MarketMoneyline, Selection: models.SelectionHome, ReferenceFairPrice: oddsmath.NewPrice(2.0), TargetPrice: "+110", EV: 0.05},
			{Market: models.MarketMoneyline, Selection: models.SelectionAway, ReferenceFairPrice: oddsmath.NewPrice(2.0), TargetPrice: "-120", EV: -0.08},
		},
	}
	snap.HasPositiveEV = evaluator.HasPositiveEV(snap.Markets)

	if err := w.RecordOpportunities(ctx, snap); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var count int
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ev_opportunities o
		JOIN ev_snapshots s ON s.id = o.snapshot_id
		WHERE s.event_id = $1`, eventID).Scan(&count)
	if err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 opportunity row, got %d", count)
	}
}
