package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := OpenSQLite("sqlite://" + path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	events := []Event{
		{Type: EventStart, OccurredAt: time.Now(), Name: "web", PID: 100},
		{Type: EventCrash, OccurredAt: time.Now(), Name: "web", PID: 100},
		{Type: EventRestart, OccurredAt: time.Now(), Name: "web", PID: 200},
		{Type: EventStop, OccurredAt: time.Now(), Name: "web", PID: 200},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send %s: %v", e.Type, err)
		}
	}

	var n int
	if err := sink.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM service_history WHERE name = ?`, "web").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != len(events) {
		t.Fatalf("expected %d rows, got %d", len(events), n)
	}
	var ev string
	if err := sink.db.QueryRowContext(ctx, `SELECT event FROM service_history WHERE pid = 200 ORDER BY rowid LIMIT 1`).Scan(&ev); err != nil {
		t.Fatalf("select: %v", err)
	}
	if ev != string(EventRestart) {
		t.Fatalf("expected restart event, got %q", ev)
	}
}

func TestOpenSQLiteEmptyDSN(t *testing.T) {
	if _, err := OpenSQLite("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
