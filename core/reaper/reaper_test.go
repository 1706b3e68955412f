package reaper

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"skimo-var/config"
	"skimo-var/core/broadcast"
	"skimo-var/core/store"
	"skimo-var/core/utils"
)

func setupReaper(t *testing.T) (*Reaper, store.ReportsStore, *broadcast.Hub) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{DBDriver: store.DriverSQLite, DBPath: filepath.Join(dir, "skimo.db")}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, store.DriverSQLite, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	rs := store.NewReportsStore(db, store.DriverSQLite)
	hub := broadcast.NewHub(16, logger)
	return New(config.ReaperConfig{Enabled: true, Spec: "@every 1h"}, rs, hub, logger), rs, hub
}

var reaperTokenSeq int

func seedReport(t *testing.T, rs store.ReportsStore, raceID int64, staleAt time.Time) *store.Report {
	t.Helper()
	reaperTokenSeq++
	rep := &store.Report{
		ClientToken: fmt.Sprintf("10000000-0000-4000-8000-%012d", reaperTokenSeq),
		RaceID:      raceID,
		ReporterID:  1,
		BibNumber:   reaperTokenSeq,
		StaleAt:     staleAt,
	}
	if _, err := rs.CreateWithNewIncident(context.Background(), rep); err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return rep
}

func TestSweepDemotesExpiredPending(t *testing.T) {
	r, rs, hub := setupReaper(t)
	ctx := context.Background()
	now := time.Now().UTC()
	expired := seedReport(t, rs, 1, now.Add(-time.Minute))
	fresh := seedReport(t, rs, 1, now.Add(time.Hour))

	sub := hub.Subscribe(1)
	defer sub.Close()

	if err := r.RunOnce(ctx, now); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, _ := rs.Get(ctx, expired.ID)
	if got.Status != store.ReportStale {
		t.Fatalf("expired report status = %s, want stale", got.Status)
	}
	got, _ = rs.Get(ctx, fresh.ID)
	if got.Status != store.ReportPending {
		t.Fatalf("fresh report status = %s, want pending", got.Status)
	}

	select {
	case ev := <-sub.C:
		if ev.Type != broadcast.EventReportsMarkedStale {
			t.Fatalf("event type = %s", ev.Type)
		}
		if len(ev.Stale.ReportIDs) != 1 || ev.Stale.ReportIDs[0] != expired.ID {
			t.Fatalf("stale payload = %+v", ev.Stale)
		}
	case <-time.After(time.Second):
		t.Fatalf("no stale broadcast")
	}
}

func TestSweepTwiceIsIdempotent(t *testing.T) {
	r, rs, hub := setupReaper(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedReport(t, rs, 1, now.Add(-time.Minute))

	if err := r.RunOnce(ctx, now); err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	sub := hub.Subscribe(1)
	defer sub.Close()
	if err := r.RunOnce(ctx, now); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	select {
	case ev := <-sub.C:
		t.Fatalf("second sweep broadcast %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSweepLeavesAnnotatedReportsAlone(t *testing.T) {
	r, rs, _ := setupReaper(t)
	ctx := context.Background()
	now := time.Now().UTC()
	reviewed := seedReport(t, rs, 1, now.Add(-time.Minute))
	if _, err := rs.SetStatus(ctx, reviewed.ID, store.ReportReviewed, store.ReportPending); err != nil {
		t.Fatalf("review: %v", err)
	}
	archived := seedReport(t, rs, 1, now.Add(-time.Minute))
	if _, err := rs.SetStatus(ctx, archived.ID, store.ReportArchived, store.ReportPending); err != nil {
		t.Fatalf("archive: %v", err)
	}

	if err := r.RunOnce(ctx, now); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got, _ := rs.Get(ctx, reviewed.ID)
	if got.Status != store.ReportReviewed {
		t.Fatalf("reviewed report demoted to %s", got.Status)
	}
	got, _ = rs.Get(ctx, archived.ID)
	if got.Status != store.ReportArchived {
		t.Fatalf("archived report demoted to %s", got.Status)
	}
}

func TestSweepEmitsOneEventPerRace(t *testing.T) {
	r, rs, hub := setupReaper(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedReport(t, rs, 1, now.Add(-time.Minute))
	seedReport(t, rs, 1, now.Add(-time.Minute))
	seedReport(t, rs, 2, now.Add(-time.Minute))

	subA := hub.Subscribe(1)
	defer subA.Close()
	subB := hub.Subscribe(2)
	defer subB.Close()

	if err := r.RunOnce(ctx, now); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	select {
	case ev := <-subA.C:
		if len(ev.Stale.ReportIDs) != 2 {
			t.Fatalf("race 1 payload = %+v", ev.Stale)
		}
	case <-time.After(time.Second):
		t.Fatalf("no race 1 event")
	}
	select {
	case ev := <-subB.C:
		if ev.Stale.RaceID != 2 || len(ev.Stale.ReportIDs) != 1 {
			t.Fatalf("race 2 payload = %+v", ev.Stale)
		}
	case <-time.After(time.Second):
		t.Fatalf("no race 2 event")
	}
	select {
	case ev := <-subA.C:
		t.Fatalf("race 1 got a second event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartAndStopWithSchedule(t *testing.T) {
	r, _, _ := setupReaper(t)
	ctx := context.Background()
	if err := r.StartWithContext(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Second start is a no-op.
	if err := r.StartWithContext(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.StopWithContext(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := r.StopWithContext(stopCtx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
