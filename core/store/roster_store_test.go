package store

import (
	"context"
	"testing"
)

func TestRosterUpsertAndResolve(t *testing.T) {
	db, _, _ := setupStores(t)
	ctx := context.Background()
	roster := NewRosterStore(db, DriverSQLite)

	entries := []RosterEntry{
		{RaceID: 1, BibNumber: 42, AthletePosition: 0, DisplayName: "Lena Aubert", Gender: "f"},
		{RaceID: 1, BibNumber: 7, AthletePosition: 1, DisplayName: "Marco Villar", TeamName: "Valtellina", Gender: "m"},
		{RaceID: 1, BibNumber: 7, AthletePosition: 2, DisplayName: "Iker Sanz", TeamName: "Valtellina", Gender: "m"},
	}
	if err := roster.Upsert(ctx, entries); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := roster.ResolveBib(ctx, 1, 7, 2)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got == nil || got.DisplayName != "Iker Sanz" || got.TeamName != "Valtellina" {
		t.Fatalf("resolved = %+v", got)
	}

	// Re-import with a corrected name replaces the row.
	if err := roster.Upsert(ctx, []RosterEntry{{RaceID: 1, BibNumber: 42, AthletePosition: 0, DisplayName: "Lena Aubert-Rey", Gender: "f"}}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, err = roster.ResolveBib(ctx, 1, 42, 0)
	if err != nil {
		t.Fatalf("resolve after update: %v", err)
	}
	if got == nil || got.DisplayName != "Lena Aubert-Rey" {
		t.Fatalf("updated entry = %+v", got)
	}

	missing, err := roster.ResolveBib(ctx, 2, 42, 0)
	if err != nil {
		t.Fatalf("resolve missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("wrong-race bib resolved: %+v", missing)
	}
}
