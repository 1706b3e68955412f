// Package roster adapts the externally imported bib roster for lookups.
// The batch importer owns the rows; this core only reads them, and only
// for display (name, gender color coding), never for business rules.
package roster

import (
	"context"

	"skimo-var/core/faults"
	"skimo-var/core/store"
)

// Identity is what a bib resolves to for a given race.
type Identity struct {
	Display string `json:"display"`
	Gender  string `json:"gender,omitempty"`
}

// Lookup resolves a race-scoped bib number, with an athlete position for
// paired events (0 for solo).
type Lookup interface {
	ResolveBib(ctx context.Context, raceID int64, bibNumber, athletePosition int) (*Identity, error)
}

type storeLookup struct {
	roster store.RosterStore
}

func NewLookup(rs store.RosterStore) Lookup {
	return &storeLookup{roster: rs}
}

func (l *storeLookup) ResolveBib(ctx context.Context, raceID int64, bibNumber, athletePosition int) (*Identity, error) {
	entry, err := l.roster.ResolveBib(ctx, raceID, bibNumber, athletePosition)
	if err != nil {
		return nil, faults.Transient(err)
	}
	if entry == nil {
		return nil, faults.NotFound("bib %d in race %d", bibNumber, raceID)
	}
	display := entry.DisplayName
	if entry.TeamName != "" {
		display = entry.TeamName + " / " + entry.DisplayName
	}
	return &Identity{Display: display, Gender: entry.Gender}, nil
}
