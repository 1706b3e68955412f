package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// RosterEntry is a race-scoped bib row. The external batch importer upserts
// these before a race; the core only reads them.
type RosterEntry struct {
	RaceID          int64     `json:"race_id"`
	BibNumber       int       `json:"bib_number"`
	AthletePosition int       `json:"athlete_position"` // 0 solo, 1 or 2 in paired events
	DisplayName     string    `json:"display_name"`
	TeamName        string    `json:"team_name,omitempty"`
	Gender          string    `json:"gender,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type RosterStore interface {
	Upsert(ctx context.Context, entries []RosterEntry) error
	ResolveBib(ctx context.Context, raceID int64, bibNumber, athletePosition int) (*RosterEntry, error)
}

type rosterStore struct {
	db *sql.DB
	d  dialect
}

func NewRosterStore(db *sql.DB, driver string) RosterStore {
	return &rosterStore{db: db, d: newDialect(driver)}
}

func (s *rosterStore) Upsert(ctx context.Context, entries []RosterEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now().UTC()
	query := s.d.rebind(`
		INSERT INTO roster(race_id, bib_number, athlete_position, display_name, team_name, gender, updated_at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT (race_id, bib_number, athlete_position)
		DO UPDATE SET display_name=excluded.display_name, team_name=excluded.team_name, gender=excluded.gender, updated_at=excluded.updated_at`)
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query, e.RaceID, e.BibNumber, e.AthletePosition, e.DisplayName, e.TeamName, e.Gender, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *rosterStore) ResolveBib(ctx context.Context, raceID int64, bibNumber, athletePosition int) (*RosterEntry, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`
		SELECT race_id, bib_number, athlete_position, display_name, team_name, gender, updated_at
		FROM roster WHERE race_id=? AND bib_number=? AND athlete_position=?`),
		raceID, bibNumber, athletePosition)
	var e RosterEntry
	if err := row.Scan(&e.RaceID, &e.BibNumber, &e.AthletePosition, &e.DisplayName, &e.TeamName, &e.Gender, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
