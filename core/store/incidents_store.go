package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"
)

var (
	ErrConflict  = errors.New("conflict")
	ErrNotFound  = errors.New("not found")
	ErrCrossRace = errors.New("cross-race")
)

type IncidentStatus string

const (
	IncidentUnofficial IncidentStatus = "unofficial"
	IncidentOfficial   IncidentStatus = "official"
)

type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApplied  Decision = "applied"
	DecisionDeclined Decision = "declined"
	DecisionNoAction Decision = "no_action"
)

type Incident struct {
	ID             int64          `json:"id"`
	RaceID         int64          `json:"race_id"`
	LocationID     string         `json:"location_id,omitempty"`
	Status         IncidentStatus `json:"status"`
	Decision       Decision       `json:"decision"`
	ReportCount    int            `json:"report_count"`
	OfficializedBy *int64         `json:"officialized_by,omitempty"`
	OfficializedAt *time.Time     `json:"officialized_at,omitempty"`
	DecidedBy      *int64         `json:"decided_by,omitempty"`
	DecidedAt      *time.Time     `json:"decided_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type IncidentsStore interface {
	Get(ctx context.Context, id int64) (*Incident, error)
	ListByRace(ctx context.Context, raceID int64) ([]Incident, error)

	// Officialize flips unofficial→official when at least one report is
	// attached. Zero rows affected surfaces as ErrConflict; the caller
	// refetches to diagnose.
	Officialize(ctx context.Context, id, actorID int64) (*Incident, error)

	// Decide sets the decision in a single conditional update so that
	// concurrent calls race safely and exactly one wins.
	Decide(ctx context.Context, id, actorID int64, decision Decision) (*Incident, error)

	// Merge reassigns every report in the source incidents to the target,
	// recomputes the target's count from the rows, deletes the emptied
	// sources and records the merge audit rows. All-or-nothing.
	Merge(ctx context.Context, targetID int64, sourceIDs []int64, actorID int64) (*Incident, []int64, error)

	CountReports(ctx context.Context, incidentID int64) (int, error)
	ListMerges(ctx context.Context, targetID int64) ([]IncidentMerge, error)
}

type IncidentMerge struct {
	ID               int64     `json:"id"`
	SourceIncidentID int64     `json:"source_incident_id"`
	TargetIncidentID int64     `json:"target_incident_id"`
	MergedBy         int64     `json:"merged_by"`
	CreatedAt        time.Time `json:"created_at"`
}

type incidentsStore struct {
	db *sql.DB
	d  dialect
}

func NewIncidentsStore(db *sql.DB, driver string) IncidentsStore {
	return &incidentsStore{db: db, d: newDialect(driver)}
}

const incidentCols = `id, race_id, location_id, status, decision, report_count, officialized_by, officialized_at, decided_by, decided_at, created_at, updated_at`

func (s *incidentsStore) Get(ctx context.Context, id int64) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+incidentCols+` FROM incidents WHERE id=?`), id)
	return scanIncident(row)
}

func (s *incidentsStore) ListByRace(ctx context.Context, raceID int64) ([]Incident, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT `+incidentCols+` FROM incidents WHERE race_id=? ORDER BY created_at DESC, id DESC`), raceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Incident
	for rows.Next() {
		inc, err := scanIncidentRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inc)
	}
	return res, rows.Err()
}

func (s *incidentsStore) Officialize(ctx context.Context, id, actorID int64) (*Incident, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.d.rebind(`
		UPDATE incidents SET status=?, officialized_by=?, officialized_at=?, updated_at=?
		WHERE id=? AND status=? AND report_count > 0`),
		IncidentOfficial, actorID, now, now, id, IncidentUnofficial)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrConflict
	}
	return s.Get(ctx, id)
}

func (s *incidentsStore) Decide(ctx context.Context, id, actorID int64, decision Decision) (*Incident, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.d.rebind(`
		UPDATE incidents SET decision=?, decided_by=?, decided_at=?, updated_at=?
		WHERE id=? AND status=? AND decision=?`),
		decision, actorID, now, now, id, IncidentOfficial, DecisionPending)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrConflict
	}
	return s.Get(ctx, id)
}

func (s *incidentsStore) Merge(ctx context.Context, targetID int64, sourceIDs []int64, actorID int64) (*Incident, []int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	// Lock every involved incident in ascending id order so two
	// overlapping merges cannot deadlock.
	all := append([]int64{targetID}, sourceIDs...)
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	races := make(map[int64]int64, len(all))
	lockQuery := s.d.rebind(s.d.forUpdate(`SELECT race_id FROM incidents WHERE id=?`))
	for _, id := range all {
		var raceID int64
		if err := tx.QueryRowContext(ctx, lockQuery, id).Scan(&raceID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, ErrNotFound
			}
			return nil, nil, err
		}
		races[id] = raceID
	}
	targetRace := races[targetID]
	for _, id := range sourceIDs {
		if races[id] != targetRace {
			return nil, nil, ErrCrossRace
		}
	}

	now := time.Now().UTC()
	for _, src := range sourceIDs {
		if _, err := tx.ExecContext(ctx, s.d.rebind(`UPDATE reports SET incident_id=? WHERE incident_id=?`), targetID, src); err != nil {
			return nil, nil, err
		}
		if _, err := tx.ExecContext(ctx, s.d.rebind(`
			INSERT INTO incident_merges(source_incident_id, target_incident_id, merged_by, created_at)
			VALUES(?,?,?,?)`), src, targetID, actorID, now); err != nil {
			return nil, nil, err
		}
		if _, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM incidents WHERE id=?`), src); err != nil {
			return nil, nil, err
		}
	}

	// The count is recomputed from the rows, never summed from the cached
	// counters, so a previously drifted counter heals here.
	var count int
	if err := tx.QueryRowContext(ctx, s.d.rebind(`SELECT COUNT(*) FROM reports WHERE incident_id=?`), targetID).Scan(&count); err != nil {
		return nil, nil, err
	}
	if _, err := tx.ExecContext(ctx, s.d.rebind(`UPDATE incidents SET report_count=?, updated_at=? WHERE id=?`), count, now, targetID); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	target, err := s.Get(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}
	retired := append([]int64(nil), sourceIDs...)
	return target, retired, nil
}

func (s *incidentsStore) CountReports(ctx context.Context, incidentID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT COUNT(*) FROM reports WHERE incident_id=?`), incidentID).Scan(&count)
	return count, err
}

func (s *incidentsStore) ListMerges(ctx context.Context, targetID int64) ([]IncidentMerge, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT id, source_incident_id, target_incident_id, merged_by, created_at
		FROM incident_merges WHERE target_incident_id=? ORDER BY id ASC`), targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []IncidentMerge
	for rows.Next() {
		var m IncidentMerge
		if err := rows.Scan(&m.ID, &m.SourceIncidentID, &m.TargetIncidentID, &m.MergedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

type incidentScanner interface {
	Scan(dest ...any) error
}

func scanIncidentFields(row incidentScanner, inc *Incident) error {
	var location sql.NullString
	var offBy, decBy sql.NullInt64
	var offAt, decAt sql.NullTime
	if err := row.Scan(&inc.ID, &inc.RaceID, &location, &inc.Status, &inc.Decision, &inc.ReportCount, &offBy, &offAt, &decBy, &decAt, &inc.CreatedAt, &inc.UpdatedAt); err != nil {
		return err
	}
	if location.Valid {
		inc.LocationID = location.String
	}
	if offBy.Valid {
		inc.OfficializedBy = &offBy.Int64
	}
	if offAt.Valid {
		t := offAt.Time
		inc.OfficializedAt = &t
	}
	if decBy.Valid {
		inc.DecidedBy = &decBy.Int64
	}
	if decAt.Valid {
		t := decAt.Time
		inc.DecidedAt = &t
	}
	return nil
}

func scanIncident(row *sql.Row) (*Incident, error) {
	var inc Incident
	if err := scanIncidentFields(row, &inc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &inc, nil
}

func scanIncidentRow(rows *sql.Rows) (Incident, error) {
	var inc Incident
	err := scanIncidentFields(rows, &inc)
	return inc, err
}
