package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportReviewed ReportStatus = "reviewed"
	ReportStale    ReportStatus = "stale"
	ReportArchived ReportStatus = "archived"
)

type Report struct {
	ID              int64        `json:"id"`
	ClientToken     string       `json:"client_token"`
	RaceID          int64        `json:"race_id"`
	IncidentID      int64        `json:"incident_id"`
	LocationID      string       `json:"location_id,omitempty"`
	ReporterID      int64        `json:"reporter_id"`
	BibNumber       int          `json:"bib_number"`
	AthletePosition *int         `json:"athlete_position,omitempty"`
	Description     string       `json:"description,omitempty"`
	MediaKeys       []string     `json:"media_keys,omitempty"`
	Status          ReportStatus `json:"status"`
	StaleAt         time.Time    `json:"stale_at"`
	CreatedAt       time.Time    `json:"created_at"`
}

// StaleBatch groups one sweep's demoted reports per race so the hub emits
// a single event per race instead of one per row.
type StaleBatch struct {
	RaceID    int64
	ReportIDs []int64
}

type ReportsStore interface {
	Get(ctx context.Context, id int64) (*Report, error)
	GetByClientToken(ctx context.Context, token string) (*Report, error)
	ListByIncident(ctx context.Context, incidentID int64) ([]Report, error)

	// CreateWithNewIncident inserts a fresh incident and the report
	// referencing it in one transaction. The report is never persisted
	// without an incident.
	CreateWithNewIncident(ctx context.Context, rep *Report) (*Incident, error)

	// CreateInIncident attaches the report to an existing incident and
	// bumps its count, validating same-race inside the transaction.
	CreateInIncident(ctx context.Context, rep *Report, incidentID int64) (*Incident, error)

	// MarkStale demotes every pending report past its stale_at in one
	// bulk statement and returns the demoted ids grouped per race.
	MarkStale(ctx context.Context, now time.Time) ([]StaleBatch, error)

	// SetStatus applies a viewer-side annotation guarded by the allowed
	// current statuses; zero rows affected surfaces as ErrConflict.
	SetStatus(ctx context.Context, id int64, to ReportStatus, allowedFrom ...ReportStatus) (*Report, error)
}

type reportsStore struct {
	db *sql.DB
	d  dialect
}

func NewReportsStore(db *sql.DB, driver string) ReportsStore {
	return &reportsStore{db: db, d: newDialect(driver)}
}

const reportCols = `id, client_token, race_id, incident_id, location_id, reporter_id, bib_number, athlete_position, description, status, stale_at, created_at`

func (s *reportsStore) Get(ctx context.Context, id int64) (*Report, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+reportCols+` FROM reports WHERE id=?`), id)
	rep, err := scanReport(row)
	if err != nil || rep == nil {
		return rep, err
	}
	if err := s.loadMedia(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

func (s *reportsStore) GetByClientToken(ctx context.Context, token string) (*Report, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+reportCols+` FROM reports WHERE client_token=?`), token)
	rep, err := scanReport(row)
	if err != nil || rep == nil {
		return rep, err
	}
	if err := s.loadMedia(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

func (s *reportsStore) ListByIncident(ctx context.Context, incidentID int64) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT `+reportCols+` FROM reports WHERE incident_id=? ORDER BY created_at ASC, id ASC`), incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Report
	for rows.Next() {
		var rep Report
		if err := scanReportFields(rows, &rep); err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if err := s.loadMedia(ctx, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *reportsStore) CreateWithNewIncident(ctx context.Context, rep *Report) (*Incident, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	now := time.Now().UTC()
	incidentID, err := s.insertIncidentTx(ctx, tx, rep, now)
	if err != nil {
		return nil, err
	}
	if err := s.insertReportTx(ctx, tx, rep, incidentID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+incidentCols+` FROM incidents WHERE id=?`), incidentID)
	return scanIncident(row)
}

func (s *reportsStore) CreateInIncident(ctx context.Context, rep *Report, incidentID int64) (*Incident, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	var raceID int64
	if err := tx.QueryRowContext(ctx, s.d.rebind(s.d.forUpdate(`SELECT race_id FROM incidents WHERE id=?`)), incidentID).Scan(&raceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if raceID != rep.RaceID {
		return nil, ErrCrossRace
	}
	now := time.Now().UTC()
	if err := s.insertReportTx(ctx, tx, rep, incidentID, now); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, s.d.rebind(`UPDATE incidents SET report_count=report_count+1, updated_at=? WHERE id=?`), now, incidentID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+incidentCols+` FROM incidents WHERE id=?`), incidentID)
	return scanIncident(row)
}

func (s *reportsStore) insertIncidentTx(ctx context.Context, tx *sql.Tx, rep *Report, now time.Time) (int64, error) {
	if s.d.driver == DriverPostgres {
		var id int64
		err := tx.QueryRowContext(ctx, s.d.rebind(`
			INSERT INTO incidents(race_id, location_id, status, decision, report_count, created_at, updated_at)
			VALUES(?,?,?,?,1,?,?) RETURNING id`),
			rep.RaceID, nullableText(rep.LocationID), IncidentUnofficial, DecisionPending, now, now).Scan(&id)
		return id, err
	}
	res, err := tx.ExecContext(ctx, s.d.rebind(`
		INSERT INTO incidents(race_id, location_id, status, decision, report_count, created_at, updated_at)
		VALUES(?,?,?,?,1,?,?)`),
		rep.RaceID, nullableText(rep.LocationID), IncidentUnofficial, DecisionPending, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *reportsStore) insertReportTx(ctx context.Context, tx *sql.Tx, rep *Report, incidentID int64, now time.Time) error {
	rep.IncidentID = incidentID
	rep.Status = ReportPending
	rep.CreatedAt = now
	if rep.StaleAt.IsZero() {
		rep.StaleAt = now.Add(5 * time.Minute)
	}
	var pos any
	if rep.AthletePosition != nil {
		pos = *rep.AthletePosition
	}
	if s.d.driver == DriverPostgres {
		if err := tx.QueryRowContext(ctx, s.d.rebind(`
			INSERT INTO reports(client_token, race_id, incident_id, location_id, reporter_id, bib_number, athlete_position, description, status, stale_at, created_at)
			VALUES(?,?,?,?,?,?,?,?,?,?,?) RETURNING id`),
			rep.ClientToken, rep.RaceID, incidentID, nullableText(rep.LocationID), rep.ReporterID, rep.BibNumber, pos, rep.Description, rep.Status, rep.StaleAt, now).Scan(&rep.ID); err != nil {
			return err
		}
	} else {
		res, err := tx.ExecContext(ctx, s.d.rebind(`
			INSERT INTO reports(client_token, race_id, incident_id, location_id, reporter_id, bib_number, athlete_position, description, status, stale_at, created_at)
			VALUES(?,?,?,?,?,?,?,?,?,?,?)`),
			rep.ClientToken, rep.RaceID, incidentID, nullableText(rep.LocationID), rep.ReporterID, rep.BibNumber, pos, rep.Description, rep.Status, rep.StaleAt, now)
		if err != nil {
			return err
		}
		rep.ID, _ = res.LastInsertId()
	}
	for _, key := range rep.MediaKeys {
		if _, err := tx.ExecContext(ctx, s.d.rebind(`INSERT INTO report_media(report_id, storage_key) VALUES(?,?)`), rep.ID, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *reportsStore) MarkStale(ctx context.Context, now time.Time) ([]StaleBatch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	rows, err := tx.QueryContext(ctx, s.d.rebind(`
		SELECT id, race_id FROM reports WHERE status=? AND stale_at <= ? ORDER BY race_id ASC, id ASC`),
		ReportPending, now.UTC())
	if err != nil {
		return nil, err
	}
	byRace := map[int64][]int64{}
	var raceOrder []int64
	for rows.Next() {
		var id, raceID int64
		if err := rows.Scan(&id, &raceID); err != nil {
			rows.Close()
			return nil, err
		}
		if _, ok := byRace[raceID]; !ok {
			raceOrder = append(raceOrder, raceID)
		}
		byRace[raceID] = append(byRace[raceID], id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(byRace) == 0 {
		return nil, tx.Commit()
	}
	// Same guard as the select: rows a human already acted on stay put.
	if _, err := tx.ExecContext(ctx, s.d.rebind(`
		UPDATE reports SET status=? WHERE status=? AND stale_at <= ?`),
		ReportStale, ReportPending, now.UTC()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	batches := make([]StaleBatch, 0, len(raceOrder))
	for _, raceID := range raceOrder {
		batches = append(batches, StaleBatch{RaceID: raceID, ReportIDs: byRace[raceID]})
	}
	return batches, nil
}

func (s *reportsStore) SetStatus(ctx context.Context, id int64, to ReportStatus, allowedFrom ...ReportStatus) (*Report, error) {
	query := `UPDATE reports SET status=? WHERE id=?`
	args := []any{to, id}
	if len(allowedFrom) > 0 {
		query += ` AND status IN (`
		for i, from := range allowedFrom {
			if i > 0 {
				query += `,`
			}
			query += `?`
			args = append(args, from)
		}
		query += `)`
	}
	res, err := s.db.ExecContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrConflict
	}
	return s.Get(ctx, id)
}

func (s *reportsStore) loadMedia(ctx context.Context, rep *Report) error {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`SELECT storage_key FROM report_media WHERE report_id=? ORDER BY id ASC`), rep.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	rep.MediaKeys = nil
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		rep.MediaKeys = append(rep.MediaKeys, key)
	}
	return rows.Err()
}

func nullableText(v string) any {
	if v == "" {
		return nil
	}
	return v
}

type reportScanner interface {
	Scan(dest ...any) error
}

func scanReportFields(row reportScanner, rep *Report) error {
	var location sql.NullString
	var pos sql.NullInt64
	if err := row.Scan(&rep.ID, &rep.ClientToken, &rep.RaceID, &rep.IncidentID, &location, &rep.ReporterID, &rep.BibNumber, &pos, &rep.Description, &rep.Status, &rep.StaleAt, &rep.CreatedAt); err != nil {
		return err
	}
	if location.Valid {
		rep.LocationID = location.String
	}
	if pos.Valid {
		p := int(pos.Int64)
		rep.AthletePosition = &p
	}
	return nil
}

func scanReport(row *sql.Row) (*Report, error) {
	var rep Report
	if err := scanReportFields(row, &rep); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rep, nil
}
