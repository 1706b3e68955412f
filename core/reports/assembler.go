// Package reports turns raw trackside observations into persisted reports,
// guaranteeing every report lands inside an incident.
package reports

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"skimo-var/config"
	"skimo-var/core/authz"
	"skimo-var/core/broadcast"
	"skimo-var/core/faults"
	"skimo-var/core/store"
	"skimo-var/core/utils"
)

type Service struct {
	cfg    *config.AppConfig
	store  store.ReportsStore
	authz  authz.Authorizer
	hub    *broadcast.Hub
	logger *utils.Logger
}

func NewService(cfg *config.AppConfig, rs store.ReportsStore, az authz.Authorizer, hub *broadcast.Hub, logger *utils.Logger) *Service {
	return &Service{cfg: cfg, store: rs, authz: az, hub: hub, logger: logger}
}

type CreateReportInput struct {
	RaceID           int64    `json:"race_id"`
	LocationID       string   `json:"location_id,omitempty"`
	BibNumber        int      `json:"bib_number"`
	AthletePosition  *int     `json:"athlete_position,omitempty"`
	Description      string   `json:"description,omitempty"`
	MediaKeys        []string `json:"media_keys,omitempty"`
	TargetIncidentID *int64   `json:"target_incident_id,omitempty"`
	ClientToken      string   `json:"client_token"`
}

// Create persists the observation. When no target incident is given a
// fresh 1:1 incident is created in the same transaction. A repeated client
// token returns the already-persisted report unchanged, with no new row
// and no new broadcast, which is what makes edge-device replay safe.
// Duplicate content under a different token is deliberately allowed;
// deduplication is a human decision made later via merge.
func (s *Service) Create(ctx context.Context, actor authz.Actor, in CreateReportInput) (*store.Report, error) {
	if err := s.authz.Authorize(actor, authz.ActReportCreate, nil); err != nil {
		return nil, err
	}
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	existing, err := s.store.GetByClientToken(ctx, in.ClientToken)
	if err != nil {
		return nil, faults.Transient(err)
	}
	if existing != nil {
		return existing, nil
	}

	rep := &store.Report{
		ClientToken:     in.ClientToken,
		RaceID:          in.RaceID,
		LocationID:      strings.TrimSpace(in.LocationID),
		ReporterID:      actor.ID,
		BibNumber:       in.BibNumber,
		AthletePosition: in.AthletePosition,
		Description:     strings.TrimSpace(in.Description),
		MediaKeys:       in.MediaKeys,
		StaleAt:         time.Now().UTC().Add(s.cfg.EffectiveStaleGrace()),
	}

	if in.TargetIncidentID == nil {
		if _, err := s.store.CreateWithNewIncident(ctx, rep); err != nil {
			return s.recoverTokenRace(ctx, in.ClientToken, err)
		}
	} else {
		_, err := s.store.CreateInIncident(ctx, rep, *in.TargetIncidentID)
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrCrossRace):
			return nil, faults.NotFound("incident %d not found in race %d", *in.TargetIncidentID, in.RaceID)
		case err != nil:
			return s.recoverTokenRace(ctx, in.ClientToken, err)
		}
	}

	s.hub.Publish(rep.RaceID, broadcast.Event{Type: broadcast.EventReportCreated, Report: rep})
	if s.logger != nil {
		s.logger.Printf("REPORT created id=%d race=%d incident=%d bib=%d", rep.ID, rep.RaceID, rep.IncidentID, rep.BibNumber)
	}
	return rep, nil
}

// recoverTokenRace handles two identical creations racing: the loser hits
// the unique client_token constraint, so the winner's row is the answer.
func (s *Service) recoverTokenRace(ctx context.Context, token string, cause error) (*store.Report, error) {
	existing, err := s.store.GetByClientToken(ctx, token)
	if err == nil && existing != nil {
		return existing, nil
	}
	return nil, faults.Transient(cause)
}

// Review marks a report as seen by a viewing client. Terminal side
// annotation; it never moves a report back to pending.
func (s *Service) Review(ctx context.Context, actor authz.Actor, reportID int64) (*store.Report, error) {
	return s.annotate(ctx, actor, reportID, store.ReportReviewed, store.ReportPending, store.ReportStale)
}

// Archive retires a report from the working view.
func (s *Service) Archive(ctx context.Context, actor authz.Actor, reportID int64) (*store.Report, error) {
	return s.annotate(ctx, actor, reportID, store.ReportArchived, store.ReportPending, store.ReportStale, store.ReportReviewed)
}

func (s *Service) annotate(ctx context.Context, actor authz.Actor, reportID int64, to store.ReportStatus, allowedFrom ...store.ReportStatus) (*store.Report, error) {
	if err := s.authz.Authorize(actor, authz.ActReportAnnotate, reportID); err != nil {
		return nil, err
	}
	rep, err := s.store.SetStatus(ctx, reportID, to, allowedFrom...)
	if errors.Is(err, store.ErrConflict) {
		current, getErr := s.store.Get(ctx, reportID)
		if getErr == nil && current == nil {
			return nil, faults.NotFound("report %d", reportID)
		}
		return nil, faults.Conflict(string(to), "report %d not eligible", reportID)
	}
	if err != nil {
		return nil, faults.Transient(err)
	}
	return rep, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*store.Report, error) {
	rep, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, faults.Transient(err)
	}
	if rep == nil {
		return nil, faults.NotFound("report %d", id)
	}
	return rep, nil
}

func validateCreate(in CreateReportInput) error {
	if in.RaceID <= 0 {
		return faults.Validation("race id is required")
	}
	if in.BibNumber <= 0 {
		return faults.Validation("bib number is required")
	}
	if in.AthletePosition != nil && *in.AthletePosition != 1 && *in.AthletePosition != 2 {
		return faults.Validation("athlete position must be 1 or 2")
	}
	token := strings.TrimSpace(in.ClientToken)
	if token == "" {
		return faults.Validation("client token is required")
	}
	if _, err := uuid.FromString(token); err != nil {
		return faults.Validation("client token must be a uuid")
	}
	return nil
}
