// Package incidents owns the case state machine: grouping reports through
// merges and walking the official/decision transitions. No other component
// writes incident status or decision fields.
package incidents

import (
	"context"
	"errors"
	"fmt"

	"skimo-var/core/authz"
	"skimo-var/core/broadcast"
	"skimo-var/core/faults"
	"skimo-var/core/store"
	"skimo-var/core/utils"
)

// DecisionAction is the jury request verb, mapped onto the stored decision.
type DecisionAction string

const (
	ActionApply    DecisionAction = "apply"
	ActionReject   DecisionAction = "reject"
	ActionNoAction DecisionAction = "no_action"
)

func (a DecisionAction) decision() (store.Decision, error) {
	switch a {
	case ActionApply:
		return store.DecisionApplied, nil
	case ActionReject:
		return store.DecisionDeclined, nil
	case ActionNoAction:
		return store.DecisionNoAction, nil
	default:
		return "", faults.Validation("unknown decision action %q", string(a))
	}
}

type Service struct {
	incidents store.IncidentsStore
	reports   store.ReportsStore
	authz     authz.Authorizer
	hub       *broadcast.Hub
	logger    *utils.Logger
}

func NewService(is store.IncidentsStore, rs store.ReportsStore, az authz.Authorizer, hub *broadcast.Hub, logger *utils.Logger) *Service {
	return &Service{incidents: is, reports: rs, authz: az, hub: hub, logger: logger}
}

// Merge moves every report from the source incidents into the target and
// retires the emptied sources. All-or-nothing; sources listed in the event
// so viewers can drop them without a second fetch.
func (s *Service) Merge(ctx context.Context, actor authz.Actor, targetID int64, sourceIDs []int64) (*store.Incident, error) {
	if err := s.authz.Authorize(actor, authz.ActIncidentMerge, targetID); err != nil {
		return nil, err
	}
	sources := dedupeSources(targetID, sourceIDs)
	if targetID <= 0 {
		return nil, faults.Validation("target incident id is required")
	}
	if len(sources) == 0 {
		return nil, faults.Validation("at least one source incident distinct from the target is required")
	}
	target, retired, err := s.incidents.Merge(ctx, targetID, sources, actor.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, faults.NotFound("target or source incident no longer exists")
	case errors.Is(err, store.ErrCrossRace):
		return nil, faults.Conflict(faults.ReasonCrossRaceMerge, "incidents span races")
	case err != nil:
		return nil, faults.Transient(err)
	}
	s.hub.Publish(target.RaceID, broadcast.Event{
		Type:   broadcast.EventIncidentMerged,
		Merged: &broadcast.MergedPayload{Target: *target, RetiredSourceIDs: retired},
	})
	if s.logger != nil {
		s.logger.Printf("INCIDENT merged target=%d sources=%v count=%d", target.ID, retired, target.ReportCount)
	}
	return target, nil
}

// Officialize promotes an unofficial incident carrying at least one report.
func (s *Service) Officialize(ctx context.Context, actor authz.Actor, incidentID int64) (*store.Incident, error) {
	if err := s.authz.Authorize(actor, authz.ActIncidentOfficialize, incidentID); err != nil {
		return nil, err
	}
	inc, err := s.incidents.Officialize(ctx, incidentID, actor.ID)
	if errors.Is(err, store.ErrConflict) {
		return nil, s.diagnoseOfficialize(ctx, incidentID)
	}
	if err != nil {
		return nil, faults.Transient(err)
	}
	s.publishStatusChange(inc, "officialized")
	return inc, nil
}

// Decide applies the jury verdict. The conditional update in the store
// means two concurrent calls race safely: exactly one wins, the loser gets
// AlreadyDecided and should refetch.
func (s *Service) Decide(ctx context.Context, actor authz.Actor, incidentID int64, action DecisionAction) (*store.Incident, error) {
	if err := s.authz.Authorize(actor, authz.ActIncidentDecide, incidentID); err != nil {
		return nil, err
	}
	decision, err := action.decision()
	if err != nil {
		return nil, err
	}
	inc, err := s.incidents.Decide(ctx, incidentID, actor.ID, decision)
	if errors.Is(err, store.ErrConflict) {
		return nil, s.diagnoseDecide(ctx, incidentID)
	}
	if err != nil {
		return nil, faults.Transient(err)
	}
	s.publishStatusChange(inc, fmt.Sprintf("decided:%s", decision))
	return inc, nil
}

// IncidentView is the refetch shape viewers use after a Conflict.
type IncidentView struct {
	Incident store.Incident       `json:"incident"`
	Reports  []store.Report       `json:"reports"`
	Merges   []store.IncidentMerge `json:"merges,omitempty"`
}

func (s *Service) Get(ctx context.Context, incidentID int64) (*IncidentView, error) {
	inc, err := s.incidents.Get(ctx, incidentID)
	if err != nil {
		return nil, faults.Transient(err)
	}
	if inc == nil {
		return nil, faults.NotFound("incident %d", incidentID)
	}
	reps, err := s.reports.ListByIncident(ctx, incidentID)
	if err != nil {
		return nil, faults.Transient(err)
	}
	merges, err := s.incidents.ListMerges(ctx, incidentID)
	if err != nil {
		return nil, faults.Transient(err)
	}
	return &IncidentView{Incident: *inc, Reports: reps, Merges: merges}, nil
}

func (s *Service) ListByRace(ctx context.Context, raceID int64) ([]store.Incident, error) {
	items, err := s.incidents.ListByRace(ctx, raceID)
	if err != nil {
		return nil, faults.Transient(err)
	}
	return items, nil
}

func (s *Service) publishStatusChange(inc *store.Incident, transition string) {
	s.hub.Publish(inc.RaceID, broadcast.Event{
		Type:         broadcast.EventIncidentStatusChanged,
		StatusChange: &broadcast.StatusChangePayload{Incident: *inc, Transition: transition},
	})
	if s.logger != nil {
		s.logger.Printf("INCIDENT %s id=%d race=%d", transition, inc.ID, inc.RaceID)
	}
}

// diagnoseOfficialize decides which conflict the zero-row update was.
func (s *Service) diagnoseOfficialize(ctx context.Context, incidentID int64) error {
	inc, err := s.incidents.Get(ctx, incidentID)
	if err != nil {
		return faults.Transient(err)
	}
	if inc == nil {
		return faults.NotFound("incident %d", incidentID)
	}
	if inc.Status == store.IncidentOfficial {
		return faults.Conflict(faults.ReasonAlreadyOfficial, "incident %d is already official", incidentID)
	}
	return faults.Conflict(faults.ReasonEmpty, "incident %d has no reports", incidentID)
}

func (s *Service) diagnoseDecide(ctx context.Context, incidentID int64) error {
	inc, err := s.incidents.Get(ctx, incidentID)
	if err != nil {
		return faults.Transient(err)
	}
	if inc == nil {
		return faults.NotFound("incident %d", incidentID)
	}
	if inc.Status != store.IncidentOfficial {
		return faults.Conflict(faults.ReasonNotOfficial, "incident %d is not official", incidentID)
	}
	return faults.Conflict(faults.ReasonAlreadyDecided, "incident %d is already decided", incidentID)
}

func dedupeSources(targetID int64, sourceIDs []int64) []int64 {
	seen := map[int64]struct{}{targetID: {}}
	var out []int64
	for _, id := range sourceIDs {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
