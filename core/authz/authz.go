package authz

import (
	"context"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"

	"skimo-var/core/faults"
)

// Actor is an authenticated caller: a trackside edge device, a VAR
// operator station, or a jury member.
type Actor struct {
	ID   int64
	Name string
	Role string
}

type actorContextKey struct{}

// WithActor attaches the authenticated actor to the request context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFrom extracts the authenticated actor, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	v := ctx.Value(actorContextKey{})
	if v == nil {
		return Actor{}, false
	}
	return v.(Actor), true
}

const (
	RoleEdge     = "edge"
	RoleOperator = "operator"
	RoleJury     = "jury"
)

// Actions checked before any engine mutation.
const (
	ActReportCreate        = "report.create"
	ActReportAnnotate      = "report.annotate"
	ActIncidentMerge       = "incident.merge"
	ActIncidentOfficialize = "incident.officialize"
	ActIncidentDecide      = "incident.decide"
	ActRaceSubscribe       = "race.subscribe"
	ActRosterResolve       = "roster.resolve"
)

// Authorizer answers "may this actor perform this action on this record".
// The record is carried for future row-level policies; the venue policy
// today is role-based.
type Authorizer interface {
	Authorize(actor Actor, action string, record any) error
}

type enforcerAuthorizer struct {
	enforcer *casbin.Enforcer
}

const modelText = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.act == p.act
`

// NewAuthorizer builds the venue policy: edge devices only create, VAR
// operators additionally group and watch, the jury decides.
func NewAuthorizer() (Authorizer, error) {
	m, err := casbinmodel.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	policies := [][]string{
		{RoleEdge, ActReportCreate},
		{RoleEdge, ActRosterResolve},
		{RoleOperator, ActReportCreate},
		{RoleOperator, ActReportAnnotate},
		{RoleOperator, ActIncidentMerge},
		{RoleOperator, ActRaceSubscribe},
		{RoleOperator, ActRosterResolve},
		{RoleJury, ActIncidentOfficialize},
		{RoleJury, ActIncidentDecide},
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p[0], p[1]); err != nil {
			return nil, err
		}
	}
	// Jury inherits everything the operator may do.
	if _, err := e.AddGroupingPolicy(RoleJury, RoleOperator); err != nil {
		return nil, err
	}
	return &enforcerAuthorizer{enforcer: e}, nil
}

func (a *enforcerAuthorizer) Authorize(actor Actor, action string, record any) error {
	ok, err := a.enforcer.Enforce(actor.Role, action)
	if err != nil {
		return err
	}
	if !ok {
		return faults.Forbidden("%s may not %s", actor.Role, action)
	}
	return nil
}
