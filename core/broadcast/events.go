package broadcast

import "skimo-var/core/store"

type EventType string

const (
	EventReportCreated         EventType = "report.created"
	EventIncidentMerged        EventType = "incident.merged"
	EventIncidentStatusChanged EventType = "incident.status_changed"
	EventReportsMarkedStale    EventType = "reports.marked_stale"
)

// Event is one committed state change fanned out to race subscribers.
// Exactly one payload field is set, matching Type.
type Event struct {
	Type   EventType `json:"type"`
	RaceID int64     `json:"race_id"`

	Report       *store.Report        `json:"report,omitempty"`
	Merged       *MergedPayload       `json:"merged,omitempty"`
	StatusChange *StatusChangePayload `json:"status_change,omitempty"`
	Stale        *StalePayload        `json:"stale,omitempty"`
}

// MergedPayload carries the final target state plus the retired source ids
// so viewers can drop them from their working set without a second fetch.
type MergedPayload struct {
	Target           store.Incident `json:"target"`
	RetiredSourceIDs []int64        `json:"retired_source_ids"`
}

type StatusChangePayload struct {
	Incident   store.Incident `json:"incident"`
	Transition string         `json:"transition"`
}

type StalePayload struct {
	RaceID    int64   `json:"race_id"`
	ReportIDs []int64 `json:"report_ids"`
}
