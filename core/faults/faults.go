package faults

import (
	"errors"
	"fmt"
)

// Kind buckets every failure an engine entry point can return. Callers
// branch on the kind, never on message text.
type Kind string

const (
	KindValidation Kind = "validation_failed"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindTransient  Kind = "transient"
)

// Conflict reason codes. Clients refetch on any of these; AlreadyDecided is
// success-equivalent when the resulting state matches the caller's intent.
const (
	ReasonAlreadyOfficial = "already_official"
	ReasonAlreadyDecided  = "already_decided"
	ReasonCrossRaceMerge  = "cross_race_merge"
	ReasonEmpty           = "empty"
	ReasonNotOfficial     = "not_official"
)

type Fault struct {
	Kind   Kind
	Reason string
	msg    string
	cause  error
}

func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.msg, f.cause)
	}
	if f.msg == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.msg)
}

func (f *Fault) Unwrap() error { return f.cause }

// Code is the wire error code: the conflict reason when present, the kind
// otherwise.
func (f *Fault) Code() string {
	if f.Reason != "" {
		return f.Reason
	}
	return string(f.Kind)
}

func Validation(format string, args ...any) error {
	return &Fault{Kind: KindValidation, msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Fault{Kind: KindNotFound, msg: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Fault{Kind: KindForbidden, msg: fmt.Sprintf(format, args...)}
}

func Conflict(reason, format string, args ...any) error {
	return &Fault{Kind: KindConflict, Reason: reason, msg: fmt.Sprintf(format, args...)}
}

// Transient wraps storage-level failures that are safe to retry with
// backoff. CreateReport retries are additionally guarded by the client
// idempotency token.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Kind: KindTransient, msg: "storage unavailable", cause: err}
}

func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

func ReasonOf(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Reason
	}
	return ""
}

func Is(err error, kind Kind) bool { return KindOf(err) == kind }
