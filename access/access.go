package access

import (
	"context"
	"time"

	apperrors "github.com/kbukum/playurl/errors"
)

// Action is an operation a caller wants to perform on a track.
type Action string

const (
	ActionRead   Action = "read"
	ActionDelete Action = "delete"
)

// State is the lifecycle state of a track record.
type State string

const (
	StateActive  State = "active"
	StateDeleted State = "deleted"
	StatePurged  State = "purged"
)

// Visibility controls who may read a track without a grant.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Record is the authoritative view of a track.
type Record struct {
	ResourceID string
	OwnerID    string
	ObjectKey  string
	Visibility Visibility
	State      State
	DeletedAt  time.Time
}

// Live reports whether the record has not been logically deleted.
func (r Record) Live() bool {
	return r.State == StateActive
}

// RecordStore loads track records and delegated grants.
type RecordStore interface {
	GetOwner(ctx context.Context, resourceID string) (Record, bool, error)
	HasGrant(ctx context.Context, resourceID, callerID string, action Action) (bool, error)
}

// Reason explains a denial.
type Reason string

const (
	ReasonNone      Reason = "none"
	ReasonNotFound  Reason = "not_found"
	ReasonForbidden Reason = "forbidden"
)

// Decision is the outcome of one access check. Record is set whenever the
// track exists and is live.
type Decision struct {
	Allowed bool
	Reason  Reason
	Record  Record
}

// Err converts a denial into the AppError a caller should see. With
// hideForbidden set, Forbidden is reported as NotFound so the existence of
// other users' tracks does not leak.
func (d Decision) Err(resourceID string, hideForbidden bool) error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == ReasonForbidden && !hideForbidden:
		return apperrors.Forbidden("You do not have access to this track.").
			WithDetail("resource_id", resourceID)
	default:
		return apperrors.NotFound("track", resourceID)
	}
}
