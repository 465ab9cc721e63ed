package access

import (
	"context"
	"fmt"

	"github.com/kbukum/playurl/logger"
)

// Gate evaluates access decisions against a RecordStore.
type Gate struct {
	store RecordStore
	log   *logger.Logger
}

// NewGate creates a Gate.
func NewGate(store RecordStore, log *logger.Logger) *Gate {
	return &Gate{store: store, log: log.WithComponent("access")}
}

// Check decides whether callerID may perform action on resourceID. Store
// failures are returned as errors and never turned into a decision.
func (g *Gate) Check(ctx context.Context, callerID, resourceID string, action Action) (Decision, error) {
	rec, found, err := g.store.GetOwner(ctx, resourceID)
	if err != nil {
		return Decision{}, fmt.Errorf("load track %s: %w", resourceID, err)
	}
	if !found || !rec.Live() {
		return g.deny(ctx, callerID, resourceID, action, ReasonNotFound), nil
	}

	allowed, err := g.permits(ctx, rec, callerID, action)
	if err != nil {
		return Decision{}, err
	}
	if !allowed {
		return g.deny(ctx, callerID, resourceID, action, ReasonForbidden), nil
	}
	return Decision{Allowed: true, Reason: ReasonNone, Record: rec}, nil
}

func (g *Gate) permits(ctx context.Context, rec Record, callerID string, action Action) (bool, error) {
	if callerID != "" && rec.OwnerID == callerID {
		return true, nil
	}
	if action == ActionRead && rec.Visibility == VisibilityPublic {
		return true, nil
	}
	if callerID == "" {
		return false, nil
	}
	ok, err := g.store.HasGrant(ctx, rec.ResourceID, callerID, action)
	if err != nil {
		return false, fmt.Errorf("load grant %s/%s: %w", rec.ResourceID, callerID, err)
	}
	return ok, nil
}

func (g *Gate) deny(ctx context.Context, callerID, resourceID string, action Action, reason Reason) Decision {
	g.log.WithContext(ctx).Warn("Access denied", logger.Fields(
		logger.FieldResourceID, resourceID,
		logger.FieldCallerID, callerID,
		logger.FieldOperation, string(action),
		logger.FieldReason, string(reason),
	))
	return Decision{Allowed: false, Reason: reason}
}
