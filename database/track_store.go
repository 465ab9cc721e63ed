package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kbukum/playurl/access"
	apperrors "github.com/kbukum/playurl/errors"
)

// TrackStore reads and transitions track records.
type TrackStore struct {
	db *DB
}

var _ access.RecordStore = (*TrackStore)(nil)

// NewTrackStore creates a TrackStore on db.
func NewTrackStore(db *DB) *TrackStore {
	return &TrackStore{db: db}
}

// Create inserts a track. Visibility and status default to private and active.
func (s *TrackStore) Create(ctx context.Context, t *Track) error {
	if t.Visibility == "" {
		t.Visibility = string(access.VisibilityPrivate)
	}
	if t.Status == "" {
		t.Status = string(access.StateActive)
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create track %s: %w", t.ID, FromDatabase(err, "track"))
	}
	return nil
}

// Grant allows granteeID to perform action on trackID.
func (s *TrackStore) Grant(ctx context.Context, trackID, granteeID string, action access.Action) error {
	g := TrackGrant{TrackID: trackID, GranteeID: granteeID, Action: string(action)}
	if err := s.db.WithContext(ctx).Where(g).FirstOrCreate(&g).Error; err != nil {
		return fmt.Errorf("grant %s on %s: %w", action, trackID, FromDatabase(err, "grant"))
	}
	return nil
}

// GetOwner loads the record for resourceID in any state.
func (s *TrackStore) GetOwner(ctx context.Context, resourceID string) (access.Record, bool, error) {
	var t Track
	err := s.db.WithContext(ctx).Where("id = ?", resourceID).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return access.Record{}, false, nil
	}
	if err != nil {
		return access.Record{}, false, fmt.Errorf("get track %s: %w", resourceID, FromDatabase(err, "track"))
	}
	return t.Record(), true, nil
}

// HasGrant reports whether callerID holds a grant for action on resourceID.
func (s *TrackStore) HasGrant(ctx context.Context, resourceID, callerID string, action access.Action) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&TrackGrant{}).
		Where("track_id = ? AND grantee_id = ? AND action = ?", resourceID, callerID, string(action)).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check grant on %s: %w", resourceID, FromDatabase(err, "grant"))
	}
	return n > 0, nil
}

// IsObjectReferenced reports whether a live record points at objectKey: an
// active one, or one deleted after graceCutoff and so still inside its grace
// period. Records deleted before the cutoff whose notice never completed do
// not keep the object alive.
func (s *TrackStore) IsObjectReferenced(ctx context.Context, objectKey string, graceCutoff time.Time) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Track{}).
		Where("object_key = ?", objectKey).
		Where("status = ? OR (status = ? AND (deleted_at IS NULL OR deleted_at > ?))",
			string(access.StateActive), string(access.StateDeleted), graceCutoff.UTC()).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check references to %s: %w", objectKey, FromDatabase(err, "track"))
	}
	return n > 0, nil
}

// MarkDeleted logically deletes a live track at the given time and returns
// the updated record. A track that is already deleted or purged is returned
// unchanged, keeping its original deletion time.
func (s *TrackStore) MarkDeleted(ctx context.Context, resourceID string, at time.Time) (access.Record, error) {
	var t Track
	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", resourceID).Take(&t).Error; err != nil {
			return err
		}
		if t.Status != string(access.StateActive) {
			return nil
		}
		at = at.UTC()
		t.Status = string(access.StateDeleted)
		t.DeletedAt = &at
		return tx.Model(&t).Updates(map[string]interface{}{
			"status":     t.Status,
			"deleted_at": at,
		}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return access.Record{}, apperrors.NotFound("track", resourceID)
	}
	if err != nil {
		return access.Record{}, fmt.Errorf("mark track %s deleted: %w", resourceID, FromDatabase(err, "track"))
	}
	return t.Record(), nil
}

// MarkPurged records that the track's object has been physically removed.
// Purging an unknown or already purged track is a no-op.
func (s *TrackStore) MarkPurged(ctx context.Context, resourceID string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&Track{}).
		Where("id = ? AND status <> ?", resourceID, string(access.StatePurged)).
		Updates(map[string]interface{}{
			"status":    string(access.StatePurged),
			"purged_at": at.UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("mark track %s purged: %w", resourceID, FromDatabase(err, "track"))
	}
	return nil
}
