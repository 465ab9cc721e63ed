package database

import (
	"time"

	"github.com/kbukum/playurl/access"
)

// Track is a row of the tracks table.
type Track struct {
	ID         string `gorm:"primaryKey"`
	OwnerID    string `gorm:"not null"`
	ObjectKey  string `gorm:"not null;index"`
	Visibility string `gorm:"not null;default:private"`
	Status     string `gorm:"not null;default:active"`
	DeletedAt  *time.Time
	PurgedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Record converts the row to the access view.
func (t Track) Record() access.Record {
	r := access.Record{
		ResourceID: t.ID,
		OwnerID:    t.OwnerID,
		ObjectKey:  t.ObjectKey,
		Visibility: access.Visibility(t.Visibility),
		State:      access.State(t.Status),
	}
	if t.DeletedAt != nil {
		r.DeletedAt = t.DeletedAt.UTC()
	}
	return r
}

// TrackGrant delegates an action on a track to another user.
type TrackGrant struct {
	TrackID   string `gorm:"primaryKey"`
	GranteeID string `gorm:"primaryKey"`
	Action    string `gorm:"primaryKey"`
	CreatedAt time.Time
}
