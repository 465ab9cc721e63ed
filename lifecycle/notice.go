package lifecycle

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kbukum/playurl/validation"
)

// Notice announces that a track was logically deleted.
type Notice struct {
	ResourceID string    `json:"resource_id" validate:"required,resource_id"`
	ObjectKey  string    `json:"object_key"`
	OwnerID    string    `json:"owner_id"`
	DeletedAt  time.Time `json:"deleted_at" validate:"required"`
	// Attempts counts transient handling failures so far.
	Attempts int `json:"attempts,omitempty" validate:"min=0"`
}

// Validate reports a notice that cannot be processed at all.
func (n Notice) Validate() error {
	return validation.Validate(n)
}

// DecodeNotice parses a JSON notice.
func DecodeNotice(b []byte) (Notice, error) {
	var n Notice
	if err := json.Unmarshal(b, &n); err != nil {
		return Notice{}, fmt.Errorf("decode notice: %w", err)
	}
	return n, nil
}

// Encode returns the JSON form used on the wire and in the delay queue.
func (n Notice) Encode() ([]byte, error) {
	return json.Marshal(n)
}

// Disposition is what Handle did with a notice.
type Disposition string

const (
	// Deferred means the grace period has not elapsed; redeliver at Until.
	Deferred Disposition = "deferred"
	// Processed means the object was removed and the record purged.
	Processed Disposition = "processed"
	// Skipped means there was nothing to do, e.g. a redelivered notice.
	Skipped Disposition = "skipped"
	// DeadLettered means the notice was moved to the dead-letter topic.
	DeadLettered Disposition = "dead_lettered"
)

// Outcome is the result of handling one notice.
type Outcome struct {
	Disposition Disposition
	Until       time.Time
	Reason      string
}

// Dead-letter reasons.
const (
	ReasonDeleteFailed  = "delete_failed"
	ReasonInvalidNotice = "invalid_notice"
	ReasonRetryExceeded = "retry_exceeded"
	ReasonScheduleLost  = "schedule_failed"
)

// DeadLetter is published to the dead-letter topic for operators.
type DeadLetter struct {
	Notice    Notice    `json:"notice"`
	Reason    string    `json:"reason"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`

	// Raw holds the original payload when it could not be decoded.
	Raw string `json:"raw,omitempty"`
}

// EventTrackPurged is published once a track's object is gone.
const EventTrackPurged = "track.purged"
