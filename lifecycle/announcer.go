package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/playurl/access"
	"github.com/kbukum/playurl/clock"
	"github.com/kbukum/playurl/logger"
)

// DeletionStore logically deletes records. *database.TrackStore implements it.
type DeletionStore interface {
	MarkDeleted(ctx context.Context, resourceID string, at time.Time) (access.Record, error)
}

// Notifier delivers a notice to whoever processes deletions.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// JSONSender is the producer method the Kafka notifier needs.
type JSONSender interface {
	SendJSON(ctx context.Context, topic, key string, value interface{}) error
}

// KafkaNotifier publishes notices to a topic keyed by resource id.
type KafkaNotifier struct {
	sender JSONSender
	topic  string
}

// NewKafkaNotifier creates a notifier that writes to topic.
func NewKafkaNotifier(sender JSONSender, topic string) *KafkaNotifier {
	return &KafkaNotifier{sender: sender, topic: topic}
}

// Notify sends n.
func (k *KafkaNotifier) Notify(ctx context.Context, n Notice) error {
	return k.sender.SendJSON(ctx, k.topic, n.ResourceID, n)
}

// Announcer is the producer side of the deletion workflow.
type Announcer struct {
	store    DeletionStore
	cache    Invalidator
	notifier Notifier
	clock    clock.Clock
	log      *logger.Logger
}

// NewAnnouncer creates an Announcer. cache may be nil.
func NewAnnouncer(store DeletionStore, cache Invalidator, notifier Notifier, c clock.Clock, log *logger.Logger) *Announcer {
	if log == nil {
		log = logger.Nop()
	}
	return &Announcer{
		store:    store,
		cache:    cache,
		notifier: notifier,
		clock:    clock.OrReal(c),
		log:      log.WithComponent("lifecycle.announcer"),
	}
}

// MarkDeleted logically deletes resourceID, drops its cached URLs and emits
// the deletion notice. Repeating it for a deleted track resends the notice
// with the original deletion time.
func (a *Announcer) MarkDeleted(ctx context.Context, resourceID string) (Notice, error) {
	rec, err := a.store.MarkDeleted(ctx, resourceID, a.clock.Now())
	if err != nil {
		return Notice{}, err
	}
	n := Notice{
		ResourceID: rec.ResourceID,
		ObjectKey:  rec.ObjectKey,
		OwnerID:    rec.OwnerID,
		DeletedAt:  rec.DeletedAt,
	}
	if rec.State == access.StatePurged {
		return n, nil
	}

	if a.cache != nil {
		if _, err := a.cache.Invalidate(ctx, resourceID); err != nil {
			a.log.WithContext(ctx).Warn("Cached URL invalidation failed", logger.Fields(
				logger.FieldResourceID, resourceID,
				logger.FieldError, err.Error(),
			))
		}
	}
	if err := a.notifier.Notify(ctx, n); err != nil {
		return n, fmt.Errorf("announce deletion of %s: %w", resourceID, err)
	}

	a.log.WithContext(ctx).Info("Track marked deleted", logger.Fields(
		logger.FieldResourceID, resourceID,
		logger.FieldOwnerID, rec.OwnerID,
	))
	return n, nil
}
