package app

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"datachat/internal/model"
)

// ArchivePublisher forwards lifecycle events to durable storage. It is optional.
type ArchivePublisher interface {
	Publish(ctx context.Context, event model.ArchiveEvent) error
}

func publishArchive(ctx context.Context, publisher ArchivePublisher, event model.ArchiveEvent) {
	if publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := publisher.Publish(ctx, event); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"kind":       event.Kind,
			"session_id": event.SessionID,
			"message_id": event.MessageID,
		}).Warn("publish archive event failed")
	}
}
