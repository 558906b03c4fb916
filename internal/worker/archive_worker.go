package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"datachat/internal/model"
)

var errMalformedEvent = errors.New("malformed archive event")

var archiveEventsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "datachat_archive_events_total",
	Help: "Archive events consumed, by kind and outcome.",
}, []string{"kind", "outcome"})

// ArchiveStore is the durable side of the archive.
type ArchiveStore interface {
	Upsert(ctx context.Context, message *model.ArchivedMessage) error
	DeleteMessage(ctx context.Context, messageID string) (int64, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// ArchiveWorker consumes archive events and mirrors them into the ArchiveStore.
type ArchiveWorker struct {
	conn      *amqp.Connection
	store     ArchiveStore
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewArchiveWorker(conn *amqp.Connection, store ArchiveStore, queueName string) *ArchiveWorker {
	return &ArchiveWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
	}
}

func (w *ArchiveWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := ch.QueueDeclare(w.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					// Malformed events are dropped, store failures go back on the queue.
					requeue := !errors.Is(err, errMalformedEvent)
					log.WithError(err).WithField("requeue", requeue).Warn("archive event failed")
					_ = d.Nack(false, requeue)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	log.WithField("queue", w.queueName).Info("archive worker started")
	return nil
}

func (w *ArchiveWorker) handle(ctx context.Context, body []byte) error {
	var event model.ArchiveEvent
	if err := json.Unmarshal(body, &event); err != nil {
		archiveEventsMetric.WithLabelValues("unknown", "malformed").Inc()
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}

	err := w.apply(ctx, event)
	outcome := "ok"
	switch {
	case errors.Is(err, errMalformedEvent):
		outcome = "malformed"
	case err != nil:
		outcome = "error"
	}
	archiveEventsMetric.WithLabelValues(string(event.Kind), outcome).Inc()
	return err
}

func (w *ArchiveWorker) apply(ctx context.Context, event model.ArchiveEvent) error {
	switch event.Kind {
	case model.ArchiveMessageSaved:
		if event.Message == nil || event.Message.ID == "" {
			return fmt.Errorf("%w: message_saved without message", errMalformedEvent)
		}
		return w.store.Upsert(ctx, toArchived(event))
	case model.ArchiveMessageDeleted:
		if event.MessageID == "" {
			return fmt.Errorf("%w: message_deleted without message id", errMalformedEvent)
		}
		_, err := w.store.DeleteMessage(ctx, event.MessageID)
		return err
	case model.ArchiveSessionDeleted:
		if event.SessionID == "" {
			return fmt.Errorf("%w: session_deleted without session id", errMalformedEvent)
		}
		_, err := w.store.DeleteSession(ctx, event.SessionID)
		return err
	}
	return fmt.Errorf("%w: unknown kind %q", errMalformedEvent, event.Kind)
}

func toArchived(event model.ArchiveEvent) *model.ArchivedMessage {
	msg := event.Message
	ids := make([]string, 0, len(msg.Artifacts))
	for _, artifact := range msg.Artifacts {
		ids = append(ids, artifact.Meta().ID)
	}
	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = event.SessionID
	}
	return &model.ArchivedMessage{
		MessageID:   msg.ID,
		SessionID:   sessionID,
		UserID:      event.UserID,
		Role:        string(msg.Role),
		Content:     msg.Content,
		ArtifactIDs: strings.Join(ids, ","),
		SentAt:      msg.Timestamp,
	}
}

func (w *ArchiveWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
