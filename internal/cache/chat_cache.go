package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"datachat/internal/model"
)

const (
	DefaultPrefix = "chatapp:prod:"
	DefaultTTL    = 6 * time.Hour
)

// ChatCache stores sessions, messages and artifacts together with the three parent->child
// indexes. A nil result with a nil error means "not found": absent, expired, malformed, or
// not owned by the caller. A non-nil error always means the backing store failed.
type ChatCache struct {
	client *redisv9.Client
	prefix string
	ttl    time.Duration
}

func NewChatCache(client *redisv9.Client, prefix string, ttl time.Duration) *ChatCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ChatCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *ChatCache) sessionKey(id string) string  { return c.prefix + "session:" + id }
func (c *ChatCache) messageKey(id string) string  { return c.prefix + "message:" + id }
func (c *ChatCache) artifactKey(id string) string { return c.prefix + "artifact:" + id }

func (c *ChatCache) userIndexKey(userID string) string {
	return c.prefix + "session_index:user:" + userID
}

func (c *ChatCache) messageIndexKey(sessionID string) string {
	return c.prefix + "message_index:session:" + sessionID
}

func (c *ChatCache) artifactIndexKey(messageID string) string {
	return c.prefix + "artifact_index:message:" + messageID
}

func (c *ChatCache) setRecord(ctx context.Context, op, key string, payload []byte) error {
	observe(op)
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", key, err)
	}
	return nil
}

func (c *ChatCache) getRecord(ctx context.Context, op, key string) ([]byte, error) {
	observe(op)
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s failed: %w", key, err)
	}
	return raw, nil
}

func (c *ChatCache) deleteKeys(ctx context.Context, op string, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	observe(op)
	n, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis delete failed: %w", err)
	}
	return int(n), nil
}

func recordAnomaly(kind string, fields log.Fields, msg string) {
	anomalyMetric.WithLabelValues(kind).Inc()
	log.WithFields(fields).Warn(msg)
}

// SaveSession writes the session record (without embedded messages) and upserts its summary
// into the owner's index. With cascade, embedded messages and their artifacts are saved too;
// an embedded message whose session id differs is skipped.
func (c *ChatCache) SaveSession(ctx context.Context, session *model.Session, cascade bool) error {
	record := *session
	record.Messages = nil
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}
	if err := c.setRecord(ctx, "save_session", c.sessionKey(session.ID), payload); err != nil {
		return err
	}

	if session.UserID != "" {
		if err := c.upsertSessionSummary(ctx, session.UserID, session.Summary()); err != nil {
			return err
		}
	}

	if !cascade {
		return nil
	}
	for i := range session.Messages {
		msg := &session.Messages[i]
		if msg.SessionID != session.ID {
			recordAnomaly("foreign_message", log.Fields{
				"message_id": msg.ID,
				"session_id": session.ID,
				"found":      msg.SessionID,
			}, "embedded message points at another session, not saving it")
			continue
		}
		if err := c.SaveMessage(ctx, msg, true); err != nil {
			return err
		}
	}
	return nil
}

// GetSession returns the session if it exists and, when ownerID is set, belongs to ownerID.
func (c *ChatCache) GetSession(ctx context.Context, id, ownerID string) (*model.Session, error) {
	raw, err := c.getRecord(ctx, "get_session", c.sessionKey(id))
	if err != nil || raw == nil {
		return nil, err
	}

	var session model.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		recordAnomaly("malformed_session", log.Fields{"session_id": id, "error": err}, "skipping malformed session record")
		return nil, nil
	}
	if ownerID != "" && session.UserID != ownerID {
		log.WithFields(log.Fields{"session_id": id, "user_id": ownerID}).Debug("session ownership check failed")
		return nil, nil
	}
	return &session, nil
}

// DeleteSession authorizes through GetSession, then removes the owner index entry and the
// session key. With cascade every indexed message (and its artifacts) and the message index
// go too. The result counts removed store keys; zero means nothing happened.
func (c *ChatCache) DeleteSession(ctx context.Context, id, ownerID string, cascade bool) (int, error) {
	session, err := c.GetSession(ctx, id, ownerID)
	if err != nil || session == nil {
		return 0, err
	}

	deleted := 0
	if session.UserID != "" {
		if err := c.removeSessionSummary(ctx, session.UserID, id); err != nil {
			return deleted, err
		}
	}

	if cascade {
		messageIDs, err := c.listIndex(ctx, "list_message_index", c.messageIndexKey(id))
		if err != nil {
			return deleted, err
		}
		for _, messageID := range messageIDs {
			n, err := c.DeleteMessage(ctx, messageID, id, true)
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		n, err := c.deleteKeys(ctx, "delete_message_index", c.messageIndexKey(id))
		if err != nil {
			return deleted, err
		}
		deleted += n
	}

	n, err := c.deleteKeys(ctx, "delete_session", c.sessionKey(id))
	if err != nil {
		return deleted, err
	}
	return deleted + n, nil
}

// SaveMessage writes the message and appends it to its session's message index. With
// cascade, attached artifacts are written and appended to the message's artifact index.
func (c *ChatCache) SaveMessage(ctx context.Context, msg *model.Message, cascade bool) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message failed: %w", err)
	}
	if err := c.setRecord(ctx, "save_message", c.messageKey(msg.ID), payload); err != nil {
		return err
	}
	if err := c.appendToIndex(ctx, c.messageIndexKey(msg.SessionID), msg.ID); err != nil {
		return err
	}

	if !cascade {
		return nil
	}
	for _, artifact := range msg.Artifacts {
		if err := c.SaveArtifact(ctx, artifact); err != nil {
			return err
		}
		if err := c.appendToIndex(ctx, c.artifactIndexKey(msg.ID), artifact.Meta().ID); err != nil {
			return err
		}
	}
	return nil
}

// GetMessage returns the message if it exists and, when sessionID is set, belongs to it.
func (c *ChatCache) GetMessage(ctx context.Context, id, sessionID string) (*model.Message, error) {
	raw, err := c.getRecord(ctx, "get_message", c.messageKey(id))
	if err != nil || raw == nil {
		return nil, err
	}

	var msg model.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		recordAnomaly("malformed_message", log.Fields{"message_id": id, "error": err}, "skipping malformed message record")
		return nil, nil
	}
	if sessionID != "" && msg.SessionID != sessionID {
		log.WithFields(log.Fields{"message_id": id, "session_id": sessionID}).Debug("message ownership check failed")
		return nil, nil
	}
	return &msg, nil
}

func (c *ChatCache) DeleteMessage(ctx context.Context, id, sessionID string, cascade bool) (int, error) {
	msg, err := c.GetMessage(ctx, id, sessionID)
	if err != nil || msg == nil {
		return 0, err
	}

	deleted := 0
	if cascade {
		artifactIDs, err := c.listIndex(ctx, "list_artifact_index", c.artifactIndexKey(id))
		if err != nil {
			return deleted, err
		}
		keys := make([]string, 0, len(artifactIDs)+1)
		for _, artifactID := range artifactIDs {
			keys = append(keys, c.artifactKey(artifactID))
		}
		keys = append(keys, c.artifactIndexKey(id))
		n, err := c.deleteKeys(ctx, "delete_message_artifacts", keys...)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}

	if err := c.removeFromIndex(ctx, c.messageIndexKey(msg.SessionID), id); err != nil {
		return deleted, err
	}
	n, err := c.deleteKeys(ctx, "delete_message", c.messageKey(id))
	if err != nil {
		return deleted, err
	}
	return deleted + n, nil
}

// SaveArtifact writes the artifact record only. Index placement belongs to the caller.
func (c *ChatCache) SaveArtifact(ctx context.Context, artifact model.Artifact) error {
	payload, err := model.MarshalArtifact(artifact)
	if err != nil {
		return fmt.Errorf("marshal artifact failed: %w", err)
	}
	return c.setRecord(ctx, "save_artifact", c.artifactKey(artifact.Meta().ID), payload)
}

// GetArtifact returns the artifact. When messageID is set the artifact must also be listed
// in that message's artifact index; an orphaned record is reported as not found.
func (c *ChatCache) GetArtifact(ctx context.Context, id, messageID string) (model.Artifact, error) {
	raw, err := c.getRecord(ctx, "get_artifact", c.artifactKey(id))
	if err != nil || raw == nil {
		return nil, err
	}

	artifact, err := model.UnmarshalArtifact(raw)
	if err != nil {
		recordAnomaly("malformed_artifact", log.Fields{"artifact_id": id, "error": err}, "skipping malformed artifact record")
		return nil, nil
	}

	if messageID != "" {
		indexed, err := c.indexContains(ctx, c.artifactIndexKey(messageID), id)
		if err != nil {
			return nil, err
		}
		if !indexed {
			log.WithFields(log.Fields{"artifact_id": id, "message_id": messageID}).Warn("artifact not indexed under message")
			return nil, nil
		}
	}
	return artifact, nil
}

func (c *ChatCache) DeleteArtifact(ctx context.Context, id, messageID string) (int, error) {
	artifact, err := c.GetArtifact(ctx, id, messageID)
	if err != nil || artifact == nil {
		return 0, err
	}
	if messageID != "" {
		if err := c.removeFromIndex(ctx, c.artifactIndexKey(messageID), id); err != nil {
			return 0, err
		}
	}
	return c.deleteKeys(ctx, "delete_artifact", c.artifactKey(id))
}
