package cache

import (
	"context"
	"encoding/json"
	"fmt"

	redisv9 "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"datachat/internal/model"
)

// GetMessages fetches many messages in one round trip, preserving the order of ids.
// Missing, malformed, and foreign (sessionID mismatch) records are dropped.
func (c *ChatCache) GetMessages(ctx context.Context, ids []string, sessionID string) ([]*model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.messageKey(id)
	}
	observe("mget_messages")
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget messages failed: %w", err)
	}

	messages := make([]*model.Message, 0, len(ids))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			recordAnomaly("missing_message", log.Fields{"message_id": ids[i]}, "indexed message is missing")
			continue
		}
		var msg model.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			recordAnomaly("malformed_message", log.Fields{"message_id": ids[i], "error": err}, "skipping malformed message record")
			continue
		}
		if sessionID != "" && msg.SessionID != sessionID {
			recordAnomaly("foreign_message", log.Fields{"message_id": ids[i], "session_id": sessionID}, "indexed message belongs to another session")
			continue
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

// GetArtifacts fetches many artifacts in one round trip. Only decodable records are returned.
func (c *ChatCache) GetArtifacts(ctx context.Context, ids []string) (map[string]model.Artifact, error) {
	out := make(map[string]model.Artifact, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.artifactKey(id)
	}
	observe("mget_artifacts")
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget artifacts failed: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			recordAnomaly("missing_artifact", log.Fields{"artifact_id": ids[i]}, "indexed artifact is missing")
			continue
		}
		artifact, err := model.UnmarshalArtifact([]byte(raw))
		if err != nil {
			recordAnomaly("malformed_artifact", log.Fields{"artifact_id": ids[i], "error": err}, "skipping malformed artifact record")
			continue
		}
		out[ids[i]] = artifact
	}
	return out, nil
}

// ArtifactIDsForMessages reads the artifact index of every message in a single pipeline.
func (c *ChatCache) ArtifactIDsForMessages(ctx context.Context, messageIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}

	cmds := make([]*redisv9.StringSliceCmd, len(messageIDs))
	observe("pipeline_artifact_indexes")
	_, err := c.client.Pipelined(ctx, func(pipe redisv9.Pipeliner) error {
		for i, id := range messageIDs {
			cmds[i] = pipe.LRange(ctx, c.artifactIndexKey(id), 0, -1)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis pipeline artifact indexes failed: %w", err)
	}

	for i, cmd := range cmds {
		out[messageIDs[i]] = cmd.Val()
	}
	return out, nil
}
