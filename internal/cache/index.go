package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"datachat/internal/model"
)

// appendUniqueScript appends ARGV[1] to the list at KEYS[1] unless already present and
// refreshes the list TTL, all in one server-side step.
var appendUniqueScript = redisv9.NewScript(`
if not redis.call("LPOS", KEYS[1], ARGV[1]) then
	redis.call("RPUSH", KEYS[1], ARGV[1])
end
redis.call("EXPIRE", KEYS[1], ARGV[2])
return 1
`)

func (c *ChatCache) ttlSeconds() int64 {
	secs := int64(c.ttl / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func (c *ChatCache) appendToIndex(ctx context.Context, key, id string) error {
	observe("index_append")
	if err := appendUniqueScript.Run(ctx, c.client, []string{key}, id, c.ttlSeconds()).Err(); err != nil {
		return fmt.Errorf("redis append %s to %s failed: %w", id, key, err)
	}
	return nil
}

func (c *ChatCache) removeFromIndex(ctx context.Context, key, id string) error {
	observe("index_remove")
	if err := c.client.LRem(ctx, key, 0, id).Err(); err != nil {
		return fmt.Errorf("redis remove %s from %s failed: %w", id, key, err)
	}
	return nil
}

func (c *ChatCache) listIndex(ctx context.Context, op, key string) ([]string, error) {
	observe(op)
	ids, err := c.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s failed: %w", key, err)
	}
	return ids, nil
}

func (c *ChatCache) indexContains(ctx context.Context, key, id string) (bool, error) {
	observe("index_contains")
	_, err := c.client.LPos(ctx, key, id, redisv9.LPosArgs{}).Result()
	if errors.Is(err, redisv9.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis lpos %s failed: %w", key, err)
	}
	return true, nil
}

// upsertSessionSummary replaces the summary stored under the session id field, so a user
// index never holds two entries for one session.
func (c *ChatCache) upsertSessionSummary(ctx context.Context, userID string, summary model.SessionSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal session summary failed: %w", err)
	}

	key := c.userIndexKey(userID)
	observe("user_index_upsert")
	_, err = c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.HSet(ctx, key, summary.ID, payload)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis upsert summary %s failed: %w", summary.ID, err)
	}
	return nil
}

func (c *ChatCache) removeSessionSummary(ctx context.Context, userID, sessionID string) error {
	observe("user_index_remove")
	if err := c.client.HDel(ctx, c.userIndexKey(userID), sessionID).Err(); err != nil {
		return fmt.Errorf("redis remove summary %s failed: %w", sessionID, err)
	}
	return nil
}

// SessionsForUser returns the user's session summaries, most recently updated first.
func (c *ChatCache) SessionsForUser(ctx context.Context, userID string) ([]model.SessionSummary, error) {
	observe("user_index_list")
	entries, err := c.client.HGetAll(ctx, c.userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list sessions for %s failed: %w", userID, err)
	}

	summaries := make([]model.SessionSummary, 0, len(entries))
	for sessionID, raw := range entries {
		var summary model.SessionSummary
		if err := json.Unmarshal([]byte(raw), &summary); err != nil {
			recordAnomaly("malformed_summary", log.Fields{"user_id": userID, "session_id": sessionID, "error": err}, "skipping malformed session summary")
			continue
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].UpdatedAt.Equal(summaries[j].UpdatedAt) {
			return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

// MessageIDsForSession lists the session's message ids in insertion order. With ownerID set
// the session must belong to that user; otherwise the result is empty.
func (c *ChatCache) MessageIDsForSession(ctx context.Context, sessionID, ownerID string) ([]string, error) {
	if ownerID != "" {
		session, err := c.GetSession(ctx, sessionID, ownerID)
		if err != nil || session == nil {
			return nil, err
		}
	}
	return c.listIndex(ctx, "list_message_index", c.messageIndexKey(sessionID))
}

// ArtifactIDsForMessage lists the message's artifact ids. With sessionID set the message must
// belong to that session; otherwise the result is empty.
func (c *ChatCache) ArtifactIDsForMessage(ctx context.Context, messageID, sessionID string) ([]string, error) {
	if sessionID != "" {
		msg, err := c.GetMessage(ctx, messageID, sessionID)
		if err != nil || msg == nil {
			return nil, err
		}
	}
	return c.listIndex(ctx, "list_artifact_index", c.artifactIndexKey(messageID))
}

// AddArtifactToMessage appends artifactID to the message's artifact index. Repeated calls
// leave a single entry.
func (c *ChatCache) AddArtifactToMessage(ctx context.Context, messageID, artifactID string) error {
	return c.appendToIndex(ctx, c.artifactIndexKey(messageID), artifactID)
}
