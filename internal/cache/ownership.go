package cache

import (
	"context"

	"datachat/internal/model"
)

// The WithFullOwnership variants walk the whole user -> session -> message -> artifact chain.
// An empty userID never passes.

func (c *ChatCache) GetMessageWithFullOwnership(ctx context.Context, messageID, sessionID, userID string) (*model.Message, error) {
	if userID == "" {
		return nil, nil
	}
	session, err := c.GetSession(ctx, sessionID, userID)
	if err != nil || session == nil {
		return nil, err
	}
	return c.GetMessage(ctx, messageID, sessionID)
}

func (c *ChatCache) GetArtifactWithFullOwnership(ctx context.Context, artifactID, messageID, sessionID, userID string) (model.Artifact, error) {
	msg, err := c.GetMessageWithFullOwnership(ctx, messageID, sessionID, userID)
	if err != nil || msg == nil {
		return nil, err
	}
	return c.GetArtifact(ctx, artifactID, messageID)
}

func (c *ChatCache) DeleteMessageWithFullOwnership(ctx context.Context, messageID, sessionID, userID string, cascade bool) (int, error) {
	msg, err := c.GetMessageWithFullOwnership(ctx, messageID, sessionID, userID)
	if err != nil || msg == nil {
		return 0, err
	}
	return c.DeleteMessage(ctx, messageID, sessionID, cascade)
}

func (c *ChatCache) DeleteArtifactWithFullOwnership(ctx context.Context, artifactID, messageID, sessionID, userID string) (int, error) {
	msg, err := c.GetMessageWithFullOwnership(ctx, messageID, sessionID, userID)
	if err != nil || msg == nil {
		return 0, err
	}
	return c.DeleteArtifact(ctx, artifactID, messageID)
}
