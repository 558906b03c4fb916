package app

import (
	"context"

	"datachat/internal/model"
)

// ChatStore is the cache surface the services are built on. *cache.ChatCache implements it.
type ChatStore interface {
	SaveSession(ctx context.Context, session *model.Session, cascade bool) error
	GetSession(ctx context.Context, id, ownerID string) (*model.Session, error)
	DeleteSession(ctx context.Context, id, ownerID string, cascade bool) (int, error)
	SessionsForUser(ctx context.Context, userID string) ([]model.SessionSummary, error)

	SaveMessage(ctx context.Context, msg *model.Message, cascade bool) error
	GetMessage(ctx context.Context, id, sessionID string) (*model.Message, error)
	GetMessages(ctx context.Context, ids []string, sessionID string) ([]*model.Message, error)
	MessageIDsForSession(ctx context.Context, sessionID, ownerID string) ([]string, error)
	GetMessageWithFullOwnership(ctx context.Context, messageID, sessionID, userID string) (*model.Message, error)
	DeleteMessageWithFullOwnership(ctx context.Context, messageID, sessionID, userID string, cascade bool) (int, error)

	SaveArtifact(ctx context.Context, artifact model.Artifact) error
	GetArtifacts(ctx context.Context, ids []string) (map[string]model.Artifact, error)
	AddArtifactToMessage(ctx context.Context, messageID, artifactID string) error
	ArtifactIDsForMessage(ctx context.Context, messageID, sessionID string) ([]string, error)
	ArtifactIDsForMessages(ctx context.Context, messageIDs []string) (map[string][]string, error)
	GetArtifactWithFullOwnership(ctx context.Context, artifactID, messageID, sessionID, userID string) (model.Artifact, error)
	DeleteArtifactWithFullOwnership(ctx context.Context, artifactID, messageID, sessionID, userID string) (int, error)
}
