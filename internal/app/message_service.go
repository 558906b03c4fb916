package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"datachat/internal/model"
)

const (
	titleMaxRunes = 50
	titleEllipsis = "..."
)

type MessageService struct {
	store     ChatStore
	publisher ArchivePublisher
}

type PushMessageInput struct {
	SessionID string
	UserID    string
	Role      model.Role
	Content   string
	Artifacts []model.Artifact
	// DetachArtifacts keeps artifacts out of the message record; they are reachable only
	// through the message's artifact index.
	DetachArtifacts bool
}

func NewMessageService(store ChatStore, publisher ArchivePublisher) *MessageService {
	return &MessageService{
		store:     store,
		publisher: publisher,
	}
}

// PushMessage appends a message to a session the caller owns and refreshes the session
// metadata (updatedAt, counts, first-user-message title).
func (s *MessageService) PushMessage(ctx context.Context, input PushMessageInput) (*model.Message, error) {
	if input.SessionID == "" || input.UserID == "" || !input.Role.Valid() {
		return nil, ErrInvalidInput
	}

	session, err := s.store.GetSession(ctx, input.SessionID, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("load session failed: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	msg := model.NewMessage(session.ID, input.Role, input.Content, input.Artifacts)
	if input.DetachArtifacts {
		msg.Artifacts = nil
		if err := s.store.SaveMessage(ctx, msg, false); err != nil {
			return nil, fmt.Errorf("save message failed: %w", err)
		}
		for _, artifact := range input.Artifacts {
			if err := s.store.SaveArtifact(ctx, artifact); err != nil {
				return nil, fmt.Errorf("save artifact failed: %w", err)
			}
			if err := s.store.AddArtifactToMessage(ctx, msg.ID, artifact.Meta().ID); err != nil {
				return nil, fmt.Errorf("index artifact failed: %w", err)
			}
		}
		msg.Artifacts = input.Artifacts
	} else if err := s.store.SaveMessage(ctx, msg, true); err != nil {
		return nil, fmt.Errorf("save message failed: %w", err)
	}

	if err := refreshSession(ctx, s.store, session, msg); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"session_id": session.ID,
		"message_id": msg.ID,
		"role":       msg.Role,
		"artifacts":  len(msg.Artifacts),
	}).Info("message pushed")
	publishArchive(ctx, s.publisher, model.ArchiveEvent{
		Kind:      model.ArchiveMessageSaved,
		UserID:    input.UserID,
		SessionID: session.ID,
		MessageID: msg.ID,
		Message:   msg,
	})
	return msg, nil
}

func (s *MessageService) PushUserMessage(ctx context.Context, sessionID, userID, content string, artifacts ...model.Artifact) (*model.Message, error) {
	return s.PushMessage(ctx, PushMessageInput{
		SessionID: sessionID,
		UserID:    userID,
		Role:      model.RoleUser,
		Content:   content,
		Artifacts: artifacts,
	})
}

func (s *MessageService) PushAssistantMessage(ctx context.Context, sessionID, userID, content string, artifacts ...model.Artifact) (*model.Message, error) {
	return s.PushMessage(ctx, PushMessageInput{
		SessionID: sessionID,
		UserID:    userID,
		Role:      model.RoleAssistant,
		Content:   content,
		Artifacts: artifacts,
	})
}

// AddArtifactToMessage saves artifact and links it to an existing message the caller owns.
func (s *MessageService) AddArtifactToMessage(ctx context.Context, messageID, sessionID, userID string, artifact model.Artifact) error {
	if artifact == nil {
		return ErrInvalidInput
	}
	return attachToOwnedMessage(ctx, s.store, messageID, sessionID, userID, artifact)
}

// DeleteMessage removes the message and its artifacts, then recomputes the session metadata.
func (s *MessageService) DeleteMessage(ctx context.Context, messageID, sessionID, userID string) (int, error) {
	if messageID == "" || sessionID == "" || userID == "" {
		return 0, ErrInvalidInput
	}

	deleted, err := s.store.DeleteMessageWithFullOwnership(ctx, messageID, sessionID, userID, true)
	if err != nil {
		return 0, fmt.Errorf("delete message failed: %w", err)
	}
	if deleted == 0 {
		return 0, ErrMessageNotFound
	}

	if err := refreshOwnedSession(ctx, s.store, sessionID, userID); err != nil {
		return deleted, err
	}

	log.WithFields(log.Fields{
		"session_id": sessionID,
		"message_id": messageID,
		"keys":       deleted,
	}).Info("message deleted")
	publishArchive(ctx, s.publisher, model.ArchiveEvent{
		Kind:      model.ArchiveMessageDeleted,
		UserID:    userID,
		SessionID: sessionID,
		MessageID: messageID,
	})
	return deleted, nil
}

// GetMessageWithArtifacts loads the message through the full ownership chain and replaces
// its artifacts with the ones currently in its artifact index.
func (s *MessageService) GetMessageWithArtifacts(ctx context.Context, messageID, sessionID, userID string) (*model.Message, error) {
	if messageID == "" || sessionID == "" || userID == "" {
		return nil, ErrInvalidInput
	}

	msg, err := s.store.GetMessageWithFullOwnership(ctx, messageID, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("load message failed: %w", err)
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}

	artifacts, err := loadIndexedArtifacts(ctx, s.store, messageID)
	if err != nil {
		return nil, err
	}
	msg.Artifacts = artifacts
	return msg, nil
}

func loadIndexedArtifacts(ctx context.Context, store ChatStore, messageID string) (model.ArtifactList, error) {
	ids, err := store.ArtifactIDsForMessage(ctx, messageID, "")
	if err != nil {
		return nil, fmt.Errorf("load artifact index failed: %w", err)
	}
	found, err := store.GetArtifacts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load artifacts failed: %w", err)
	}
	return collectArtifacts(found, ids, messageID), nil
}

func attachToOwnedMessage(ctx context.Context, store ChatStore, messageID, sessionID, userID string, artifact model.Artifact) error {
	msg, err := store.GetMessageWithFullOwnership(ctx, messageID, sessionID, userID)
	if err != nil {
		return fmt.Errorf("load message failed: %w", err)
	}
	if msg == nil {
		return ErrMessageNotFound
	}

	if err := store.SaveArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("save artifact failed: %w", err)
	}
	if err := store.AddArtifactToMessage(ctx, messageID, artifact.Meta().ID); err != nil {
		return fmt.Errorf("index artifact failed: %w", err)
	}
	return refreshOwnedSession(ctx, store, sessionID, userID)
}

func refreshOwnedSession(ctx context.Context, store ChatStore, sessionID, userID string) error {
	session, err := store.GetSession(ctx, sessionID, userID)
	if err != nil {
		return fmt.Errorf("load session failed: %w", err)
	}
	if session == nil {
		return nil
	}
	return refreshSession(ctx, store, session, nil)
}

// refreshSession recomputes updatedAt and the message/artifact counts from the indexes and
// saves the session without cascading. When added is the first user message, its content
// becomes the session title.
//
// The session record itself is read-modify-write: concurrent pushes to one session are
// last-writer-wins on updatedAt, title and the counts. The indexes stay complete, so the next
// refresh corrects any stale count.
func refreshSession(ctx context.Context, store ChatStore, session *model.Session, added *model.Message) error {
	messageIDs, err := store.MessageIDsForSession(ctx, session.ID, "")
	if err != nil {
		return fmt.Errorf("load message index failed: %w", err)
	}
	index, err := store.ArtifactIDsForMessages(ctx, messageIDs)
	if err != nil {
		return fmt.Errorf("load artifact indexes failed: %w", err)
	}

	session.UpdatedAt = time.Now().UTC()
	session.NumMessages = len(messageIDs)
	session.NumArtifacts = 0
	for _, ids := range index {
		session.NumArtifacts += len(ids)
	}

	if added != nil && added.Role == model.RoleUser && session.Title == nil {
		first, err := isFirstUserMessage(ctx, store, session.ID, messageIDs, added.ID)
		if err != nil {
			return err
		}
		if title := titleFromContent(added.Content); first && title != "" {
			session.Title = &title
			log.WithFields(log.Fields{"session_id": session.ID, "title": title}).Debug("session title set")
		}
	}

	if err := store.SaveSession(ctx, session, false); err != nil {
		return fmt.Errorf("save session failed: %w", err)
	}
	return nil
}

func isFirstUserMessage(ctx context.Context, store ChatStore, sessionID string, messageIDs []string, addedID string) (bool, error) {
	messages, err := store.GetMessages(ctx, messageIDs, sessionID)
	if err != nil {
		return false, fmt.Errorf("load messages failed: %w", err)
	}
	for _, msg := range messages {
		if msg.Role == model.RoleUser && msg.ID != addedID {
			return false, nil
		}
	}
	return true, nil
}

func titleFromContent(content string) string {
	title := strings.TrimSpace(content)
	runes := []rune(title)
	if len(runes) > titleMaxRunes {
		title = string(runes[:titleMaxRunes-len(titleEllipsis)]) + titleEllipsis
	}
	return title
}
