package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"datachat/internal/model"
)

type SessionService struct {
	store     ChatStore
	publisher ArchivePublisher
}

type CreateSessionInput struct {
	UserID string
	Title  string
}

// AssembleOptions controls how much of a session GetCompleteSession materializes.
type AssembleOptions struct {
	// IncludeArtifacts attaches every message's indexed artifacts.
	IncludeArtifacts bool
	// DisplayOnly drops system/tool turns and empty turns.
	DisplayOnly bool
}

func NewSessionService(store ChatStore, publisher ArchivePublisher) *SessionService {
	return &SessionService{
		store:     store,
		publisher: publisher,
	}
}

func (s *SessionService) CreateSession(ctx context.Context, input CreateSessionInput) (*model.Session, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, ErrInvalidInput
	}

	var title *string
	if t := strings.TrimSpace(input.Title); t != "" {
		title = &t
	}
	session := model.NewSession(userID, title)
	if err := s.store.SaveSession(ctx, session, false); err != nil {
		return nil, fmt.Errorf("create session failed: %w", err)
	}

	log.WithFields(log.Fields{"session_id": session.ID, "user_id": userID}).Info("session created")
	session.Messages = []model.Message{}
	return session, nil
}

// GetCompleteSession assembles the session with its messages (and optionally artifacts) in
// a fixed number of round trips. Any failure is logged and reported as ErrSessionNotFound so
// a caller never sees a partially assembled session.
func (s *SessionService) GetCompleteSession(ctx context.Context, sessionID, userID string, opts AssembleOptions) (*model.Session, error) {
	if sessionID == "" || userID == "" {
		return nil, ErrInvalidInput
	}

	session, err := s.assemble(ctx, sessionID, userID, opts)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"session_id": sessionID,
			"user_id":    userID,
		}).Error("assemble session failed")
		return nil, ErrSessionNotFound
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionService) assemble(ctx context.Context, sessionID, userID string, opts AssembleOptions) (*model.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID, userID)
	if err != nil || session == nil {
		return nil, err
	}
	session.Messages = []model.Message{}
	session.NumMessages = 0

	messageIDs, err := s.store.MessageIDsForSession(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}
	if len(messageIDs) == 0 {
		return session, nil
	}

	messages, err := s.store.GetMessages(ctx, messageIDs, sessionID)
	if err != nil {
		return nil, err
	}

	if opts.IncludeArtifacts {
		if err := s.attachArtifacts(ctx, messages); err != nil {
			return nil, err
		}
	}

	for _, msg := range messages {
		if opts.DisplayOnly && !msg.Displayable() {
			continue
		}
		if !opts.IncludeArtifacts {
			msg.Artifacts = nil
		}
		session.Messages = append(session.Messages, *msg)
	}
	session.NumMessages = len(session.Messages)
	return session, nil
}

// attachArtifacts replaces each message's artifacts with the ones in its artifact index:
// one pipelined read for the indexes, one batch read for the union of ids.
func (s *SessionService) attachArtifacts(ctx context.Context, messages []*model.Message) error {
	messageIDs := make([]string, len(messages))
	for i, msg := range messages {
		messageIDs[i] = msg.ID
	}
	index, err := s.store.ArtifactIDsForMessages(ctx, messageIDs)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{})
	union := make([]string, 0)
	for _, ids := range index {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			union = append(union, id)
		}
	}

	found, err := s.store.GetArtifacts(ctx, union)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		msg.Artifacts = collectArtifacts(found, index[msg.ID], msg.ID)
	}
	return nil
}

func collectArtifacts(found map[string]model.Artifact, ids []string, messageID string) model.ArtifactList {
	out := make(model.ArtifactList, 0, len(ids))
	for _, id := range ids {
		artifact, ok := found[id]
		if !ok {
			log.WithFields(log.Fields{"artifact_id": id, "message_id": messageID}).Warn("indexed artifact could not be loaded")
			continue
		}
		out = append(out, artifact)
	}
	return out
}

// GetSessionSummary counts messages and artifacts from the indexes without reading bodies.
func (s *SessionService) GetSessionSummary(ctx context.Context, sessionID, userID string) (*model.SessionSummary, error) {
	if sessionID == "" || userID == "" {
		return nil, ErrInvalidInput
	}

	session, err := s.store.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("load session failed: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	messageIDs, err := s.store.MessageIDsForSession(ctx, sessionID, "")
	if err != nil {
		return nil, fmt.Errorf("load message index failed: %w", err)
	}
	index, err := s.store.ArtifactIDsForMessages(ctx, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("load artifact indexes failed: %w", err)
	}

	summary := session.Summary()
	summary.NumMessages = len(messageIDs)
	summary.NumArtifacts = 0
	for _, ids := range index {
		summary.NumArtifacts += len(ids)
	}
	return &summary, nil
}

// ListSessions returns the user's sessions that hold at least one message, newest first.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]model.SessionSummary, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	summaries, err := s.store.SessionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}

	out := make([]model.SessionSummary, 0, len(summaries))
	for _, summary := range summaries {
		if summary.NumMessages > 0 {
			out = append(out, summary)
		}
	}
	return out, nil
}

// DeleteSession removes the session with all of its messages and artifacts.
func (s *SessionService) DeleteSession(ctx context.Context, sessionID, userID string) (int, error) {
	if sessionID == "" || userID == "" {
		return 0, ErrInvalidInput
	}

	deleted, err := s.store.DeleteSession(ctx, sessionID, userID, true)
	if err != nil {
		return 0, fmt.Errorf("delete session failed: %w", err)
	}
	if deleted == 0 {
		return 0, ErrSessionNotFound
	}

	log.WithFields(log.Fields{
		"session_id": sessionID,
		"user_id":    userID,
		"keys":       deleted,
	}).Info("session deleted")
	publishArchive(ctx, s.publisher, model.ArchiveEvent{
		Kind:      model.ArchiveSessionDeleted,
		UserID:    userID,
		SessionID: sessionID,
	})
	return deleted, nil
}

// LatestDataset returns the most recently attached CSV artifact of the session.
func (s *SessionService) LatestDataset(ctx context.Context, sessionID, userID string) (*model.CSVArtifact, error) {
	session, err := s.GetCompleteSession(ctx, sessionID, userID, AssembleOptions{IncludeArtifacts: true})
	if err != nil {
		return nil, err
	}
	for i := len(session.Messages) - 1; i >= 0; i-- {
		artifacts := session.Messages[i].Artifacts
		for j := len(artifacts) - 1; j >= 0; j-- {
			if csv, ok := artifacts[j].(*model.CSVArtifact); ok {
				return csv, nil
			}
		}
	}
	return nil, ErrNoDataset
}
