package model

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a prefixed random id such as "session_0b1c...".
func NewID(kind string) string {
	return kind + "_" + uuid.NewString()
}

type Session struct {
	ID          string    `json:"sessionId"`
	UserID      string    `json:"userId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Title       *string   `json:"title"`
	Messages    []Message `json:"messages"`
	NumMessages int       `json:"numMessages"`

	// Kept by the message service so summaries stay right when Messages is not materialized.
	NumArtifacts int `json:"numArtifacts"`
}

func NewSession(userID string, title *string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        NewID("session"),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		Title:     title,
	}
}

// Summary builds the denormalized record kept in the owner's session index.
func (s *Session) Summary() SessionSummary {
	// Embedded artifacts undercount when they are kept index-only.
	numArtifacts := 0
	for _, m := range s.Messages {
		numArtifacts += len(m.Artifacts)
	}
	if s.NumArtifacts > numArtifacts {
		numArtifacts = s.NumArtifacts
	}
	return SessionSummary{
		ID:           s.ID,
		UserID:       s.UserID,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Title:        s.Title,
		NumMessages:  s.NumMessages,
		NumArtifacts: numArtifacts,
	}
}

type SessionSummary struct {
	ID           string    `json:"sessionId"`
	UserID       string    `json:"userId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Title        *string   `json:"title"`
	NumMessages  int       `json:"numMessages"`
	NumArtifacts int       `json:"numArtifacts"`
}
