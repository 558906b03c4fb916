package model

import "time"

type ArchiveEventKind string

const (
	ArchiveMessageSaved   ArchiveEventKind = "message_saved"
	ArchiveMessageDeleted ArchiveEventKind = "message_deleted"
	ArchiveSessionDeleted ArchiveEventKind = "session_deleted"
)

// ArchiveEvent travels over the archive queue. Message is set only for message_saved.
type ArchiveEvent struct {
	Kind       ArchiveEventKind `json:"kind"`
	UserID     string           `json:"user_id"`
	SessionID  string           `json:"session_id"`
	MessageID  string           `json:"message_id,omitempty"`
	Message    *Message         `json:"message,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// ArchivedMessage is the durable copy of a cached message. Artifact payloads stay in the
// cache; only their ids are kept here.
type ArchivedMessage struct {
	MessageID   string    `gorm:"primaryKey;size:64" json:"message_id"`
	SessionID   string    `gorm:"size:64;not null;index" json:"session_id"`
	UserID      string    `gorm:"size:64;not null;index" json:"user_id"`
	Role        string    `gorm:"size:16;not null" json:"role"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	ArtifactIDs string    `gorm:"type:text" json:"artifact_ids"`
	SentAt      time.Time `gorm:"index" json:"sent_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
