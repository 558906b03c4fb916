package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

type Message struct {
	ID        string       `json:"messageId"`
	SessionID string       `json:"sessionId"`
	Role      Role         `json:"role"`
	Timestamp time.Time    `json:"timestamp"`
	Content   string       `json:"content"`
	Artifacts ArtifactList `json:"artifacts"`
}

func NewMessage(sessionID string, role Role, content string, artifacts []Artifact) *Message {
	return &Message{
		ID:        NewID("message"),
		SessionID: sessionID,
		Role:      role,
		Timestamp: time.Now().UTC(),
		Content:   content,
		Artifacts: artifacts,
	}
}

// Displayable reports whether the message belongs in a user-facing transcript.
// System and tool turns are internal, as are empty turns without attachments.
func (m *Message) Displayable() bool {
	if m.Role == RoleSystem || m.Role == RoleTool {
		return false
	}
	return strings.TrimSpace(m.Content) != "" || len(m.Artifacts) > 0
}
