package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryArtifactCount(t *testing.T) {
	withArtifacts := *NewMessage("session_1", RoleUser, "data", []Artifact{NewTextArtifact("a", ""), NewTextArtifact("b", "")})
	bare := *NewMessage("session_1", RoleAssistant, "ok", nil)

	tests := []struct {
		name     string
		messages []Message
		stored   int
		want     int
	}{
		{name: "not materialized", stored: 3, want: 3},
		{name: "embedded artifacts", messages: []Message{withArtifacts, bare}, want: 2},
		{name: "index-only artifacts", messages: []Message{bare, bare}, stored: 4, want: 4},
		{name: "embedded exceed stored", messages: []Message{withArtifacts}, stored: 1, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("user_1", nil)
			s.Messages = tt.messages
			s.NumArtifacts = tt.stored
			assert.Equal(t, tt.want, s.Summary().NumArtifacts)
		})
	}
}
