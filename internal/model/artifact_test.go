package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalArtifactRestoresVariant(t *testing.T) {
	img := NewImageArtifact("aGVsbG8=", "chart")
	img.Width, img.Height, img.Format = 800, 600, "png"
	img.AltText = "bar chart"

	raw, err := MarshalArtifact(img)
	require.NoError(t, err)

	decoded, err := UnmarshalArtifact(raw)
	require.NoError(t, err)

	got, ok := decoded.(*ImageArtifact)
	require.True(t, ok, "expected *ImageArtifact, got %T", decoded)
	assert.Equal(t, img, got)
	assert.Equal(t, ArtifactImage, got.Kind())
}

func TestMarshalArtifactPinsDiscriminator(t *testing.T) {
	code := &CodeArtifact{ArtifactBase: ArtifactBase{ID: "artifact_1", Data: "print(1)"}, Language: "python"}

	raw, err := MarshalArtifact(code)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "code", fields["type"])
	assert.Equal(t, "python", fields["language"])
}

func TestUnmarshalArtifactRejectsUnknownType(t *testing.T) {
	_, err := UnmarshalArtifact([]byte(`{"artifactId":"a1","type":"chart","data":"x"}`))
	assert.ErrorIs(t, err, ErrUnknownArtifactType)

	_, err = UnmarshalArtifact([]byte(`not json`))
	assert.Error(t, err)
}

func TestMessageRoundTripWithEmbeddedArtifacts(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 8, time.UTC)
	csv := NewCSVArtifact("a,b\n1,2\n", "numbers", 1, 2)
	csv.Timestamp = ts
	text := NewTextArtifact("hello", "")
	text.Timestamp = ts

	msg := &Message{
		ID:        "message_1",
		SessionID: "session_1",
		Role:      RoleUser,
		Timestamp: ts,
		Content:   "see attached",
		Artifacts: ArtifactList{csv, text},
	}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, *msg, decoded)
	require.Len(t, decoded.Artifacts, 2)
	assert.Equal(t, ArtifactCSV, decoded.Artifacts[0].Kind())
	assert.Equal(t, ArtifactText, decoded.Artifacts[1].Kind())
}

func TestMessageDisplayable(t *testing.T) {
	assert.True(t, (&Message{Role: RoleUser, Content: "hi"}).Displayable())
	assert.True(t, (&Message{Role: RoleAssistant, Artifacts: ArtifactList{NewTextArtifact("x", "")}}).Displayable())
	assert.False(t, (&Message{Role: RoleSystem, Content: "prompt"}).Displayable())
	assert.False(t, (&Message{Role: RoleTool, Content: "result"}).Displayable())
	assert.False(t, (&Message{Role: RoleAssistant, Content: "  "}).Displayable())
}

func TestContentType(t *testing.T) {
	img := NewImageArtifact("", "")
	img.Format = "jpeg"
	assert.Equal(t, "image/jpeg", ContentType(img))
	assert.Equal(t, "text/csv", ContentType(NewCSVArtifact("", "", 0, 0)))
	assert.Equal(t, "text/plain; charset=utf-8", ContentType(NewCodeArtifact("x", "python", "")))
}
