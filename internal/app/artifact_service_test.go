package app

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datachat/internal/model"
)

func messageWithTwoArtifacts(t *testing.T, env *testEnv) (MessageRef, *model.TextArtifact, *model.CodeArtifact) {
	t.Helper()
	ctx := context.Background()
	session := env.newSession(t, "u1")
	msg, err := env.messages.PushUserMessage(ctx, session.ID, "u1", "attachments")
	require.NoError(t, err)
	ref := MessageRef{MessageID: msg.ID, SessionID: session.ID, UserID: "u1"}

	text, err := env.artifacts.CreateTextArtifact(ctx, ref, "meeting notes", "notes")
	require.NoError(t, err)
	code, err := env.artifacts.CreateCodeArtifact(ctx, ref, "df.describe()", "python", "summary")
	require.NoError(t, err)
	return ref, text, code
}

func TestDeleteOneOfTwoArtifacts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ref, text, code := messageWithTwoArtifacts(t, env)

	deleted, err := env.artifacts.DeleteArtifact(ctx, ref, text.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	ids, err := env.store.ArtifactIDsForMessage(ctx, ref.MessageID, ref.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{code.ID}, ids)

	_, err = env.artifacts.GetArtifact(ctx, ref, text.ID)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	got, err := env.store.GetArtifact(ctx, text.ID, ref.MessageID)
	require.NoError(t, err)
	assert.Nil(t, got)

	summary, err := env.sessions.GetSessionSummary(ctx, ref.SessionID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NumArtifacts)

	_, err = env.artifacts.DeleteArtifact(ctx, ref, text.ID)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestArtifactAccessNeedsFullChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ref, text, _ := messageWithTwoArtifacts(t, env)

	other := env.newSession(t, "u1")
	cases := map[string]MessageRef{
		"wrong user":    {MessageID: ref.MessageID, SessionID: ref.SessionID, UserID: "u2"},
		"wrong session": {MessageID: ref.MessageID, SessionID: other.ID, UserID: "u1"},
		"wrong message": {MessageID: "message_missing", SessionID: ref.SessionID, UserID: "u1"},
	}
	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.artifacts.GetArtifact(ctx, bad, text.ID)
			assert.ErrorIs(t, err, ErrArtifactNotFound)
			_, err = env.artifacts.DeleteArtifact(ctx, bad, text.ID)
			assert.ErrorIs(t, err, ErrArtifactNotFound)
			_, err = env.artifacts.CreateTextArtifact(ctx, bad, "orphan", "")
			assert.ErrorIs(t, err, ErrMessageNotFound)
		})
	}

	got, err := env.artifacts.GetArtifact(ctx, ref, text.ID)
	require.NoError(t, err)
	assert.Equal(t, "meeting notes", got.Meta().Data)

	listed, err := env.artifacts.ListForMessage(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestCreateImageArtifact(t *testing.T) {
	env := newTestEnv(t)
	uploader := &recordingUploader{}
	env.artifacts = NewArtifactService(env.store, uploader)
	ctx := context.Background()
	session := env.newSession(t, "u1")
	msg, err := env.messages.PushUserMessage(ctx, session.ID, "u1", "photo")
	require.NoError(t, err)
	ref := MessageRef{MessageID: msg.ID, SessionID: session.ID, UserID: "u1"}

	raw := pngBytes(t, 800, 600)
	image, err := env.artifacts.CreateImageArtifact(ctx, ref, raw, "chart", "bar chart")
	require.NoError(t, err)
	assert.Equal(t, 800, image.Width)
	assert.Equal(t, 600, image.Height)
	assert.Equal(t, "png", image.Format)
	assert.NotEmpty(t, image.ThumbnailData)
	assert.Equal(t, "https://blobs.example.test/image/"+image.ID, image.URL)
	assert.Equal(t, []string{"image/" + image.ID}, uploader.keys)

	stored, err := env.artifacts.GetArtifact(ctx, ref, image.ID)
	require.NoError(t, err)
	payload, err := Payload(stored)
	require.NoError(t, err)
	assert.Equal(t, raw, payload)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), stored.Meta().Data)

	_, err = env.artifacts.CreateImageArtifact(ctx, ref, []byte("not an image"), "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUploadFailureKeepsArtifact(t *testing.T) {
	env := newTestEnv(t)
	env.artifacts = NewArtifactService(env.store, &recordingUploader{err: assert.AnError})

	artifact, err := env.artifacts.BuildCSVArtifact(context.Background(), []byte(salesCSV), "sales")
	require.NoError(t, err)
	assert.Empty(t, artifact.URL)
	assert.Equal(t, []string{"region", "units", "price"}, artifact.Columns)

	_, err = env.artifacts.BuildCSVArtifact(context.Background(), nil, "empty")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateDescription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ref, _, code := messageWithTwoArtifacts(t, env)

	updated, err := env.artifacts.UpdateDescription(ctx, ref, code.ID, "  describe the table ")
	require.NoError(t, err)
	assert.Equal(t, "describe the table", updated.Meta().Description)

	got, err := env.artifacts.GetArtifact(ctx, ref, code.ID)
	require.NoError(t, err)
	assert.Equal(t, "describe the table", got.Meta().Description)
	assert.Equal(t, "python", got.(*model.CodeArtifact).Language)
}
