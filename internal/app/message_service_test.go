package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datachat/internal/model"
)

func sessionTitle(t *testing.T, env *testEnv, sessionID string) *string {
	t.Helper()
	session, err := env.store.GetSession(context.Background(), sessionID, "u1")
	require.NoError(t, err)
	require.NotNil(t, session)
	return session.Title
}

func TestFirstUserMessageSetsTitle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.newSession(t, "u1")

	_, err := env.messages.PushAssistantMessage(ctx, session.ID, "u1", "Welcome! How can I help?")
	require.NoError(t, err)
	assert.Nil(t, sessionTitle(t, env, session.ID))

	_, err = env.messages.PushUserMessage(ctx, session.ID, "u1", "  Plot revenue by month  ")
	require.NoError(t, err)
	title := sessionTitle(t, env, session.ID)
	require.NotNil(t, title)
	assert.Equal(t, "Plot revenue by month", *title)

	_, err = env.messages.PushUserMessage(ctx, session.ID, "u1", "And by quarter?")
	require.NoError(t, err)
	assert.Equal(t, "Plot revenue by month", *sessionTitle(t, env, session.ID))
}

func TestLongFirstMessageTitleIsTruncated(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t, "u1")
	content := strings.Repeat("ab", 40)

	_, err := env.messages.PushUserMessage(context.Background(), session.ID, "u1", content)
	require.NoError(t, err)

	title := sessionTitle(t, env, session.ID)
	require.NotNil(t, title)
	assert.Equal(t, content[:47]+"...", *title)
	assert.Len(t, []rune(*title), 50)
}

func TestTitleFromContent(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{name: "short", content: "hello", want: "hello"},
		{name: "exactly fifty", content: strings.Repeat("x", 50), want: strings.Repeat("x", 50)},
		{name: "fifty one", content: strings.Repeat("x", 51), want: strings.Repeat("x", 47) + "..."},
		{name: "multibyte", content: strings.Repeat("数", 60), want: strings.Repeat("数", 47) + "..."},
		{name: "blank", content: "   ", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, titleFromContent(tc.content))
		})
	}
}

func TestExistingTitleIsKept(t *testing.T) {
	env := newTestEnv(t)
	session, err := env.sessions.CreateSession(context.Background(), CreateSessionInput{UserID: "u1", Title: "Budget"})
	require.NoError(t, err)

	_, err = env.messages.PushUserMessage(context.Background(), session.ID, "u1", "first question")
	require.NoError(t, err)
	assert.Equal(t, "Budget", *sessionTitle(t, env, session.ID))
}

func TestPushMessageValidatesOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.newSession(t, "u1")

	_, err := env.messages.PushUserMessage(ctx, session.ID, "u2", "intruder")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = env.messages.PushUserMessage(ctx, "session_missing", "u1", "hi")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = env.messages.PushMessage(ctx, PushMessageInput{SessionID: session.ID, UserID: "u1", Role: "narrator", Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	ids, err := env.store.MessageIDsForSession(ctx, session.ID, "u1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPushMessageDetachedArtifacts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.newSession(t, "u1")
	notes := model.NewTextArtifact("remember the milk", "notes")

	msg, err := env.messages.PushMessage(ctx, PushMessageInput{
		SessionID:       session.ID,
		UserID:          "u1",
		Role:            model.RoleUser,
		Content:         "see notes",
		Artifacts:       []model.Artifact{notes},
		DetachArtifacts: true,
	})
	require.NoError(t, err)
	require.Len(t, msg.Artifacts, 1)

	stored, err := env.store.GetMessage(ctx, msg.ID, session.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Artifacts)

	full, err := env.messages.GetMessageWithArtifacts(ctx, msg.ID, session.ID, "u1")
	require.NoError(t, err)
	require.Len(t, full.Artifacts, 1)
	assert.Equal(t, notes.ID, full.Artifacts[0].Meta().ID)
}

func TestDeleteMessageRecomputesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.newSession(t, "u1")
	keep, err := env.messages.PushUserMessage(ctx, session.ID, "u1", "keep")
	require.NoError(t, err)
	drop, err := env.messages.PushAssistantMessage(ctx, session.ID, "u1", "drop",
		model.NewTextArtifact("a", "a"), model.NewCodeArtifact("print(1)", "python", "b"))
	require.NoError(t, err)

	_, err = env.messages.DeleteMessage(ctx, drop.ID, session.ID, "u2")
	assert.ErrorIs(t, err, ErrMessageNotFound)

	deleted, err := env.messages.DeleteMessage(ctx, drop.ID, session.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, deleted)

	summary, err := env.sessions.GetSessionSummary(ctx, session.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NumMessages)
	assert.Equal(t, 0, summary.NumArtifacts)

	listed, err := env.sessions.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 1, listed[0].NumMessages)
	assert.Equal(t, 0, listed[0].NumArtifacts)

	got, err := env.sessions.GetCompleteSession(ctx, session.ID, "u1", AssembleOptions{IncludeArtifacts: true})
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, keep.ID, got.Messages[0].ID)

	_, err = env.messages.DeleteMessage(ctx, drop.ID, session.ID, "u1")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestAddArtifactToMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.newSession(t, "u1")
	msg, err := env.messages.PushUserMessage(ctx, session.ID, "u1", "hi")
	require.NoError(t, err)

	err = env.messages.AddArtifactToMessage(ctx, msg.ID, session.ID, "u2", model.NewTextArtifact("x", "y"))
	assert.ErrorIs(t, err, ErrMessageNotFound)

	extra := model.NewTextArtifact("later", "added afterwards")
	require.NoError(t, env.messages.AddArtifactToMessage(ctx, msg.ID, session.ID, "u1", extra))

	full, err := env.messages.GetMessageWithArtifacts(ctx, msg.ID, session.ID, "u1")
	require.NoError(t, err)
	require.Len(t, full.Artifacts, 1)
	assert.Equal(t, extra.ID, full.Artifacts[0].Meta().ID)

	summary, err := env.sessions.GetSessionSummary(ctx, session.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NumArtifacts)
}

func TestArchiveFailureDoesNotFailPush(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = assert.AnError
	session := env.newSession(t, "u1")

	_, err := env.messages.PushUserMessage(context.Background(), session.ID, "u1", "still saved")
	require.NoError(t, err)
	assert.Equal(t, []model.ArchiveEventKind{model.ArchiveMessageSaved}, env.publisher.kinds())
}
