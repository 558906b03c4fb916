package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datachat/internal/model"
)

type fakeArchive struct {
	upserted        []*model.ArchivedMessage
	deletedMessages []string
	deletedSessions []string
	err             error
}

func (f *fakeArchive) Upsert(_ context.Context, message *model.ArchivedMessage) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, message)
	return nil
}

func (f *fakeArchive) DeleteMessage(_ context.Context, messageID string) (int64, error) {
	f.deletedMessages = append(f.deletedMessages, messageID)
	return 1, f.err
}

func (f *fakeArchive) DeleteSession(_ context.Context, sessionID string) (int64, error) {
	f.deletedSessions = append(f.deletedSessions, sessionID)
	return 3, f.err
}

func encode(t *testing.T, event model.ArchiveEvent) []byte {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body
}

func TestHandleMessageSaved(t *testing.T) {
	store := &fakeArchive{}
	w := NewArchiveWorker(nil, store, "archive")

	msg := model.NewMessage("session_1", model.RoleUser, "hello", []model.Artifact{
		model.NewTextArtifact("notes", "n"),
		model.NewCodeArtifact("print(1)", "python", "c"),
	})
	err := w.handle(context.Background(), encode(t, model.ArchiveEvent{
		Kind:      model.ArchiveMessageSaved,
		UserID:    "user_1",
		SessionID: "session_1",
		MessageID: msg.ID,
		Message:   msg,
	}))
	require.NoError(t, err)

	require.Len(t, store.upserted, 1)
	got := store.upserted[0]
	assert.Equal(t, msg.ID, got.MessageID)
	assert.Equal(t, "session_1", got.SessionID)
	assert.Equal(t, "user_1", got.UserID)
	assert.Equal(t, "user", got.Role)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, msg.Artifacts[0].Meta().ID+","+msg.Artifacts[1].Meta().ID, got.ArtifactIDs)
	assert.True(t, msg.Timestamp.Equal(got.SentAt))
}

func TestHandleDeletes(t *testing.T) {
	store := &fakeArchive{}
	w := NewArchiveWorker(nil, store, "archive")
	ctx := context.Background()

	require.NoError(t, w.handle(ctx, encode(t, model.ArchiveEvent{Kind: model.ArchiveMessageDeleted, SessionID: "s", MessageID: "m"})))
	require.NoError(t, w.handle(ctx, encode(t, model.ArchiveEvent{Kind: model.ArchiveSessionDeleted, SessionID: "s"})))

	assert.Equal(t, []string{"m"}, store.deletedMessages)
	assert.Equal(t, []string{"s"}, store.deletedSessions)
}

func TestHandleMalformed(t *testing.T) {
	w := NewArchiveWorker(nil, &fakeArchive{}, "archive")
	ctx := context.Background()

	cases := map[string][]byte{
		"not json":           []byte("{"),
		"unknown kind":       encode(t, model.ArchiveEvent{Kind: "renamed"}),
		"saved without body": encode(t, model.ArchiveEvent{Kind: model.ArchiveMessageSaved, MessageID: "m"}),
		"delete without id":  encode(t, model.ArchiveEvent{Kind: model.ArchiveMessageDeleted}),
		"session without id": encode(t, model.ArchiveEvent{Kind: model.ArchiveSessionDeleted}),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			err := w.handle(ctx, body)
			assert.ErrorIs(t, err, errMalformedEvent)
		})
	}
}

func TestHandleStoreFailureIsRetryable(t *testing.T) {
	boom := errors.New("mysql down")
	w := NewArchiveWorker(nil, &fakeArchive{err: boom}, "archive")

	err := w.handle(context.Background(), encode(t, model.ArchiveEvent{Kind: model.ArchiveSessionDeleted, SessionID: "s"}))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, errMalformedEvent)
}
