package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datachat/internal/model"
)

func TestGetMessagesDropsBadRecords(t *testing.T) {
	ctx := context.Background()
	c, m := newTestCache(t)

	good := model.NewMessage("session_1", model.RoleUser, "good", nil)
	foreign := model.NewMessage("session_2", model.RoleUser, "foreign", nil)
	broken := model.NewMessage("session_1", model.RoleAssistant, "broken", nil)
	for _, msg := range []*model.Message{good, foreign, broken} {
		require.NoError(t, c.SaveMessage(ctx, msg, false))
	}
	require.NoError(t, m.Set(testPrefix+"message:"+broken.ID, "{broken"))

	ids := []string{good.ID, foreign.ID, broken.ID, "message_missing"}

	got, err := c.GetMessages(ctx, ids, "session_1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, good, got[0])

	got, err = c.GetMessages(ctx, ids, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, good.ID, got[0].ID)
	assert.Equal(t, foreign.ID, got[1].ID)
}

func TestGetArtifactsDropsBadRecords(t *testing.T) {
	ctx := context.Background()
	c, m := newTestCache(t)

	kept := model.NewCodeArtifact("print(1)", "python", "")
	broken := model.NewTextArtifact("notes", "")
	unknown := model.NewTextArtifact("later", "")
	for _, a := range []model.Artifact{kept, broken, unknown} {
		require.NoError(t, c.SaveArtifact(ctx, a))
	}
	require.NoError(t, m.Set(testPrefix+"artifact:"+broken.ID, "{broken"))
	require.NoError(t, m.Set(testPrefix+"artifact:"+unknown.ID, `{"artifactId":"x","type":"video"}`))

	got, err := c.GetArtifacts(ctx, []string{kept.ID, broken.ID, unknown.ID, "artifact_missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, kept, got[kept.ID])
}

func TestArtifactIDsForMessages(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	a := model.NewTextArtifact("a", "")
	b := model.NewTextArtifact("b", "")
	msg := model.NewMessage("session_1", model.RoleUser, "hi", []model.Artifact{a, b})
	require.NoError(t, c.SaveMessage(ctx, msg, true))

	index, err := c.ArtifactIDsForMessages(ctx, []string{msg.ID, "message_empty"})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, index[msg.ID])
	assert.Empty(t, index["message_empty"])
}
