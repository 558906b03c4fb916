package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteSendsImagePartsAndReturnsContent(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"a red square"}}]}`)
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, 0)
	out, err := client.Complete(context.Background(), ChatConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-test"}, []ChatMessage{
		{Role: "system", Content: VisionSystemPrompt},
		{Role: "user", Content: "what is this?", Images: []string{"data:image/png;base64,aGk="}},
	})
	require.NoError(t, err)
	assert.Equal(t, "a red square", out)

	assert.Equal(t, "gpt-test", captured["model"])
	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)

	user := messages[1].(map[string]any)
	parts, ok := user["content"].([]any)
	require.True(t, ok, "image turns are sent as content parts")
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	assert.Equal(t, "image_url", parts[1].(map[string]any)["type"])
}

func TestCompleteSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, 0)
	_, err := client.Complete(context.Background(), ChatConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"}, []ChatMessage{{Role: "user", Content: "hi"}})
	assert.Error(t, err)
}
