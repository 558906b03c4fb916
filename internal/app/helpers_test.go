package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"datachat/internal/ai"
	"datachat/internal/cache"
	"datachat/internal/executor"
	"datachat/internal/model"
)

const salesCSV = "region,units,price\nnorth,10,2.5\nsouth,4,3.0\neast,7,2.0\nwest,12,1.5\n"

type testEnv struct {
	redis     *miniredis.Miniredis
	store     *cache.ChatCache
	publisher *recordingPublisher
	sessions  *SessionService
	messages  *MessageService
	artifacts *ArtifactService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	m := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := cache.NewChatCache(client, "chatapp:test:", time.Hour)
	publisher := &recordingPublisher{}
	return &testEnv{
		redis:     m,
		store:     store,
		publisher: publisher,
		sessions:  NewSessionService(store, publisher),
		messages:  NewMessageService(store, publisher),
		artifacts: NewArtifactService(store, nil),
	}
}

func (e *testEnv) newSession(t *testing.T, userID string) *model.Session {
	t.Helper()
	session, err := e.sessions.CreateSession(context.Background(), CreateSessionInput{UserID: userID})
	require.NoError(t, err)
	return session
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ArchiveEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event model.ArchiveEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) kinds() []model.ArchiveEventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ArchiveEventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

type recordingUploader struct {
	keys []string
	err  error
}

func (u *recordingUploader) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	u.keys = append(u.keys, key)
	if u.err != nil {
		return "", u.err
	}
	return "https://blobs.example.test/" + key, nil
}

// scriptedLLM replays replies in order and records every prompt it was given.
type scriptedLLM struct {
	replies []string
	err     error
	prompts [][]ai.ChatMessage
}

func (l *scriptedLLM) next(messages []ai.ChatMessage) (string, error) {
	l.prompts = append(l.prompts, messages)
	if l.err != nil {
		return "", l.err
	}
	if len(l.replies) == 0 {
		return "", errors.New("no scripted reply left")
	}
	reply := l.replies[0]
	l.replies = l.replies[1:]
	return reply, nil
}

func (l *scriptedLLM) Complete(_ context.Context, _ ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	return l.next(messages)
}

func (l *scriptedLLM) StreamComplete(_ context.Context, _ ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	reply, err := l.next(messages)
	if err != nil {
		return "", err
	}
	for _, word := range strings.SplitAfter(reply, " ") {
		if err := onChunk(word); err != nil {
			return "", err
		}
	}
	return reply, nil
}

type scriptedRunner struct {
	results  []*executor.RunResult
	requests []executor.RunRequest
}

func (r *scriptedRunner) Run(_ context.Context, req executor.RunRequest) (*executor.RunResult, error) {
	r.requests = append(r.requests, req)
	if len(r.results) == 0 {
		return nil, errors.New("no scripted result left")
	}
	result := r.results[0]
	r.results = r.results[1:]
	return result, nil
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 7 {
		img.Set(x, height/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
