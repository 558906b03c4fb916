package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"datachat/internal/model"
	"datachat/internal/pkg/imageutil"
	"datachat/internal/pkg/tabular"
)

// Uploader copies artifact payloads to blob storage and returns a public URL.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// MessageRef names a message together with the chain that must own it.
type MessageRef struct {
	MessageID string
	SessionID string
	UserID    string
}

func (r MessageRef) valid() bool {
	return r.MessageID != "" && r.SessionID != "" && r.UserID != ""
}

type ArtifactService struct {
	store    ChatStore
	uploader Uploader
}

func NewArtifactService(store ChatStore, uploader Uploader) *ArtifactService {
	return &ArtifactService{
		store:    store,
		uploader: uploader,
	}
}

func (s *ArtifactService) BuildCSVArtifact(ctx context.Context, raw []byte, description string) (*model.CSVArtifact, error) {
	stats, err := tabular.Inspect(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	artifact := model.NewCSVArtifact(string(raw), description, stats.Rows, stats.Columns)
	artifact.Columns = stats.Header
	s.upload(ctx, artifact, raw)
	return artifact, nil
}

// BuildImageArtifact stores the image base64-encoded alongside its dimensions and a PNG thumbnail.
func (s *ArtifactService) BuildImageArtifact(ctx context.Context, raw []byte, description, altText string) (*model.ImageArtifact, error) {
	info, err := imageutil.Inspect(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	artifact := model.NewImageArtifact(base64.StdEncoding.EncodeToString(raw), description)
	artifact.Width = info.Width
	artifact.Height = info.Height
	artifact.Format = info.Format
	artifact.ThumbnailData = base64.StdEncoding.EncodeToString(info.Thumbnail)
	artifact.AltText = altText
	s.upload(ctx, artifact, raw)
	return artifact, nil
}

func (s *ArtifactService) BuildTextArtifact(ctx context.Context, text, description string) *model.TextArtifact {
	artifact := model.NewTextArtifact(text, description)
	s.upload(ctx, artifact, []byte(text))
	return artifact
}

func (s *ArtifactService) BuildCodeArtifact(ctx context.Context, code, language, description string) *model.CodeArtifact {
	artifact := model.NewCodeArtifact(code, language, description)
	s.upload(ctx, artifact, []byte(code))
	return artifact
}

// upload is best effort: on failure the artifact simply keeps an empty URL.
func (s *ArtifactService) upload(ctx context.Context, artifact model.Artifact, payload []byte) {
	if s.uploader == nil {
		return
	}
	meta := artifact.Meta()
	key := string(artifact.Kind()) + "/" + meta.ID
	url, err := s.uploader.Upload(ctx, key, model.ContentType(artifact), payload)
	if err != nil {
		log.WithError(err).WithField("artifact_id", meta.ID).Warn("artifact upload failed")
		return
	}
	meta.URL = url
}

func (s *ArtifactService) CreateCSVArtifact(ctx context.Context, ref MessageRef, raw []byte, description string) (*model.CSVArtifact, error) {
	if err := s.checkOwner(ctx, ref); err != nil {
		return nil, err
	}
	artifact, err := s.BuildCSVArtifact(ctx, raw, description)
	if err != nil {
		return nil, err
	}
	if err := s.attach(ctx, ref, artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

func (s *ArtifactService) CreateImageArtifact(ctx context.Context, ref MessageRef, raw []byte, description, altText string) (*model.ImageArtifact, error) {
	if err := s.checkOwner(ctx, ref); err != nil {
		return nil, err
	}
	artifact, err := s.BuildImageArtifact(ctx, raw, description, altText)
	if err != nil {
		return nil, err
	}
	if err := s.attach(ctx, ref, artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

func (s *ArtifactService) CreateTextArtifact(ctx context.Context, ref MessageRef, text, description string) (*model.TextArtifact, error) {
	if err := s.checkOwner(ctx, ref); err != nil {
		return nil, err
	}
	artifact := s.BuildTextArtifact(ctx, text, description)
	if err := s.attach(ctx, ref, artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

func (s *ArtifactService) CreateCodeArtifact(ctx context.Context, ref MessageRef, code, language, description string) (*model.CodeArtifact, error) {
	if err := s.checkOwner(ctx, ref); err != nil {
		return nil, err
	}
	artifact := s.BuildCodeArtifact(ctx, code, language, description)
	if err := s.attach(ctx, ref, artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

// checkOwner runs before any upload so an unreachable message never produces a blob.
func (s *ArtifactService) checkOwner(ctx context.Context, ref MessageRef) error {
	if !ref.valid() {
		return ErrInvalidInput
	}
	msg, err := s.store.GetMessageWithFullOwnership(ctx, ref.MessageID, ref.SessionID, ref.UserID)
	if err != nil {
		return fmt.Errorf("load message failed: %w", err)
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	return nil
}

func (s *ArtifactService) attach(ctx context.Context, ref MessageRef, artifact model.Artifact) error {
	if err := attachToOwnedMessage(ctx, s.store, ref.MessageID, ref.SessionID, ref.UserID, artifact); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"artifact_id": artifact.Meta().ID,
		"message_id":  ref.MessageID,
		"type":        artifact.Kind(),
	}).Info("artifact created")
	return nil
}

func (s *ArtifactService) GetArtifact(ctx context.Context, ref MessageRef, artifactID string) (model.Artifact, error) {
	if !ref.valid() || artifactID == "" {
		return nil, ErrInvalidInput
	}
	artifact, err := s.store.GetArtifactWithFullOwnership(ctx, artifactID, ref.MessageID, ref.SessionID, ref.UserID)
	if err != nil {
		return nil, fmt.Errorf("load artifact failed: %w", err)
	}
	if artifact == nil {
		return nil, ErrArtifactNotFound
	}
	return artifact, nil
}

func (s *ArtifactService) ListForMessage(ctx context.Context, ref MessageRef) (model.ArtifactList, error) {
	if err := s.checkOwner(ctx, ref); err != nil {
		return nil, err
	}
	return loadIndexedArtifacts(ctx, s.store, ref.MessageID)
}

func (s *ArtifactService) UpdateDescription(ctx context.Context, ref MessageRef, artifactID, description string) (model.Artifact, error) {
	artifact, err := s.GetArtifact(ctx, ref, artifactID)
	if err != nil {
		return nil, err
	}
	artifact.Meta().Description = strings.TrimSpace(description)
	if err := s.store.SaveArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("save artifact failed: %w", err)
	}
	return artifact, nil
}

func (s *ArtifactService) DeleteArtifact(ctx context.Context, ref MessageRef, artifactID string) (int, error) {
	if !ref.valid() || artifactID == "" {
		return 0, ErrInvalidInput
	}
	deleted, err := s.store.DeleteArtifactWithFullOwnership(ctx, artifactID, ref.MessageID, ref.SessionID, ref.UserID)
	if err != nil {
		return 0, fmt.Errorf("delete artifact failed: %w", err)
	}
	if deleted == 0 {
		return 0, ErrArtifactNotFound
	}
	if err := refreshOwnedSession(ctx, s.store, ref.SessionID, ref.UserID); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// Payload returns the artifact content as raw bytes; image data is stored base64-encoded.
func Payload(artifact model.Artifact) ([]byte, error) {
	switch a := artifact.(type) {
	case *model.ImageArtifact:
		raw, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			return nil, fmt.Errorf("decode image payload failed: %w", err)
		}
		return raw, nil
	case *model.CSVArtifact, *model.TextArtifact, *model.CodeArtifact:
		return []byte(artifact.Meta().Data), nil
	}
	return nil, errors.New("unsupported artifact")
}
