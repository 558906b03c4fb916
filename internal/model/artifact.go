package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type ArtifactType string

const (
	ArtifactImage ArtifactType = "image"
	ArtifactCSV   ArtifactType = "csv"
	ArtifactText  ArtifactType = "text"
	ArtifactCode  ArtifactType = "code"
)

var ErrUnknownArtifactType = errors.New("unknown artifact type")

// Artifact is a closed union: only the four variants in this package implement it.
type Artifact interface {
	Meta() *ArtifactBase
	Kind() ArtifactType
	isArtifact()
}

type ArtifactBase struct {
	ID          string       `json:"artifactId"`
	Type        ArtifactType `json:"type"`
	Data        string       `json:"data"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

func (b *ArtifactBase) Meta() *ArtifactBase { return b }

func newArtifactBase(kind ArtifactType, data, description string) ArtifactBase {
	return ArtifactBase{
		ID:          NewID("artifact"),
		Type:        kind,
		Data:        data,
		Description: description,
		Timestamp:   time.Now().UTC(),
	}
}

type ImageArtifact struct {
	ArtifactBase
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	Format        string `json:"format,omitempty"`
	ThumbnailData string `json:"thumbnail_data,omitempty"`
	AltText       string `json:"alt_text,omitempty"`
}

type CSVArtifact struct {
	ArtifactBase
	NumRows    int      `json:"num_rows"`
	NumColumns int      `json:"num_columns"`
	Columns    []string `json:"columns,omitempty"`
}

type TextArtifact struct {
	ArtifactBase
	Length int `json:"length"`
}

type CodeArtifact struct {
	ArtifactBase
	Length   int    `json:"length"`
	Language string `json:"language,omitempty"`
}

func NewImageArtifact(data, description string) *ImageArtifact {
	return &ImageArtifact{ArtifactBase: newArtifactBase(ArtifactImage, data, description)}
}

func NewCSVArtifact(data, description string, rows, columns int) *CSVArtifact {
	return &CSVArtifact{
		ArtifactBase: newArtifactBase(ArtifactCSV, data, description),
		NumRows:      rows,
		NumColumns:   columns,
	}
}

func NewTextArtifact(text, description string) *TextArtifact {
	return &TextArtifact{
		ArtifactBase: newArtifactBase(ArtifactText, text, description),
		Length:       len([]rune(text)),
	}
}

func NewCodeArtifact(code, language, description string) *CodeArtifact {
	return &CodeArtifact{
		ArtifactBase: newArtifactBase(ArtifactCode, code, description),
		Length:       len([]rune(code)),
		Language:     language,
	}
}

func (*ImageArtifact) Kind() ArtifactType { return ArtifactImage }
func (*CSVArtifact) Kind() ArtifactType   { return ArtifactCSV }
func (*TextArtifact) Kind() ArtifactType  { return ArtifactText }
func (*CodeArtifact) Kind() ArtifactType  { return ArtifactCode }

func (*ImageArtifact) isArtifact() {}
func (*CSVArtifact) isArtifact()   {}
func (*TextArtifact) isArtifact()  {}
func (*CodeArtifact) isArtifact()  {}

// The per-variant marshalers pin the discriminator so a zero Type never reaches the store.

func (a *ImageArtifact) MarshalJSON() ([]byte, error) {
	type plain ImageArtifact
	out := plain(*a)
	out.Type = ArtifactImage
	return json.Marshal(out)
}

func (a *CSVArtifact) MarshalJSON() ([]byte, error) {
	type plain CSVArtifact
	out := plain(*a)
	out.Type = ArtifactCSV
	return json.Marshal(out)
}

func (a *TextArtifact) MarshalJSON() ([]byte, error) {
	type plain TextArtifact
	out := plain(*a)
	out.Type = ArtifactText
	return json.Marshal(out)
}

func (a *CodeArtifact) MarshalJSON() ([]byte, error) {
	type plain CodeArtifact
	out := plain(*a)
	out.Type = ArtifactCode
	return json.Marshal(out)
}

func MarshalArtifact(a Artifact) ([]byte, error) {
	if a == nil {
		return nil, errors.New("marshal artifact failed: nil artifact")
	}
	return json.Marshal(a)
}

// UnmarshalArtifact decodes a stored record into the variant named by its type tag.
func UnmarshalArtifact(raw []byte) (Artifact, error) {
	var head struct {
		Type ArtifactType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode artifact type failed: %w", err)
	}

	var out Artifact
	switch head.Type {
	case ArtifactImage:
		out = &ImageArtifact{}
	case ArtifactCSV:
		out = &CSVArtifact{}
	case ArtifactText:
		out = &TextArtifact{}
	case ArtifactCode:
		out = &CodeArtifact{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownArtifactType, head.Type)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode %s artifact failed: %w", head.Type, err)
	}
	return out, nil
}

// ContentType is the MIME type used when the artifact payload is uploaded as an object.
func ContentType(a Artifact) string {
	switch v := a.(type) {
	case *ImageArtifact:
		if v.Format != "" {
			return "image/" + v.Format
		}
		return "image/png"
	case *CSVArtifact:
		return "text/csv"
	case *TextArtifact, *CodeArtifact:
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

type ArtifactList []Artifact

func (l *ArtifactList) UnmarshalJSON(raw []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	if items == nil {
		*l = nil
		return nil
	}
	out := make(ArtifactList, 0, len(items))
	for _, item := range items {
		artifact, err := UnmarshalArtifact(item)
		if err != nil {
			return err
		}
		out = append(out, artifact)
	}
	*l = out
	return nil
}
