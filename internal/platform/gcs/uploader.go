package gcs

import (
	"context"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// NewClient builds a storage client from a service account file, or from the ambient
// application default credentials when the file is empty.
func NewClient(ctx context.Context, credentialsFile string) (*storage.Client, error) {
	if credentialsFile != "" {
		return storage.NewClient(ctx, option.WithCredentialsFile(credentialsFile))
	}
	return storage.NewClient(ctx)
}

// Uploader writes artifact payloads to a bucket and hands back their public URL.
type Uploader struct {
	client        *storage.Client
	bucket        string
	prefix        string
	publicBaseURL string
}

func NewUploader(client *storage.Client, bucket, prefix, publicBaseURL string) *Uploader {
	return &Uploader{
		client:        client,
		bucket:        bucket,
		prefix:        strings.Trim(prefix, "/"),
		publicBaseURL: publicBaseURL,
	}
}

func (u *Uploader) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	name := u.objectName(key)
	w := u.client.Bucket(u.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s failed: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close object %s failed: %w", name, err)
	}
	return u.PublicURL(name), nil
}

func (u *Uploader) objectName(key string) string {
	key = strings.TrimLeft(key, "/")
	if u.prefix == "" {
		return key
	}
	return path.Join(u.prefix, key)
}

func (u *Uploader) PublicURL(objectName string) string {
	base := u.publicBaseURL
	if base == "" {
		base = "https://storage.googleapis.com/" + u.bucket
	}
	return strings.TrimRight(base, "/") + "/" + objectName
}
