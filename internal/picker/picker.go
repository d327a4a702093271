// Package picker is the document-picker collaborator: it browses a
// remote object-storage bucket of previously uploaded filings and turns a
// user selection into a fully-formed DocumentRef.
package picker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/oklog/ulid/v2"

	"github.com/jubeelegal/jubee/internal/models"
)

// ErrSelectionCancelled is returned when the user aborts the picker
// without choosing a document. Not an error condition for the engine; the
// defect simply stays pending.
var ErrSelectionCancelled = errors.New("selection cancelled")

// Config holds the object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Picker lists and fetches stored documents from a MinIO/S3 bucket.
type Picker struct {
	client *minio.Client
	bucket string
}

// New creates a picker over the configured bucket.
func New(cfg Config) (*Picker, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Picker{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (p *Picker) EnsureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Entry is one stored document shown to the user.
type Entry struct {
	Key          string
	DisplayName  string
	SizeBytes    int64
	LastModified time.Time
}

// List returns the stored documents under the given prefix.
func (p *Picker) List(ctx context.Context, prefix string) ([]Entry, error) {
	var entries []Entry
	for obj := range p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		entries = append(entries, Entry{
			Key:          obj.Key,
			DisplayName:  path.Base(obj.Key),
			SizeBytes:    obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return entries, nil
}

// Select turns a chosen object key into a DocumentRef. An empty key means
// the user dismissed the picker and yields ErrSelectionCancelled.
func (p *Picker) Select(ctx context.Context, key string, role models.DocumentRole) (*models.DocumentRef, error) {
	if key == "" {
		return nil, ErrSelectionCancelled
	}

	stat, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}

	contentType := stat.ContentType
	if contentType == "" && strings.HasSuffix(strings.ToLower(key), ".pdf") {
		contentType = models.PDFContentType
	}

	now := time.Now().UTC()
	return &models.DocumentRef{
		ID:          newULID(),
		DisplayName: path.Base(key),
		Role:        role,
		ContentType: contentType,
		SizeBytes:   stat.Size,
		StorageKey:  key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// PresignedURL generates a time-limited download link for a stored document.
func (p *Picker) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := p.client.PresignedGetObject(ctx, p.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
