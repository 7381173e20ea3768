// Package backup pushes the checkpoint file to S3-compatible object storage
// after each run. When no bucket is configured the NoopUploader is used and
// the system stays local-only; losing the checkpoint is survivable either
// way (reconciliation markers travel with the tasks), so backup only
// shortens the re-processing window after host loss.
package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotConfigured is returned when backup storage is not configured.
var ErrNotConfigured = errors.New("checkpoint backup not configured")

// defaultObjectKey is where the checkpoint lands in the bucket.
const defaultObjectKey = "plantbot/checkpoint/current.json"

// Uploader uploads the checkpoint file to backup storage.
type Uploader interface {
	Upload(ctx context.Context, filePath string) error
}

// s3Client is the minimal minio.Client surface S3Uploader uses, satisfied
// directly by *minio.Client and by test fakes.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Config holds backup storage settings. An empty Bucket disables backup.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	ObjectKey string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Compile-time interface checks
var (
	_ Uploader = (*S3Uploader)(nil)
	_ Uploader = (*NoopUploader)(nil)
)

// S3Uploader uploads the checkpoint to S3-compatible storage.
type S3Uploader struct {
	client s3Client
	bucket string
	object string
}

// Upload uploads the checkpoint file at filePath.
func (u *S3Uploader) Upload(ctx context.Context, filePath string) error {
	opts := minio.PutObjectOptions{ContentType: "application/json"}
	if _, err := u.client.FPutObject(ctx, u.bucket, u.object, filePath, opts); err != nil {
		return fmt.Errorf("uploading checkpoint: %w", err)
	}
	return nil
}

// NoopUploader is used when backup storage is not configured.
type NoopUploader struct{}

// Upload is a no-op.
func (u *NoopUploader) Upload(ctx context.Context, filePath string) error {
	return nil
}

// NewUploader creates the appropriate Uploader for cfg: NoopUploader when
// no bucket is configured, S3Uploader otherwise.
func NewUploader(cfg Config) (Uploader, error) {
	if cfg.Bucket == "" {
		return &NoopUploader{}, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating S3 client: %w", err)
	}

	object := cfg.ObjectKey
	if object == "" {
		object = defaultObjectKey
	}
	return &S3Uploader{client: client, bucket: cfg.Bucket, object: object}, nil
}
