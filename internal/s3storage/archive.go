// Package s3storage mirrors submitted attachments into an S3-compatible
// bucket, keyed by drive folder name and upload group.
package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/GBSLIT/FairForm/internal/config"
	"github.com/GBSLIT/FairForm/internal/model"
	"github.com/GBSLIT/FairForm/internal/naming"
	"github.com/GBSLIT/FairForm/internal/upload"
)

// Archive wraps the MinIO client for the archive bucket.
type Archive struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the archive settings.
func New(cfg config.ArchiveConfig) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Archive{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// EnsureBucket creates the archive bucket when it does not exist yet.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", a.bucket, err)
		}
	}
	return nil
}

// Archive stores one attachment under ObjectKey.
func (a *Archive) Archive(ctx context.Context, folder string, group model.GroupName, file model.Attachment) error {
	key := ObjectKey(folder, group, file.Filename)
	opts := minio.PutObjectOptions{ContentType: upload.ContentType(file)}
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(file.Data), int64(len(file.Data)), opts)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// ObjectKey returns <folder>/<group>/<sanitized filename>.
func ObjectKey(folder string, group model.GroupName, filename string) string {
	return path.Join(folder, string(group), naming.SanitizeFilename(filename))
}
