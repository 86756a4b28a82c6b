// Package storage keeps evidence attachments for mistake reports in an S3
// compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MaxEvidenceSize caps a single upload.
const MaxEvidenceSize = 10 << 20

var allowedContentTypes = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Evidence uploads files under reports/<report id>/<uuid><ext>.
type Evidence struct {
	client  *minio.Client
	bucket  string
	baseURL string
	log     *zap.Logger
}

func NewEvidence(ctx context.Context, cfg Config, log *zap.Logger) (*Evidence, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info("created evidence bucket", zap.String("bucket", cfg.Bucket))
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return &Evidence{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: scheme + "://" + cfg.Endpoint,
		log:     log,
	}, nil
}

// AllowedContentType reports whether uploads of this type are accepted.
func AllowedContentType(contentType string) bool {
	_, ok := allowedContentTypes[normalizeType(contentType)]
	return ok
}

// ObjectKey builds the object name for a new upload.
func ObjectKey(reportID, contentType string) string {
	return path.Join("reports", reportID, uuid.New().String()+allowedContentTypes[normalizeType(contentType)])
}

func normalizeType(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// Upload stores r and returns the object URL.
func (e *Evidence) Upload(ctx context.Context, reportID, contentType string, r io.Reader, size int64) (string, error) {
	if !AllowedContentType(contentType) {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
	key := ObjectKey(reportID, contentType)
	info, err := e.client.PutObject(ctx, e.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: normalizeType(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	e.log.Info("evidence uploaded",
		zap.String("report_id", reportID),
		zap.String("key", info.Key),
		zap.Int64("size", info.Size),
	)
	return e.baseURL + "/" + url.PathEscape(e.bucket) + "/" + key, nil
}
