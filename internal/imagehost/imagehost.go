package imagehost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/logging"
)

// MaxImageSize bounds uploaded and fetched images.
const MaxImageSize = 10 * 1024 * 1024

const objectPrefix = "checks"

var (
	ErrFileTooBig      = errors.New("image exceeds 10MB limit")
	ErrInvalidFileType = errors.New("invalid file type, only JPEG, PNG and WEBP images are allowed")
	ErrUploadFailed    = errors.New("failed to upload image")

	allowedContentTypes = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
	}
)

// ValidateImage checks size and content type before any upload is attempted.
func ValidateImage(size int64, contentType string) error {
	if size > MaxImageSize {
		return ErrFileTooBig
	}
	if _, ok := allowedContentTypes[normalizeContentType(contentType)]; !ok {
		return ErrInvalidFileType
	}
	return nil
}

func normalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// Config configures the S3-compatible image host.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL prefixes object keys in returned URLs. Defaults to the endpoint.
	PublicBaseURL string
}

// MinIOUploader stores images in an S3-compatible bucket and returns public URLs.
type MinIOUploader struct {
	client  *minio.Client
	bucket  string
	baseURL string
	logger  *zap.Logger
	now     func() time.Time
}

// NewMinIOUploader builds the client without contacting the host.
func NewMinIOUploader(cfg Config, logger *zap.Logger) (*MinIOUploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &MinIOUploader{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: baseURL,
		logger:  logger.Named("image_host"),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (u *MinIOUploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return logging.NewOperationError("imagehost.bucket_exists", "", err)
	}
	if exists {
		return nil
	}
	return logging.NewOperationError("imagehost.make_bucket", "", u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}))
}

// Upload validates and stores an image, returning its public URL.
func (u *MinIOUploader) Upload(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	if err := ValidateImage(size, contentType); err != nil {
		return "", err
	}

	normalized := normalizeContentType(contentType)
	key := u.objectKey(normalized)
	_, err := u.client.PutObject(ctx, u.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: normalized,
		UserMetadata: map[string]string{
			"Uploaded-At": u.now().Format(time.RFC3339),
		},
	})
	if err != nil {
		wrapped := logging.NewOperationError("imagehost.put_object", logging.RequestIDFromContext(ctx), fmt.Errorf("%w: %v", ErrUploadFailed, err))
		u.logger.Error("image upload failed", zap.Error(wrapped), zap.String("key", key))
		return "", wrapped
	}
	return u.objectURL(key), nil
}

func (u *MinIOUploader) objectKey(contentType string) string {
	day := u.now().Format("2006/01/02")
	return path.Join(objectPrefix, day, uuid.NewString()+allowedContentTypes[contentType])
}

func (u *MinIOUploader) objectURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	return u.baseURL + "/" + escaped
}
