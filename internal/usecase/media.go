package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/imagehost"
	"github.com/example/imagecheck/internal/logging"
)

// ImageUploader stores an image on the image host and returns its public URL.
type ImageUploader interface {
	Upload(ctx context.Context, r io.Reader, size int64, contentType string) (string, error)
}

// RelatedImageFinder runs a reverse image search.
type RelatedImageFinder interface {
	FindRelated(ctx context.Context, imageURL string) (json.RawMessage, error)
}

// MediaUseCase fronts the image host and the reverse image search provider.
type MediaUseCase struct {
	uploader ImageUploader
	finder   RelatedImageFinder
	logger   *zap.Logger
}

// NewMediaUseCase constructs a new use case instance; nil collaborators disable
// the matching operation.
func NewMediaUseCase(uploader ImageUploader, finder RelatedImageFinder, logger *zap.Logger) *MediaUseCase {
	return &MediaUseCase{uploader: uploader, finder: finder, logger: logger.Named("media_usecase")}
}

// UploadImage stores r and returns the URL to submit as imageUrl.
// Size and type violations are returned as imagehost.ErrFileTooBig and
// imagehost.ErrInvalidFileType.
func (uc *MediaUseCase) UploadImage(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	if uc.uploader == nil {
		return "", ErrFeatureDisabled
	}
	url, err := uc.uploader.Upload(ctx, r, size, contentType)
	if errors.Is(err, imagehost.ErrFileTooBig) || errors.Is(err, imagehost.ErrInvalidFileType) {
		return "", err
	}
	if err != nil {
		wrapped := upstreamError("image host", err)
		logging.WithOperation(uc.logger, "usecase.upload_image", logging.RequestIDFromContext(ctx)).Error("image upload failed", zap.Error(wrapped))
		return "", wrapped
	}
	return url, nil
}

// FindRelated returns the provider payload for images visually similar to imageURL.
func (uc *MediaUseCase) FindRelated(ctx context.Context, imageURL string) (json.RawMessage, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return nil, &ValidationError{Field: "imageSrc", Message: msgImageURLMissing}
	}
	if uc.finder == nil {
		return nil, ErrFeatureDisabled
	}
	payload, err := uc.finder.FindRelated(ctx, imageURL)
	if err != nil {
		wrapped := upstreamError("reverse image search", err)
		logging.WithOperation(uc.logger, "usecase.find_related", logging.RequestIDFromContext(ctx)).Error("reverse image search failed", zap.Error(wrapped))
		return nil, wrapped
	}
	return payload, nil
}
