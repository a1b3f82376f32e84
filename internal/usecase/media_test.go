package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/imagehost"
)

type stubUploader struct {
	url  string
	err  error
	body string
}

func (s *stubUploader) Upload(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, _ := io.ReadAll(r)
	s.body = string(data)
	return s.url, nil
}

type stubFinder struct {
	payload json.RawMessage
	err     error
	calls   int
}

func (s *stubFinder) FindRelated(ctx context.Context, imageURL string) (json.RawMessage, error) {
	s.calls++
	return s.payload, s.err
}

func TestUploadImageReturnsURL(t *testing.T) {
	uploader := &stubUploader{url: "http://cdn/checks/1.png"}
	uc := NewMediaUseCase(uploader, nil, zap.NewNop())

	url, err := uc.UploadImage(context.Background(), strings.NewReader("png"), 3, "image/png")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if url != uploader.url || uploader.body != "png" {
		t.Fatalf("unexpected upload: url=%s body=%s", url, uploader.body)
	}
}

func TestUploadImagePassesThroughRejections(t *testing.T) {
	uc := NewMediaUseCase(&stubUploader{err: imagehost.ErrInvalidFileType}, nil, zap.NewNop())

	_, err := uc.UploadImage(context.Background(), strings.NewReader("x"), 1, "text/plain")
	if !errors.Is(err, imagehost.ErrInvalidFileType) {
		t.Fatalf("expected ErrInvalidFileType, got %v", err)
	}
}

func TestUploadImageWrapsHostFailure(t *testing.T) {
	uc := NewMediaUseCase(&stubUploader{err: errors.New("bucket missing")}, nil, zap.NewNop())

	_, err := uc.UploadImage(context.Background(), strings.NewReader("x"), 1, "image/png")
	var uErr *UpstreamError
	if !errors.As(err, &uErr) {
		t.Fatalf("expected UpstreamError, got %T (%v)", err, err)
	}
}

func TestFindRelatedRequiresImageURL(t *testing.T) {
	finder := &stubFinder{}
	uc := NewMediaUseCase(nil, finder, zap.NewNop())

	_, err := uc.FindRelated(context.Background(), "")
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Message != "Image URL not provided" {
		t.Fatalf("expected missing url validation error, got %v", err)
	}
	if finder.calls != 0 {
		t.Fatalf("expected provider not to be called, got %d", finder.calls)
	}
}

func TestFindRelatedReturnsProviderPayload(t *testing.T) {
	finder := &stubFinder{payload: json.RawMessage(`{"image_results":[]}`)}
	uc := NewMediaUseCase(nil, finder, zap.NewNop())

	payload, err := uc.FindRelated(context.Background(), "http://a/1.jpg")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if string(payload) != `{"image_results":[]}` {
		t.Fatalf("unexpected payload: %s", payload)
	}

	finder.err = errors.New("quota exceeded")
	var uErr *UpstreamError
	if _, err := uc.FindRelated(context.Background(), "http://a/1.jpg"); !errors.As(err, &uErr) {
		t.Fatalf("expected UpstreamError, got %T", err)
	}
}

func TestMediaOperationsDisabledWithoutCollaborators(t *testing.T) {
	uc := NewMediaUseCase(nil, nil, zap.NewNop())

	if _, err := uc.UploadImage(context.Background(), strings.NewReader("x"), 1, "image/png"); !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("expected ErrFeatureDisabled, got %v", err)
	}
	if _, err := uc.FindRelated(context.Background(), "http://a/1.jpg"); !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("expected ErrFeatureDisabled, got %v", err)
	}
}
