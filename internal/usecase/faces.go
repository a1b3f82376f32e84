package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/facematch"
	"github.com/example/imagecheck/internal/imagehost"
	"github.com/example/imagecheck/internal/logging"
	"github.com/example/imagecheck/internal/repository"
)

// UnknownLabel is reported for a detected face that matched no registered label.
const UnknownLabel = "unknown"

// FaceSetRepository defines the face registry persistence.
type FaceSetRepository interface {
	Create(ctx context.Context, label string, faceIDs []string) (*repository.FaceSet, error)
	FindByLabel(ctx context.Context, label string) (*repository.FaceSet, error)
	List(ctx context.Context) ([]*repository.FaceSet, error)
}

// ImageFetcher downloads an image referenced by URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL string) ([]byte, error)
}

// FaceMatchResult is the best label for the query image's most prominent face.
// Distance is 1 - similarity/100.
type FaceMatchResult struct {
	Label      string  `json:"label"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// FaceCheck is the outcome of matching a query image against the registry.
type FaceCheck struct {
	MatchResults []FaceMatchResult `json:"matchResults"`
	Detections   int               `json:"detections"`
}

// FaceUseCase registers labelled faces and matches query images against them.
type FaceUseCase struct {
	engine       facematch.Engine
	faces        FaceSetRepository
	fetcher      ImageFetcher
	logger       *zap.Logger
	storeTimeout time.Duration
}

// FaceOption customises a FaceUseCase.
type FaceOption func(*FaceUseCase)

// WithFaceStoreTimeout bounds registry calls and orphaned face cleanup.
func WithFaceStoreTimeout(timeout time.Duration) FaceOption {
	return func(uc *FaceUseCase) {
		if timeout > 0 {
			uc.storeTimeout = timeout
		}
	}
}

// NewFaceUseCase constructs a new use case instance. A nil engine disables
// every face operation.
func NewFaceUseCase(engine facematch.Engine, faces FaceSetRepository, fetcher ImageFetcher, logger *zap.Logger, opts ...FaceOption) *FaceUseCase {
	uc := &FaceUseCase{
		engine:       engine,
		faces:        faces,
		fetcher:      fetcher,
		logger:       logger.Named("face_usecase"),
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Register indexes every image under label and records the resulting face set.
// Images in which the engine finds no face are skipped.
func (uc *FaceUseCase) Register(ctx context.Context, label string, images [][]byte) (*repository.FaceSet, error) {
	if uc.engine == nil || uc.faces == nil {
		return nil, ErrFeatureDisabled
	}
	label = strings.TrimSpace(label)
	if !labelPattern.MatchString(label) {
		return nil, &ValidationError{Field: "label", Message: "label must be 1-255 letters, digits or _.-: characters"}
	}
	if len(images) == 0 {
		return nil, &ValidationError{Field: "images", Message: "at least one image is required"}
	}

	opLogger := logging.WithOperation(uc.logger, "usecase.register_face", logging.RequestIDFromContext(ctx))

	storeCtx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	_, err := uc.faces.FindByLabel(storeCtx, label)
	cancel()
	switch {
	case err == nil:
		return nil, &ConflictError{Message: "label already registered"}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storageError("register_face", err)
	}

	faceIDs := make([]string, 0, len(images))
	for i, image := range images {
		faceID, err := uc.engine.IndexFace(ctx, label, image)
		if errors.Is(err, facematch.ErrNoFace) {
			opLogger.Info("no face found in image", zap.Int("image", i+1))
			continue
		}
		if err != nil {
			uc.discardFaces(ctx, faceIDs, opLogger)
			return nil, upstreamError("face engine", err)
		}
		faceIDs = append(faceIDs, faceID)
		opLogger.Debug("face indexed", zap.Int("image", i+1), zap.Int("progress_percent", (i+1)*100/len(images)))
	}
	if len(faceIDs) == 0 {
		return nil, &ValidationError{Field: "images", Message: "no face detected in the supplied images"}
	}

	storeCtx, cancel = context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()
	set, err := uc.faces.Create(storeCtx, label, faceIDs)
	if err != nil {
		uc.discardFaces(ctx, faceIDs, opLogger)
	}
	if errors.Is(err, repository.ErrDuplicateLabel) {
		return nil, &ConflictError{Message: "label already registered"}
	}
	if err != nil {
		wrapped := storageError("register_face", err)
		opLogger.Error("failed to store face set", zap.Error(wrapped))
		return nil, wrapped
	}
	return set, nil
}

// discardFaces removes faces indexed by a registration that did not complete.
// It runs even when ctx is already cancelled.
func (uc *FaceUseCase) discardFaces(ctx context.Context, faceIDs []string, opLogger *zap.Logger) {
	if len(faceIDs) == 0 {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.storeTimeout)
	defer cancel()
	if err := uc.engine.DeleteFaces(cleanupCtx, faceIDs); err != nil {
		opLogger.Error("failed to remove orphaned faces", zap.Error(err), zap.Strings("face_ids", faceIDs))
	}
}

// Labels lists every registered face set.
func (uc *FaceUseCase) Labels(ctx context.Context) ([]*repository.FaceSet, error) {
	if uc.faces == nil {
		return nil, ErrFeatureDisabled
	}
	storeCtx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()

	sets, err := uc.faces.List(storeCtx)
	if err != nil {
		return nil, storageError("list_faces", err)
	}
	if sets == nil {
		sets = []*repository.FaceSet{}
	}
	return sets, nil
}

// CheckURL downloads imageURL and matches it against the registry.
func (uc *FaceUseCase) CheckURL(ctx context.Context, imageURL string) (*FaceCheck, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return nil, &ValidationError{Field: "imageSrc", Message: msgImageURLMissing}
	}
	if uc.engine == nil || uc.fetcher == nil {
		return nil, ErrFeatureDisabled
	}

	image, err := uc.fetcher.Fetch(ctx, imageURL)
	if errors.Is(err, imagehost.ErrFileTooBig) || errors.Is(err, imagehost.ErrForbiddenTarget) {
		return nil, &ValidationError{Field: "imageSrc", Message: err.Error()}
	}
	if err != nil {
		return nil, upstreamError("image fetch", err)
	}
	return uc.CheckImage(ctx, image)
}

// CheckImage matches the most prominent face of image against the registry.
func (uc *FaceUseCase) CheckImage(ctx context.Context, image []byte) (*FaceCheck, error) {
	if uc.engine == nil {
		return nil, ErrFeatureDisabled
	}
	if len(image) == 0 {
		return nil, &ValidationError{Field: "image", Message: "image is empty"}
	}

	found, err := uc.engine.Search(ctx, image)
	if err != nil {
		wrapped := upstreamError("face engine", err)
		logging.WithOperation(uc.logger, "usecase.check_face", logging.RequestIDFromContext(ctx)).Error("face search failed", zap.Error(wrapped))
		return nil, wrapped
	}
	return buildFaceCheck(found), nil
}

func buildFaceCheck(found *facematch.SearchResult) *FaceCheck {
	check := &FaceCheck{MatchResults: []FaceMatchResult{}, Detections: found.Detections}
	if found.Detections == 0 {
		return check
	}
	if len(found.Matches) == 0 {
		check.MatchResults = append(check.MatchResults, FaceMatchResult{Label: UnknownLabel, Distance: 1})
		return check
	}
	for _, m := range found.Matches {
		check.MatchResults = append(check.MatchResults, FaceMatchResult{
			Label:      m.Label,
			Distance:   1 - m.Similarity/100,
			Similarity: m.Similarity,
		})
	}
	return check
}
