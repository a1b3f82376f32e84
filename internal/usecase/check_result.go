package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/logging"
	"github.com/example/imagecheck/internal/repository"
)

// CheckResultRepository defines the persistence operations needed by the use case.
type CheckResultRepository interface {
	Create(ctx context.Context, in repository.NewCheckResult) (*repository.CheckResult, error)
	ListAll(ctx context.Context) ([]*repository.CheckResult, error)
	CountWhere(ctx context.Context, filter repository.ResultFilter) (int64, error)
	ValidityCounts(ctx context.Context) (*repository.ValidityCounts, error)
	CountBySocialMedia(ctx context.Context) ([]repository.PlatformCount, error)
}

// EventPublisher announces newly stored records.
type EventPublisher interface {
	PublishCreated(ctx context.Context, record *repository.CheckResult) error
}

const (
	defaultStoreTimeout = 5 * time.Second
	defaultStatsTTL     = 30 * time.Second
)

// Option customises a CheckResultUseCase.
type Option func(*CheckResultUseCase)

// WithCache memoises stats reads in cache for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(uc *CheckResultUseCase) {
		uc.cache = cache
		if ttl > 0 {
			uc.statsTTL = ttl
		}
	}
}

// WithPublisher announces every stored record through publisher.
func WithPublisher(publisher EventPublisher) Option {
	return func(uc *CheckResultUseCase) { uc.publisher = publisher }
}

// WithStoreTimeout bounds every store call; zero disables the bound.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(uc *CheckResultUseCase) { uc.storeTimeout = timeout }
}

// CheckResultUseCase validates submissions and serves history and statistics.
type CheckResultUseCase struct {
	repo         CheckResultRepository
	cache        Cache
	statsTTL     time.Duration
	publisher    EventPublisher
	validate     *validator.Validate
	logger       *zap.Logger
	storeTimeout time.Duration
}

// NewCheckResultUseCase constructs a new use case instance.
func NewCheckResultUseCase(repo CheckResultRepository, logger *zap.Logger, opts ...Option) *CheckResultUseCase {
	uc := &CheckResultUseCase{
		repo:         repo,
		cache:        NopCache{},
		statsTTL:     defaultStatsTTL,
		validate:     newValidator(),
		logger:       logger.Named("check_result_usecase"),
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Submit validates in and stores it as a new record.
func (uc *CheckResultUseCase) Submit(ctx context.Context, in SubmitInput) (*repository.CheckResult, error) {
	in = in.normalize()
	if err := uc.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	requestID := logging.RequestIDFromContext(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.submit", requestID)

	storeCtx, cancel := uc.withStoreTimeout(ctx)
	defer cancel()
	record, err := uc.repo.Create(storeCtx, in.toRecord())
	if errors.Is(err, repository.ErrInvalidRecord) {
		return nil, &ValidationError{Message: err.Error()}
	}
	if err != nil {
		wrapped := storageError("submit", err)
		opLogger.Error("failed to store check result", zap.Error(wrapped))
		return nil, wrapped
	}

	uc.invalidateStats(ctx, opLogger)

	if uc.publisher != nil {
		if err := uc.publisher.PublishCreated(ctx, record); err != nil {
			opLogger.Warn("failed to publish check result event", zap.Error(err), zap.String("record_id", record.ID))
		}
	}

	opLogger.Info("check result stored",
		zap.String("record_id", record.ID),
		zap.String("social_media", record.SocialMediaName),
		zap.String("result", record.Result),
	)
	return record, nil
}

// History returns every record newest first.
func (uc *CheckResultUseCase) History(ctx context.Context) ([]*repository.CheckResult, error) {
	storeCtx, cancel := uc.withStoreTimeout(ctx)
	defer cancel()

	records, err := uc.repo.ListAll(storeCtx)
	if err != nil {
		wrapped := storageError("history", err)
		logging.WithOperation(uc.logger, "usecase.history", logging.RequestIDFromContext(ctx)).Error("failed to list check results", zap.Error(wrapped))
		return nil, wrapped
	}
	if records == nil {
		records = []*repository.CheckResult{}
	}
	return records, nil
}

// CountByResult counts records with the given outcome; an empty result counts all records.
func (uc *CheckResultUseCase) CountByResult(ctx context.Context, result string) (int64, error) {
	result = strings.ToUpper(strings.TrimSpace(result))
	switch result {
	case "", repository.ResultReal, repository.ResultFake, repository.ResultUnknown:
	default:
		return 0, &ValidationError{Field: "result", Message: "result must be one of REAL, FAKE, UNKNOWN"}
	}

	storeCtx, cancel := uc.withStoreTimeout(ctx)
	defer cancel()

	count, err := uc.repo.CountWhere(storeCtx, repository.WithResult(result))
	if err != nil {
		return 0, storageError("count", err)
	}
	return count, nil
}

func (uc *CheckResultUseCase) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, uc.storeTimeout)
}
