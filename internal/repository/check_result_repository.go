package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/imagecheck/internal/logging"
)

// Option customises a repository at construction time.
type Option func(*repoOptions)

type repoOptions struct {
	now func() time.Time
}

// WithClock overrides the clock used to stamp createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *repoOptions) { o.now = now }
}

func buildOptions(opts []Option) repoOptions {
	o := repoOptions{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CheckResultRepository stores check results in a relational database through gorm.
type CheckResultRepository struct {
	db  *gorm.DB
	now func() time.Time
	retrier
}

// NewCheckResultRepository creates a new repository instance.
func NewCheckResultRepository(db *gorm.DB, logger *zap.Logger, opts ...Option) *CheckResultRepository {
	o := buildOptions(opts)
	return &CheckResultRepository{
		db:      db,
		now:     o.now,
		retrier: newRetrier(logger.Named("check_result_repository")),
	}
}

// AutoMigrate ensures the schema is available.
func (r *CheckResultRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&checkResultRow{})
}

// Ping verifies the database is reachable.
func (r *CheckResultRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return logging.NewOperationError("repository.ping", logging.RequestIDFromContext(ctx), err)
	}
	return logging.NewOperationError("repository.ping", logging.RequestIDFromContext(ctx), sqlDB.PingContext(ctx))
}

// Create persists a new record and returns it with its assigned id and timestamps.
// Writes are attempted once.
func (r *CheckResultRepository) Create(ctx context.Context, in NewCheckResult) (*CheckResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := r.now()
	row := &checkResultRow{
		ImageURL:        in.ImageURL,
		SocialMediaName: in.SocialMediaName,
		RecognizedFace:  in.RecognizedFace,
		Confidence:      in.Confidence,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.Result != "" {
		result := in.Result
		row.Result = &result
	}

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		wrapped := logging.NewOperationError("repository.create", logging.RequestIDFromContext(ctx), err)
		r.logger.Error("failed to persist check result", zap.Error(wrapped))
		return nil, wrapped
	}
	return row.toDomain(), nil
}

// ListAll returns every record newest first. Records sharing a createdAt are
// returned in reverse insertion order.
func (r *CheckResultRepository) ListAll(ctx context.Context) ([]*CheckResult, error) {
	var rows []checkResultRow
	err := r.executeWithRetry(ctx, "repository.list_all", logging.RequestIDFromContext(ctx), func() error {
		rows = rows[:0]
		return r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	results := make([]*CheckResult, 0, len(rows))
	for i := range rows {
		results = append(results, rows[i].toDomain())
	}
	return results, nil
}

// CountWhere counts records matching filter.
func (r *CheckResultRepository) CountWhere(ctx context.Context, filter ResultFilter) (int64, error) {
	var count int64
	err := r.executeWithRetry(ctx, "repository.count_where", logging.RequestIDFromContext(ctx), func() error {
		query := r.db.WithContext(ctx).Model(&checkResultRow{})
		if filter.Result != "" {
			query = query.Where("result = ?", filter.Result)
		}
		return query.Count(&count).Error
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

type validityRow struct {
	Total        int64
	RealCount    int64
	FakeCount    int64
	UnknownCount int64
}

// ValidityCounts computes total and per-outcome counts in one statement so the
// numbers come from the same snapshot.
func (r *CheckResultRepository) ValidityCounts(ctx context.Context) (*ValidityCounts, error) {
	var row validityRow
	err := r.executeWithRetry(ctx, "repository.validity_counts", logging.RequestIDFromContext(ctx), func() error {
		return r.db.WithContext(ctx).Model(&checkResultRow{}).Select(
			"COUNT(*) AS total, "+
				"COALESCE(SUM(CASE WHEN result = ? THEN 1 ELSE 0 END), 0) AS real_count, "+
				"COALESCE(SUM(CASE WHEN result = ? THEN 1 ELSE 0 END), 0) AS fake_count, "+
				"COALESCE(SUM(CASE WHEN result = ? THEN 1 ELSE 0 END), 0) AS unknown_count",
			ResultReal, ResultFake, ResultUnknown,
		).Scan(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &ValidityCounts{
		Total:   row.Total,
		Real:    row.RealCount,
		Fake:    row.FakeCount,
		Unknown: row.UnknownCount,
	}, nil
}

// CountBySocialMedia groups every record by socialMediaName, largest groups first
// and ties broken by platform name.
func (r *CheckResultRepository) CountBySocialMedia(ctx context.Context) ([]PlatformCount, error) {
	var rows []PlatformCount
	err := r.executeWithRetry(ctx, "repository.count_by_social_media", logging.RequestIDFromContext(ctx), func() error {
		rows = rows[:0]
		return r.db.WithContext(ctx).Model(&checkResultRow{}).
			Select("social_media_name AS platform, COUNT(*) AS count").
			Group("social_media_name").
			Order("COUNT(*) DESC").
			Order("social_media_name ASC").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
