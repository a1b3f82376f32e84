package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/imagecheck/internal/logging"
	"github.com/example/imagecheck/internal/repository"
)

const (
	validityCacheKey    = "stats:validity"
	socialMediaCacheKey = "stats:social_media"
)

// ValidityStats counts records per outcome. TotalImages includes records whose
// outcome is absent, so it may exceed the sum of the other three.
type ValidityStats struct {
	TotalImages   int64 `json:"totalImages"`
	RealImages    int64 `json:"realImages"`
	FakeImages    int64 `json:"fakeImages"`
	UnknownImages int64 `json:"unknownImages"`
}

// Stats combines both statistics views.
type Stats struct {
	Validity      ValidityStats              `json:"validity"`
	BySocialMedia []repository.PlatformCount `json:"bySocialMedia"`
}

// ValidityStats returns per-outcome counts.
func (uc *CheckResultUseCase) ValidityStats(ctx context.Context) (*ValidityStats, error) {
	var cached ValidityStats
	if uc.readCache(ctx, validityCacheKey, &cached) {
		return &cached, nil
	}

	storeCtx, cancel := uc.withStoreTimeout(ctx)
	defer cancel()

	counts, err := uc.repo.ValidityCounts(storeCtx)
	if err != nil {
		wrapped := storageError("validity_stats", err)
		logging.WithOperation(uc.logger, "usecase.validity_stats", logging.RequestIDFromContext(ctx)).Error("failed to compute validity stats", zap.Error(wrapped))
		return nil, wrapped
	}

	stats := &ValidityStats{
		TotalImages:   counts.Total,
		RealImages:    counts.Real,
		FakeImages:    counts.Fake,
		UnknownImages: counts.Unknown,
	}
	uc.writeCache(ctx, validityCacheKey, stats)
	return stats, nil
}

// SocialMediaStats returns one entry per distinct socialMediaName, largest first.
func (uc *CheckResultUseCase) SocialMediaStats(ctx context.Context) ([]repository.PlatformCount, error) {
	var cached []repository.PlatformCount
	if uc.readCache(ctx, socialMediaCacheKey, &cached) {
		return cached, nil
	}

	storeCtx, cancel := uc.withStoreTimeout(ctx)
	defer cancel()

	counts, err := uc.repo.CountBySocialMedia(storeCtx)
	if err != nil {
		wrapped := storageError("social_media_stats", err)
		logging.WithOperation(uc.logger, "usecase.social_media_stats", logging.RequestIDFromContext(ctx)).Error("failed to compute social media stats", zap.Error(wrapped))
		return nil, wrapped
	}
	if counts == nil {
		counts = []repository.PlatformCount{}
	}
	uc.writeCache(ctx, socialMediaCacheKey, counts)
	return counts, nil
}

// Stats computes both views concurrently.
func (uc *CheckResultUseCase) Stats(ctx context.Context) (*Stats, error) {
	var (
		validity *ValidityStats
		bySocial []repository.PlatformCount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := uc.ValidityStats(gctx)
		validity = v
		return err
	})
	g.Go(func() error {
		s, err := uc.SocialMediaStats(gctx)
		bySocial = s
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Stats{Validity: *validity, BySocialMedia: bySocial}, nil
}

func (uc *CheckResultUseCase) readCache(ctx context.Context, key string, dst interface{}) bool {
	raw, err := uc.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logging.WithOperation(uc.logger, "cache.get", logging.RequestIDFromContext(ctx)).Warn("failed to read stats cache", zap.Error(err), zap.String("key", key))
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		logging.WithOperation(uc.logger, "cache.get", logging.RequestIDFromContext(ctx)).Warn("failed to decode cached stats", zap.Error(err), zap.String("key", key))
		return false
	}
	return true
}

func (uc *CheckResultUseCase) writeCache(ctx context.Context, key string, value interface{}) {
	serialized, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := uc.cache.Set(ctx, key, string(serialized), uc.statsTTL); err != nil {
		logging.WithOperation(uc.logger, "cache.set", logging.RequestIDFromContext(ctx)).Warn("failed to cache stats", zap.Error(err), zap.String("key", key))
	}
}

func (uc *CheckResultUseCase) invalidateStats(ctx context.Context, opLogger *zap.Logger) {
	if err := uc.cache.Del(ctx, validityCacheKey, socialMediaCacheKey); err != nil {
		opLogger.Warn("failed to invalidate stats cache", zap.Error(err))
	}
}
