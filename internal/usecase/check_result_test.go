package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/repository"
)

func floatPtr(v float64) *float64 { return &v }

func TestSubmitRejectsMissingImageURL(t *testing.T) {
	repo := &stubCheckResultRepository{}
	uc := NewCheckResultUseCase(repo, zap.NewNop())

	_, err := uc.Submit(context.Background(), SubmitInput{SocialMediaName: "instagram"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	if vErr.Message != "Image URL not provided" {
		t.Fatalf("unexpected message: %q", vErr.Message)
	}
	if repo.createCalls != 0 {
		t.Fatalf("expected no store call, got %d", repo.createCalls)
	}
}

func TestSubmitRejectsBlankSocialMediaName(t *testing.T) {
	repo := &stubCheckResultRepository{}
	uc := NewCheckResultUseCase(repo, zap.NewNop())

	_, err := uc.Submit(context.Background(), SubmitInput{ImageURL: "http://a/1.jpg", SocialMediaName: "   "})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	if vErr.Field != "socialMediaName" || vErr.Message != "Social media name not provided" {
		t.Fatalf("unexpected validation error: %+v", vErr)
	}
	if len(repo.records) != 0 {
		t.Fatalf("expected nothing persisted, got %d records", len(repo.records))
	}
}

func TestSubmitRejectsOutOfRangeFields(t *testing.T) {
	cases := map[string]SubmitInput{
		"result":     {ImageURL: "u", SocialMediaName: "x", Result: "MAYBE"},
		"confidence": {ImageURL: "u", SocialMediaName: "x", Confidence: floatPtr(1.5)},
	}
	for field, in := range cases {
		t.Run(field, func(t *testing.T) {
			uc := NewCheckResultUseCase(&stubCheckResultRepository{}, zap.NewNop())
			_, err := uc.Submit(context.Background(), in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %T (%v)", err, err)
			}
			if vErr.Field != field {
				t.Fatalf("expected field %q, got %q", field, vErr.Field)
			}
		})
	}
}

func TestSubmitStoresNormalizedRecord(t *testing.T) {
	repo := &stubCheckResultRepository{}
	cache := &stubCache{}
	uc := NewCheckResultUseCase(repo, zap.NewNop(), WithCache(cache, 0))

	record, err := uc.Submit(context.Background(), SubmitInput{
		ImageURL:        " http://a/1.jpg ",
		SocialMediaName: "instagram",
		Result:          "real",
		Confidence:      floatPtr(0.9),
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if record.ImageURL != "http://a/1.jpg" || record.Result != repository.ResultReal {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.ID == "" {
		t.Fatal("expected id to be assigned")
	}
	if len(cache.delKeys) != 2 {
		t.Fatalf("expected stats keys to be invalidated, got %v", cache.delKeys)
	}
}

func TestSubmitSurfacesStorageOutageThenRecovers(t *testing.T) {
	repo := &stubCheckResultRepository{createErr: errors.New("connection refused")}
	uc := NewCheckResultUseCase(repo, zap.NewNop())
	in := SubmitInput{ImageURL: "http://a/1.jpg", SocialMediaName: "x"}

	_, err := uc.Submit(context.Background(), in)
	var sErr *StorageError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected StorageError, got %T (%v)", err, err)
	}
	if sErr.Operation != "submit" {
		t.Fatalf("unexpected operation: %s", sErr.Operation)
	}

	repo.setCreateErr(nil)
	if _, err := uc.Submit(context.Background(), in); err != nil {
		t.Fatalf("expected success after recovery, got %v", err)
	}
	history, err := uc.History(context.Background())
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 record after recovery, got %d", len(history))
	}
}

func TestSubmitToleratesPublishFailure(t *testing.T) {
	repo := &stubCheckResultRepository{}
	publisher := &stubPublisher{err: errors.New("nats down")}
	uc := NewCheckResultUseCase(repo, zap.NewNop(), WithPublisher(publisher))

	record, err := uc.Submit(context.Background(), SubmitInput{ImageURL: "u", SocialMediaName: "x"})
	if err != nil {
		t.Fatalf("expected publish failure to be tolerated, got %v", err)
	}
	if len(publisher.published) != 1 || publisher.published[0].ID != record.ID {
		t.Fatalf("expected event for %s, got %+v", record.ID, publisher.published)
	}
}

func TestHistoryReturnsEmptySliceForEmptyStore(t *testing.T) {
	uc := NewCheckResultUseCase(&stubCheckResultRepository{}, zap.NewNop())

	history, err := uc.History(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", history)
	}
}

func TestHistoryWrapsStoreFailure(t *testing.T) {
	uc := NewCheckResultUseCase(&stubCheckResultRepository{listErr: errors.New("timeout")}, zap.NewNop())

	_, err := uc.History(context.Background())
	var sErr *StorageError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected StorageError, got %T", err)
	}
}

func TestConcurrentSubmitsAreAllStored(t *testing.T) {
	repo := &stubCheckResultRepository{}
	uc := NewCheckResultUseCase(repo, zap.NewNop())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := uc.Submit(context.Background(), SubmitInput{ImageURL: "u", SocialMediaName: "x"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("submit failed: %v", err)
	}

	history, err := uc.History(context.Background())
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 20 {
		t.Fatalf("expected 20 records, got %d", len(history))
	}
	seen := map[string]bool{}
	for _, r := range history {
		if seen[r.ID] {
			t.Fatalf("duplicate id %s", r.ID)
		}
		seen[r.ID] = true
	}
}

func TestCountByResult(t *testing.T) {
	repo := &stubCheckResultRepository{}
	uc := NewCheckResultUseCase(repo, zap.NewNop())
	for _, result := range []string{"REAL", "FAKE", "REAL", ""} {
		if _, err := uc.Submit(context.Background(), SubmitInput{ImageURL: "u", SocialMediaName: "x", Result: result}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	count, err := uc.CountByResult(context.Background(), "real")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 REAL records, got %d", count)
	}
	total, err := uc.CountByResult(context.Background(), "")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected 4 records, got %d", total)
	}

	if _, err := uc.CountByResult(context.Background(), "maybe"); err == nil {
		t.Fatal("expected validation error for unknown label")
	}
}
