package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/imagecheck/internal/facematch"
	"github.com/example/imagecheck/internal/repository"
)

type stubCheckResultRepository struct {
	mu          sync.Mutex
	records     []*repository.CheckResult
	createErr   error
	listErr     error
	statsErr    error
	validity    *repository.ValidityCounts
	platforms   []repository.PlatformCount
	createCalls int
	statsCalls  int
	lastFilter  repository.ResultFilter
}

func (s *stubCheckResultRepository) Create(ctx context.Context, in repository.NewCheckResult) (*repository.CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return nil, s.createErr
	}
	now := time.Date(2024, 1, 1, 0, 0, len(s.records), 0, time.UTC)
	record := &repository.CheckResult{
		ID:              fmt.Sprintf("id-%d", len(s.records)+1),
		ImageURL:        in.ImageURL,
		SocialMediaName: in.SocialMediaName,
		RecognizedFace:  in.RecognizedFace,
		Result:          in.Result,
		Confidence:      in.Confidence,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.records = append(s.records, record)
	return record, nil
}

func (s *stubCheckResultRepository) ListAll(ctx context.Context) ([]*repository.CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	if len(s.records) == 0 {
		return nil, nil
	}
	out := make([]*repository.CheckResult, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *stubCheckResultRepository) CountWhere(ctx context.Context, filter repository.ResultFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = filter
	var n int64
	for _, r := range s.records {
		if filter.Result == "" || r.Result == filter.Result {
			n++
		}
	}
	return n, nil
}

func (s *stubCheckResultRepository) ValidityCounts(ctx context.Context) (*repository.ValidityCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsCalls++
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	if s.validity != nil {
		return s.validity, nil
	}
	counts := &repository.ValidityCounts{Total: int64(len(s.records))}
	for _, r := range s.records {
		switch r.Result {
		case repository.ResultReal:
			counts.Real++
		case repository.ResultFake:
			counts.Fake++
		case repository.ResultUnknown:
			counts.Unknown++
		}
	}
	return counts, nil
}

func (s *stubCheckResultRepository) CountBySocialMedia(ctx context.Context) ([]repository.PlatformCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsCalls++
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	return s.platforms, nil
}

func (s *stubCheckResultRepository) setCreateErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

type stubPublisher struct {
	mu        sync.Mutex
	published []*repository.CheckResult
	err       error
}

func (s *stubPublisher) PublishCreated(ctx context.Context, record *repository.CheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, record)
	return s.err
}

type stubCache struct {
	getErr  error
	setErr  error
	delErr  error
	values  map[string]string
	delKeys []string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if s.setErr != nil {
		return s.setErr
	}
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[key] = fmt.Sprint(value)
	return nil
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	value, ok := s.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return value, nil
}

func (s *stubCache) Del(ctx context.Context, keys ...string) error {
	s.delKeys = append(s.delKeys, keys...)
	for _, k := range keys {
		delete(s.values, k)
	}
	return s.delErr
}

type stubFaceSetRepository struct {
	sets      map[string]*repository.FaceSet
	findErr   error
	createErr error
	created   int
}

func (s *stubFaceSetRepository) Create(ctx context.Context, label string, faceIDs []string) (*repository.FaceSet, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	if s.sets == nil {
		s.sets = map[string]*repository.FaceSet{}
	}
	if _, ok := s.sets[label]; ok {
		return nil, repository.ErrDuplicateLabel
	}
	s.created++
	set := &repository.FaceSet{ID: fmt.Sprintf("face-%d", s.created), Label: label, FaceIDs: faceIDs}
	s.sets[label] = set
	return set, nil
}

func (s *stubFaceSetRepository) FindByLabel(ctx context.Context, label string) (*repository.FaceSet, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if set, ok := s.sets[label]; ok {
		return set, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubFaceSetRepository) List(ctx context.Context) ([]*repository.FaceSet, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []*repository.FaceSet
	for _, set := range s.sets {
		out = append(out, set)
	}
	return out, nil
}

// stubEngine treats images whose body is "noface" as faceless.
type stubEngine struct {
	indexErr    error
	failAfter   int
	indexed     []string
	search      *facematch.SearchResult
	searchErr   error
	searchCalls int
	deleted     []string
	deleteErr   error
}

func (s *stubEngine) DeleteFaces(ctx context.Context, faceIDs []string) error {
	s.deleted = append(s.deleted, faceIDs...)
	return s.deleteErr
}

// remaining lists indexed faces that were not deleted.
func (s *stubEngine) remaining() []string {
	gone := map[string]bool{}
	for _, id := range s.deleted {
		gone[id] = true
	}
	var out []string
	for _, id := range s.indexed {
		if !gone[id] {
			out = append(out, id)
		}
	}
	return out
}

func (s *stubEngine) IndexFace(ctx context.Context, label string, image []byte) (string, error) {
	if s.indexErr != nil && len(s.indexed) >= s.failAfter {
		return "", s.indexErr
	}
	if string(image) == "noface" {
		return "", facematch.ErrNoFace
	}
	id := fmt.Sprintf("%s-%d", label, len(s.indexed)+1)
	s.indexed = append(s.indexed, id)
	return id, nil
}

func (s *stubEngine) Search(ctx context.Context, image []byte) (*facematch.SearchResult, error) {
	s.searchCalls++
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.search, nil
}

type stubFetcher struct {
	data []byte
	err  error
	urls []string
}

func (s *stubFetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	s.urls = append(s.urls, imageURL)
	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}
