package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/imagecheck/internal/logging"
)

// FaceSet associates a registered label with the face ids the matching engine
// indexed for it. Labels are unique.
type FaceSet struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	FaceIDs   []string  `json:"faceIds"`
	CreatedAt time.Time `json:"createdAt"`
}

type faceSetRow struct {
	ID        uint      `gorm:"primaryKey"`
	Label     string    `gorm:"column:label;size:255;not null;uniqueIndex"`
	FaceIDs   []string  `gorm:"column:face_ids;type:text;serializer:json"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (faceSetRow) TableName() string {
	return "face_sets"
}

func (r *faceSetRow) toDomain() *FaceSet {
	return &FaceSet{
		ID:        strconv.FormatUint(uint64(r.ID), 10),
		Label:     r.Label,
		FaceIDs:   r.FaceIDs,
		CreatedAt: r.CreatedAt,
	}
}

// FaceSetRepository persists face sets through gorm.
type FaceSetRepository struct {
	db  *gorm.DB
	now func() time.Time
	retrier
}

// NewFaceSetRepository creates a new repository instance.
func NewFaceSetRepository(db *gorm.DB, logger *zap.Logger, opts ...Option) *FaceSetRepository {
	o := buildOptions(opts)
	return &FaceSetRepository{
		db:      db,
		now:     o.now,
		retrier: newRetrier(logger.Named("face_set_repository")),
	}
}

// AutoMigrate ensures the schema is available.
func (r *FaceSetRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&faceSetRow{})
}

// Create stores a face set, failing with ErrDuplicateLabel when label exists.
// Uniqueness is enforced by the label index, so concurrent registrations of
// one label leave exactly one row.
func (r *FaceSetRepository) Create(ctx context.Context, label string, faceIDs []string) (*FaceSet, error) {
	row := &faceSetRow{Label: label, FaceIDs: faceIDs, CreatedAt: r.now()}
	err := r.db.WithContext(ctx).Create(row).Error
	if isDuplicateKey(err) {
		return nil, ErrDuplicateLabel
	}
	if err != nil {
		wrapped := logging.NewOperationError("repository.create_face_set", logging.RequestIDFromContext(ctx), err)
		r.logger.Error("failed to persist face set", zap.Error(wrapped), zap.String("label", label))
		return nil, wrapped
	}
	return row.toDomain(), nil
}

// isDuplicateKey matches gorm's translated error and the raw driver messages
// for sessions opened without TranslateError.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// FindByLabel returns the face set registered under label or ErrNotFound.
func (r *FaceSetRepository) FindByLabel(ctx context.Context, label string) (*FaceSet, error) {
	var row faceSetRow
	err := r.executeWithRetry(ctx, "repository.find_face_set", logging.RequestIDFromContext(ctx), func() error {
		err := r.db.WithContext(ctx).First(&row, "label = ?", label).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// List returns all face sets ordered by label.
func (r *FaceSetRepository) List(ctx context.Context) ([]*FaceSet, error) {
	var rows []faceSetRow
	err := r.executeWithRetry(ctx, "repository.list_face_sets", logging.RequestIDFromContext(ctx), func() error {
		rows = rows[:0]
		return r.db.WithContext(ctx).Order("label ASC").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	sets := make([]*FaceSet, 0, len(rows))
	for i := range rows {
		sets = append(sets, rows[i].toDomain())
	}
	return sets, nil
}
