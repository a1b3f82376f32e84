package repository

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Outcome labels recognised by the statistics views.
const (
	ResultReal    = "REAL"
	ResultFake    = "FAKE"
	ResultUnknown = "UNKNOWN"
)

var (
	// ErrInvalidRecord is returned when a record lacks a required field.
	ErrInvalidRecord = errors.New("image url and social media name are required")
	// ErrDuplicateLabel is returned when a face set label is already registered.
	ErrDuplicateLabel = errors.New("face label already registered")
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("record not found")
)

// CheckResult is one persisted verification outcome. Records are append-only.
type CheckResult struct {
	ID              string    `json:"_id"`
	ImageURL        string    `json:"imageUrl"`
	SocialMediaName string    `json:"socialMediaName"`
	RecognizedFace  string    `json:"recognizedFace,omitempty"`
	Result          string    `json:"result,omitempty"`
	Confidence      *float64  `json:"confidence"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NewCheckResult carries the caller-supplied fields of a record. Empty Result
// means the outcome was not provided.
type NewCheckResult struct {
	ImageURL        string
	SocialMediaName string
	RecognizedFace  string
	Result          string
	Confidence      *float64
}

func (n NewCheckResult) validate() error {
	if strings.TrimSpace(n.ImageURL) == "" || strings.TrimSpace(n.SocialMediaName) == "" {
		return ErrInvalidRecord
	}
	return nil
}

// ResultFilter selects records by outcome. The zero value matches every record.
type ResultFilter struct {
	Result string
}

// AllResults matches every record regardless of outcome.
func AllResults() ResultFilter { return ResultFilter{} }

// WithResult matches records whose outcome equals result.
func WithResult(result string) ResultFilter { return ResultFilter{Result: result} }

// ValidityCounts is computed in a single read over the store. Total counts every
// record, so it can exceed Real+Fake+Unknown when outcomes are absent.
type ValidityCounts struct {
	Total   int64
	Real    int64
	Fake    int64
	Unknown int64
}

// PlatformCount is the number of records for one socialMediaName.
type PlatformCount struct {
	Platform string `json:"_id"`
	Count    int64  `json:"count"`
}

// checkResultRow is the relational shape of CheckResult.
type checkResultRow struct {
	ID              uint      `gorm:"primaryKey"`
	ImageURL        string    `gorm:"column:image_url;type:text;not null"`
	SocialMediaName string    `gorm:"column:social_media_name;size:128;not null;index"`
	RecognizedFace  string    `gorm:"column:recognized_face;size:255"`
	Result          *string   `gorm:"column:result;size:16;index"`
	Confidence      *float64  `gorm:"column:confidence"`
	CreatedAt       time.Time `gorm:"column:created_at;index"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (checkResultRow) TableName() string {
	return "image_check_results"
}

func (r *checkResultRow) toDomain() *CheckResult {
	out := &CheckResult{
		ID:              strconv.FormatUint(uint64(r.ID), 10),
		ImageURL:        r.ImageURL,
		SocialMediaName: r.SocialMediaName,
		RecognizedFace:  r.RecognizedFace,
		Confidence:      r.Confidence,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.Result != nil {
		out.Result = *r.Result
	}
	return out
}
