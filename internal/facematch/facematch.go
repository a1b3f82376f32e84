package facematch

import (
	"context"
	"errors"
)

// ErrNoFace is returned when an image holds no face usable by the engine.
var ErrNoFace = errors.New("no face detected in image")

// Match is a gallery face that crossed the engine's similarity threshold.
type Match struct {
	Label      string
	FaceID     string
	Similarity float64 // percent, 0-100
}

// SearchResult holds the number of faces found in a query image and the best
// gallery matches for its most prominent face.
type SearchResult struct {
	Detections int
	Matches    []Match
}

// Engine exposes the subset of face matching used by the registry and check flows.
type Engine interface {
	IndexFace(ctx context.Context, label string, image []byte) (string, error)
	Search(ctx context.Context, image []byte) (*SearchResult, error)
	DeleteFaces(ctx context.Context, faceIDs []string) error
}
