package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/logging"
)

// FaceSetCollection is the collection holding face set documents.
const FaceSetCollection = "faces"

type faceSetDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Label     string             `bson:"label"`
	FaceIDs   []string           `bson:"faceIds"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d *faceSetDocument) toDomain() *FaceSet {
	return &FaceSet{ID: d.ID.Hex(), Label: d.Label, FaceIDs: d.FaceIDs, CreatedAt: d.CreatedAt}
}

// MongoFaceSetRepository persists face sets in MongoDB; label uniqueness is
// enforced by a unique index.
type MongoFaceSetRepository struct {
	collection *mongo.Collection
	now        func() time.Time
	retrier
}

// NewMongoFaceSetRepository binds the repository to db's face set collection.
func NewMongoFaceSetRepository(db *mongo.Database, logger *zap.Logger, opts ...Option) *MongoFaceSetRepository {
	o := buildOptions(opts)
	return &MongoFaceSetRepository{
		collection: db.Collection(FaceSetCollection),
		now:        o.now,
		retrier:    newRetrier(logger.Named("mongo_face_set_repository")),
	}
}

// EnsureIndexes creates the unique label index.
func (r *MongoFaceSetRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "label", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return logging.NewOperationError("mongo.ensure_face_indexes", "", err)
}

// Create inserts a face set, failing with ErrDuplicateLabel when label exists.
func (r *MongoFaceSetRepository) Create(ctx context.Context, label string, faceIDs []string) (*FaceSet, error) {
	doc := &faceSetDocument{ID: primitive.NewObjectID(), Label: label, FaceIDs: faceIDs, CreatedAt: r.now()}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateLabel
		}
		wrapped := logging.NewOperationError("mongo.create_face_set", logging.RequestIDFromContext(ctx), err)
		r.logger.Error("failed to insert face set", zap.Error(wrapped), zap.String("label", label))
		return nil, wrapped
	}
	return doc.toDomain(), nil
}

// FindByLabel returns the face set registered under label or ErrNotFound.
func (r *MongoFaceSetRepository) FindByLabel(ctx context.Context, label string) (*FaceSet, error) {
	var doc faceSetDocument
	err := r.executeWithRetry(ctx, "mongo.find_face_set", logging.RequestIDFromContext(ctx), func() error {
		err := r.collection.FindOne(ctx, bson.D{{Key: "label", Value: label}}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
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
	return doc.toDomain(), nil
}

// List returns all face sets ordered by label.
func (r *MongoFaceSetRepository) List(ctx context.Context) ([]*FaceSet, error) {
	var docs []faceSetDocument
	err := r.executeWithRetry(ctx, "mongo.list_face_sets", logging.RequestIDFromContext(ctx), func() error {
		cursor, err := r.collection.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "label", Value: 1}}))
		if err != nil {
			return err
		}
		docs = docs[:0]
		return cursor.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}

	sets := make([]*FaceSet, 0, len(docs))
	for i := range docs {
		sets = append(sets, docs[i].toDomain())
	}
	return sets, nil
}
