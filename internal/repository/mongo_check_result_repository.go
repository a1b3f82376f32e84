package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/logging"
)

// CheckResultCollection is the collection holding check result documents.
const CheckResultCollection = "imagecheckresults"

type checkResultDocument struct {
	ID              primitive.ObjectID `bson:"_id"`
	ImageURL        string             `bson:"imageUrl"`
	SocialMediaName string             `bson:"socialMediaName"`
	RecognizedFace  string             `bson:"recognizedFace,omitempty"`
	Result          string             `bson:"result,omitempty"`
	Confidence      *float64           `bson:"confidence"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

func (d *checkResultDocument) toDomain() *CheckResult {
	return &CheckResult{
		ID:              d.ID.Hex(),
		ImageURL:        d.ImageURL,
		SocialMediaName: d.SocialMediaName,
		RecognizedFace:  d.RecognizedFace,
		Result:          d.Result,
		Confidence:      d.Confidence,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type validityDocument struct {
	Total   int64 `bson:"total"`
	Real    int64 `bson:"real"`
	Fake    int64 `bson:"fake"`
	Unknown int64 `bson:"unknown"`
}

type platformDocument struct {
	Platform string `bson:"_id"`
	Count    int64  `bson:"count"`
}

// MongoCheckResultRepository stores check results in a MongoDB collection.
type MongoCheckResultRepository struct {
	collection *mongo.Collection
	now        func() time.Time
	retrier
}

// NewMongoCheckResultRepository binds the repository to db's check result collection.
func NewMongoCheckResultRepository(db *mongo.Database, logger *zap.Logger, opts ...Option) *MongoCheckResultRepository {
	o := buildOptions(opts)
	return &MongoCheckResultRepository{
		collection: db.Collection(CheckResultCollection),
		now:        o.now,
		retrier:    newRetrier(logger.Named("mongo_check_result_repository")),
	}
}

// EnsureIndexes creates the indexes backing history ordering and the stats views.
func (r *MongoCheckResultRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: historySort()},
		{Keys: bson.D{{Key: "socialMediaName", Value: 1}}},
		{Keys: bson.D{{Key: "result", Value: 1}}},
	})
	return logging.NewOperationError("mongo.ensure_indexes", "", err)
}

// Ping verifies the primary is reachable.
func (r *MongoCheckResultRepository) Ping(ctx context.Context) error {
	err := r.collection.Database().Client().Ping(ctx, readpref.Primary())
	return logging.NewOperationError("mongo.ping", logging.RequestIDFromContext(ctx), err)
}

// Create inserts a new document. The id is an ObjectID generated before insert.
func (r *MongoCheckResultRepository) Create(ctx context.Context, in NewCheckResult) (*CheckResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := r.now()
	doc := &checkResultDocument{
		ID:              primitive.NewObjectID(),
		ImageURL:        in.ImageURL,
		SocialMediaName: in.SocialMediaName,
		RecognizedFace:  in.RecognizedFace,
		Result:          in.Result,
		Confidence:      in.Confidence,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		wrapped := logging.NewOperationError("mongo.create", logging.RequestIDFromContext(ctx), err)
		r.logger.Error("failed to insert check result", zap.Error(wrapped))
		return nil, wrapped
	}
	return doc.toDomain(), nil
}

// ListAll returns every document newest first, ties broken by descending _id.
func (r *MongoCheckResultRepository) ListAll(ctx context.Context) ([]*CheckResult, error) {
	var docs []checkResultDocument
	err := r.executeWithRetry(ctx, "mongo.list_all", logging.RequestIDFromContext(ctx), func() error {
		cursor, err := r.collection.Find(ctx, bson.D{}, options.Find().SetSort(historySort()))
		if err != nil {
			return err
		}
		docs = docs[:0]
		return cursor.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}

	results := make([]*CheckResult, 0, len(docs))
	for i := range docs {
		results = append(results, docs[i].toDomain())
	}
	return results, nil
}

// CountWhere counts documents matching filter.
func (r *MongoCheckResultRepository) CountWhere(ctx context.Context, filter ResultFilter) (int64, error) {
	var count int64
	err := r.executeWithRetry(ctx, "mongo.count_where", logging.RequestIDFromContext(ctx), func() error {
		n, err := r.collection.CountDocuments(ctx, resultFilterDocument(filter))
		count = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ValidityCounts runs one $group aggregation so all counts share a snapshot.
func (r *MongoCheckResultRepository) ValidityCounts(ctx context.Context) (*ValidityCounts, error) {
	var docs []validityDocument
	err := r.executeWithRetry(ctx, "mongo.validity_counts", logging.RequestIDFromContext(ctx), func() error {
		cursor, err := r.collection.Aggregate(ctx, validityPipeline())
		if err != nil {
			return err
		}
		docs = docs[:0]
		return cursor.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}

	counts := &ValidityCounts{}
	if len(docs) > 0 {
		counts.Total = docs[0].Total
		counts.Real = docs[0].Real
		counts.Fake = docs[0].Fake
		counts.Unknown = docs[0].Unknown
	}
	return counts, nil
}

// CountBySocialMedia groups documents by socialMediaName, largest groups first.
func (r *MongoCheckResultRepository) CountBySocialMedia(ctx context.Context) ([]PlatformCount, error) {
	var docs []platformDocument
	err := r.executeWithRetry(ctx, "mongo.count_by_social_media", logging.RequestIDFromContext(ctx), func() error {
		cursor, err := r.collection.Aggregate(ctx, socialMediaPipeline())
		if err != nil {
			return err
		}
		docs = docs[:0]
		return cursor.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}

	counts := make([]PlatformCount, 0, len(docs))
	for _, doc := range docs {
		counts = append(counts, PlatformCount{Platform: doc.Platform, Count: doc.Count})
	}
	return counts, nil
}

func historySort() bson.D {
	return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
}

func resultFilterDocument(filter ResultFilter) bson.D {
	if filter.Result == "" {
		return bson.D{}
	}
	return bson.D{{Key: "result", Value: filter.Result}}
}

func countIf(result string) bson.D {
	return bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{"$result", result}}}, 1, 0,
	}}}}}
}

func validityPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "real", Value: countIf(ResultReal)},
			{Key: "fake", Value: countIf(ResultFake)},
			{Key: "unknown", Value: countIf(ResultUnknown)},
		}}},
	}
}

func socialMediaPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$socialMediaName"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
}
