package facematch

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/logging"
)

type rekognitionAPI interface {
	CreateCollection(ctx context.Context, params *rekognition.CreateCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.CreateCollectionOutput, error)
	IndexFaces(ctx context.Context, params *rekognition.IndexFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.IndexFacesOutput, error)
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
	SearchFacesByImage(ctx context.Context, params *rekognition.SearchFacesByImageInput, optFns ...func(*rekognition.Options)) (*rekognition.SearchFacesByImageOutput, error)
	DeleteFaces(ctx context.Context, params *rekognition.DeleteFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DeleteFacesOutput, error)
}

// RekognitionConfig configures the AWS Rekognition backed engine.
type RekognitionConfig struct {
	Region       string
	AccessKey    string
	SecretKey    string
	CollectionID string
	// Threshold is the minimum similarity percent for a gallery hit.
	Threshold float32
}

// RekognitionEngine matches faces against a Rekognition collection whose
// ExternalImageId carries the registered label.
type RekognitionEngine struct {
	client       rekognitionAPI
	collectionID string
	threshold    float32
	logger       *zap.Logger
}

// NewRekognitionEngine loads AWS configuration and builds the engine. Static
// credentials are used when both keys are set, otherwise the default chain.
func NewRekognitionEngine(ctx context.Context, cfg RekognitionConfig, logger *zap.Logger) (*RekognitionEngine, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, logging.NewOperationError("facematch.load_aws_config", "", err)
	}
	return newRekognitionEngine(rekognition.NewFromConfig(awsCfg), cfg, logger), nil
}

func newRekognitionEngine(client rekognitionAPI, cfg RekognitionConfig, logger *zap.Logger) *RekognitionEngine {
	return &RekognitionEngine{
		client:       client,
		collectionID: cfg.CollectionID,
		threshold:    cfg.Threshold,
		logger:       logger.Named("rekognition_engine"),
	}
}

// EnsureCollection creates the gallery collection if it does not exist yet.
func (e *RekognitionEngine) EnsureCollection(ctx context.Context) error {
	_, err := e.client.CreateCollection(ctx, &rekognition.CreateCollectionInput{CollectionId: aws.String(e.collectionID)})
	var exists *types.ResourceAlreadyExistsException
	if err == nil || errors.As(err, &exists) {
		return nil
	}
	return logging.NewOperationError("facematch.create_collection", "", err)
}

// IndexFace adds the most prominent face of image to the gallery under label.
func (e *RekognitionEngine) IndexFace(ctx context.Context, label string, image []byte) (string, error) {
	requestID := logging.RequestIDFromContext(ctx)
	out, err := e.client.IndexFaces(ctx, &rekognition.IndexFacesInput{
		CollectionId:    aws.String(e.collectionID),
		ExternalImageId: aws.String(label),
		Image:           &types.Image{Bytes: image},
		MaxFaces:        aws.Int32(1),
		QualityFilter:   types.QualityFilterAuto,
	})
	if err != nil {
		wrapped := logging.NewOperationError("facematch.index_face", requestID, err)
		e.logger.Error("index faces failed", zap.Error(wrapped), zap.String("label", label))
		return "", wrapped
	}
	if len(out.FaceRecords) == 0 || out.FaceRecords[0].Face == nil {
		return "", ErrNoFace
	}
	return aws.ToString(out.FaceRecords[0].Face.FaceId), nil
}

// DeleteFaces removes faceIDs from the gallery.
func (e *RekognitionEngine) DeleteFaces(ctx context.Context, faceIDs []string) error {
	if len(faceIDs) == 0 {
		return nil
	}
	_, err := e.client.DeleteFaces(ctx, &rekognition.DeleteFacesInput{
		CollectionId: aws.String(e.collectionID),
		FaceIds:      faceIDs,
	})
	if err != nil {
		wrapped := logging.NewOperationError("facematch.delete_faces", logging.RequestIDFromContext(ctx), err)
		e.logger.Error("delete faces failed", zap.Error(wrapped), zap.Strings("face_ids", faceIDs))
		return wrapped
	}
	return nil
}

// Search counts the faces in image and looks up the most prominent one in the gallery.
func (e *RekognitionEngine) Search(ctx context.Context, image []byte) (*SearchResult, error) {
	requestID := logging.RequestIDFromContext(ctx)
	detected, err := e.client.DetectFaces(ctx, &rekognition.DetectFacesInput{Image: &types.Image{Bytes: image}})
	if err != nil {
		wrapped := logging.NewOperationError("facematch.detect_faces", requestID, err)
		e.logger.Error("detect faces failed", zap.Error(wrapped))
		return nil, wrapped
	}

	result := &SearchResult{Detections: len(detected.FaceDetails)}
	if result.Detections == 0 {
		return result, nil
	}

	out, err := e.client.SearchFacesByImage(ctx, &rekognition.SearchFacesByImageInput{
		CollectionId:       aws.String(e.collectionID),
		Image:              &types.Image{Bytes: image},
		FaceMatchThreshold: aws.Float32(e.threshold),
		MaxFaces:           aws.Int32(1),
	})
	if err != nil {
		// Raised when the detected face is too small or blurred to search.
		var invalid *types.InvalidParameterException
		if errors.As(err, &invalid) {
			return result, nil
		}
		wrapped := logging.NewOperationError("facematch.search_faces", requestID, err)
		e.logger.Error("search faces failed", zap.Error(wrapped))
		return nil, wrapped
	}

	for _, fm := range out.FaceMatches {
		if fm.Face == nil {
			continue
		}
		result.Matches = append(result.Matches, Match{
			Label:      aws.ToString(fm.Face.ExternalImageId),
			FaceID:     aws.ToString(fm.Face.FaceId),
			Similarity: float64(aws.ToFloat32(fm.Similarity)),
		})
	}
	return result, nil
}
