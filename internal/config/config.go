package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// ImageHostConfig addresses the S3-compatible bucket behind POST /images.
type ImageHostConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// Enabled reports whether uploads are configured.
func (c ImageHostConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// FaceConfig addresses the face engine collection.
type FaceConfig struct {
	Region       string
	CollectionID string
	Threshold    float64
}

// Enabled reports whether the face routes are configured.
func (c FaceConfig) Enabled() bool {
	return c.CollectionID != ""
}

// Config holds runtime configuration for the API process.
type Config struct {
	HTTPPort       string
	GRPCHealthPort string
	LogLevel       string

	StoreDriver   string
	DatabaseDSN   string
	MongoURI      string
	MongoDatabase string
	StoreTimeout  time.Duration

	RedisAddr     string
	StatsCacheTTL time.Duration

	NATSURL     string
	NATSSubject string

	SerpAPIKey      string
	SerpAPIEndpoint string

	ImageHost ImageHostConfig
	Face      FaceConfig

	AWSAccessKey string
	AWSSecretKey string

	JWTSecret   string
	JWTAudience string

	ShutdownTimeout time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a validated Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("PORT", "5000"),
		GRPCHealthPort:  getEnvAllowEmpty("GRPC_HEALTH_PORT", "5001"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		DatabaseDSN:     getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=imagecheck port=5432 sslmode=disable"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "imagecheck"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		NATSURL:         os.Getenv("NATS_URL"),
		NATSSubject:     getEnv("NATS_SUBJECT", "checkresults.created"),
		SerpAPIKey:      os.Getenv("SERPAPI_KEY"),
		SerpAPIEndpoint: getEnv("SERPAPI_ENDPOINT", "https://serpapi.com/search.json"),
		ImageHost: ImageHostConfig{
			Endpoint:      os.Getenv("IMAGE_HOST_ENDPOINT"),
			AccessKey:     os.Getenv("IMAGE_HOST_ACCESS_KEY"),
			SecretKey:     os.Getenv("IMAGE_HOST_SECRET_KEY"),
			Bucket:        os.Getenv("IMAGE_HOST_BUCKET"),
			PublicBaseURL: os.Getenv("IMAGE_HOST_PUBLIC_URL"),
		},
		Face: FaceConfig{
			Region:       getEnv("AWS_REGION", "us-east-1"),
			CollectionID: os.Getenv("FACE_COLLECTION_ID"),
		},
		AWSAccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTAudience:  os.Getenv("JWT_AUDIENCE"),
	}

	var errs []error
	var err error
	if cfg.ImageHost.UseSSL, err = getEnvBool("IMAGE_HOST_USE_SSL", true); err != nil {
		errs = append(errs, err)
	}
	if cfg.Face.Threshold, err = getEnvFloat("FACE_MATCH_THRESHOLD", 80); err != nil {
		errs = append(errs, err)
	}
	if cfg.StoreTimeout, err = getEnvDuration("STORE_TIMEOUT", 5*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.StatsCacheTTL, err = getEnvDuration("STATS_CACHE_TTL", 30*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required for the postgres store"))
		}
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
		if c.MongoDatabase == "" {
			errs = append(errs, errors.New("MONGO_DATABASE must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMongo, c.StoreDriver))
	}
	if _, err := strconv.Atoi(c.HTTPPort); err != nil {
		errs = append(errs, fmt.Errorf("PORT must be numeric, got %q", c.HTTPPort))
	}
	if c.GRPCHealthPort != "" {
		if _, err := strconv.Atoi(c.GRPCHealthPort); err != nil {
			errs = append(errs, fmt.Errorf("GRPC_HEALTH_PORT must be numeric, got %q", c.GRPCHealthPort))
		}
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be > 0"))
	}
	if c.StatsCacheTTL <= 0 {
		errs = append(errs, errors.New("STATS_CACHE_TTL must be > 0"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be > 0"))
	}
	if c.Face.Threshold < 0 || c.Face.Threshold > 100 {
		errs = append(errs, errors.New("FACE_MATCH_THRESHOLD must be between 0 and 100"))
	}
	if c.ImageHost.Endpoint != "" && c.ImageHost.Bucket == "" {
		errs = append(errs, errors.New("IMAGE_HOST_BUCKET is required when IMAGE_HOST_ENDPOINT is set"))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvAllowEmpty distinguishes an unset key from one explicitly set to "".
func getEnvAllowEmpty(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
