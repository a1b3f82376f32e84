package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/imagecheck/internal/auth"
	"github.com/example/imagecheck/internal/config"
	"github.com/example/imagecheck/internal/events"
	"github.com/example/imagecheck/internal/facematch"
	"github.com/example/imagecheck/internal/handlers"
	"github.com/example/imagecheck/internal/healthcheck"
	"github.com/example/imagecheck/internal/imagehost"
	"github.com/example/imagecheck/internal/logging"
	"github.com/example/imagecheck/internal/search"
	"github.com/example/imagecheck/internal/usecase"
)

const (
	healthInterval  = 10 * time.Second
	upstreamTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store unavailable", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.close(context.Background()) //nolint:errcheck

	opts := []usecase.Option{usecase.WithStoreTimeout(cfg.StoreTimeout)}
	if cache := initCache(ctx, cfg, logger); cache != nil {
		opts = append(opts, usecase.WithCache(cache, cfg.StatsCacheTTL))
	}
	if cfg.NATSURL != "" {
		publisher, err := events.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Warn("events disabled", zap.Error(err))
		} else {
			defer publisher.Close() //nolint:errcheck
			opts = append(opts, usecase.WithPublisher(publisher))
		}
	}

	checkResults := usecase.NewCheckResultUseCase(st.records, logger, opts...)
	faces := usecase.NewFaceUseCase(initFaceEngine(ctx, cfg, logger), st.faces, imagehost.NewHTTPFetcher(upstreamTimeout), logger,
		usecase.WithFaceStoreTimeout(cfg.StoreTimeout))
	media := usecase.NewMediaUseCase(initUploader(ctx, cfg, logger), initFinder(cfg, logger), logger)

	checker := healthcheck.NewChecker(st.ping, handlers.DefaultHealthTimeout, logger)
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	go checker.Run(runCtx, healthInterval)

	var grpcServer *grpc.Server
	if cfg.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
		if err != nil {
			logger.Fatal("failed to listen for gRPC health", zap.Error(err))
		}
		grpcServer = grpc.NewServer()
		checker.Register(grpcServer)
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC health server stopped", zap.Error(err))
			}
		}()
		logger.Info("gRPC health listening", zap.String("addr", lis.Addr().String()))
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestContext(logger))
	r.MaxMultipartMemory = handlers.MaxUploadSize

	authCfg := auth.Config{Secret: cfg.JWTSecret, Audience: cfg.JWTAudience}
	if !authCfg.Enabled() {
		logger.Warn("JWT_SECRET not set, write routes are unauthenticated")
	}
	handlers.RegisterRoutes(r, handlers.Services{
		CheckResults:  checkResults,
		Faces:         faces,
		Media:         media,
		Health:        st.ping,
		HealthTimeout: handlers.DefaultHealthTimeout,
	}, auth.Middleware(authCfg, logger))

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("imagecheck API listening", zap.String("addr", server.Addr), zap.String("store", cfg.StoreDriver))
	err = serveHTTPServer(server, cfg.ShutdownTimeout, logger)

	stopRun()
	checker.Shutdown()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) usecase.Cache {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, stats cache disabled", zap.Error(err))
		_ = client.Close()
		return nil
	}
	return usecase.NewRedisCache(client)
}

func initFaceEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) facematch.Engine {
	if !cfg.Face.Enabled() {
		return nil
	}
	engine, err := facematch.NewRekognitionEngine(ctx, facematch.RekognitionConfig{
		Region:       cfg.Face.Region,
		AccessKey:    cfg.AWSAccessKey,
		SecretKey:    cfg.AWSSecretKey,
		CollectionID: cfg.Face.CollectionID,
		Threshold:    float32(cfg.Face.Threshold),
	}, logger)
	if err != nil {
		logger.Warn("face engine disabled", zap.Error(err))
		return nil
	}
	if err := engine.EnsureCollection(ctx); err != nil {
		logger.Warn("face engine disabled", zap.Error(err))
		return nil
	}
	return engine
}

func initUploader(ctx context.Context, cfg *config.Config, logger *zap.Logger) usecase.ImageUploader {
	if !cfg.ImageHost.Enabled() {
		return nil
	}
	uploader, err := imagehost.NewMinIOUploader(imagehost.Config{
		Endpoint:      cfg.ImageHost.Endpoint,
		AccessKey:     cfg.ImageHost.AccessKey,
		SecretKey:     cfg.ImageHost.SecretKey,
		Bucket:        cfg.ImageHost.Bucket,
		UseSSL:        cfg.ImageHost.UseSSL,
		PublicBaseURL: cfg.ImageHost.PublicBaseURL,
	}, logger)
	if err != nil {
		logger.Warn("image uploads disabled", zap.Error(err))
		return nil
	}
	if err := uploader.EnsureBucket(ctx); err != nil {
		logger.Warn("image bucket check failed", zap.Error(err))
	}
	return uploader
}

func initFinder(cfg *config.Config, logger *zap.Logger) usecase.RelatedImageFinder {
	if cfg.SerpAPIKey == "" {
		return nil
	}
	return search.NewSerpAPIClient(cfg.SerpAPIEndpoint, cfg.SerpAPIKey, upstreamTimeout, logger)
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
