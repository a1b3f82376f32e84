package healthcheck

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported through the gRPC health service.
const ServiceName = "imagecheck"

// PingFunc reports whether a dependency is reachable.
type PingFunc func(ctx context.Context) error

// Checker runs a ping and mirrors the outcome into a gRPC health server.
type Checker struct {
	ping    PingFunc
	timeout time.Duration
	health  *health.Server
	logger  *zap.Logger

	mu      sync.RWMutex
	lastErr error
}

// NewChecker returns a checker whose status starts as NOT_SERVING until the first ping.
func NewChecker(ping PingFunc, timeout time.Duration, logger *zap.Logger) *Checker {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &Checker{
		ping:    ping,
		timeout: timeout,
		health:  hs,
		logger:  logger.Named("healthcheck"),
	}
}

// Register exposes the health service on server.
func (c *Checker) Register(server *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(server, c.health)
}

// Check runs the ping once and updates the reported status.
func (c *Checker) Check(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.ping(pingCtx)
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	c.health.SetServingStatus(ServiceName, status)
	c.health.SetServingStatus("", status)

	c.mu.Lock()
	prev := c.lastErr
	c.lastErr = err
	c.mu.Unlock()

	if err != nil && prev == nil {
		c.logger.Warn("dependency became unhealthy", zap.Error(err))
	} else if err == nil && prev != nil {
		c.logger.Info("dependency recovered")
	}
	return err
}

// Run pings every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_ = c.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown reports NOT_SERVING for every service and stops further updates.
func (c *Checker) Shutdown() {
	c.health.Shutdown()
}
