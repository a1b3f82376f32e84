package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/config"
)

func TestServerDrainsInFlightSubmitOnShutdown(t *testing.T) {
	logger := zap.NewNop()
	gin.SetMode(gin.TestMode)

	requestStarted := make(chan struct{})
	releaseRequest := make(chan struct{})
	defer func() {
		select {
		case <-releaseRequest:
		default:
			close(releaseRequest)
		}
	}()

	router := gin.New()
	router.POST("/results", func(c *gin.Context) {
		select {
		case <-requestStarted:
		default:
			close(requestStarted)
		}
		<-releaseRequest
		c.JSON(http.StatusOK, gin.H{"message": "Data saved successfully"})
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: router}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, 2*time.Second, logger, listener, signalCh)
	}()

	addr := listener.Addr().String()
	waitForServer(t, addr)

	client := &http.Client{Timeout: 2 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := client.Post("http://"+addr+"/results", "application/json", nil)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-requestStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("request did not start in time")
	}

	signalCh <- syscall.SIGTERM

	time.Sleep(50 * time.Millisecond)
	close(releaseRequest)

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(body))
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}

func TestServerReturnsListenerError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	_ = listener.Close()

	err = serveHTTPServerWithOptions(&http.Server{Handler: http.NewServeMux()}, time.Second, zap.NewNop(), listener, make(chan os.Signal))
	if err == nil {
		t.Fatal("expected serve error on closed listener")
	}
}

func TestOptionalIntegrationsDisabledWhenUnset(t *testing.T) {
	cfg := &config.Config{}
	logger := zap.NewNop()
	ctx := context.Background()

	if initCache(ctx, cfg, logger) != nil {
		t.Fatal("expected no cache without REDIS_ADDR")
	}
	if initFaceEngine(ctx, cfg, logger) != nil {
		t.Fatal("expected no face engine without FACE_COLLECTION_ID")
	}
	if initUploader(ctx, cfg, logger) != nil {
		t.Fatal("expected no uploader without IMAGE_HOST_ENDPOINT")
	}
	if initFinder(cfg, logger) != nil {
		t.Fatal("expected no finder without SERPAPI_KEY")
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
