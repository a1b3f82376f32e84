package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/imagecheck/internal/auth"
	"github.com/example/imagecheck/internal/logging"
)

func TestRequestContextLogsSubjectAndOperation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(RequestContext(zap.New(core)))
	router.POST("/fail", auth.Middleware(auth.Config{Secret: testJWTSecret}, zap.NewNop()), func(c *gin.Context) {
		err := logging.NewOperationError("repository.create_check_result", logging.RequestIDFromContext(c.Request.Context()), errors.New("db down"))
		_ = c.Error(err)
		c.Status(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodPost, "/fail", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "moderator-7"))
	router.ServeHTTP(httptest.NewRecorder(), req)

	failed := logs.FilterMessage("request failed").All()
	if len(failed) != 1 {
		t.Fatalf("expected one failure line, got %d", len(failed))
	}
	fields := failed[0].ContextMap()
	if fields["operation"] != "repository.create_check_result" {
		t.Fatalf("expected operation field, got %v", fields)
	}
	if fields["subject"] != "moderator-7" {
		t.Fatalf("expected subject field, got %v", fields)
	}

	handled := logs.FilterMessage("request handled").All()
	if len(handled) != 1 || handled[0].ContextMap()["subject"] != "moderator-7" {
		t.Fatalf("expected subject on access log, got %v", handled)
	}
}

func TestRequestContextOmitsSubjectForAnonymousRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(RequestContext(zap.New(core)))
	router.GET("/open", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/open", nil))

	handled := logs.FilterMessage("request handled").All()
	if len(handled) != 1 {
		t.Fatalf("expected one access line, got %d", len(handled))
	}
	if _, ok := handled[0].ContextMap()["subject"]; ok {
		t.Fatalf("unexpected subject field: %v", handled[0].ContextMap())
	}
}
