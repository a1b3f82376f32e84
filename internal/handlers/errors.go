package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/imagehost"
	"github.com/example/imagecheck/internal/logging"
	"github.com/example/imagecheck/internal/usecase"
)

// statusFor maps a use case failure to its HTTP status and client message.
func statusFor(err error) (int, string) {
	var (
		validationErr *usecase.ValidationError
		conflictErr   *usecase.ConflictError
		upstreamErr   *usecase.UpstreamError
		storageErr    *usecase.StorageError
		maxBytesErr   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Message
	case errors.As(err, &conflictErr):
		return http.StatusConflict, conflictErr.Message
	case errors.Is(err, imagehost.ErrFileTooBig), errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, imagehost.ErrFileTooBig.Error()
	case errors.Is(err, imagehost.ErrInvalidFileType):
		return http.StatusUnsupportedMediaType, imagehost.ErrInvalidFileType.Error()
	case errors.Is(err, usecase.ErrFeatureDisabled):
		return http.StatusServiceUnavailable, err.Error()
	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway, upstreamErr.Error()
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError, "Something went wrong, please try again."
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(c *gin.Context, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

// logErrors reports handler errors recorded with c.Error at the end of the request.
func logErrors(c *gin.Context, logger *zap.Logger) {
	for _, e := range c.Errors {
		fields := []zap.Field{zap.Error(e.Err)}
		if op := logging.OperationOf(e.Err); op != "" {
			fields = append(fields, zap.String("operation", op))
		}
		logger.Error("request failed", fields...)
	}
}
