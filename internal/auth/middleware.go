package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/logging"
)

type contextKey string

const subjectKey contextKey = "authSubject"

// Config holds the HMAC secret and optional audience for bearer tokens.
// An empty Secret leaves the protected routes open.
type Config struct {
	Secret   string
	Audience string
}

// Enabled reports whether tokens are verified.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Secret) != ""
}

// SubjectFromContext retrieves the authenticated subject from context.
func SubjectFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(subjectKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// Middleware validates HS256 bearer tokens on the routes it guards and stores
// the token subject on the request context.
func Middleware(cfg Config, logger *zap.Logger) gin.HandlerFunc {
	secret := []byte(strings.TrimSpace(cfg.Secret))
	audience := strings.TrimSpace(cfg.Audience)
	logger = logger.Named("auth")

	if len(secret) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		tokenString, err := extractBearerToken(c.Request.Header.Get("Authorization"))
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			logging.WithOperation(logger, "auth.verify", logging.RequestIDFromContext(c.Request.Context())).
				Debug("token rejected", zap.Error(err))
			unauthorized(c, "invalid token")
			return
		}

		if audience != "" && !containsAudience(claims.Audience, audience) {
			unauthorized(c, "invalid audience")
			return
		}
		if claims.Subject == "" {
			unauthorized(c, "missing subject")
			return
		}

		ctx := context.WithValue(c.Request.Context(), subjectKey, claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(subjectKey), claims.Subject)

		c.Next()
	}
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header required")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("token missing")
	}
	return token, nil
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": message})
}

func containsAudience(claims jwt.ClaimStrings, expected string) bool {
	for _, aud := range claims {
		if aud == expected {
			return true
		}
	}
	return false
}
