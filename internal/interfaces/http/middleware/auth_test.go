package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/infrastructure/auth"
	"github.com/erp/inventory-engine/internal/infrastructure/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-chars"

func signedToken(t *testing.T, userID uuid.UUID, expiresIn time.Duration) string {
	t.Helper()
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

type failingVerifier struct{ err error }

func (v failingVerifier) Verify(context.Context, string) (*auth.Claims, error) {
	return nil, v.err
}

// newAuthRouter echoes the actor found in the request context
func newAuthRouter(cfg ActorAuthConfig) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), ActorAuth(cfg))
	handler := func(c *gin.Context) {
		actor, ok := shared.ActorFromContext(c.Request.Context())
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, actor.String())
	}
	router.GET("/api/v1/stock/history", handler)
	router.GET("/health", handler)
	return router
}

func TestActorAuth(t *testing.T) {
	verifier := auth.NewTokenVerifier(config.JWTConfig{Secret: testSecret, Issuer: "test-issuer"}, nil)
	userID := uuid.New()

	get := func(router *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return serve(router, req)
	}

	t.Run("bearer token attaches the actor", func(t *testing.T) {
		router := newAuthRouter(ActorAuthConfig{Verifier: verifier, Required: true})
		w := get(router, "/api/v1/stock/history", map[string]string{
			AuthHeaderKey: BearerPrefix + signedToken(t, userID, time.Hour),
		})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, userID.String(), w.Body.String())
	})

	t.Run("missing token is rejected when required", func(t *testing.T) {
		router := newAuthRouter(ActorAuthConfig{Verifier: verifier, Required: true})
		w := get(router, "/api/v1/stock/history", map[string]string{ActorIDHeader: userID.String()})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_UNAUTHORIZED")
	})

	t.Run("skipped paths need no token", func(t *testing.T) {
		router := newAuthRouter(ActorAuthConfig{Verifier: verifier, Required: true, SkipPaths: []string{"/health"}})
		w := get(router, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "anonymous", w.Body.String())
	})

	t.Run("expired token", func(t *testing.T) {
		router := newAuthRouter(ActorAuthConfig{Verifier: verifier})
		w := get(router, "/api/v1/stock/history", map[string]string{
			AuthHeaderKey: BearerPrefix + signedToken(t, userID, -time.Minute),
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_TOKEN_EXPIRED")
	})

	t.Run("malformed authorization header", func(t *testing.T) {
		router := newAuthRouter(ActorAuthConfig{Verifier: verifier})
		w := get(router, "/api/v1/stock/history", map[string]string{AuthHeaderKey: "Basic dXNlcjpwYXNz"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_TOKEN_INVALID")
	})

	t.Run("bearer token without a verifier", func(t *testing.T) {
		router := newAuthRouter(ActorAuthConfig{})
		w := get(router, "/api/v1/stock/history", map[string]string{
			AuthHeaderKey: BearerPrefix + signedToken(t, userID, time.Hour),
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unavailable revocation store", func(t *testing.T) {
		router := newAuthRouter(ActorAuthConfig{
			Verifier: failingVerifier{err: fmt.Errorf("%w: connection refused", auth.ErrRevocationCheck)},
		})
		w := get(router, "/api/v1/stock/history", map[string]string{AuthHeaderKey: BearerPrefix + "x"})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("actor header is accepted when tokens are optional", func(t *testing.T) {
		router := newAuthRouter(ActorAuthConfig{Verifier: verifier})
		w := get(router, "/api/v1/stock/history", map[string]string{ActorIDHeader: userID.String()})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, userID.String(), w.Body.String())
	})

	t.Run("invalid actor header", func(t *testing.T) {
		router := newAuthRouter(ActorAuthConfig{Verifier: verifier})
		w := get(router, "/api/v1/stock/history", map[string]string{ActorIDHeader: "clerk-7"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_INVALID_INPUT")
	})

	t.Run("no identity passes through anonymously", func(t *testing.T) {
		router := newAuthRouter(ActorAuthConfig{Verifier: verifier})
		w := get(router, "/api/v1/stock/history", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "anonymous", w.Body.String())
	})
}
