package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/infrastructure/auth"
	"github.com/erp/inventory-engine/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Auth context keys and headers
const (
	ClaimsKey     = "jwt_claims"
	ActorIDKey    = "actor_id"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	ActorIDHeader = "X-Actor-ID"
)

// TokenVerifier validates a bearer token
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// ActorAuthConfig holds configuration for ActorAuth
type ActorAuthConfig struct {
	// Verifier checks bearer tokens. Without one, bearer tokens are refused.
	Verifier TokenVerifier
	// Required rejects requests that carry no bearer token. When false the
	// X-Actor-ID header is accepted instead, for trusted internal callers.
	Required         bool
	SkipPaths        []string
	SkipPathPrefixes []string
	Logger           *zap.Logger
}

// ActorAuth resolves the actor of a request and attaches it to the request
// context with shared.WithActor, where the engine reads it for ledger
// attribution. Requests without any identity pass through when not
// Required; the engine rejects mutations that lack an actor.
func ActorAuth(cfg ActorAuthConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		if skipped(c.Request.URL.Path, cfg.SkipPaths, cfg.SkipPathPrefixes) {
			c.Next()
			return
		}

		header := c.GetHeader(AuthHeaderKey)
		if header != "" {
			authenticateBearer(c, cfg.Verifier, header, log)
			return
		}

		if cfg.Required {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Missing authorization header")
			return
		}

		if raw := c.GetHeader(ActorIDHeader); raw != "" {
			actorID, err := uuid.Parse(raw)
			if err != nil || actorID == uuid.Nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
					dto.ErrCodeInvalidInput, "Invalid X-Actor-ID header", GetRequestID(c)))
				return
			}
			setActor(c, actorID)
		}
		c.Next()
	}
}

func authenticateBearer(c *gin.Context, verifier TokenVerifier, header string, log *zap.Logger) {
	token, ok := strings.CutPrefix(header, BearerPrefix)
	if !ok || token == "" {
		abortUnauthorized(c, dto.ErrCodeTokenInvalid, "Invalid authorization header format")
		return
	}
	if verifier == nil {
		abortUnauthorized(c, dto.ErrCodeTokenInvalid, "Bearer tokens are not accepted")
		return
	}

	claims, err := verifier.Verify(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRevocationCheck):
			log.Error("Failed to check token revocation", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeInternal, "Token status could not be verified", GetRequestID(c)))
		case errors.Is(err, auth.ErrExpiredToken):
			abortUnauthorized(c, dto.ErrCodeTokenExpired, "Token has expired")
		case errors.Is(err, auth.ErrTokenRevoked):
			abortUnauthorized(c, dto.ErrCodeTokenInvalid, "Token has been revoked")
		default:
			log.Debug("Bearer token rejected", zap.Error(err))
			abortUnauthorized(c, dto.ErrCodeTokenInvalid, "Invalid token")
		}
		return
	}

	actorID, err := claims.ActorID()
	if err != nil {
		abortUnauthorized(c, dto.ErrCodeTokenInvalid, "Invalid token")
		return
	}
	c.Set(ClaimsKey, claims)
	setActor(c, actorID)
	c.Next()
}

func setActor(c *gin.Context, actorID uuid.UUID) {
	c.Set(ActorIDKey, actorID)
	c.Request = c.Request.WithContext(shared.WithActor(c.Request.Context(), actorID))
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}

func skipped(path string, paths, prefixes []string) bool {
	for _, p := range paths {
		if path == p {
			return true
		}
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// GetClaims retrieves the verified bearer claims, if any
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(ClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// GetActorID retrieves the actor resolved by ActorAuth
func GetActorID(c *gin.Context) (uuid.UUID, bool) {
	if v, ok := c.Get(ActorIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id, true
		}
	}
	return uuid.Nil, false
}
