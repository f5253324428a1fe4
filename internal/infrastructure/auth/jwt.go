package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/inventory-engine/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingActor     = errors.New("missing user_id and sub in claims")
	ErrTokenRevoked     = errors.New("token has been revoked")
	// ErrRevocationCheck wraps failures of the revocation store; the token
	// is rejected because its status is unknown
	ErrRevocationCheck  = errors.New("token revocation check failed")
)

// Claims are the bearer token claims the engine reads. Tokens are issued by
// the identity service; only the actor identity matters here.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// ActorID returns user_id, falling back to the subject
func (c *Claims) ActorID() (uuid.UUID, error) {
	raw := c.UserID
	if raw == "" {
		raw = c.Subject
	}
	if raw == "" {
		return uuid.Nil, ErrMissingActor
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidClaims
	}
	return id, nil
}

// IssuedAtTime returns the iat claim or the zero time
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// TokenVerifier checks HS256 bearer tokens and, when a revocation list is
// configured, rejects revoked ones.
type TokenVerifier struct {
	secret     []byte
	issuer     string
	revocation RevocationList
}

// NewTokenVerifier creates a verifier from the JWT settings. revocation may be nil.
func NewTokenVerifier(cfg config.JWTConfig, revocation RevocationList) *TokenVerifier {
	return &TokenVerifier{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		revocation: revocation,
	}
}

// Verify parses tokenString and returns its claims
func (v *TokenVerifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrInvalidClaims
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	actorID, err := claims.ActorID()
	if err != nil {
		return nil, err
	}

	if v.revocation != nil {
		revoked, err := v.isRevoked(ctx, claims, actorID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRevocationCheck, err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

func (v *TokenVerifier) isRevoked(ctx context.Context, claims *Claims, actorID uuid.UUID) (bool, error) {
	if claims.ID != "" {
		revoked, err := v.revocation.IsRevoked(ctx, claims.ID)
		if err != nil || revoked {
			return revoked, err
		}
	}
	return v.revocation.IsUserRevoked(ctx, actorID.String(), claims.IssuedAtTime())
}
