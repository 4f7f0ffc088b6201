package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

// Claims is what the identity provider puts in an access token.
type Claims struct {
	UserID uuid.UUID   `json:"user_id"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager verifies HS256 access tokens issued by the identity provider.
type TokenManager struct {
	secretKey []byte
	issuer    string
	leeway    time.Duration
}

var _ ports.IdentityVerifier = (*TokenManager)(nil)

// NewTokenManager creates a verifier. An empty issuer skips the iss check.
func NewTokenManager(secret, issuer string, leeway time.Duration) *TokenManager {
	return &TokenManager{secretKey: []byte(secret), issuer: issuer, leeway: leeway}
}

// ValidateToken parses and validates the token string
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(tm.leeway),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return tm.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// Verify turns a token into an Actor. A missing role means attendee.
func (tm *TokenManager) Verify(tokenString string) (domain.Actor, error) {
	if tokenString == "" {
		return domain.Actor{}, fmt.Errorf("%w: missing token", apperrors.ErrUnauthorized)
	}

	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}

	userID := claims.UserID
	if userID == uuid.Nil {
		parsed, err := uuid.Parse(claims.Subject)
		if err != nil {
			return domain.Actor{}, fmt.Errorf("%w: token has no user id", apperrors.ErrUnauthorized)
		}
		userID = parsed
	}

	role := claims.Role
	if role == "" {
		role = domain.RoleAttendee
	}
	if !role.IsValid() {
		return domain.Actor{}, fmt.Errorf("%w: unknown role %q", apperrors.ErrUnauthorized, role)
	}

	return domain.Actor{UserID: userID, Role: role}, nil
}
